// Package powershell talks to Windows failover clusters by running
// FailoverClusters and Get-WinEvent cmdlets and decoding their JSON output.
package powershell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Executor runs a PowerShell script and returns its standard output.
type Executor interface {
	Run(ctx context.Context, script string) ([]byte, error)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Executable is pwsh or powershell.exe.
	Executable string
	// Timeout bounds a single script. Zero means no extra bound beyond ctx.
	Timeout time.Duration
}

// Runner executes scripts through a local PowerShell process.
type Runner struct {
	config RunnerConfig
}

// NewRunner creates a Runner. An empty executable defaults to pwsh.
func NewRunner(config RunnerConfig) *Runner {
	if config.Executable == "" {
		config.Executable = "pwsh"
	}
	return &Runner{config: config}
}

// CommandError is returned when PowerShell exits non-zero.
type CommandError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("powershell exited with code %d: %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("powershell exited with code %d: %s", e.ExitCode, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Run executes script with -NoProfile -NonInteractive and returns stdout.
func (r *Runner) Run(ctx context.Context, script string) ([]byte, error) {
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	slog.Debug("running powershell",
		"executable", r.config.Executable,
		"script", script)

	cmd := exec.CommandContext(ctx, r.config.Executable,
		"-NoProfile", "-NonInteractive", "-Command", script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("powershell interrupted: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &CommandError{
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
				Err:      err,
			}
		}
		return nil, fmt.Errorf("failed to run %s: %w", r.config.Executable, err)
	}

	slog.Debug("powershell completed",
		"duration", time.Since(start),
		"stdout_bytes", stdout.Len())
	return stdout.Bytes(), nil
}

// quoteReplacer doubles every character PowerShell accepts as a single
// quote, including the typographic ones.
var quoteReplacer = strings.NewReplacer(
	"'", "''",
	"\u2018", "\u2018\u2018",
	"\u2019", "\u2019\u2019",
	"\u201A", "\u201A\u201A",
	"\u201B", "\u201B\u201B",
)

// quote renders s as a single-quoted PowerShell string literal.
func quote(s string) string {
	return "'" + quoteReplacer.Replace(s) + "'"
}
