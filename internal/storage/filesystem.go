package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemStorage implements the Storage interface by writing report artifacts under a local directory.
type FilesystemStorage struct {
	workspaceRoot string
}

// NewFilesystemStorage creates a new FilesystemStorage instance with the given workspace root directory.
func NewFilesystemStorage(workspaceRoot string) *FilesystemStorage {
	return &FilesystemStorage{
		workspaceRoot: workspaceRoot,
	}
}

// SaveReport writes artifacts to <workspace-root>/<cluster>/<report-id>/.
// It returns filesystem paths rather than URLs, and a zero ExpiresAt.
func (fs *FilesystemStorage) SaveReport(ctx context.Context, reportID string, artifacts *ReportArtifacts) (*SaveResult, error) {
	if artifacts == nil {
		return nil, fmt.Errorf("artifacts cannot be nil")
	}
	if reportID == "" {
		return nil, fmt.Errorf("report ID is required")
	}

	reportDir := filepath.Join(fs.workspaceRoot, filepath.FromSlash(artifactPrefix(artifacts.Cluster, reportID)))
	if err := os.MkdirAll(reportDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	result := &SaveResult{ArtifactURLs: make(map[string]string)}
	for _, f := range artifacts.files() {
		if len(f.data) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := filepath.Join(reportDir, f.name)
		if err := os.WriteFile(p, f.data, 0600); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
		result.ArtifactURLs[f.name] = p
		if result.ReportURL == "" {
			result.ReportURL = p
		}
	}

	if len(result.ArtifactURLs) == 0 {
		return nil, fmt.Errorf("no artifacts to save")
	}
	return result, nil
}
