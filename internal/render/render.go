// Package render writes reports as text tables, CSV, JSON, Markdown and HTML.
package render

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/rbias/clusterpulse/internal/report"
	"github.com/rbias/clusterpulse/internal/storage"
)

// Format is an output format name.
type Format string

const (
	FormatTable    Format = "table"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Formats lists every supported format.
var Formats = []Format{FormatTable, FormatCSV, FormatJSON, FormatMarkdown, FormatHTML}

// ParseFormat validates a format name. "md" is accepted for markdown.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case "md":
		return FormatMarkdown, nil
	case FormatTable, FormatCSV, FormatJSON, FormatMarkdown, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want one of table, csv, json, markdown, html)", s)
	}
}

// ContentType returns the HTTP content type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Options tunes text rendering.
type Options struct {
	// TimestampFormat is the Go layout for timestamps in text formats.
	// JSON always uses RFC 3339.
	TimestampFormat string
}

func (o Options) layout() string {
	if o.TimestampFormat == "" {
		return report.DefaultTimestampFormat
	}
	return o.TimestampFormat
}

// Render writes r to w in format f.
func Render(w io.Writer, r *report.Report, f Format, opts Options) error {
	switch f {
	case FormatTable, "":
		return Table(w, r, opts)
	case FormatCSV:
		return CSV(w, r, opts)
	case FormatJSON:
		return JSON(w, r)
	case FormatMarkdown:
		return Markdown(w, r, opts)
	case FormatHTML:
		return HTML(w, r, opts)
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
}

// Table writes an aligned plain-text table.
func Table(w io.Writer, r *report.Report, opts Options) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(r.Header(), "\t"))
	for _, rec := range r.Records(opts.layout()) {
		fmt.Fprintln(tw, strings.Join(rec, "\t"))
	}
	return tw.Flush()
}

// CSV writes a header line followed by one record per row.
func CSV(w io.Writer, r *report.Report, opts Options) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.Header()); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := cw.WriteAll(r.Records(opts.layout())); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}
	return nil
}

// jsonReport is the JSON document shape. Rows carry "N/A" for missing
// timestamps.
type jsonReport struct {
	ReportID    string      `json:"report_id"`
	Cluster     string      `json:"cluster"`
	Detailed    bool        `json:"detailed"`
	GeneratedAt time.Time   `json:"generated_at"`
	Header      []string    `json:"header"`
	Rows        interface{} `json:"rows"`
}

// Rows returns the report's row slice, never nil.
func Rows(r *report.Report) interface{} {
	if r.Detailed {
		if r.ResourceRows == nil {
			return []report.ResourceRow{}
		}
		return r.ResourceRows
	}
	if r.GroupRows == nil {
		return []report.GroupRow{}
	}
	return r.GroupRows
}

// JSON writes the report as an indented JSON document.
func JSON(w io.Writer, r *report.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{
		ReportID:    r.ID,
		Cluster:     r.Cluster,
		Detailed:    r.Detailed,
		GeneratedAt: r.GeneratedAt.UTC(),
		Header:      r.Header(),
		Rows:        Rows(r),
	})
}

// Markdown writes a titled Markdown document with a pipe table and a
// status summary.
func Markdown(w io.Writer, r *report.Report, opts Options) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", htmlText.Replace(title(r)))
	fmt.Fprintf(&b, "- **Cluster:** %s\n", escapeCell(r.Cluster))
	if r.Detailed {
		b.WriteString("- **View:** resources\n")
	} else {
		b.WriteString("- **View:** resource groups\n")
	}
	if !r.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "- **Generated:** %s\n", r.GeneratedAt.Format(opts.layout()))
	}
	if r.ID != "" {
		fmt.Fprintf(&b, "- **Report ID:** `%s`\n", r.ID)
	}
	b.WriteString("\n")

	header := r.Header()
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(header)) + "\n")
	for _, rec := range r.Records(opts.layout()) {
		cells := make([]string, len(rec))
		for i, c := range rec {
			cells[i] = escapeCell(c)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	summary := r.Summarize()
	b.WriteString("\n## Summary\n\n")
	fmt.Fprintf(&b, "%d rows.\n\n", summary.Total)
	for _, sc := range summary.Statuses {
		fmt.Fprintf(&b, "- %s: %d\n", escapeCell(sc.Status), sc.Count)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// HTML writes a complete HTML page converted from the Markdown rendering.
func HTML(w io.Writer, r *report.Report, opts Options) error {
	var md bytes.Buffer
	if err := Markdown(&md, r, opts); err != nil {
		return err
	}

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse(md.Bytes())

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank | html.CompletePage | html.SkipHTML,
		Title: title(r),
	})

	_, err := w.Write(markdown.Render(doc, renderer))
	return err
}

// Artifacts renders r in every file format for upload.
func Artifacts(r *report.Report, opts Options) (*storage.ReportArtifacts, error) {
	a := &storage.ReportArtifacts{Cluster: r.Cluster}
	for _, out := range []struct {
		f   Format
		dst *[]byte
	}{
		{FormatCSV, &a.CSV},
		{FormatJSON, &a.JSON},
		{FormatMarkdown, &a.Markdown},
		{FormatHTML, &a.HTML},
	} {
		var buf bytes.Buffer
		if err := Render(&buf, r, out.f, opts); err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", out.f, err)
		}
		*out.dst = buf.Bytes()
	}
	return a, nil
}

func title(r *report.Report) string {
	return "Cluster status report: " + r.Cluster
}

// htmlText turns markup characters into entities, which Markdown renders
// as literal text.
var htmlText = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escapeCell keeps cell text from breaking the pipe table or injecting
// markup.
func escapeCell(s string) string {
	s = htmlText.Replace(s)
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
