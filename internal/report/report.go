package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/agnvar/agnvar/internal/pipeline"
	"github.com/agnvar/agnvar/internal/validation"
)

// RunReport is the final report of a run.
type RunReport struct {
	Version     string             `json:"version"`
	GeneratedAt time.Time          `json:"generated_at"`
	Source      SourceSummary      `json:"source"`
	Catalog     CatalogSummary     `json:"catalog"`
	Run         RunSummary         `json:"run"`
	Chunks      []ChunkSummary     `json:"chunks"`
	Validation  *validation.Result `json:"validation,omitempty"`
	Failures    []string           `json:"failures,omitempty"`
	NextSteps   []string           `json:"next_steps"`
}

// SourceSummary describes the AGN parameter database.
type SourceSummary struct {
	Path      string `json:"path"`
	Table     string `json:"table"`
	ChunkSize int    `json:"chunk_size"`
}

// CatalogSummary describes the galaxy catalog.
type CatalogSummary struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// RunSummary aggregates the chunk outcomes.
type RunSummary struct {
	Status        string        `json:"status"`
	ChunksDone    int           `json:"chunks_done"`
	ChunksFailed  int           `json:"chunks_failed"`
	ChunksSkipped int           `json:"chunks_skipped"`
	RowsRead      int64         `json:"rows_read"`
	RowsJoined    int64         `json:"rows_joined"`
	RowsDropped   int64         `json:"rows_dropped"`
	MemoryBefore  int64         `json:"memory_before"`
	MemoryAfter   int64         `json:"memory_after"`
	Elapsed       time.Duration `json:"elapsed"`
}

// ChunkSummary is the outcome of one chunk.
type ChunkSummary struct {
	Index   int    `json:"index"`
	Status  string `json:"status"`
	Rows    int    `json:"rows"`
	Joined  int    `json:"joined"`
	Output  string `json:"output,omitempty"`
	URI     string `json:"uri,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// GenerateReport creates a RunReport from the final run status and an
// optional validation result.
func GenerateReport(src SourceSummary, cat CatalogSummary, status *pipeline.Status, validationResult *validation.Result) *RunReport {
	o := status.Overall
	r := &RunReport{
		Version:     "1",
		GeneratedAt: time.Now(),
		Source:      src,
		Catalog:     cat,
		Run: RunSummary{
			Status:        status.Phase,
			ChunksDone:    o.ChunksDone,
			ChunksFailed:  o.ChunksFailed,
			ChunksSkipped: o.ChunksSkipped,
			RowsRead:      o.RowsRead,
			RowsJoined:    o.RowsJoined,
			RowsDropped:   o.RowsRead - o.RowsJoined,
			MemoryBefore:  o.MemoryBefore,
			MemoryAfter:   o.MemoryAfter,
			Elapsed:       status.ElapsedTime,
		},
		Validation: validationResult,
		Failures:   status.Errors,
	}
	for _, c := range status.Chunks {
		r.Chunks = append(r.Chunks, ChunkSummary{
			Index:   c.Index,
			Status:  string(c.State),
			Rows:    c.Rows,
			Joined:  c.Joined,
			Output:  c.Output,
			URI:     c.URI,
			Skipped: c.Skipped,
			Error:   c.Error,
		})
	}

	switch {
	case o.ChunksFailed > 0:
		r.NextSteps = append(r.NextSteps, "Fix the failed chunks and rerun with --resume")
	case validationResult != nil && validationResult.Status != "PASS":
		r.NextSteps = append(r.NextSteps, "Inspect the chunks that failed validation")
	default:
		r.NextSteps = append(r.NextSteps, "Render diagnostic plots with 'agnvar plot'")
	}
	if validationResult == nil {
		r.NextSteps = append(r.NextSteps, "Check the persisted chunks with 'agnvar validate'")
	}
	return r
}

// WriteJSON writes the report as JSON.
func WriteJSON(report *RunReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON reads a report from a JSON file.
func ReadJSON(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	r := &RunReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}

// WriteText writes the report as human-readable text.
func WriteText(report *RunReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, []byte(FormatText(report)), 0o644)
}

// FormatText renders the report as human-readable text.
func FormatText(report *RunReport) string {
	var b strings.Builder

	b.WriteString("=== agnvar Run Report ===\n")
	b.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.Format(time.RFC3339)))

	b.WriteString("Source:\n")
	b.WriteString(fmt.Sprintf("  Path:       %s\n", report.Source.Path))
	b.WriteString(fmt.Sprintf("  Table:      %s\n", report.Source.Table))
	b.WriteString(fmt.Sprintf("  Chunk size: %s\n\n", humanize.Comma(int64(report.Source.ChunkSize))))

	b.WriteString("Catalog:\n")
	b.WriteString(fmt.Sprintf("  Type: %s\n", report.Catalog.Type))
	b.WriteString(fmt.Sprintf("  Name: %s\n\n", report.Catalog.Name))

	run := report.Run
	b.WriteString("Run:\n")
	b.WriteString(fmt.Sprintf("  Status:  %s\n", run.Status))
	b.WriteString(fmt.Sprintf("  Chunks:  %d done, %d failed, %d skipped\n", run.ChunksDone, run.ChunksFailed, run.ChunksSkipped))
	b.WriteString(fmt.Sprintf("  Rows:    %s read, %s joined, %s dropped\n",
		humanize.Comma(run.RowsRead), humanize.Comma(run.RowsJoined), humanize.Comma(run.RowsDropped)))
	b.WriteString(fmt.Sprintf("  Memory:  %s -> %s\n", humanize.IBytes(uint64(run.MemoryBefore)), humanize.IBytes(uint64(run.MemoryAfter))))
	b.WriteString(fmt.Sprintf("  Elapsed: %s\n\n", run.Elapsed.Round(time.Second)))

	if len(report.Chunks) > 0 {
		b.WriteString("Chunks:\n")
		for _, c := range report.Chunks {
			note := c.Output
			if c.Skipped {
				note = "skipped, " + note
			}
			if c.Error != "" {
				note = c.Error
			}
			b.WriteString(fmt.Sprintf("  %4d  %-9s %8d -> %-8d %s\n", c.Index, c.Status, c.Rows, c.Joined, note))
		}
		b.WriteString("\n")
	}

	if report.Validation != nil {
		b.WriteString(fmt.Sprintf("Validation: %s\n", report.Validation.Status))
		for _, c := range report.Validation.Chunks {
			b.WriteString(fmt.Sprintf("  %s: %s\n", c.Name, c.Status))
		}
		b.WriteString("\n")
	}

	if len(report.Failures) > 0 {
		b.WriteString("Failures:\n")
		for _, f := range report.Failures {
			b.WriteString(fmt.Sprintf("  - %s\n", f))
		}
		b.WriteString("\n")
	}

	b.WriteString("Next Steps:\n")
	for i, s := range report.NextSteps {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, s))
	}

	return b.String()
}
