// Package validation re-reads persisted chunk files and checks that they
// satisfy the invariants of a joined, derived table.
package validation

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/agnvar/agnvar/internal/frame"
	"github.com/agnvar/agnvar/internal/output"
)

// Result holds the outcome of validating an output directory.
type Result struct {
	Status      string        `json:"status"` // PASS, FAIL, PARTIAL
	Chunks      []ChunkResult `json:"chunks"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
}

// ChunkResult holds validation results for a single chunk file.
type ChunkResult struct {
	Name          string         `json:"name"`
	Chunk         int            `json:"chunk"`
	Rows          int            `json:"rows"`
	RowCountCheck *RowCountCheck `json:"row_count_check,omitempty"`
	ColumnCheck   *ColumnCheck   `json:"column_check,omitempty"`
	UniqueCheck   *UniqueCheck   `json:"unique_check,omitempty"`
	RatioCheck    *RatioCheck    `json:"ratio_check,omitempty"`
	FiniteCheck   *FiniteCheck   `json:"finite_check,omitempty"`
	Status        string         `json:"status"` // PASS, FAIL
}

// Validator checks every joined_<n>.csv in Dir.
type Validator struct {
	Dir string
	// ChunkSize bounds the rows of any chunk; zero disables the check.
	ChunkSize int
	// Tolerance is the relative error allowed on the rest-frame ratio check.
	Tolerance float64
	Callback  func(file, checkType string, passed bool)
}

// Validate runs all checks on every chunk file.
func (v *Validator) Validate(ctx context.Context) (*Result, error) {
	result := &Result{StartedAt: time.Now()}

	files, err := output.Glob(v.Dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no chunk files in %s", v.Dir)
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := output.ReadCSV(path)
		if err != nil {
			return nil, err
		}
		chunk, _ := output.ChunkIndex(path)
		result.Chunks = append(result.Chunks, v.validateChunk(filepath.Base(path), chunk, f))
	}

	result.CompletedAt = time.Now()
	result.Status = computeOverallStatus(result.Chunks)
	return result, nil
}

func (v *Validator) validateChunk(name string, chunk int, f *frame.Frame) ChunkResult {
	cr := ChunkResult{Name: name, Chunk: chunk, Rows: f.Len(), Status: "PASS"}

	cr.RowCountCheck = v.validateRowCount(f)
	v.record(&cr, "row_count", cr.RowCountCheck.Match)

	cr.ColumnCheck = validateColumns(f)
	v.record(&cr, "columns", cr.ColumnCheck.Match)

	cr.UniqueCheck = validateUnique(f)
	v.record(&cr, "unique", cr.UniqueCheck.Match)

	cr.RatioCheck = v.validateRatio(f)
	v.record(&cr, "rest_frame_ratio", cr.RatioCheck.Match)

	// Non-finite values are legitimate (NaN magnitudes), so this check only
	// reports counts.
	cr.FiniteCheck = validateFinite(f)
	v.notify(name, "finite", true)

	return cr
}

func (v *Validator) record(cr *ChunkResult, checkType string, passed bool) {
	if !passed {
		cr.Status = "FAIL"
	}
	v.notify(cr.Name, checkType, passed)
}

func (v *Validator) notify(file, checkType string, passed bool) {
	if v.Callback != nil {
		v.Callback(file, checkType, passed)
	}
}

func computeOverallStatus(chunks []ChunkResult) string {
	if len(chunks) == 0 {
		return "PASS"
	}
	failCount := 0
	for _, c := range chunks {
		if c.Status == "FAIL" {
			failCount++
		}
	}
	if failCount == 0 {
		return "PASS"
	}
	if failCount == len(chunks) {
		return "FAIL"
	}
	return "PARTIAL"
}
