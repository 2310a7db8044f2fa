// Package output persists joined chunks as comma-separated tables and reads
// them back for plotting and validation.
//
// Each file carries a header row whose first field is empty (the row index
// column) followed by the column names. Missing values are empty fields and
// floats are written in their shortest round-trip form.
package output

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/agnvar/agnvar/internal/frame"
)

// FileName returns the name of the persisted file for a chunk.
func FileName(chunk int) string {
	return fmt.Sprintf("joined_%d.csv", chunk)
}

// WriteCSV writes f to dir/joined_<chunk>.csv and returns the path. The file is
// written to a temporary name first and renamed, so a crash never leaves a
// truncated chunk behind.
func WriteCSV(dir string, chunk int, f *frame.Frame) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, FileName(chunk))
	tmp := path + ".tmp"

	file, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", tmp, err)
	}
	bw := bufio.NewWriterSize(file, 1<<20)
	if err := Encode(bw, f); err != nil {
		file.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return path, nil
}

// Encode writes f as CSV to w.
func Encode(w io.Writer, f *frame.Frame) error {
	cw := csv.NewWriter(w)
	cols := f.Columns()

	record := make([]string, len(cols)+1)
	for i, c := range cols {
		record[i+1] = c.Name
	}
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for row := 0; row < f.Len(); row++ {
		record[0] = strconv.Itoa(row)
		for i, c := range cols {
			record[i+1] = formatCell(c, row)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing row %d: %w", row, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(c *frame.Column, row int) string {
	switch c.Kind {
	case frame.String:
		return c.StringAt(row)
	case frame.Float64:
		return FormatFloat(c.FloatAt(row), 64)
	case frame.Float32:
		return FormatFloat(c.FloatAt(row), 32)
	case frame.Uint64:
		return strconv.FormatUint(uint64(c.IntAt(row)), 10)
	}
	return strconv.FormatInt(c.IntAt(row), 10)
}

// FormatFloat renders v in the shortest form that parses back to the same
// value at the given bit size. Integral values keep a trailing ".0" so they
// read back as floats; NaN is empty.
func FormatFloat(v float64, bitSize int) string {
	switch {
	case math.IsNaN(v):
		return ""
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, bitSize)
	}
	s := strconv.FormatFloat(v, 'f', -1, bitSize)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// ReadCSV loads a file written by WriteCSV. Columns whose every field is an
// integer literal become Int64, columns of numbers or empty fields become
// Float64, and anything else stays String. The index column is dropped.
func ReadCSV(path string) (*frame.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	f, err := Decode(bufio.NewReaderSize(file, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return f, nil
}

// Decode parses CSV produced by Encode.
func Decode(r io.Reader) (*frame.Frame, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	names := append([]string(nil), header...)
	skip := 0
	if len(names) > 0 && names[0] == "" {
		skip = 1
	}
	names = names[skip:]

	fields := make([][]string, len(names))
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for i := range names {
			fields[i] = append(fields[i], rec[i+skip])
		}
	}

	cols := make([]*frame.Column, len(names))
	for i, name := range names {
		cols[i] = inferColumn(name, fields[i])
	}
	return frame.New(cols...)
}

func inferColumn(name string, fields []string) *frame.Column {
	if ints, ok := parseInts(fields); ok {
		return frame.NewInt64(name, ints)
	}
	if floats, ok := parseFloats(fields); ok {
		return frame.NewFloat64(name, floats)
	}
	return frame.NewString(name, append([]string(nil), fields...))
}

func parseInts(fields []string) ([]int64, bool) {
	out := make([]int64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func parseFloats(fields []string) ([]float64, bool) {
	out := make([]float64, len(fields))
	for i, s := range fields {
		if s == "" {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// Glob returns the persisted chunk files in dir ordered by chunk index.
func Glob(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "joined_*.csv"))
	if err != nil {
		return nil, err
	}
	type entry struct {
		path  string
		chunk int
	}
	entries := make([]entry, 0, len(matches))
	for _, m := range matches {
		n, ok := ChunkIndex(m)
		if !ok {
			continue
		}
		entries = append(entries, entry{m, n})
	}
	slices.SortFunc(entries, func(a, b entry) int { return a.chunk - b.chunk })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out, nil
}

// ChunkIndex extracts the chunk number from a persisted file name.
func ChunkIndex(path string) (int, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "joined_") || !strings.HasSuffix(base, ".csv") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, "joined_"), ".csv"))
	if err != nil {
		return 0, false
	}
	return n, true
}
