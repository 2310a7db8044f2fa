package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/agnvar/agnvar/internal/frame"
)

// MemoryCatalog serves quantities from an in-memory table. It is used for
// catalogs small enough to load from a CSV extract and as a test double.
type MemoryCatalog struct {
	data    *frame.Frame
	columns ColumnMap

	// GetErr, when set, is returned by every GetQuantities call.
	GetErr error

	mu    sync.Mutex
	calls []Call
}

// Call records one GetQuantities request.
type Call struct {
	Names   []string
	Filters []string
}

// NewMemoryCatalog wraps a table holding at least the requested quantities.
func NewMemoryCatalog(data *frame.Frame, columns ColumnMap) *MemoryCatalog {
	return &MemoryCatalog{data: data, columns: columns}
}

// Calls returns the requests served so far.
func (m *MemoryCatalog) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *MemoryCatalog) GetQuantities(ctx context.Context, names []string, filters []string) (*frame.Frame, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Names: append([]string(nil), names...), Filters: append([]string(nil), filters...)})
	m.mu.Unlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsed, err := ParseFilters(filters)
	if err != nil {
		return nil, err
	}
	filterCols := make([]*frame.Column, len(parsed))
	for i, f := range parsed {
		col, err := m.data.Column(m.columns.Resolve(f.Column))
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f, err)
		}
		filterCols[i] = col
	}
	cols := make([]*frame.Column, len(names))
	for i, n := range names {
		col, err := m.data.Column(m.columns.Resolve(n))
		if err != nil {
			return nil, fmt.Errorf("quantity %s: %w", n, err)
		}
		cols[i] = col
	}

	b := newBuilder(names)
	vals := make([]any, len(names))
	for row := 0; row < m.data.Len(); row++ {
		if !matchAll(parsed, filterCols, row) {
			continue
		}
		for i, col := range cols {
			vals[i] = cellValue(col, row)
		}
		if err := b.add(vals); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
	}
	return b.frame()
}

func (m *MemoryCatalog) Close(_ context.Context) error { return nil }

func matchAll(filters []Filter, cols []*frame.Column, row int) bool {
	for i, f := range filters {
		col := cols[i]
		if col.Kind.IsInteger() {
			if !f.Match(col.IntAt(row)) {
				return false
			}
		} else if !matchFloat(f, col.FloatAt(row)) {
			return false
		}
	}
	return true
}

func matchFloat(f Filter, v float64) bool {
	x := float64(f.Value)
	switch f.Op {
	case OpGE:
		return v >= x
	case OpLE:
		return v <= x
	case OpGT:
		return v > x
	case OpLT:
		return v < x
	case OpEQ:
		return v == x
	}
	return false
}

func cellValue(col *frame.Column, row int) any {
	switch {
	case col.Kind.IsInteger():
		return col.IntAt(row)
	case col.Kind.IsFloat():
		return col.FloatAt(row)
	}
	return nil
}
