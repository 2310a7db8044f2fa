package catalog

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/agnvar/agnvar/internal/frame"
)

// Quantity names exposed by the galaxy catalog.
const (
	QGalaxyID       = "galaxy_id"
	QRedshift       = "redshift"
	QAccretionRate  = "blackHoleAccretionRate"
	QEddingtonRatio = "blackHoleEddingtonRatio"
	QBlackHoleMass  = "blackHoleMass"
)

// Quantities are the five columns requested for every join.
var Quantities = []string{QGalaxyID, QRedshift, QAccretionRate, QEddingtonRatio, QBlackHoleMass}

// Catalog is a read-only galaxy catalog service. GetQuantities returns one
// column per requested name for every row satisfying all filters. The
// galaxy_id column is Int64, every other column Float64.
type Catalog interface {
	GetQuantities(ctx context.Context, names []string, filters []string) (*frame.Frame, error)
	Close(ctx context.Context) error
}

// Op is a comparison operator in a range predicate.
type Op string

const (
	OpGE Op = ">="
	OpLE Op = "<="
	OpGT Op = ">"
	OpLT Op = "<"
	OpEQ Op = "=="
)

// Filter is a parsed range predicate such as "galaxy_id >= 100".
type Filter struct {
	Column string
	Op     Op
	Value  int64
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %d", f.Column, f.Op, f.Value)
}

// Match reports whether v satisfies the predicate.
func (f Filter) Match(v int64) bool {
	switch f.Op {
	case OpGE:
		return v >= f.Value
	case OpLE:
		return v <= f.Value
	case OpGT:
		return v > f.Value
	case OpLT:
		return v < f.Value
	case OpEQ:
		return v == f.Value
	}
	return false
}

// ParseFilter parses "<column> <op> <integer>".
func ParseFilter(s string) (Filter, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return Filter{}, fmt.Errorf("filter %q: expected \"<column> <op> <value>\"", s)
	}
	op := Op(fields[1])
	switch op {
	case OpGE, OpLE, OpGT, OpLT, OpEQ:
	default:
		return Filter{}, fmt.Errorf("filter %q: unsupported operator %q", s, fields[1])
	}
	v, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Filter{}, fmt.Errorf("filter %q: value: %w", s, err)
	}
	return Filter{Column: fields[0], Op: op, Value: v}, nil
}

// ParseFilters parses every filter string.
func ParseFilters(filters []string) ([]Filter, error) {
	out := make([]Filter, 0, len(filters))
	for _, s := range filters {
		f, err := ParseFilter(s)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// ColumnMap translates quantity names to backend column names. Unmapped
// quantities use their own name.
type ColumnMap map[string]string

// Resolve returns the backend name for a quantity.
func (m ColumnMap) Resolve(quantity string) string {
	if c, ok := m[quantity]; ok && c != "" {
		return c
	}
	return quantity
}

// builder accumulates catalog rows into typed columns.
type builder struct {
	names  []string
	ids    []int64
	floats [][]float64
	idPos  int
}

func newBuilder(names []string) *builder {
	b := &builder{names: names, idPos: -1, floats: make([][]float64, len(names))}
	for i, n := range names {
		if n == QGalaxyID {
			b.idPos = i
		}
	}
	return b
}

// add appends one row given values in names order. A row that fails to
// convert leaves the builder unchanged.
func (b *builder) add(vals []any) error {
	if len(vals) != len(b.names) {
		return fmt.Errorf("row has %d values, want %d", len(vals), len(b.names))
	}
	var id int64
	row := make([]float64, len(vals))
	for i, v := range vals {
		var err error
		if i == b.idPos {
			id, err = toInt64(v)
		} else {
			row[i], err = toFloat64(v)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", b.names[i], err)
		}
	}
	for i := range vals {
		if i == b.idPos {
			b.ids = append(b.ids, id)
			continue
		}
		b.floats[i] = append(b.floats[i], row[i])
	}
	return nil
}

func (b *builder) frame() (*frame.Frame, error) {
	cols := make([]*frame.Column, len(b.names))
	for i, n := range b.names {
		if i == b.idPos {
			ids := b.ids
			if ids == nil {
				ids = []int64{}
			}
			cols[i] = frame.NewInt64(n, ids)
			continue
		}
		vals := b.floats[i]
		if vals == nil {
			vals = []float64{}
		}
		cols[i] = frame.NewFloat64(n, vals)
	}
	return frame.New(cols...)
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("id %d overflows int64", x)
		}
		return int64(x), nil
	case float64:
		if x < math.MinInt64 || x >= math.MaxInt64 {
			return 0, fmt.Errorf("id %v overflows int64", x)
		}
		if x != float64(int64(x)) {
			return 0, fmt.Errorf("non-integral id %v", x)
		}
		return int64(x), nil
	}
	return 0, fmt.Errorf("unsupported id type %T", v)
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case nil:
		return math.NaN(), nil
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}
