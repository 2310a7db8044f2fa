// Package optimize narrows the storage width of numeric columns without
// changing their values.
package optimize

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/agnvar/agnvar/internal/frame"
)

// Report records column memory before and after downcasting.
type Report struct {
	IntBefore, IntAfter     int64
	FloatBefore, FloatAfter int64
	TotalBefore, TotalAfter int64
	// Kinds maps each changed column to its new kind.
	Kinds map[string]frame.Kind
}

// Saved returns the bytes released overall.
func (r Report) Saved() int64 { return r.TotalBefore - r.TotalAfter }

// String renders the report as a table.
func (r Report) String() string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Columns", "Before", "After"})
	tbl.AppendRow(table.Row{"Integer", humanize.IBytes(uint64(r.IntBefore)), humanize.IBytes(uint64(r.IntAfter))})
	tbl.AppendRow(table.Row{"Float", humanize.IBytes(uint64(r.FloatBefore)), humanize.IBytes(uint64(r.FloatAfter))})
	tbl.AppendFooter(table.Row{"Overall", humanize.IBytes(uint64(r.TotalBefore)), humanize.IBytes(uint64(r.TotalAfter))})
	return tbl.Render()
}

// Log writes the report as one structured record.
func (r Report) Log(logger *slog.Logger, chunk int) {
	logger.Info("memory downcast",
		"chunk", chunk,
		"int_before", humanize.IBytes(uint64(r.IntBefore)),
		"int_after", humanize.IBytes(uint64(r.IntAfter)),
		"float_before", humanize.IBytes(uint64(r.FloatBefore)),
		"float_after", humanize.IBytes(uint64(r.FloatAfter)),
		"total_before", humanize.IBytes(uint64(r.TotalBefore)),
		"total_after", humanize.IBytes(uint64(r.TotalAfter)),
	)
}

// Float32Tolerance is the largest absolute change a value may take when a
// Float64 column is narrowed to Float32.
const Float32Tolerance = 5e-4

// Downcast returns a copy of f in which every integer column uses the
// narrowest unsigned kind holding its range (columns with negative values stay
// Int64) and every Float64 column becomes Float32 when all of its values
// survive the conversion within Float32Tolerance. String columns are
// untouched. The input frame is not modified.
func Downcast(f *frame.Frame) (*frame.Frame, Report) {
	rep := Report{TotalBefore: f.MemoryUsage(), Kinds: make(map[string]frame.Kind)}

	cols := make([]*frame.Column, 0, f.Width())
	for _, c := range f.Columns() {
		out := c
		switch {
		case c.Kind.IsInteger():
			out = downcastInt(c)
			rep.IntBefore += c.MemoryUsage()
			rep.IntAfter += out.MemoryUsage()
		case c.Kind.IsFloat():
			out = downcastFloat(c)
			rep.FloatBefore += c.MemoryUsage()
			rep.FloatAfter += out.MemoryUsage()
		}
		if out.Kind != c.Kind {
			rep.Kinds[c.Name] = out.Kind
		}
		cols = append(cols, out)
	}

	res := frame.MustNew(cols...)
	rep.TotalAfter = res.MemoryUsage()
	return res, rep
}

// UnsignedKind returns the narrowest unsigned kind for values in [lo, hi],
// or Int64 when lo is negative.
func UnsignedKind(lo, hi int64) frame.Kind {
	switch {
	case lo < 0:
		return frame.Int64
	case hi <= math.MaxUint8:
		return frame.Uint8
	case hi <= math.MaxUint16:
		return frame.Uint16
	case hi <= math.MaxUint32:
		return frame.Uint32
	}
	return frame.Uint64
}

func downcastInt(c *frame.Column) *frame.Column {
	n := c.Len()
	if n == 0 || c.Kind != frame.Int64 {
		return c
	}
	vals := c.Int64s()
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	switch UnsignedKind(lo, hi) {
	case frame.Uint8:
		return frame.NewUint8(c.Name, convert[uint8](vals))
	case frame.Uint16:
		return frame.NewUint16(c.Name, convert[uint16](vals))
	case frame.Uint32:
		return frame.NewUint32(c.Name, convert[uint32](vals))
	case frame.Uint64:
		return frame.NewUint64(c.Name, convert[uint64](vals))
	}
	return c
}

func convert[T uint8 | uint16 | uint32 | uint64](vals []int64) []T {
	out := make([]T, len(vals))
	for i, v := range vals {
		out[i] = T(v)
	}
	return out
}

func downcastFloat(c *frame.Column) *frame.Column {
	if c.Kind != frame.Float64 {
		return c
	}
	vals := c.Float64s()
	narrow := make([]float32, len(vals))
	for i, v := range vals {
		if !fitsFloat32(v) {
			return c
		}
		narrow[i] = float32(v)
	}
	return frame.NewFloat32(c.Name, narrow)
}

// fitsFloat32 reports whether v converts to float32 within Float32Tolerance.
// NaN and infinities qualify; finite values that overflow float32 do not.
func fitsFloat32(v float64) bool {
	return closeEnough(v, float64(float32(v)))
}

func closeEnough(a, b float64) bool {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return math.IsNaN(a) && math.IsNaN(b)
	case math.IsInf(a, 0) || math.IsInf(b, 0):
		return a == b
	}
	return math.Abs(a-b) <= Float32Tolerance
}

// Check verifies that every value of narrowed matches the corresponding value
// of original: integers exactly, floats within Float32Tolerance.
func Check(original, narrowed *frame.Frame) error {
	if original.Len() != narrowed.Len() || original.Width() != narrowed.Width() {
		return fmt.Errorf("shape changed from %dx%d to %dx%d", original.Len(), original.Width(), narrowed.Len(), narrowed.Width())
	}
	for j, oc := range original.Columns() {
		nc := narrowed.Columns()[j]
		if oc.Kind == frame.String {
			continue
		}
		for i := 0; i < oc.Len(); i++ {
			if oc.Kind.IsInteger() {
				if oc.IntAt(i) != nc.IntAt(i) {
					return fmt.Errorf("column %s row %d: %d became %d", oc.Name, i, oc.IntAt(i), nc.IntAt(i))
				}
				continue
			}
			a, b := oc.FloatAt(i), nc.FloatAt(i)
			if !closeEnough(a, b) {
				return fmt.Errorf("column %s row %d: %g became %g", oc.Name, i, a, b)
			}
		}
	}
	return nil
}
