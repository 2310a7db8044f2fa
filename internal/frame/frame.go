// Package frame holds chunk tables as named arrow arrays.
package frame

import (
	"fmt"
	"math"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Kind identifies the storage type of a column.
type Kind int

const (
	Int64 Kind = iota
	Uint8
	Uint16
	Uint32
	Uint64
	Float64
	Float32
	String
)

var kindNames = map[Kind]string{
	Int64:   "int64",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Uint64:  "uint64",
	Float64: "float64",
	Float32: "float32",
	String:  "string",
}

var kindTypes = map[Kind]arrow.DataType{
	Int64:   arrow.PrimitiveTypes.Int64,
	Uint8:   arrow.PrimitiveTypes.Uint8,
	Uint16:  arrow.PrimitiveTypes.Uint16,
	Uint32:  arrow.PrimitiveTypes.Uint32,
	Uint64:  arrow.PrimitiveTypes.Uint64,
	Float64: arrow.PrimitiveTypes.Float64,
	Float32: arrow.PrimitiveTypes.Float32,
	String:  arrow.BinaryTypes.String,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DataType returns the arrow type backing the kind.
func (k Kind) DataType() arrow.DataType { return kindTypes[k] }

// IsInteger reports whether the kind stores integers.
func (k Kind) IsInteger() bool {
	switch k {
	case Int64, Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

// IsFloat reports whether the kind stores floating-point values.
func (k Kind) IsFloat() bool {
	return k == Float64 || k == Float32
}

// Width returns the storage width in bytes of one value, or 0 for strings.
func (k Kind) Width() int {
	switch k {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

// Columns are allocated from the Go allocator, so arrays left unreleased
// are reclaimed by the garbage collector.
var mem memory.Allocator = memory.NewGoAllocator()

type valueBuilder[T any] interface {
	array.Builder
	AppendValues([]T, []bool)
}

// build appends v to b and returns the finished array. Missing floats stay
// NaN values rather than nulls.
func build[T any, B valueBuilder[T]](b B, v []T) arrow.Array {
	defer b.Release()
	b.AppendValues(v, nil)
	return b.NewArray()
}

// Column is a named arrow array of one Kind.
type Column struct {
	Name string
	Kind Kind

	arr arrow.Array
}

// NewInt64 creates an int64 column.
func NewInt64(name string, v []int64) *Column {
	return &Column{Name: name, Kind: Int64, arr: build(array.NewInt64Builder(mem), v)}
}

// NewFloat64 creates a float64 column.
func NewFloat64(name string, v []float64) *Column {
	return &Column{Name: name, Kind: Float64, arr: build(array.NewFloat64Builder(mem), v)}
}

// NewFloat32 creates a float32 column.
func NewFloat32(name string, v []float32) *Column {
	return &Column{Name: name, Kind: Float32, arr: build(array.NewFloat32Builder(mem), v)}
}

// NewString creates a string column.
func NewString(name string, v []string) *Column {
	return &Column{Name: name, Kind: String, arr: build(array.NewStringBuilder(mem), v)}
}

// NewUint8 creates a uint8 column.
func NewUint8(name string, v []uint8) *Column {
	return &Column{Name: name, Kind: Uint8, arr: build(array.NewUint8Builder(mem), v)}
}

// NewUint16 creates a uint16 column.
func NewUint16(name string, v []uint16) *Column {
	return &Column{Name: name, Kind: Uint16, arr: build(array.NewUint16Builder(mem), v)}
}

// NewUint32 creates a uint32 column.
func NewUint32(name string, v []uint32) *Column {
	return &Column{Name: name, Kind: Uint32, arr: build(array.NewUint32Builder(mem), v)}
}

// NewUint64 creates a uint64 column.
func NewUint64(name string, v []uint64) *Column {
	return &Column{Name: name, Kind: Uint64, arr: build(array.NewUint64Builder(mem), v)}
}

// FromArray wraps an arrow array of a supported type.
func FromArray(name string, arr arrow.Array) (*Column, error) {
	for k, dt := range kindTypes {
		if arrow.TypeEqual(dt, arr.DataType()) {
			if arr.NullN() > 0 {
				return nil, fmt.Errorf("column %q has %d nulls", name, arr.NullN())
			}
			return &Column{Name: name, Kind: k, arr: arr}, nil
		}
	}
	return nil, fmt.Errorf("column %q has unsupported type %s", name, arr.DataType())
}

// Array returns the arrow array holding the column.
func (c *Column) Array() arrow.Array { return c.arr }

// Len returns the number of values in the column.
func (c *Column) Len() int { return c.arr.Len() }

// Int64s returns the raw int64 values. It panics if the column is not Int64.
func (c *Column) Int64s() []int64 {
	c.mustBe(Int64)
	return c.arr.(*array.Int64).Int64Values()
}

// Float64s returns the raw float64 values. It panics if the column is not Float64.
func (c *Column) Float64s() []float64 {
	c.mustBe(Float64)
	return c.arr.(*array.Float64).Float64Values()
}

// Float32s returns the raw float32 values. It panics if the column is not Float32.
func (c *Column) Float32s() []float32 {
	c.mustBe(Float32)
	return c.arr.(*array.Float32).Float32Values()
}

// Strings copies the values of a string column. It panics if the column is
// not String.
func (c *Column) Strings() []string {
	c.mustBe(String)
	s := c.arr.(*array.String)
	out := make([]string, s.Len())
	for i := range out {
		out[i] = s.Value(i)
	}
	return out
}

func (c *Column) mustBe(k Kind) {
	if c.Kind != k {
		panic(fmt.Sprintf("frame: column %q is %s, not %s", c.Name, c.Kind, k))
	}
}

// IntAt returns the value at i widened to int64. Valid for numeric kinds;
// a uint64 beyond the int64 range wraps.
func (c *Column) IntAt(i int) int64 {
	switch a := c.arr.(type) {
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		return int64(a.Value(i))
	case *array.Float64:
		return int64(a.Value(i))
	case *array.Float32:
		return int64(a.Value(i))
	}
	panic(fmt.Sprintf("frame: column %q of kind %s has no integer value", c.Name, c.Kind))
}

// FloatAt returns the value at i widened to float64. Valid for numeric kinds.
func (c *Column) FloatAt(i int) float64 {
	switch a := c.arr.(type) {
	case *array.Float64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Uint64:
		return float64(a.Value(i))
	case *array.String:
		panic(fmt.Sprintf("frame: column %q is a string column", c.Name))
	}
	return float64(c.IntAt(i))
}

// StringAt returns the value at i of a string column.
func (c *Column) StringAt(i int) string {
	c.mustBe(String)
	return c.arr.(*array.String).Value(i)
}

// Floats returns the column widened to a fresh []float64.
func (c *Column) Floats() []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		out[i] = c.FloatAt(i)
	}
	return out
}

// MemoryUsage returns the length in bytes of the column's value buffers:
// the data buffer of numeric columns, and the offsets plus character data
// of string columns. Validity bitmaps are not counted.
func (c *Column) MemoryUsage() int64 {
	var n int64
	for _, buf := range c.arr.Data().Buffers()[1:] {
		if buf != nil {
			n += int64(buf.Len())
		}
	}
	return n
}

// IsMissing reports whether the value at i is a missing marker (NaN float).
func (c *Column) IsMissing(i int) bool {
	switch a := c.arr.(type) {
	case *array.Float64:
		return math.IsNaN(a.Value(i))
	case *array.Float32:
		return math.IsNaN(float64(a.Value(i)))
	}
	return false
}

// take returns a new column holding the values at the given indices.
func (c *Column) take(idx []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch a := c.arr.(type) {
	case *array.Int64:
		out.arr = build(array.NewInt64Builder(mem), gather(a.Int64Values(), idx))
	case *array.Uint8:
		out.arr = build(array.NewUint8Builder(mem), gather(a.Uint8Values(), idx))
	case *array.Uint16:
		out.arr = build(array.NewUint16Builder(mem), gather(a.Uint16Values(), idx))
	case *array.Uint32:
		out.arr = build(array.NewUint32Builder(mem), gather(a.Uint32Values(), idx))
	case *array.Uint64:
		out.arr = build(array.NewUint64Builder(mem), gather(a.Uint64Values(), idx))
	case *array.Float64:
		out.arr = build(array.NewFloat64Builder(mem), gather(a.Float64Values(), idx))
	case *array.Float32:
		out.arr = build(array.NewFloat32Builder(mem), gather(a.Float32Values(), idx))
	case *array.String:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		b.Reserve(len(idx))
		for _, j := range idx {
			b.Append(a.Value(j))
		}
		out.arr = b.NewArray()
	}
	return out
}

func gather[T any](src []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = src[j]
	}
	return out
}

// Frame is an ordered set of equal-length columns.
type Frame struct {
	columns []*Column
	index   map[string]int
}

// New builds a frame from columns. All columns must have equal length and
// distinct names.
func New(cols ...*Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if err := f.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// MustNew is New for fixtures; it panics on error.
func MustNew(cols ...*Column) *Frame {
	f, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return f
}

// FromRecord builds a frame from the columns of an arrow record.
func FromRecord(rec arrow.Record) (*Frame, error) {
	f := &Frame{index: make(map[string]int, int(rec.NumCols()))}
	for i, col := range rec.Columns() {
		c, err := FromArray(rec.ColumnName(i), col)
		if err != nil {
			return nil, err
		}
		if err := f.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Record returns the frame as an arrow record sharing the column arrays.
func (f *Frame) Record() arrow.Record {
	fields := make([]arrow.Field, len(f.columns))
	arrs := make([]arrow.Array, len(f.columns))
	for i, c := range f.columns {
		fields[i] = arrow.Field{Name: c.Name, Type: c.arr.DataType()}
		arrs[i] = c.arr
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), arrs, int64(f.Len()))
}

// Len returns the row count.
func (f *Frame) Len() int {
	if len(f.columns) == 0 {
		return 0
	}
	return f.columns[0].Len()
}

// Width returns the column count.
func (f *Frame) Width() int { return len(f.columns) }

// Names returns column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order. The slice must not be modified.
func (f *Frame) Columns() []*Column { return f.columns }

// Has reports whether a column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the named column.
func (f *Frame) Column(name string) (*Column, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	return f.columns[i], nil
}

// AddColumn appends a column, or replaces an existing column of the same name
// in place.
func (f *Frame) AddColumn(c *Column) error {
	if f.index == nil {
		f.index = make(map[string]int)
	}
	if i, ok := f.index[c.Name]; ok {
		if len(f.columns) > 1 && c.Len() != f.Len() {
			return fmt.Errorf("column %q has %d rows, frame has %d", c.Name, c.Len(), f.Len())
		}
		f.columns[i] = c
		return nil
	}
	if len(f.columns) > 0 && c.Len() != f.Len() {
		return fmt.Errorf("column %q has %d rows, frame has %d", c.Name, c.Len(), f.Len())
	}
	f.index[c.Name] = len(f.columns)
	f.columns = append(f.columns, c)
	return nil
}

// Drop removes the named column. Dropping a missing column is an error.
func (f *Frame) Drop(name string) error {
	i, ok := f.index[name]
	if !ok {
		return fmt.Errorf("column %q not found", name)
	}
	f.columns = slices.Delete(f.columns, i, i+1)
	f.reindex()
	return nil
}

func (f *Frame) reindex() {
	f.index = make(map[string]int, len(f.columns))
	for i, c := range f.columns {
		f.index[c.Name] = i
	}
}

// Int64s returns the named Int64 column's data.
func (f *Frame) Int64s(name string) ([]int64, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != Int64 {
		return nil, fmt.Errorf("column %q is %s, want int64", name, c.Kind)
	}
	return c.Int64s(), nil
}

// Float64s returns the named column as float64 values. Float64 columns are
// returned without copying and must not be modified; other numeric kinds are
// widened into a new slice.
func (f *Frame) Float64s(name string) ([]float64, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	switch {
	case c.Kind == Float64:
		return c.Float64s(), nil
	case c.Kind == String:
		return nil, fmt.Errorf("column %q is %s, want numeric", name, c.Kind)
	}
	return c.Floats(), nil
}

// Take returns a new frame with the rows at idx, in that order.
func (f *Frame) Take(idx []int) *Frame {
	out := &Frame{index: make(map[string]int, len(f.columns))}
	for _, c := range f.columns {
		out.index[c.Name] = len(out.columns)
		out.columns = append(out.columns, c.take(idx))
	}
	return out
}

// Clone returns a shallow copy whose column list can be changed independently.
func (f *Frame) Clone() *Frame {
	out := &Frame{columns: slices.Clone(f.columns)}
	out.reindex()
	return out
}

// MemoryUsage returns the total bytes used by all columns.
func (f *Frame) MemoryUsage() int64 {
	var n int64
	for _, c := range f.columns {
		n += c.MemoryUsage()
	}
	return n
}

// Select returns the columns matching pred, in frame order.
func (f *Frame) Select(pred func(*Column) bool) []*Column {
	var out []*Column
	for _, c := range f.columns {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// Concat stacks frames row-wise. Columns are taken from the first frame in
// its order and must be present in every frame. A column whose kind differs
// between frames is widened to Int64 when every part is an integer kind and
// to Float64 otherwise; mixing strings with numbers is an error.
func Concat(frames ...*Frame) (*Frame, error) {
	if len(frames) == 0 {
		return &Frame{index: map[string]int{}}, nil
	}
	out := &Frame{index: make(map[string]int, frames[0].Width())}
	for _, first := range frames[0].columns {
		parts := make([]*Column, len(frames))
		for i, f := range frames {
			c, err := f.Column(first.Name)
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
			parts[i] = c
		}
		c, err := concatColumns(first.Name, parts)
		if err != nil {
			return nil, err
		}
		if err := out.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func concatColumns(name string, parts []*Column) (*Column, error) {
	kind := parts[0].Kind
	allInt, anyString := true, false
	for _, p := range parts {
		if p.Kind != kind {
			kind = -1
		}
		allInt = allInt && p.Kind.IsInteger()
		anyString = anyString || p.Kind == String
	}

	switch {
	case kind >= 0:
		var arrs []arrow.Array
		for _, p := range parts {
			if p.Len() > 0 {
				arrs = append(arrs, p.arr)
			}
		}
		if len(arrs) == 0 {
			return parts[0], nil
		}
		arr, err := array.Concatenate(arrs, mem)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		return &Column{Name: name, Kind: kind, arr: arr}, nil
	case anyString:
		return nil, fmt.Errorf("column %q mixes string and numeric parts", name)
	case allInt:
		var v []int64
		for _, p := range parts {
			for i := 0; i < p.Len(); i++ {
				v = append(v, p.IntAt(i))
			}
		}
		return NewInt64(name, v), nil
	}
	var v []float64
	for _, p := range parts {
		v = append(v, p.Floats()...)
	}
	return NewFloat64(name, v), nil
}
