package frame

import (
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/go-cmp/cmp"
)

func TestNewRejectsUnequalLengths(t *testing.T) {
	_, err := New(
		NewInt64("galaxy_id", []int64{1, 2, 3}),
		NewFloat64("redshift", []float64{0.1, 0.2}),
	)
	if err == nil {
		t.Fatal("expected error for unequal column lengths")
	}
}

func TestAddColumnReplaces(t *testing.T) {
	f := MustNew(
		NewInt64("galaxy_id", []int64{1, 2}),
		NewFloat64("redshift", []float64{0.1, 0.2}),
	)
	if err := f.AddColumn(NewFloat64("redshift", []float64{1, 2})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Width() != 2 {
		t.Errorf("Width = %d, want 2", f.Width())
	}
	z, _ := f.Float64s("redshift")
	if diff := cmp.Diff([]float64{1, 2}, z); diff != "" {
		t.Errorf("redshift mismatch (-want +got):\n%s", diff)
	}
}

func TestDrop(t *testing.T) {
	f := MustNew(
		NewInt64("galaxy_id", []int64{1}),
		NewString("varParamStr", []string{"{}"}),
		NewFloat64("magNorm", []float64{1.5}),
	)
	if err := f.Drop("varParamStr"); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if diff := cmp.Diff([]string{"galaxy_id", "magNorm"}, f.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if _, err := f.Column("magNorm"); err != nil {
		t.Errorf("magNorm lookup after drop: %v", err)
	}
	if err := f.Drop("varParamStr"); err == nil {
		t.Error("expected error dropping a missing column")
	}
}

func TestTake(t *testing.T) {
	f := MustNew(
		NewInt64("galaxy_id", []int64{10, 20, 30}),
		NewString("s", []string{"a", "b", "c"}),
	)
	out := f.Take([]int{2, 0})
	ids, _ := out.Int64s("galaxy_id")
	if diff := cmp.Diff([]int64{30, 10}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	s, _ := out.Column("s")
	if diff := cmp.Diff([]string{"c", "a"}, s.Strings()); diff != "" {
		t.Errorf("strings mismatch (-want +got):\n%s", diff)
	}
}

func TestFloat64sWidens(t *testing.T) {
	f := MustNew(NewUint16("n", []uint16{1, 65535}))
	v, err := f.Float64s("n")
	if err != nil {
		t.Fatalf("Float64s: %v", err)
	}
	if v[1] != 65535 {
		t.Errorf("v[1] = %v, want 65535", v[1])
	}
}

func TestMemoryUsage(t *testing.T) {
	f := MustNew(
		NewInt64("a", []int64{1, 2}),
		NewFloat32("b", []float32{1, 2}),
		NewUint8("c", []uint8{1, 2}),
		NewString("d", []string{"abc", ""}),
	)
	// Strings count int32 offsets for each row plus one, then the character data.
	want := int64(16 + 8 + 2 + (3*4 + 3))
	if got := f.MemoryUsage(); got != want {
		t.Errorf("MemoryUsage = %d, want %d", got, want)
	}
}

func TestIsMissing(t *testing.T) {
	c := NewFloat64("x", []float64{1, math.NaN()})
	if c.IsMissing(0) || !c.IsMissing(1) {
		t.Error("IsMissing should flag only NaN")
	}
}

func TestKindAccessorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic reading float64s from an int column")
		}
	}()
	NewInt64("a", []int64{1}).Float64s()
}

func TestConcat(t *testing.T) {
	a := MustNew(
		NewInt64("galaxy_id", []int64{1, 2}),
		NewUint8("n", []uint8{3, 4}),
		NewFloat32("z", []float32{0.5, 1}),
		NewString("band", []string{"g", "r"}),
	)
	b := MustNew(
		NewString("band", []string{"i"}),
		NewFloat64("z", []float64{2}),
		NewUint16("n", []uint16{300}),
		NewInt64("galaxy_id", []int64{3}),
	)
	got, err := Concat(a, b)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if diff := cmp.Diff([]string{"galaxy_id", "n", "z", "band"}, got.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	ids, _ := got.Int64s("galaxy_id")
	if diff := cmp.Diff([]int64{1, 2, 3}, ids); diff != "" {
		t.Errorf("galaxy_id mismatch (-want +got):\n%s", diff)
	}
	n, _ := got.Column("n")
	if n.Kind != Int64 {
		t.Errorf("n kind = %s, want int64", n.Kind)
	}
	z, _ := got.Float64s("z")
	if diff := cmp.Diff([]float64{0.5, 1, 2}, z); diff != "" {
		t.Errorf("z mismatch (-want +got):\n%s", diff)
	}
	band, _ := got.Column("band")
	if diff := cmp.Diff([]string{"g", "r", "i"}, band.Strings()); diff != "" {
		t.Errorf("band mismatch (-want +got):\n%s", diff)
	}
}

func TestConcatErrors(t *testing.T) {
	a := MustNew(NewInt64("galaxy_id", []int64{1}))
	if _, err := Concat(a, MustNew(NewInt64("other", []int64{2}))); err == nil {
		t.Error("expected error for a missing column")
	}
	if _, err := Concat(a, MustNew(NewString("galaxy_id", []string{"x"}))); err == nil {
		t.Error("expected error mixing strings and numbers")
	}
	empty, err := Concat()
	if err != nil || empty.Len() != 0 {
		t.Errorf("Concat() = %v rows, %v; want empty frame", empty.Len(), err)
	}
}

func TestConcatSameKind(t *testing.T) {
	a := MustNew(NewFloat32("z", []float32{0.5}), NewString("band", []string{"u"}))
	empty := MustNew(NewFloat32("z", []float32{}), NewString("band", []string{}))
	b := MustNew(NewFloat32("z", []float32{1.5, 2}), NewString("band", []string{"g", "r"}))
	got, err := Concat(a, empty, b)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	z, _ := got.Column("z")
	if z.Kind != Float32 {
		t.Errorf("z kind = %s, want float32", z.Kind)
	}
	if diff := cmp.Diff([]float32{0.5, 1.5, 2}, z.Float32s()); diff != "" {
		t.Errorf("z mismatch (-want +got):\n%s", diff)
	}
	band, _ := got.Column("band")
	if diff := cmp.Diff([]string{"u", "g", "r"}, band.Strings()); diff != "" {
		t.Errorf("band mismatch (-want +got):\n%s", diff)
	}
}

func TestRecord(t *testing.T) {
	f := MustNew(
		NewInt64("galaxy_id", []int64{10070, 10071}),
		NewUint8("seed", []uint8{7, 9}),
		NewFloat64("redshift", []float64{0.5, math.NaN()}),
		NewString("varParamStr", []string{"{}", "{}"}),
	)
	rec := f.Record()
	defer rec.Release()
	if rec.NumRows() != 2 || rec.NumCols() != 4 {
		t.Fatalf("record shape = %dx%d, want 2x4", rec.NumRows(), rec.NumCols())
	}
	if !arrow.TypeEqual(rec.Schema().Field(1).Type, arrow.PrimitiveTypes.Uint8) {
		t.Errorf("seed type = %s, want uint8", rec.Schema().Field(1).Type)
	}

	back, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	if diff := cmp.Diff(f.Names(), back.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	z, _ := back.Column("redshift")
	if !z.IsMissing(1) {
		t.Error("NaN redshift should survive as a missing value")
	}
}

func TestFromArrayRejectsNulls(t *testing.T) {
	b := array.NewFloat64Builder(memory.NewGoAllocator())
	defer b.Release()
	b.AppendValues([]float64{1, 2}, []bool{true, false})
	arr := b.NewArray()
	defer arr.Release()
	if _, err := FromArray("redshift", arr); err == nil {
		t.Error("expected error for an array with nulls")
	}

	ib := array.NewInt32Builder(memory.NewGoAllocator())
	defer ib.Release()
	ib.Append(1)
	i32 := ib.NewArray()
	defer i32.Release()
	if _, err := FromArray("n", i32); err == nil {
		t.Error("expected error for an unsupported int32 array")
	}
}
