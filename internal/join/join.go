// Package join matches AGN parameter batches with galaxy catalog rows on
// galaxy_id.
package join

import (
	"context"
	"fmt"

	"github.com/agnvar/agnvar/internal/catalog"
	"github.com/agnvar/agnvar/internal/frame"
)

// Key is the join column shared by both sides.
const Key = catalog.QGalaxyID

// JoinMismatchError reports a key that occurs more than once on one side of
// a join.
type JoinMismatchError struct {
	Side     string
	GalaxyID int64
	Rows     [2]int
}

func (e *JoinMismatchError) Error() string {
	return fmt.Sprintf("duplicate %s %d on %s side (rows %d and %d)", Key, e.GalaxyID, e.Side, e.Rows[0], e.Rows[1])
}

// IDRange returns the smallest and largest galaxy_id in f.
func IDRange(f *frame.Frame) (lo, hi int64, err error) {
	col, err := f.Column(Key)
	if err != nil {
		return 0, 0, err
	}
	if !col.Kind.IsInteger() {
		return 0, 0, fmt.Errorf("column %s is %s, want integer", Key, col.Kind)
	}
	if col.Len() == 0 {
		return 0, 0, fmt.Errorf("empty batch has no %s range", Key)
	}
	lo, hi = col.IntAt(0), col.IntAt(0)
	for i := 1; i < col.Len(); i++ {
		v := col.IntAt(i)
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi, nil
}

// RangeFilters renders the inclusive id range as catalog predicates.
func RangeFilters(lo, hi int64) []string {
	return []string{
		fmt.Sprintf("%s >= %d", Key, lo),
		fmt.Sprintf("%s <= %d", Key, hi),
	}
}

// Fetch requests the catalog rows whose galaxy_id lies within the id range of
// batch. Range overshoot is harmless; Inner re-filters on exact equality.
func Fetch(ctx context.Context, cat catalog.Catalog, batch *frame.Frame) (*frame.Frame, error) {
	lo, hi, err := IDRange(batch)
	if err != nil {
		return nil, err
	}
	res, err := cat.GetQuantities(ctx, catalog.Quantities, RangeFilters(lo, hi))
	if err != nil {
		return nil, fmt.Errorf("fetching catalog ids [%d, %d]: %w", lo, hi, err)
	}
	return res, nil
}

// Inner joins left and right on galaxy_id, keeping only keys present on both
// sides. Output columns are left's followed by right's (minus the key); rows
// follow left's order. A key repeated on either side is a JoinMismatchError.
func Inner(left, right *frame.Frame) (*frame.Frame, error) {
	lkeys, err := keys(left, "left")
	if err != nil {
		return nil, err
	}
	rkeys, err := keys(right, "right")
	if err != nil {
		return nil, err
	}

	rpos, err := positions(rkeys, "right")
	if err != nil {
		return nil, err
	}
	if _, err := positions(lkeys, "left"); err != nil {
		return nil, err
	}

	var li, ri []int
	for i, k := range lkeys {
		if j, ok := rpos[k]; ok {
			li = append(li, i)
			ri = append(ri, j)
		}
	}
	if li == nil {
		li, ri = []int{}, []int{}
	}

	out := left.Take(li)
	rsel := right.Take(ri)
	for _, c := range rsel.Columns() {
		if c.Name == Key {
			continue
		}
		if out.Has(c.Name) {
			return nil, fmt.Errorf("column %q present on both sides", c.Name)
		}
		if err := out.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func keys(f *frame.Frame, side string) ([]int64, error) {
	col, err := f.Column(Key)
	if err != nil {
		return nil, fmt.Errorf("%s side: %w", side, err)
	}
	if !col.Kind.IsInteger() {
		return nil, fmt.Errorf("%s side: column %s is %s, want integer", side, Key, col.Kind)
	}
	out := make([]int64, col.Len())
	for i := range out {
		out[i] = col.IntAt(i)
	}
	return out, nil
}

func positions(ks []int64, side string) (map[int64]int, error) {
	pos := make(map[int64]int, len(ks))
	for i, k := range ks {
		if j, dup := pos[k]; dup {
			return nil, &JoinMismatchError{Side: side, GalaxyID: k, Rows: [2]int{j, i}}
		}
		pos[k] = i
	}
	return pos, nil
}
