package validation

import (
	"math"

	"github.com/agnvar/agnvar/internal/catalog"
	"github.com/agnvar/agnvar/internal/frame"
)

// UniqueCheck holds the result of the galaxy_id uniqueness check.
type UniqueCheck struct {
	Rows       int     `json:"rows"`
	Distinct   int     `json:"distinct"`
	Duplicates []int64 `json:"duplicates,omitempty"`
	Match      bool    `json:"match"`
}

// FiniteCheck counts non-finite values per float column.
type FiniteCheck struct {
	NonFinite map[string]int `json:"non_finite,omitempty"`
}

// maxReported caps the duplicate ids listed in a result.
const maxReported = 10

func validateUnique(f *frame.Frame) *UniqueCheck {
	check := &UniqueCheck{Rows: f.Len()}
	col, err := f.Column(catalog.QGalaxyID)
	if err != nil || !col.Kind.IsInteger() {
		return check
	}
	seen := make(map[int64]bool, col.Len())
	for i := 0; i < col.Len(); i++ {
		id := col.IntAt(i)
		if seen[id] {
			if len(check.Duplicates) < maxReported {
				check.Duplicates = append(check.Duplicates, id)
			}
			continue
		}
		seen[id] = true
	}
	check.Distinct = len(seen)
	check.Match = check.Distinct == check.Rows
	return check
}

func validateFinite(f *frame.Frame) *FiniteCheck {
	check := &FiniteCheck{NonFinite: make(map[string]int)}
	for _, c := range f.Columns() {
		if !c.Kind.IsFloat() {
			continue
		}
		for i := 0; i < c.Len(); i++ {
			v := c.FloatAt(i)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				check.NonFinite[c.Name]++
			}
		}
	}
	return check
}
