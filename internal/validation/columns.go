package validation

import (
	"github.com/agnvar/agnvar/internal/catalog"
	"github.com/agnvar/agnvar/internal/derive"
	"github.com/agnvar/agnvar/internal/frame"
	"github.com/agnvar/agnvar/internal/source"
)

// ColumnCheck holds the result of the required-column check.
type ColumnCheck struct {
	Expected int      `json:"expected"`
	Missing  []string `json:"missing,omitempty"`
	Match    bool     `json:"match"`
}

// RequiredColumns returns the columns every chunk file must carry.
func RequiredColumns() []string {
	cols := append([]string{}, catalog.Quantities...)
	cols = append(cols, source.ColMagNorm, derive.ColAbsMagI)
	for _, b := range derive.BandWavelength {
		cols = append(cols, derive.RestFrameColumn(b.Band))
	}
	return append(cols, derive.ColAppMagI)
}

func validateColumns(f *frame.Frame) *ColumnCheck {
	required := RequiredColumns()
	check := &ColumnCheck{Expected: len(required)}
	for _, c := range required {
		if !f.Has(c) {
			check.Missing = append(check.Missing, c)
		}
	}
	check.Match = len(check.Missing) == 0
	return check
}
