package validation

import (
	"math"

	"github.com/agnvar/agnvar/internal/catalog"
	"github.com/agnvar/agnvar/internal/derive"
	"github.com/agnvar/agnvar/internal/frame"
)

// DefaultTolerance covers float32 storage of the ratio columns.
const DefaultTolerance = 1e-6

// RatioCheck holds the result of the rest-frame ratio identity
// rf_i * (1+z) == lambda_i / 4000.
type RatioCheck struct {
	Checked    int     `json:"checked"`
	Mismatches int     `json:"mismatches"`
	MaxError   float64 `json:"max_error"`
	Match      bool    `json:"match"`
}

func (v *Validator) validateRatio(f *frame.Frame) *RatioCheck {
	check := &RatioCheck{}
	tol := v.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	z, zerr := f.Float64s(catalog.QRedshift)
	rf, rerr := f.Float64s(derive.RestFrameColumn("i"))
	if zerr != nil || rerr != nil {
		return check
	}

	want := derive.RestFrameRatio(iBandWavelength(), 0)
	for i := range z {
		if math.IsNaN(z[i]) || math.IsNaN(rf[i]) {
			continue
		}
		check.Checked++
		rel := math.Abs(rf[i]*(1+z[i])-want) / want
		check.MaxError = max(check.MaxError, rel)
		if rel > tol {
			check.Mismatches++
		}
	}
	check.Match = check.Mismatches == 0
	return check
}

func iBandWavelength() float64 {
	for _, b := range derive.BandWavelength {
		if b.Band == "i" {
			return b.Lambda
		}
	}
	return math.NaN()
}
