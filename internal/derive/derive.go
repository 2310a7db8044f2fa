// Package derive appends the derived AGN quantities to a joined table:
// absolute and apparent i-band magnitudes and rest-frame wavelength ratios.
package derive

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/agnvar/agnvar/internal/catalog"
	"github.com/agnvar/agnvar/internal/cosmology"
	"github.com/agnvar/agnvar/internal/frame"
	"github.com/agnvar/agnvar/internal/photometry"
)

// Derived column names.
const (
	ColAbsMagI = "M_i"
	ColAppMagI = "m_i"
)

// NormWavelength is the reference wavelength, in Angstroms, of the rest-frame
// ratios.
const NormWavelength = 4000.0

// BandWavelength lists the band central wavelengths in Angstroms, in output
// order.
var BandWavelength = []struct {
	Band   string
	Lambda float64
}{
	{"u", 3520.0},
	{"g", 4800.0},
	{"r", 6250.0},
	{"i", 7690.0},
	{"z", 9110.0},
}

// RestFrameColumn returns the ratio column name for a band.
func RestFrameColumn(band string) string { return "rf_" + band }

// RestFrameRatio returns lambda/(1+z)/4000.
func RestFrameRatio(lambda, z float64) float64 {
	return lambda * (1 / (1 + z)) / NormWavelength
}

// AbsMagFunc maps log10(Eddington ratio) and log10(black hole mass / Msun)
// to an absolute i-band magnitude.
type AbsMagFunc func(logEdd, logMass float64) float64

// EddingtonAbsMag returns the absolute magnitude model
// M_i = zero - 2.5 log10(eddLum * 10^logEdd * 10^logMass), with eddLum the
// Eddington luminosity per solar mass in erg/s.
func EddingtonAbsMag(eddLum, zero float64) AbsMagFunc {
	logEddLum := math.Log10(eddLum)
	return func(logEdd, logMass float64) float64 {
		return zero - 2.5*(logEddLum+logEdd+logMass)
	}
}

// DefaultAbsMag uses L_Edd = 1.26e38 erg/s per solar mass and a zero point
// of 90.
var DefaultAbsMag = EddingtonAbsMag(1.26e38, 90.0)

// NaNError reports a non-finite input to a logarithm when FailOnNaN is set.
type NaNError struct {
	Row      int
	GalaxyID int64
	Column   string
	Value    float64
}

func (e *NaNError) Error() string {
	return fmt.Sprintf("row %d (galaxy_id %d): log10 of %s = %g is undefined", e.Row, e.GalaxyID, e.Column, e.Value)
}

// Calculator derives magnitudes and ratios for a joined table.
type Calculator struct {
	AbsMag    AbsMagFunc
	Cosmology cosmology.FlatLambdaCDM
	Template  *photometry.SED
	Bandpass  *photometry.Bandpass
	GridStep  float64
	// FailOnNaN makes a non-positive Eddington ratio or mass an error instead
	// of a NaN magnitude.
	FailOnNaN bool
	Logger    *slog.Logger

	// KGrid, when set, is used instead of building a grid per table.
	KGrid *photometry.KGrid
}

// Apply appends M_i, rf_u..rf_z and m_i to f, in that order, and returns f.
func (c *Calculator) Apply(ctx context.Context, f *frame.Frame) (*frame.Frame, error) {
	z, err := f.Float64s(catalog.QRedshift)
	if err != nil {
		return nil, err
	}
	absMag, err := c.AbsoluteMagnitudes(f)
	if err != nil {
		return nil, err
	}
	if err := f.AddColumn(frame.NewFloat64(ColAbsMagI, absMag)); err != nil {
		return nil, err
	}

	for _, b := range BandWavelength {
		ratios := make([]float64, len(z))
		for i, zi := range z {
			ratios[i] = RestFrameRatio(b.Lambda, zi)
		}
		if err := f.AddColumn(frame.NewFloat64(RestFrameColumn(b.Band), ratios)); err != nil {
			return nil, err
		}
	}

	grid := c.KGrid
	if grid == nil {
		grid, err = c.BuildGrid(ctx, maxFinite(z))
		if err != nil {
			return nil, err
		}
	}
	if err := f.AddColumn(frame.NewFloat64(ColAppMagI, c.ApparentMagnitudes(absMag, z, grid))); err != nil {
		return nil, err
	}
	return f, nil
}

// AbsoluteMagnitudes evaluates the absolute magnitude model for every row.
func (c *Calculator) AbsoluteMagnitudes(f *frame.Frame) ([]float64, error) {
	edd, err := f.Float64s(catalog.QEddingtonRatio)
	if err != nil {
		return nil, err
	}
	mass, err := f.Float64s(catalog.QBlackHoleMass)
	if err != nil {
		return nil, err
	}
	model := c.AbsMag
	if model == nil {
		model = DefaultAbsMag
	}

	out := make([]float64, len(edd))
	for i := range edd {
		if c.FailOnNaN {
			if err := checkLogInput(f, i, catalog.QEddingtonRatio, edd[i]); err != nil {
				return nil, err
			}
			if err := checkLogInput(f, i, catalog.QBlackHoleMass, mass[i]); err != nil {
				return nil, err
			}
		}
		out[i] = model(math.Log10(edd[i]), math.Log10(mass[i]))
	}
	return out, nil
}

// ApparentMagnitudes returns M + distance modulus(z) + K(z).
func (c *Calculator) ApparentMagnitudes(absMag, z []float64, grid *photometry.KGrid) []float64 {
	out := make([]float64, len(z))
	for i, zi := range z {
		out[i] = absMag[i] + c.Cosmology.DistanceModulus(zi) + grid.At(zi)
	}
	return out
}

// BuildGrid computes the K-correction grid covering [0, zmax].
func (c *Calculator) BuildGrid(ctx context.Context, zmax float64) (*photometry.KGrid, error) {
	bp := c.Bandpass
	if bp == nil {
		bp = photometry.DefaultIBand()
	}
	step := c.GridStep
	if step == 0 {
		step = photometry.DefaultGridStep
	}
	grid, err := photometry.BuildKGrid(ctx, c.Template, bp, zmax, step)
	if err != nil {
		return nil, fmt.Errorf("building K-correction grid: %w", err)
	}
	if c.Logger != nil {
		c.Logger.Debug("K-correction grid built", "points", len(grid.Z), "zmax", grid.MaxZ(), "step", step)
	}
	return grid, nil
}

func checkLogInput(f *frame.Frame, row int, column string, v float64) error {
	if v > 0 && !math.IsInf(v, 1) {
		return nil
	}
	e := &NaNError{Row: row, Column: column, Value: v}
	if ids, err := f.Column(catalog.QGalaxyID); err == nil && ids.Kind.IsInteger() {
		e.GalaxyID = ids.IntAt(row)
	}
	return e
}

func maxFinite(vs []float64) float64 {
	m := 0.0
	for _, v := range vs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v > m {
			m = v
		}
	}
	return m
}
