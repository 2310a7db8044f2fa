package photometry

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// DefaultGridStep is the redshift spacing of the K-correction grid.
const DefaultGridStep = 0.01

// KGrid is a table of K-corrections sampled on an increasing redshift grid.
type KGrid struct {
	Z []float64
	K []float64

	pl interp.PiecewiseLinear
}

// GridRedshifts returns 0, step, 2*step, ... through the first point not
// below zmax, so that zmax itself is inside the grid. A non-positive zmax
// yields the single point 0.
func GridRedshifts(zmax, step float64) ([]float64, error) {
	if step <= 0 || math.IsNaN(step) {
		return nil, fmt.Errorf("grid step must be positive, got %g", step)
	}
	if math.IsNaN(zmax) || math.IsInf(zmax, 0) {
		return nil, fmt.Errorf("maximum redshift must be finite, got %g", zmax)
	}
	if zmax <= 0 {
		return []float64{0}, nil
	}
	n := max(int(math.Ceil(zmax/step-1e-9))+1, 2)
	return floats.Span(make([]float64, n), 0, float64(n-1)*step), nil
}

// BuildKGrid computes K-corrections of the template redshifted (with
// cosmological dimming) to each grid redshift, observed through bp.
func BuildKGrid(ctx context.Context, template *SED, bp *Bandpass, zmax, step float64) (*KGrid, error) {
	if template == nil {
		return nil, &MissingTemplateError{}
	}
	zs, err := GridRedshifts(zmax, step)
	if err != nil {
		return nil, err
	}
	ks := make([]float64, len(zs))
	for i, z := range zs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		k, err := KCorrection(template.Redshift(z, true), bp, z)
		if err != nil {
			return nil, err
		}
		ks[i] = k
	}
	return NewKGrid(zs, ks)
}

// NewKGrid wraps precomputed values. Z must be strictly increasing.
func NewKGrid(z, k []float64) (*KGrid, error) {
	if len(z) != len(k) || len(z) == 0 {
		return nil, fmt.Errorf("K grid needs matching non-empty columns, got %d and %d", len(z), len(k))
	}
	g := &KGrid{Z: z, K: k}
	if len(z) > 1 {
		if err := g.pl.Fit(z, k); err != nil {
			return nil, fmt.Errorf("fitting K grid: %w", err)
		}
	}
	return g, nil
}

// At interpolates the K-correction at z. Redshifts outside the grid take the
// nearest endpoint value; NaN stays NaN.
func (g *KGrid) At(z float64) float64 {
	if math.IsNaN(z) {
		return z
	}
	if len(g.Z) == 1 {
		return g.K[0]
	}
	return g.pl.Predict(z)
}

// MaxZ returns the last grid redshift.
func (g *KGrid) MaxZ() float64 { return g.Z[len(g.Z)-1] }
