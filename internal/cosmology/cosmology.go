// Package cosmology computes distances in a flat Lambda-CDM universe.
package cosmology

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"
)

// SpeedOfLight in km/s.
const SpeedOfLight = 299792.458

// quadPoints is the Gauss-Legendre order of the comoving distance integral.
const quadPoints = 64

// FlatLambdaCDM is a spatially flat cosmology with matter and a cosmological
// constant. Radiation is neglected.
type FlatLambdaCDM struct {
	H0  float64 // km/s/Mpc
	Om0 float64
}

// New validates and returns a flat cosmology.
func New(h0, om0 float64) (FlatLambdaCDM, error) {
	if h0 <= 0 {
		return FlatLambdaCDM{}, fmt.Errorf("H0 must be positive, got %g", h0)
	}
	if om0 <= 0 || om0 > 1 {
		return FlatLambdaCDM{}, fmt.Errorf("Om0 must be in (0, 1], got %g", om0)
	}
	return FlatLambdaCDM{H0: h0, Om0: om0}, nil
}

// Default is the cosmology of the simulated catalog.
var Default = FlatLambdaCDM{H0: 71.0, Om0: 0.265}

// HubbleDistance returns c/H0 in Mpc.
func (c FlatLambdaCDM) HubbleDistance() float64 {
	return SpeedOfLight / c.H0
}

// E returns the dimensionless Hubble parameter H(z)/H0.
func (c FlatLambdaCDM) E(z float64) float64 {
	zp1 := 1 + z
	return math.Sqrt(c.Om0*zp1*zp1*zp1 + (1 - c.Om0))
}

// ComovingDistance returns the line-of-sight comoving distance to z in Mpc.
func (c FlatLambdaCDM) ComovingDistance(z float64) float64 {
	if math.IsNaN(z) {
		return z
	}
	if z <= 0 {
		return 0
	}
	integral := quad.Fixed(func(x float64) float64 { return 1 / c.E(x) }, 0, z, quadPoints, nil, 0)
	return c.HubbleDistance() * integral
}

// LuminosityDistance returns (1+z) times the comoving distance, in Mpc.
func (c FlatLambdaCDM) LuminosityDistance(z float64) float64 {
	return (1 + z) * c.ComovingDistance(z)
}

// DistanceModulus returns 5 log10(D_L / 10 pc). It is 0 for z <= 0.
func (c FlatLambdaCDM) DistanceModulus(z float64) float64 {
	if z <= 0 {
		return 0
	}
	return 5*math.Log10(c.LuminosityDistance(z)) + 25
}

// DistanceModuli evaluates DistanceModulus for every redshift.
func (c FlatLambdaCDM) DistanceModuli(z []float64) []float64 {
	out := make([]float64, len(z))
	for i, v := range z {
		out[i] = c.DistanceModulus(v)
	}
	return out
}
