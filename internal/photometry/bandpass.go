package photometry

import (
	"fmt"
	"math"
)

// Bandpass is a filter throughput curve sampled in nanometres.
type Bandpass struct {
	Name    string
	Wavelen []float64
	Sb      []float64
}

// ReadBandpass loads a two-column throughput table (wavelength in nm, Sb).
func ReadBandpass(name, path string) (*Bandpass, error) {
	wl, sb, err := readColumns(path)
	if err != nil {
		return nil, err
	}
	bp := &Bandpass{Name: name, Wavelen: wl, Sb: sb}
	if err := validateGrid(wl, sb); err != nil {
		return nil, fmt.Errorf("bandpass %s: %w", path, err)
	}
	return bp, nil
}

// iBand edges in nm: the throughput rises over [lo, lo+edge] and falls over
// [hi-edge, hi].
const (
	iBandLo   = 675.0
	iBandHi   = 840.0
	iBandEdge = 20.0
	iBandPeak = 0.45
)

// DefaultIBand returns a smooth analytic approximation of the LSST i-band
// total throughput, sampled every nanometre.
func DefaultIBand() *Bandpass {
	bp := &Bandpass{Name: "i"}
	for w := iBandLo - 5; w <= iBandHi+5; w++ {
		bp.Wavelen = append(bp.Wavelen, w)
		bp.Sb = append(bp.Sb, iBandPeak*window(w))
	}
	return bp
}

// window is a flat top with raised-cosine edges.
func window(w float64) float64 {
	switch {
	case w <= iBandLo || w >= iBandHi:
		return 0
	case w < iBandLo+iBandEdge:
		return 0.5 * (1 - math.Cos(math.Pi*(w-iBandLo)/iBandEdge))
	case w > iBandHi-iBandEdge:
		return 0.5 * (1 - math.Cos(math.Pi*(iBandHi-w)/iBandEdge))
	}
	return 1
}

// EffectiveWavelength returns the throughput-weighted mean wavelength.
func (b *Bandpass) EffectiveWavelength() float64 {
	var num, den float64
	for i := 1; i < len(b.Wavelen); i++ {
		dw := b.Wavelen[i] - b.Wavelen[i-1]
		num += 0.5 * (b.Sb[i]*b.Wavelen[i] + b.Sb[i-1]*b.Wavelen[i-1]) * dw
		den += 0.5 * (b.Sb[i] + b.Sb[i-1]) * dw
	}
	return num / den
}
