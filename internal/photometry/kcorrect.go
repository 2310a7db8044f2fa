package photometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

// KCorrection returns the same-band K-correction, in magnitudes, of an SED
// already redshifted to z, observed through bp (Hogg et al. 2002, eq. 12):
//
//	K = -2.5 log10[(1+z) * Int(fnu(w) S(w)/w dw) / Int(fnu(w(1+z)) S(w)/w dw)]
//
// The SED is linearly interpolated onto the bandpass grid and is zero outside
// its own wavelength range.
func KCorrection(observed *SED, bp *Bandpass, z float64) (float64, error) {
	fnu, err := newSampler(observed.Wavelen, observed.Fnu())
	if err != nil {
		return 0, fmt.Errorf("sampling SED: %w", err)
	}
	zp1 := 1 + z

	var obs, rest float64
	for i := 1; i < len(bp.Wavelen); i++ {
		w0, w1 := bp.Wavelen[i-1], bp.Wavelen[i]
		dw := w1 - w0
		p0, p1 := bp.Sb[i-1]/w0, bp.Sb[i]/w1
		obs += 0.5 * (p0*fnu.at(w0) + p1*fnu.at(w1)) * dw
		rest += 0.5 * (p0*fnu.at(w0*zp1) + p1*fnu.at(w1*zp1)) * dw
	}
	if rest == 0 {
		return 0, fmt.Errorf("template has no flux in the rest-frame %s band at z=%g", bp.Name, z)
	}
	return -2.5 * math.Log10(zp1*obs/rest), nil
}

// sampler evaluates a tabulated curve by linear interpolation, returning zero
// outside the tabulated range.
type sampler struct {
	pl     interp.PiecewiseLinear
	lo, hi float64
}

func newSampler(x, y []float64) (*sampler, error) {
	s := &sampler{}
	if err := s.pl.Fit(x, y); err != nil {
		return nil, err
	}
	s.lo, s.hi = x[0], x[len(x)-1]
	return s, nil
}

func (s *sampler) at(x float64) float64 {
	if x < s.lo || x > s.hi {
		return 0
	}
	return s.pl.Predict(x)
}
