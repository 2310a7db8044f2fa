package plot

import (
	"fmt"
	"math"

	"github.com/agnvar/agnvar/internal/catalog"
	"github.com/agnvar/agnvar/internal/derive"
	"github.com/agnvar/agnvar/internal/frame"
	"github.com/agnvar/agnvar/internal/params"
)

// Columns of the per-band table.
const (
	ColBandpass        = "bandpass"
	ColLogRFTau        = "log_rf_tau"
	ColLogSFInf        = "log_sf_inf"
	ColLogRFWavelength = "log_rf_wavelength"
)

// BandTable reshapes a chunk table into one row per galaxy and band with
// the rest-frame timescale log10(tau/(1+z)), log10(SF_inf) and the log
// rest-frame wavelength ratio, alongside galaxy_id, redshift and M_i. Bands
// whose tau or SF column is absent, or that have no central wavelength, are
// skipped.
func BandTable(f *frame.Frame) (*frame.Frame, error) {
	idCol, err := f.Column(catalog.QGalaxyID)
	if err != nil {
		return nil, err
	}
	if !idCol.Kind.IsInteger() {
		return nil, fmt.Errorf("column %s is %s, want integer", catalog.QGalaxyID, idCol.Kind)
	}
	z, err := f.Float64s(catalog.QRedshift)
	if err != nil {
		return nil, err
	}
	absMag, err := f.Float64s(derive.ColAbsMagI)
	if err != nil {
		return nil, err
	}

	var (
		outIDs               []int64
		outBand              []string
		outZ, outM           []float64
		outTau, outSF, outRF []float64
	)
	for _, b := range params.Bands {
		if !f.Has(params.TauKey(b)) || !f.Has(params.SFKey(b)) || math.IsNaN(bandWavelength(b)) {
			continue
		}
		tau, err := f.Float64s(params.TauKey(b))
		if err != nil {
			return nil, err
		}
		sf, err := f.Float64s(params.SFKey(b))
		if err != nil {
			return nil, err
		}
		rf := make([]float64, len(z))
		if f.Has(derive.RestFrameColumn(b)) {
			if rf, err = f.Float64s(derive.RestFrameColumn(b)); err != nil {
				return nil, err
			}
		} else {
			lambda := bandWavelength(b)
			for i := range rf {
				rf[i] = derive.RestFrameRatio(lambda, z[i])
			}
		}

		for i := range z {
			outIDs = append(outIDs, idCol.IntAt(i))
			outBand = append(outBand, b)
			outZ = append(outZ, z[i])
			outM = append(outM, absMag[i])
			outTau = append(outTau, math.Log10(tau[i]/(1+z[i])))
			outSF = append(outSF, math.Log10(sf[i]))
			outRF = append(outRF, math.Log10(rf[i]))
		}
	}
	if outBand == nil {
		return nil, fmt.Errorf("table has no complete %s/%s band pair", params.TauKey("<b>"), params.SFKey("<b>"))
	}

	return frame.New(
		frame.NewInt64(catalog.QGalaxyID, outIDs),
		frame.NewString(ColBandpass, outBand),
		frame.NewFloat64(catalog.QRedshift, outZ),
		frame.NewFloat64(derive.ColAbsMagI, outM),
		frame.NewFloat64(ColLogRFTau, outTau),
		frame.NewFloat64(ColLogSFInf, outSF),
		frame.NewFloat64(ColLogRFWavelength, outRF),
	)
}

// FilterBand returns the rows of a per-band table belonging to one band.
func FilterBand(f *frame.Frame, band string) (*frame.Frame, error) {
	col, err := f.Column(ColBandpass)
	if err != nil {
		return nil, err
	}
	var idx []int
	for i := 0; i < col.Len(); i++ {
		if col.StringAt(i) == band {
			idx = append(idx, i)
		}
	}
	return f.Take(idx), nil
}

func bandWavelength(band string) float64 {
	for _, b := range derive.BandWavelength {
		if b.Band == band {
			return b.Lambda
		}
	}
	return math.NaN()
}
