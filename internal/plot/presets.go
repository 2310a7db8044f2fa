package plot

import (
	"math"

	"github.com/agnvar/agnvar/internal/catalog"
	"github.com/agnvar/agnvar/internal/derive"
)

// BrightSubset selects the -27 < M_i < -26 quasars highlighted in the
// distribution figures.
var BrightSubset = Subset{Name: "-27 < M_i < -26", Column: derive.ColAbsMagI, Min: -27, Max: -26}

// cornerBins matches the default resolution of the corner panels.
const cornerBins = 20

func mustEdges(lo, hi, step float64) []float64 {
	e, err := Edges(lo, hi, step)
	if err != nil {
		panic(err)
	}
	return e
}

func mustLinearEdges(lo, hi float64, n int) []float64 {
	e, err := LinearEdges(lo, hi, n)
	if err != nil {
		panic(err)
	}
	return e
}

func perArea(area float64) float64 {
	if area <= 0 {
		return 1
	}
	return 1 / area
}

// TauHistogram is the distribution of rest-frame damping timescales, in
// counts per square degree over a survey of the given area.
func TauHistogram(area float64) HistogramSpec {
	return HistogramSpec{
		Title:   "Rest-frame tau",
		X:       Axis{Column: ColLogRFTau, Label: "log(tau/days)", Edges: mustEdges(0, 5, 0.1)},
		YLabel:  "count/sq deg",
		Weight:  perArea(area),
		Subsets: []Subset{BrightSubset},
	}
}

// SFHistogram is the distribution of the asymptotic structure function.
func SFHistogram(area float64) HistogramSpec {
	return HistogramSpec{
		Title: "SF_inf",
		X: Axis{
			Column:    ColLogSFInf,
			Label:     "SF_inf (mag)",
			Edges:     mustEdges(0, 1, 0.02),
			Transform: func(v float64) float64 { return math.Pow(10, v) },
		},
		YLabel:  "count/sq deg",
		Weight:  perArea(area),
		Subsets: []Subset{BrightSubset},
	}
}

// SFTauCorner correlates SF_inf with the rest-frame timescale.
func SFTauCorner() CornerSpec {
	return CornerSpec{
		Title: "SF_inf vs tau",
		Variables: []Axis{
			{Column: ColLogSFInf, Label: "log(SF_inf/mag)", Edges: mustLinearEdges(-1.5, 0, cornerBins)},
			{Column: ColLogRFTau, Label: "log(tau/days)", Edges: mustLinearEdges(0, 4.3, cornerBins)},
		},
	}
}

// WavelengthCorner shows the trend of column with rest-frame wavelength,
// one overlay per band.
func WavelengthCorner(column, label string, lo, hi float64) CornerSpec {
	return CornerSpec{
		Title: label + " vs rest-frame wavelength",
		Variables: []Axis{
			{Column: ColLogRFWavelength, Label: "log(rest-frame wavelength/4000A)", Edges: mustLinearEdges(-0.7, 0.3, cornerBins)},
			{Column: column, Label: label, Edges: mustLinearEdges(lo, hi, cornerBins)},
		},
		GroupBy: ColBandpass,
	}
}

// MagnitudeRedshiftHeatmap colors the redshift / absolute magnitude plane by
// a statistic of value. Brighter magnitudes are drawn at the top.
func MagnitudeRedshiftHeatmap(value string, st Statistic) BinnedSpec {
	return BinnedSpec{
		Title:     "M_i vs redshift",
		X:         Axis{Column: catalog.QRedshift, Label: "redshift", Edges: mustEdges(0, 3.05, 0.1)},
		Y:         Axis{Column: derive.ColAbsMagI, Label: "M_i", Edges: mustEdges(-30, -17.75, 0.5)},
		Value:     value,
		Statistic: st,
		InvertY:   true,
	}
}

// MagnitudeRedshiftCounts is the source density over the redshift / absolute
// magnitude plane, colored on a log scale.
func MagnitudeRedshiftCounts(area float64) Hist2DSpec {
	spec := MagnitudeRedshiftHeatmap("", StatCount)
	return Hist2DSpec{
		Title:    spec.Title,
		X:        spec.X,
		Y:        spec.Y,
		Weight:   perArea(area),
		InvertY:  true,
		LogColor: true,
	}
}
