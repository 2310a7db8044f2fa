package plot

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/agnvar/agnvar/internal/catalog"
	"github.com/agnvar/agnvar/internal/derive"
	"github.com/agnvar/agnvar/internal/frame"
	"github.com/agnvar/agnvar/internal/params"
)

func TestEdges(t *testing.T) {
	got, err := Edges(0, 1, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{0, 0.25, 0.5, 0.75}, got); diff != "" {
		t.Errorf("edges (-want +got):\n%s", diff)
	}
	if e, _ := Edges(0, 5, 0.1); len(e) != 50 {
		t.Errorf("arange(0, 5, 0.1) has %d edges, want 50", len(e))
	}
	for _, tc := range []struct{ lo, hi, step float64 }{{0, 1, 0}, {1, 0, 0.1}, {0, 0.1, 0.1}} {
		if _, err := Edges(tc.lo, tc.hi, tc.step); err == nil {
			t.Errorf("Edges(%v, %v, %v) should fail", tc.lo, tc.hi, tc.step)
		}
	}
}

func TestHistogram(t *testing.T) {
	edges := []float64{0, 1, 2, 3}
	values := []float64{-1, 0, 0.5, 1, 2.5, 3, 3.5, math.NaN()}
	got, err := Histogram(values, edges, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	// 3 lands in the closed last bin; -1, 3.5 and NaN are dropped.
	if diff := cmp.Diff([]float64{1, 0.5, 1}, got); diff != "" {
		t.Errorf("counts (-want +got):\n%s", diff)
	}
	if _, err := Histogram(values, []float64{0, 0}, 1); err == nil {
		t.Error("expected error for non-increasing edges")
	}
}

func TestDensityIntegratesToOne(t *testing.T) {
	edges := []float64{0, 0.5, 2}
	d := Density([]float64{3, 1}, edges)
	total := d[0]*0.5 + d[1]*1.5
	if math.Abs(total-1) > 1e-12 {
		t.Errorf("density integrates to %v", total)
	}
	if got := Density([]float64{0, 0}, edges); got[0] != 0 || got[1] != 0 {
		t.Errorf("empty density = %v", got)
	}
}

func TestBinnedStatistic2D(t *testing.T) {
	x := []float64{0.5, 0.5, 0.5, 1.5, 1.5}
	y := []float64{0.5, 0.5, 0.5, 0.5, 1.5}
	v := []float64{1, 2, 6, 4, 5}
	edges := []float64{0, 1, 2}

	tests := []struct {
		stat Statistic
		want [][]float64
	}{
		{StatMean, [][]float64{{3, math.NaN()}, {4, 5}}},
		{StatMedian, [][]float64{{2, math.NaN()}, {4, 5}}},
		{StatSum, [][]float64{{9, 0}, {4, 5}}},
		{StatCount, [][]float64{{3, 0}, {1, 1}}},
	}
	for _, tt := range tests {
		t.Run(string(tt.stat), func(t *testing.T) {
			got, err := BinnedStatistic2D(x, y, v, edges, edges, tt.stat, 0)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateNaNs()); diff != "" {
				t.Errorf("grid (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBinnedStatistic2D_Errors(t *testing.T) {
	edges := []float64{0, 1}
	if _, err := BinnedStatistic2D([]float64{1}, []float64{1, 2}, nil, edges, edges, StatCount, 1); err == nil {
		t.Error("expected length mismatch error")
	}
	if _, err := BinnedStatistic2D([]float64{1}, []float64{1}, nil, edges, edges, StatMean, 1); err == nil {
		t.Error("expected error when values are missing")
	}
}

func TestMedianEvenSample(t *testing.T) {
	in := []float64{4, 1, 3, 2}
	if got := median(in); got != 2.5 {
		t.Errorf("median = %v, want 2.5", got)
	}
	if diff := cmp.Diff([]float64{4, 1, 3, 2}, in); diff != "" {
		t.Error("median must not reorder its input")
	}
}

func TestCorner(t *testing.T) {
	a := []float64{0.1, 0.2, 0.7, math.NaN()}
	b := []float64{1.5, 1.5, 0.5, 0.5}
	edges := [][]float64{{0, 0.5, 1}, {0, 1, 2}}
	cd, err := Corner([][]float64{a, b}, []string{"a", "b"}, edges)
	if err != nil {
		t.Fatal(err)
	}
	// Row 3 is dropped for its NaN; 2 of 3 remaining samples sit in a's
	// first bin.
	if diff := cmp.Diff([]float64{4.0 / 3, 2.0 / 3}, cd.Marginals[0], cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("marginal a (-want +got):\n%s", diff)
	}
	if len(cd.Pairs[0]) != 0 || len(cd.Pairs[1]) != 1 {
		t.Fatalf("pair layout = %d, %d", len(cd.Pairs[0]), len(cd.Pairs[1]))
	}
	pair := cd.Pairs[1][0]
	if pair[0][1] == 0 || pair[1][0] == 0 || pair[0][0] != 0 {
		t.Errorf("pair density = %v", pair)
	}

	if _, err := Corner([][]float64{a}, []string{"a", "b"}, edges); err == nil {
		t.Error("expected error for mismatched labels")
	}
}

func chunk() *frame.Frame {
	return frame.MustNew(
		frame.NewInt64(catalog.QGalaxyID, []int64{1, 2, 3}),
		frame.NewFloat64(catalog.QRedshift, []float64{0, 1, 0.5}),
		frame.NewFloat64(derive.ColAbsMagI, []float64{-26.5, -24, -22}),
		frame.NewFloat64(params.TauKey("g"), []float64{100, 200, 30}),
		frame.NewFloat64(params.SFKey("g"), []float64{0.1, 0.2, 0.3}),
		frame.NewFloat64(params.TauKey("r"), []float64{150, 300, 45}),
		frame.NewFloat64(params.SFKey("r"), []float64{0.15, 0.25, 0.35}),
		frame.NewFloat64(derive.RestFrameColumn("g"), []float64{1.2, 0.6, 0.8}),
	)
}

func TestBandTable(t *testing.T) {
	bt, err := BandTable(chunk())
	if err != nil {
		t.Fatalf("BandTable: %v", err)
	}
	if bt.Len() != 6 {
		t.Fatalf("rows = %d, want 6", bt.Len())
	}
	tau, _ := bt.Float64s(ColLogRFTau)
	if math.Abs(tau[1]-2) > 1e-12 {
		t.Errorf("log_rf_tau of galaxy 2 in g = %v, want log10(200/2) = 2", tau[1])
	}
	rf, _ := bt.Float64s(ColLogRFWavelength)
	if want := math.Log10(derive.RestFrameRatio(6250, 1)); math.Abs(rf[4]-want) > 1e-12 {
		t.Errorf("computed r-band ratio = %v, want %v", rf[4], want)
	}

	g, err := FilterBand(bt, "g")
	if err != nil {
		t.Fatal(err)
	}
	ids, _ := g.Int64s(catalog.QGalaxyID)
	if diff := cmp.Diff([]int64{1, 2, 3}, ids); diff != "" {
		t.Errorf("g rows (-want +got):\n%s", diff)
	}
}

func TestBandTable_SkipsYBand(t *testing.T) {
	f := chunk()
	f.AddColumn(frame.NewFloat64(params.TauKey("y"), []float64{400, 500, 600}))
	f.AddColumn(frame.NewFloat64(params.SFKey("y"), []float64{0.4, 0.5, 0.6}))
	bt, err := BandTable(f)
	if err != nil {
		t.Fatalf("BandTable: %v", err)
	}
	if bt.Len() != 6 {
		t.Errorf("rows = %d, want 6 from g and r only", bt.Len())
	}
	y, _ := FilterBand(bt, "y")
	if y.Len() != 0 {
		t.Errorf("y rows = %d, want 0", y.Len())
	}
}

func TestBandTable_NoBands(t *testing.T) {
	f := frame.MustNew(
		frame.NewInt64(catalog.QGalaxyID, []int64{1}),
		frame.NewFloat64(catalog.QRedshift, []float64{0}),
		frame.NewFloat64(derive.ColAbsMagI, []float64{-20}),
	)
	if _, err := BandTable(f); err == nil {
		t.Error("expected error without tau/SF columns")
	}
}

func snapshot(f *frame.Frame) [][]float64 {
	var out [][]float64
	for _, c := range f.Columns() {
		if c.Kind.IsFloat() {
			out = append(out, append([]float64(nil), c.Floats()...))
		}
	}
	return out
}

func TestRenderers_WriteHTMLWithoutMutatingInput(t *testing.T) {
	bt, err := BandTable(chunk())
	if err != nil {
		t.Fatal(err)
	}
	before := snapshot(bt)
	names := bt.Names()

	tests := []struct {
		name   string
		render func(*bytes.Buffer) error
		want   string
	}{
		{"histogram", func(b *bytes.Buffer) error { return RenderHistogram(b, bt, TauHistogram(2)) }, "Rest-frame tau"},
		{"sf histogram", func(b *bytes.Buffer) error { return RenderHistogram(b, bt, SFHistogram(0)) }, "SF_inf"},
		{"binned", func(b *bytes.Buffer) error {
			return RenderBinnedStatistic(b, bt, MagnitudeRedshiftHeatmap(ColLogRFTau, StatMedian))
		}, "M_i vs redshift"},
		{"hist2d", func(b *bytes.Buffer) error {
			return RenderHistogram2D(b, bt, Hist2DSpec{
				Title:    "tau vs SF",
				X:        Axis{Column: ColLogSFInf, Edges: mustLinearEdges(-1.5, 0, 10)},
				Y:        Axis{Column: ColLogRFTau, Edges: mustLinearEdges(0, 4.3, 10)},
				LogColor: true,
			})
		}, "log10(count)"},
		{"source counts", func(b *bytes.Buffer) error {
			return RenderHistogram2D(b, bt, MagnitudeRedshiftCounts(4))
		}, "M_i vs redshift"},
		{"corner", func(b *bytes.Buffer) error { return RenderCorner(b, bt, SFTauCorner()) }, "SF_inf vs tau"},
		{"grouped corner", func(b *bytes.Buffer) error {
			return RenderCorner(b, bt, WavelengthCorner(ColLogRFTau, "log(tau/days)", 0, 4))
		}, "(g)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.render(&buf); err != nil {
				t.Fatalf("render: %v", err)
			}
			html := buf.String()
			if !strings.Contains(html, "echarts") || !strings.Contains(html, tt.want) {
				t.Errorf("output missing %q", tt.want)
			}
		})
	}

	if diff := cmp.Diff(names, bt.Names()); diff != "" {
		t.Errorf("renderers changed the columns (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(before, snapshot(bt), cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("renderers changed values (-want +got):\n%s", diff)
	}
}

func TestRenderHistogram_MissingColumn(t *testing.T) {
	spec := TauHistogram(1)
	if err := RenderHistogram(&bytes.Buffer{}, chunk(), spec); err == nil {
		t.Error("expected error for a table without log_rf_tau")
	}
}

func TestParseStatistic(t *testing.T) {
	if st, err := ParseStatistic("median"); err != nil || st != StatMedian {
		t.Errorf("ParseStatistic(median) = %v, %v", st, err)
	}
	if _, err := ParseStatistic("mode"); err == nil {
		t.Error("expected error for unknown statistic")
	}
}
