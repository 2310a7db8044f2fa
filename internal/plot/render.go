package plot

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/agnvar/agnvar/internal/frame"
)

const (
	chartWidth  = "900px"
	chartHeight = "600px"
)

var heatColors = []string{"#313695", "#4575b4", "#74add1", "#abd9e9", "#fee090", "#fdae61", "#f46d43", "#d73027", "#a50026"}

// Axis names a column and its binning.
type Axis struct {
	Column string
	Label  string
	Edges  []float64
	// Transform, when set, is applied to every value before binning.
	Transform func(float64) float64
}

func (a Axis) label() string {
	if a.Label != "" {
		return a.Label
	}
	return a.Column
}

func (a Axis) values(f *frame.Frame) ([]float64, error) {
	vals, err := f.Float64s(a.Column)
	if err != nil {
		return nil, err
	}
	if a.Transform == nil {
		return vals, nil
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = a.Transform(v)
	}
	return out, nil
}

// Subset selects the rows whose Column lies strictly between Min and Max.
type Subset struct {
	Name     string
	Column   string
	Min, Max float64
}

func (s Subset) rows(f *frame.Frame) ([]int, error) {
	vals, err := f.Float64s(s.Column)
	if err != nil {
		return nil, err
	}
	var idx []int
	for i, v := range vals {
		if v > s.Min && v < s.Max {
			idx = append(idx, i)
		}
	}
	return idx, nil
}

// HistogramSpec configures RenderHistogram. The full table is always drawn
// as the first series, labelled "all"; each subset adds one more series on
// the same binning.
type HistogramSpec struct {
	Title  string
	X      Axis
	YLabel string
	// Weight is the contribution of one row, such as 1/area for counts per
	// square degree. Zero means one.
	Weight  float64
	Subsets []Subset
}

// RenderHistogram writes a bar chart of the binned column.
func RenderHistogram(w io.Writer, f *frame.Frame, spec HistogramSpec) error {
	vals, err := spec.X.values(f)
	if err != nil {
		return err
	}
	all, err := Histogram(vals, spec.X.Edges, spec.Weight)
	if err != nil {
		return err
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: spec.Title, Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: spec.Title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "5%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: spec.X.label()}),
		charts.WithYAxisOpts(opts.YAxis{Name: spec.YLabel}),
	)
	bar.SetXAxis(binLabels(spec.X.Edges))
	bar.AddSeries("all", barData(all))

	for _, s := range spec.Subsets {
		idx, err := s.rows(f)
		if err != nil {
			return fmt.Errorf("subset %s: %w", s.Name, err)
		}
		sub := make([]float64, len(idx))
		for i, r := range idx {
			sub[i] = vals[r]
		}
		counts, err := Histogram(sub, spec.X.Edges, spec.Weight)
		if err != nil {
			return err
		}
		bar.AddSeries(s.Name, barData(counts))
	}
	return bar.Render(w)
}

// BinnedSpec configures RenderBinnedStatistic.
type BinnedSpec struct {
	Title      string
	X, Y       Axis
	Value      string
	ValueLabel string
	Statistic  Statistic
	// InvertY draws the y axis from high to low values, as for magnitudes.
	InvertY bool
	// ColorMin and ColorMax fix the color scale; both zero means the data
	// range.
	ColorMin, ColorMax float64
}

// RenderBinnedStatistic writes a heatmap whose cells show the statistic of
// Value over the rows falling in each (X, Y) cell. Empty cells show zero.
func RenderBinnedStatistic(w io.Writer, f *frame.Frame, spec BinnedSpec) error {
	x, err := spec.X.values(f)
	if err != nil {
		return err
	}
	y, err := spec.Y.values(f)
	if err != nil {
		return err
	}
	st := spec.Statistic
	if st == "" {
		st = StatMean
	}
	var v []float64
	if st != StatCount {
		if v, err = f.Float64s(spec.Value); err != nil {
			return err
		}
	}
	grid, err := BinnedStatistic2D(x, y, v, spec.X.Edges, spec.Y.Edges, st, 1)
	if err != nil {
		return err
	}
	subtitle := fmt.Sprintf("%s of %s", st, valueLabel(spec.ValueLabel, spec.Value))
	hm := heatmap(spec.Title, subtitle, spec.X, spec.Y, NanToNum(grid), spec.InvertY, spec.ColorMin, spec.ColorMax, false)
	return hm.Render(w)
}

// Hist2DSpec configures RenderHistogram2D.
type Hist2DSpec struct {
	Title   string
	X, Y    Axis
	Weight  float64
	InvertY bool
	// LogColor colors cells by log10 of their count; empty cells are left
	// blank.
	LogColor bool
}

// RenderHistogram2D writes a heatmap of pair counts.
func RenderHistogram2D(w io.Writer, f *frame.Frame, spec Hist2DSpec) error {
	x, err := spec.X.values(f)
	if err != nil {
		return err
	}
	y, err := spec.Y.values(f)
	if err != nil {
		return err
	}
	grid, err := Histogram2D(x, y, spec.X.Edges, spec.Y.Edges, spec.Weight)
	if err != nil {
		return err
	}
	subtitle := "count"
	if spec.LogColor {
		subtitle = "log10(count)"
	}
	hm := heatmap(spec.Title, subtitle, spec.X, spec.Y, grid, spec.InvertY, 0, 0, spec.LogColor)
	return hm.Render(w)
}

// CornerSpec configures RenderCorner.
type CornerSpec struct {
	Title     string
	Variables []Axis
	// GroupBy, when set, names a string column; each group gets its own
	// marginal series and pair panels, as in per-band overlays.
	GroupBy string
}

// RenderCorner writes a page holding the marginal density of every variable
// followed by the 2D density of every pair.
func RenderCorner(w io.Writer, f *frame.Frame, spec CornerSpec) error {
	groups, err := groupRows(f, spec.GroupBy)
	if err != nil {
		return err
	}

	labels := make([]string, len(spec.Variables))
	edges := make([][]float64, len(spec.Variables))
	all := make([][]float64, len(spec.Variables))
	for i, a := range spec.Variables {
		labels[i] = a.label()
		edges[i] = a.Edges
		if all[i], err = a.values(f); err != nil {
			return err
		}
	}

	corners := make([]*CornerData, len(groups))
	for g, grp := range groups {
		cols := make([][]float64, len(all))
		for i, vals := range all {
			cols[i] = pick(vals, grp.rows)
		}
		if corners[g], err = Corner(cols, labels, edges); err != nil {
			return err
		}
	}

	page := components.NewPage()
	for i, a := range spec.Variables {
		bar := charts.NewBar()
		bar.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: "400px"}),
			charts.WithTitleOpts(opts.Title{Title: spec.Title, Subtitle: "density of " + a.label()}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(len(groups) > 1), Top: "5%"}),
			charts.WithXAxisOpts(opts.XAxis{Name: a.label()}),
			charts.WithYAxisOpts(opts.YAxis{Name: "density"}),
		)
		bar.SetXAxis(binLabels(a.Edges))
		for g, grp := range groups {
			bar.AddSeries(grp.name, barData(corners[g].Marginals[i]))
		}
		page.AddCharts(bar)
	}
	for g, grp := range groups {
		for i := range spec.Variables {
			for j := 0; j < i; j++ {
				title := fmt.Sprintf("%s: %s vs %s", spec.Title, labels[i], labels[j])
				if len(groups) > 1 {
					title += " (" + grp.name + ")"
				}
				page.AddCharts(heatmap(title, "density", spec.Variables[j], spec.Variables[i], corners[g].Pairs[i][j], false, 0, 0, false))
			}
		}
	}
	return page.Render(w)
}

type group struct {
	name string
	rows []int
}

func groupRows(f *frame.Frame, column string) ([]group, error) {
	if column == "" {
		rows := make([]int, f.Len())
		for i := range rows {
			rows[i] = i
		}
		return []group{{name: "all", rows: rows}}, nil
	}
	col, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	if col.Kind != frame.String {
		return nil, fmt.Errorf("group column %s is %s, want string", column, col.Kind)
	}
	var groups []group
	index := make(map[string]int)
	for r := 0; r < col.Len(); r++ {
		key := col.StringAt(r)
		g, ok := index[key]
		if !ok {
			g = len(groups)
			index[key] = g
			groups = append(groups, group{name: key})
		}
		groups[g].rows = append(groups[g].rows, r)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("group column %s is empty", column)
	}
	return groups, nil
}

func pick(vals []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = vals[r]
	}
	return out
}

// heatmap builds a category heatmap from a grid indexed [xbin][ybin].
func heatmap(title, subtitle string, x, y Axis, grid [][]float64, invertY bool, cmin, cmax float64, logColor bool) *charts.HeatMap {
	xLabels := binLabels(x.Edges)
	yLabels := binLabels(y.Edges)
	ny := len(yLabels)
	if invertY {
		slices.Reverse(yLabels)
	}

	data := make([]opts.HeatMapData, 0, len(xLabels)*ny)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, row := range grid {
		for j, v := range row {
			if logColor {
				if v <= 0 {
					continue
				}
				v = math.Log10(v)
			}
			yj := j
			if invertY {
				yj = ny - 1 - j
			}
			lo, hi = min(lo, v), max(hi, v)
			data = append(data, opts.HeatMapData{Value: []any{i, yj, v}})
		}
	}
	if cmin != 0 || cmax != 0 {
		lo, hi = cmin, cmax
	}
	if math.IsInf(lo, 0) {
		lo, hi = 0, 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      x.label(),
			Type:      "category",
			Data:      xLabels,
			SplitArea: &opts.SplitArea{Show: opts.Bool(true)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:      y.label(),
			Type:      "category",
			Data:      yLabels,
			SplitArea: &opts.SplitArea{Show: opts.Bool(true)},
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			InRange:    &opts.VisualMapInRange{Color: heatColors},
		}),
	)
	hm.AddSeries(subtitle, data)
	return hm
}

// binLabels names each bin by its center.
func binLabels(edges []float64) []string {
	if len(edges) < 2 {
		return nil
	}
	out := make([]string, len(edges)-1)
	for i := range out {
		out[i] = strconv.FormatFloat((edges[i]+edges[i+1])/2, 'g', 4, 64)
	}
	return out
}

func barData(counts []float64) []opts.BarData {
	out := make([]opts.BarData, len(counts))
	for i, c := range counts {
		out[i] = opts.BarData{Value: c}
	}
	return out
}

func valueLabel(label, column string) string {
	if label != "" {
		return label
	}
	return column
}
