// Package plot computes and renders the diagnostic figures of a finished
// table: histograms, 2D histograms, binned-statistic heatmaps and corner
// plots. Nothing in this package modifies its input.
package plot

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Statistic aggregates the values falling in one bin.
type Statistic string

const (
	StatMean   Statistic = "mean"
	StatMedian Statistic = "median"
	StatCount  Statistic = "count"
	StatSum    Statistic = "sum"
)

// ParseStatistic validates a statistic name.
func ParseStatistic(s string) (Statistic, error) {
	switch st := Statistic(s); st {
	case StatMean, StatMedian, StatCount, StatSum:
		return st, nil
	}
	return "", fmt.Errorf("unknown statistic %q (want mean, median, count or sum)", s)
}

// Edges returns lo, lo+step, ... for every value strictly below hi, the
// bin edges produced by an arange over [lo, hi).
func Edges(lo, hi, step float64) ([]float64, error) {
	if step <= 0 || math.IsNaN(step) {
		return nil, fmt.Errorf("bin step must be positive, got %g", step)
	}
	if !(hi > lo) {
		return nil, fmt.Errorf("empty bin range [%g, %g)", lo, hi)
	}
	n := int(math.Ceil((hi - lo) / step))
	if n < 2 {
		return nil, fmt.Errorf("range [%g, %g) with step %g yields fewer than two edges", lo, hi, step)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out, nil
}

// LinearEdges returns n+1 evenly spaced edges spanning [lo, hi].
func LinearEdges(lo, hi float64, n int) ([]float64, error) {
	if n < 1 || !(hi > lo) {
		return nil, fmt.Errorf("cannot split [%g, %g] into %d bins", lo, hi, n)
	}
	return floats.Span(make([]float64, n+1), lo, hi), nil
}

// bin returns the index of the bin holding v, or -1. Bins are half-open
// except the last, which includes its right edge. NaN falls in no bin.
func bin(edges []float64, v float64) int {
	if math.IsNaN(v) {
		return -1
	}
	last := len(edges) - 1
	if v == edges[last] {
		return last - 1
	}
	return floats.Within(edges, v)
}

func checkEdges(edges []float64) error {
	if len(edges) < 2 {
		return fmt.Errorf("need at least two bin edges, got %d", len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return fmt.Errorf("bin edges must increase, edge %d is %g after %g", i, edges[i], edges[i-1])
		}
	}
	return nil
}

// Histogram counts values per bin, each entry contributing weight. A zero
// weight counts as one.
func Histogram(values, edges []float64, weight float64) ([]float64, error) {
	if err := checkEdges(edges); err != nil {
		return nil, err
	}
	if weight == 0 {
		weight = 1
	}
	counts := make([]float64, len(edges)-1)
	for _, v := range values {
		if i := bin(edges, v); i >= 0 {
			counts[i] += weight
		}
	}
	return counts, nil
}

// Density normalises counts so that they integrate to one over the bins.
func Density(counts, edges []float64) []float64 {
	total := floats.Sum(counts)
	out := make([]float64, len(counts))
	if total == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = c / (total * (edges[i+1] - edges[i]))
	}
	return out
}

// Histogram2D counts (x, y) pairs per cell. The result is indexed [xbin][ybin].
func Histogram2D(x, y, xEdges, yEdges []float64, weight float64) ([][]float64, error) {
	return BinnedStatistic2D(x, y, nil, xEdges, yEdges, StatCount, weight)
}

// BinnedStatistic2D aggregates v over the cells of an (x, y) grid. The result
// is indexed [xbin][ybin]; cells without values are NaN except for count and
// sum, which are zero there. For StatCount v may be nil and each pair
// contributes weight (zero meaning one).
func BinnedStatistic2D(x, y, v, xEdges, yEdges []float64, st Statistic, weight float64) ([][]float64, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("x has %d values, y has %d", len(x), len(y))
	}
	if st != StatCount && len(v) != len(x) {
		return nil, fmt.Errorf("values have %d entries, want %d", len(v), len(x))
	}
	if err := checkEdges(xEdges); err != nil {
		return nil, fmt.Errorf("x: %w", err)
	}
	if err := checkEdges(yEdges); err != nil {
		return nil, fmt.Errorf("y: %w", err)
	}
	if weight == 0 {
		weight = 1
	}

	nx, ny := len(xEdges)-1, len(yEdges)-1
	cells := make([][][]float64, nx)
	for i := range cells {
		cells[i] = make([][]float64, ny)
	}
	out := make([][]float64, nx)
	for i := range out {
		out[i] = make([]float64, ny)
	}

	for k := range x {
		i, j := bin(xEdges, x[k]), bin(yEdges, y[k])
		if i < 0 || j < 0 {
			continue
		}
		if st == StatCount {
			out[i][j] += weight
			continue
		}
		cells[i][j] = append(cells[i][j], v[k])
	}
	if st == StatCount {
		return out, nil
	}

	for i := range cells {
		for j, vals := range cells[i] {
			out[i][j] = aggregate(vals, st)
		}
	}
	return out, nil
}

func aggregate(vals []float64, st Statistic) float64 {
	switch st {
	case StatSum:
		return floats.Sum(vals)
	case StatMean:
		if len(vals) == 0 {
			return math.NaN()
		}
		return stat.Mean(vals, nil)
	case StatMedian:
		return median(vals)
	}
	return math.NaN()
}

// median averages the two middle values of an even-length sample.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	s := slices.Clone(vals)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// NanToNum replaces non-finite cells with zero, as the heatmaps display
// them.
func NanToNum(grid [][]float64) [][]float64 {
	out := make([][]float64, len(grid))
	for i, row := range grid {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				out[i][j] = v
			}
		}
	}
	return out
}

// CornerData holds the panels of a corner plot: a density-normalised
// marginal histogram per variable and a 2D density for every pair i > j.
type CornerData struct {
	Labels    []string
	Edges     [][]float64
	Marginals [][]float64
	// Pairs[i][j] for j < i is indexed [bin of variable j][bin of variable i].
	Pairs [][][][]float64
}

// Corner computes corner plot panels for the given variables. columns[i]
// are the samples of variable i, binned on edges[i]. Rows with a NaN in any
// variable are ignored.
func Corner(columns [][]float64, labels []string, edges [][]float64) (*CornerData, error) {
	n := len(columns)
	if n == 0 {
		return nil, fmt.Errorf("corner plot needs at least one variable")
	}
	if len(labels) != n || len(edges) != n {
		return nil, fmt.Errorf("corner plot has %d variables, %d labels and %d edge sets", n, len(labels), len(edges))
	}
	rows := len(columns[0])
	for i, c := range columns {
		if len(c) != rows {
			return nil, fmt.Errorf("variable %s has %d samples, want %d", labels[i], len(c), rows)
		}
	}

	keep := make([]bool, rows)
	for r := range keep {
		keep[r] = true
		for _, c := range columns {
			if math.IsNaN(c[r]) {
				keep[r] = false
				break
			}
		}
	}
	clean := make([][]float64, n)
	for i, c := range columns {
		for r, v := range c {
			if keep[r] {
				clean[i] = append(clean[i], v)
			}
		}
	}

	cd := &CornerData{Labels: labels, Edges: edges, Marginals: make([][]float64, n), Pairs: make([][][][]float64, n)}
	for i := range clean {
		counts, err := Histogram(clean[i], edges[i], 1)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", labels[i], err)
		}
		cd.Marginals[i] = Density(counts, edges[i])

		cd.Pairs[i] = make([][][]float64, i)
		for j := 0; j < i; j++ {
			h, err := Histogram2D(clean[j], clean[i], edges[j], edges[i], 1)
			if err != nil {
				return nil, fmt.Errorf("%s vs %s: %w", labels[j], labels[i], err)
			}
			cd.Pairs[i][j] = density2D(h, edges[j], edges[i])
		}
	}
	return cd, nil
}

func density2D(h [][]float64, xEdges, yEdges []float64) [][]float64 {
	var total float64
	for _, row := range h {
		total += floats.Sum(row)
	}
	out := make([][]float64, len(h))
	for i, row := range h {
		out[i] = make([]float64, len(row))
		if total == 0 {
			continue
		}
		for j, c := range row {
			area := (xEdges[i+1] - xEdges[i]) * (yEdges[j+1] - yEdges[j])
			out[i][j] = c / (total * area)
		}
	}
	return out
}
