package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agnvar/agnvar/internal/catalog"
	"github.com/agnvar/agnvar/internal/frame"
	"github.com/agnvar/agnvar/internal/output"
	"github.com/agnvar/agnvar/internal/plot"
)

var (
	plotKind   string
	plotPreset string
	plotBand   string
	plotValue  string
	plotStat   string
	plotArea   float64
	plotOutDir string
)

var plotCmd = &cobra.Command{
	Use:   "plot [csv...]",
	Short: "Render diagnostic plots from joined chunk files",
	Long: `Render HTML plots from joined_<n>.csv files. Without arguments every chunk
in the output directory is used.

Kinds:
  hist     distribution of rest-frame tau (--preset tau) or SF_inf (--preset sf)
  binned   M_i vs redshift colored by a statistic of --value
  hist2d   M_i vs redshift source counts
  corner   SF_inf vs tau (--preset sf-tau), or tau / SF_inf vs rest-frame
           wavelength per band (--preset tau-wavelength, sf-wavelength)
  all      every figure above`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := consoleLogger()

		paths := args
		if len(paths) == 0 {
			if paths, err = output.Glob(cfg.Output.Directory); err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no chunk files in %s", cfg.Output.Directory)
			}
		}
		outDir := cfg.Plot.Directory
		if plotOutDir != "" {
			outDir = plotOutDir
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("creating plot directory: %w", err)
		}

		f, err := readChunks(paths)
		if err != nil {
			return err
		}
		logger.Info("loaded chunks", "files", len(paths), "rows", f.Len())

		figures, err := selectFigures(plotKind, plotPreset)
		if err != nil {
			return err
		}
		var bands *frame.Frame
		for _, fig := range figures {
			data := f
			if fig.perBand {
				if bands == nil {
					if bands, err = plot.BandTable(f); err != nil {
						return err
					}
				}
				data = bands
				if fig.oneBand && plotBand != "" {
					if data, err = plot.FilterBand(bands, plotBand); err != nil {
						return err
					}
				}
			}
			path := filepath.Join(outDir, fig.file)
			if err := writePlot(path, func(w io.Writer) error { return fig.render(w, data) }); err != nil {
				return fmt.Errorf("%s: %w", fig.file, err)
			}
			fmt.Printf("  %s\n", path)
		}
		return nil
	},
}

// figure is one rendered plot file.
type figure struct {
	file string

	// perBand figures are drawn from the per-band table; oneBand ones are
	// additionally restricted to --band.
	perBand, oneBand bool
	render           func(w io.Writer, f *frame.Frame) error
}

func selectFigures(kind, preset string) ([]figure, error) {
	hist := map[string]figure{
		"tau": {file: "tau.html", perBand: true, oneBand: true, render: func(w io.Writer, f *frame.Frame) error {
			return plot.RenderHistogram(w, f, plot.TauHistogram(plotArea))
		}},
		"sf": {file: "sf_inf.html", perBand: true, oneBand: true, render: func(w io.Writer, f *frame.Frame) error {
			return plot.RenderHistogram(w, f, plot.SFHistogram(plotArea))
		}},
	}
	corner := map[string]figure{
		"sf-tau": {file: "sf_tau.html", perBand: true, oneBand: true, render: func(w io.Writer, f *frame.Frame) error {
			return plot.RenderCorner(w, f, plot.SFTauCorner())
		}},
		"tau-wavelength": {file: "tau_wavelength.html", perBand: true, render: func(w io.Writer, f *frame.Frame) error {
			return plot.RenderCorner(w, f, plot.WavelengthCorner(plot.ColLogRFTau, "log(tau/days)", 0, 4))
		}},
		"sf-wavelength": {file: "sf_wavelength.html", perBand: true, render: func(w io.Writer, f *frame.Frame) error {
			return plot.RenderCorner(w, f, plot.WavelengthCorner(plot.ColLogSFInf, "log(SF_inf/mag)", -1.5, 0))
		}},
	}
	binned := figure{file: "mi_z_" + plotValue + ".html", render: func(w io.Writer, f *frame.Frame) error {
		st, err := plot.ParseStatistic(plotStat)
		if err != nil {
			return err
		}
		return plot.RenderBinnedStatistic(w, f, plot.MagnitudeRedshiftHeatmap(plotValue, st))
	}}
	hist2d := figure{file: "mi_z_count.html", render: func(w io.Writer, f *frame.Frame) error {
		return plot.RenderHistogram2D(w, f, plot.MagnitudeRedshiftCounts(plotArea))
	}}

	pick := func(set map[string]figure, def string) ([]figure, error) {
		if preset == "" {
			preset = def
		}
		fig, ok := set[preset]
		if !ok {
			return nil, fmt.Errorf("unknown %s preset %q (have %s)", kind, preset, strings.Join(sortedKeys(set), ", "))
		}
		return []figure{fig}, nil
	}

	switch kind {
	case "hist":
		return pick(hist, "tau")
	case "corner":
		return pick(corner, "sf-tau")
	case "binned":
		return []figure{binned}, nil
	case "hist2d":
		return []figure{hist2d}, nil
	case "all":
		return []figure{
			hist["tau"], hist["sf"],
			corner["sf-tau"], corner["tau-wavelength"], corner["sf-wavelength"],
			binned, hist2d,
		}, nil
	}
	return nil, fmt.Errorf("unknown plot kind %q (have hist, binned, hist2d, corner, all)", kind)
}

func sortedKeys(m map[string]figure) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func readChunks(paths []string) (*frame.Frame, error) {
	frames := make([]*frame.Frame, 0, len(paths))
	for _, p := range paths {
		f, err := output.ReadCSV(p)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	if len(frames) == 1 {
		return frames[0], nil
	}
	return frame.Concat(frames...)
}

// writePlot renders into a temporary file and renames it over path.
func writePlot(path string, render func(io.Writer) error) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := render(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func init() {
	plotCmd.Flags().StringVar(&plotKind, "kind", "all", "hist, binned, hist2d, corner or all")
	plotCmd.Flags().StringVar(&plotPreset, "preset", "", "figure preset for hist and corner")
	plotCmd.Flags().StringVar(&plotBand, "band", "i", "band used by single-band figures (empty for all bands)")
	plotCmd.Flags().StringVar(&plotValue, "value", catalog.QEddingtonRatio, "column summarized by the binned heatmap")
	plotCmd.Flags().StringVar(&plotStat, "stat", "mean", "binned statistic: mean, median, count or sum")
	plotCmd.Flags().Float64Var(&plotArea, "area", 0, "survey area in square degrees; counts are divided by it")
	plotCmd.Flags().StringVar(&plotOutDir, "out", "", "plot directory (default from config)")
	rootCmd.AddCommand(plotCmd)
}
