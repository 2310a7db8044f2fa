package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agnvar/agnvar/internal/catalog"
	"github.com/agnvar/agnvar/internal/config"
	"github.com/agnvar/agnvar/internal/cosmology"
	"github.com/agnvar/agnvar/internal/derive"
	"github.com/agnvar/agnvar/internal/metrics"
	"github.com/agnvar/agnvar/internal/photometry"
	"github.com/agnvar/agnvar/internal/pipeline"
	"github.com/agnvar/agnvar/internal/publish"
	"github.com/agnvar/agnvar/internal/report"
	"github.com/agnvar/agnvar/internal/serve"
	"github.com/agnvar/agnvar/internal/source"
	"github.com/agnvar/agnvar/internal/tui"
	"github.com/agnvar/agnvar/internal/validation"
	"github.com/agnvar/agnvar/web"
)

var (
	runChunks          []int
	runParallel        int
	runTUI             bool
	runResume          bool
	runContinueOnError bool
	runFailOnNaN       bool
	runListen          string
	runSkipValidate    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Join AGN parameters with the catalog and write CSV chunks",
	Long: `Stream the AGN parameter database in chunks, unravel the variability
parameters, join each chunk with the galaxy catalog, derive magnitudes and
rest-frame ratios, downcast numeric columns and write joined_<n>.csv.

A report is written to the output directory when the run ends.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyRunFlags(cmd, cfg)

		var console io.Writer = os.Stderr
		if runTUI {
			console = io.Discard
		}
		logger, err := setupLogger(cfg, console)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		calc, err := newCalculator(cfg, logger)
		if err != nil {
			return err
		}

		cat, err := catalog.Open(ctx, &cfg.Catalog, logger)
		if err != nil {
			return fmt.Errorf("opening catalog: %w", err)
		}
		defer cat.Close(context.Background())

		var uploader *publish.Uploader
		if cfg.Output.S3Bucket != "" {
			client, err := publish.NewS3Client(ctx, cfg.Output.Profile, cfg.Output.Region)
			if err != nil {
				return fmt.Errorf("creating S3 client: %w", err)
			}
			uploader = publish.NewUploader(client, cfg.Output.S3Bucket, cfg.Output.S3Prefix)
		}

		m := metrics.New()
		p := &pipeline.Pipeline{
			Reader:     source.NewSQLiteReader(cfg.Source.Path, cfg.Source.Table, cfg.Source.ChunkSize),
			Catalog:    cat,
			Calculator: calc,
			Uploader:   uploader,
			Metrics:    m,
			Logger:     logger,
			Options: pipeline.Options{
				OutputDir:       cfg.Output.Directory,
				SourcePath:      cfg.Source.Path,
				ChunkSize:       cfg.Source.ChunkSize,
				Chunks:          cfg.Pipeline.Chunks,
				Parallelism:     cfg.Pipeline.Parallelism,
				ContinueOnError: cfg.Pipeline.ContinueOnError,
				Resume:          cfg.Pipeline.Resume,
				StatePath:       cfg.Pipeline.StatePath,
			},
		}

		callbacks := []pipeline.StatusCallback{}
		if runListen != "" {
			distFS, err := fs.Sub(web.DistFS, "dist")
			if err != nil {
				return fmt.Errorf("loading embedded dashboard: %w", err)
			}
			hub := serve.NewHub(logger, p.Status)
			go hub.Run(ctx)
			srv := serve.New(cfg.Output.Directory, runListen, logger,
				serve.WithStaticFS(distFS),
				serve.WithMetrics(m),
				serve.WithHub(hub),
				serve.WithStatus(p.Status),
				serve.WithPlotsDir(cfg.Plot.Directory),
				serve.WithStatePath(cfg.Pipeline.StatePath),
			)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("status server stopped", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			callbacks = append(callbacks, hub.BroadcastStatus)
		}

		var (
			status *pipeline.Status
			runErr error
		)
		if runTUI {
			status, runErr = tui.Run(ctx, func(ctx context.Context, cb pipeline.StatusCallback) (*pipeline.Status, error) {
				return p.Run(ctx, fanOut(append(callbacks, cb)...))
			})
		} else {
			callbacks = append(callbacks, consoleProgress())
			status, runErr = p.Run(ctx, fanOut(callbacks...))
		}
		if status == nil {
			return runErr
		}

		var vres *validation.Result
		if !runSkipValidate && status.Phase != pipeline.PhaseAborted && status.Overall.ChunksDone > 0 {
			v := &validation.Validator{Dir: cfg.Output.Directory, ChunkSize: cfg.Source.ChunkSize}
			if vres, err = v.Validate(ctx); err != nil {
				logger.Warn("validating outputs", "error", err)
				vres = nil
			}
		}

		rep := report.GenerateReport(
			report.SourceSummary{Path: cfg.Source.Path, Table: cfg.Source.Table, ChunkSize: cfg.Source.ChunkSize},
			report.CatalogSummary{Type: cfg.Catalog.Type, Name: cfg.Catalog.Name},
			status, vres,
		)
		if err := report.WriteJSON(rep, filepath.Join(cfg.Output.Directory, serve.ReportFile)); err != nil {
			logger.Error("writing report", "error", err)
		}
		if err := report.WriteText(rep, filepath.Join(cfg.Output.Directory, "report.txt")); err != nil {
			logger.Error("writing report", "error", err)
		}
		if cfg.Metrics.TextfilePath != "" {
			if err := m.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
				logger.Error("exporting metrics", "error", err)
			}
		}
		fmt.Println()
		fmt.Print(report.FormatText(rep))
		return runErr
	},
}

// applyRunFlags lets explicitly set flags override the config file.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("chunks") {
		cfg.Pipeline.Chunks = runChunks
	}
	if flags.Changed("parallel") {
		cfg.Pipeline.Parallelism = max(runParallel, 1)
	}
	if flags.Changed("continue-on-error") {
		cfg.Pipeline.ContinueOnError = runContinueOnError
	}
	if flags.Changed("fail-on-nan") {
		cfg.Pipeline.FailOnNaN = runFailOnNaN
	}
	if flags.Changed("resume") {
		cfg.Pipeline.Resume = runResume
	}
}

// newCalculator loads the spectral template and bandpass named by the config.
func newCalculator(cfg *config.Config, logger *slog.Logger) (*derive.Calculator, error) {
	if cfg.Template.SEDPath == "" {
		return nil, fmt.Errorf("template.sed_path is required for K-corrections")
	}
	sed, err := photometry.ReadSED(cfg.Template.SEDPath)
	if err != nil {
		return nil, err
	}
	bp := photometry.DefaultIBand()
	if cfg.Template.BandpassPath != "" {
		if bp, err = photometry.ReadBandpass("i", cfg.Template.BandpassPath); err != nil {
			return nil, err
		}
	}
	cosmo, err := cosmology.New(cfg.Cosmology.H0, cfg.Cosmology.Om0)
	if err != nil {
		return nil, err
	}
	return &derive.Calculator{
		AbsMag:    derive.EddingtonAbsMag(cfg.Magnitude.EddLuminosity, cfg.Magnitude.Zero),
		Cosmology: cosmo,
		Template:  sed,
		Bandpass:  bp,
		GridStep:  cfg.Template.GridStep,
		FailOnNaN: cfg.Pipeline.FailOnNaN,
		Logger:    logger,
	}, nil
}

func fanOut(callbacks ...pipeline.StatusCallback) pipeline.StatusCallback {
	return func(status *pipeline.Status) {
		for _, cb := range callbacks {
			cb(status)
		}
	}
}

// consoleProgress prints phase changes and a progress line whenever a chunk
// finishes.
func consoleProgress() pipeline.StatusCallback {
	lastPhase := ""
	lastDone := -1
	return func(status *pipeline.Status) {
		o := status.Overall
		finished := o.ChunksDone + o.ChunksFailed + o.ChunksSkipped
		if status.Phase == lastPhase && finished == lastDone {
			return
		}
		switch status.Phase {
		case pipeline.PhaseStarting:
			fmt.Println("Starting run...")
		case pipeline.PhaseRunning:
			if o.ChunksTotal > 0 {
				fmt.Printf("\rProgress: %.1f%% (%d/%d chunks, %d rows joined)",
					o.PercentComplete, finished, o.ChunksTotal, o.RowsJoined)
			}
		case pipeline.PhaseCompleted:
			fmt.Printf("\nRun completed in %s\n", status.ElapsedTime.Round(time.Second))
		case pipeline.PhaseAborted:
			fmt.Println("\nRun aborted.")
		case pipeline.PhaseFailed, pipeline.PhasePartialFailure:
			fmt.Printf("\nRun %s:\n", status.Phase)
			for _, e := range status.Errors {
				fmt.Printf("  %s\n", e)
			}
			fmt.Println("Use `agnvar run --resume` to retry the failed chunks.")
		}
		lastPhase, lastDone = status.Phase, finished
	}
}

func init() {
	runCmd.Flags().IntSliceVar(&runChunks, "chunks", nil, "process only these chunk indices (e.g. 50,51)")
	runCmd.Flags().IntVar(&runParallel, "parallel", 1, "chunks processed concurrently")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "show an interactive progress view")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "skip chunks completed by a previous run")
	runCmd.Flags().BoolVar(&runContinueOnError, "continue-on-error", false, "record failing chunks and keep going")
	runCmd.Flags().BoolVar(&runFailOnNaN, "fail-on-nan", false, "fail on rows whose magnitude is undefined")
	runCmd.Flags().StringVar(&runListen, "listen", "", "serve live status, metrics and outputs on this address during the run")
	runCmd.Flags().BoolVar(&runSkipValidate, "skip-validate", false, "do not validate the written chunks")
	rootCmd.AddCommand(runCmd)
}
