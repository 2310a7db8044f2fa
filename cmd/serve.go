package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agnvar/agnvar/internal/serve"
	"github.com/agnvar/agnvar/web"
)

var (
	serveAddr    string
	serveDevMode bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve plots, chunks and the run report over HTTP",
	Long: `Serve the output directory on localhost: the rendered plots under /plots/,
the chunk listing and downloads under /api/chunks, the last run report on
/api/report and the recorded run state on /api/status.

Use "agnvar run --listen" to also stream live status and metrics during a run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := consoleLogger()

		addr := cfg.Metrics.Listen
		if serveAddr != "" {
			addr = serveAddr
		}
		distFS, err := fs.Sub(web.DistFS, "dist")
		if err != nil {
			return fmt.Errorf("loading embedded dashboard: %w", err)
		}
		srv := serve.New(cfg.Output.Directory, addr, logger,
			serve.WithStaticFS(distFS),
			serve.WithPlotsDir(cfg.Plot.Directory),
			serve.WithStatePath(cfg.Pipeline.StatePath),
			serve.WithDevMode(serveDevMode),
		)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		fmt.Fprintf(os.Stderr, "agnvar outputs: http://%s/\n", addr)

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from metrics.listen)")
	serveCmd.Flags().BoolVar(&serveDevMode, "dev", false, "enable CORS for development mode")
	rootCmd.AddCommand(serveCmd)
}
