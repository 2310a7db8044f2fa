package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agnvar/agnvar/internal/config"
	"github.com/agnvar/agnvar/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "agnvar",
	Short: "agnvar - AGN variability parameter pipeline",
	Long: `agnvar joins simulated AGN variability parameters with a galaxy catalog,
derives absolute and apparent i-band magnitudes and rest-frame wavelength
ratios, and writes memory-optimized CSV chunks ready for plotting.`,
	SilenceUsage: true,
}

func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.agnvar/agnvar.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
}

// loadConfig reads the config file. Without --config a missing default file
// falls back to the built-in defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err == nil {
		return cfg, nil
	}
	if cfgFile == "" && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("loading config: %w", err)
}

// setupLogger creates the run logger, mirrored to console, and prunes old
// log files.
func setupLogger(cfg *config.Config, console io.Writer) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.SetupWriter(level, cfg.Logging.Directory, console)
	if err != nil {
		return nil, err
	}
	if n, err := logging.Prune(cfg.Logging.Directory, cfg.Logging.RetentionDays, time.Now()); err != nil {
		logger.Warn("pruning old logs", "error", err)
	} else if n > 0 {
		logger.Debug("pruned old logs", "removed", n)
	}
	return logger, nil
}

// consoleLogger logs to stderr only, for commands that leave no run record.
func consoleLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logging.ParseLevel(logLevel)}))
}
