package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agnvar/agnvar/internal/config"
)

// DefaultDirectory holds the dated log files.
const DefaultDirectory = "~/.agnvar/logs/"

// Setup initializes the logger with file and stdout output.
func Setup(level, directory string) (*slog.Logger, error) {
	return SetupWriter(level, directory, os.Stdout)
}

// SetupWriter is Setup with the console stream supplied by the caller. The
// TUI passes io.Discard so log lines do not tear the progress display.
func SetupWriter(level, directory string, console io.Writer) (*slog.Logger, error) {
	if directory == "" {
		directory = config.ExpandHome(DefaultDirectory)
	} else {
		directory = config.ExpandHome(directory)
	}

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(directory, FileName(time.Now()))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	handler := slog.NewTextHandler(io.MultiWriter(console, file), &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler), nil
}

// FileName returns the log file name for the given day.
func FileName(t time.Time) string {
	return fmt.Sprintf("agnvar-%s.log", t.Format("2006-01-02"))
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Prune deletes log files older than retentionDays and returns how many were
// removed.
func Prune(directory string, retentionDays int, now time.Time) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	directory = config.ExpandHome(directory)
	matches, err := filepath.Glob(filepath.Join(directory, "agnvar-*.log"))
	if err != nil {
		return 0, err
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	removed := 0
	for _, m := range matches {
		day, err := time.Parse("2006-01-02", strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "agnvar-"), ".log"))
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(m); err != nil {
			return removed, fmt.Errorf("removing %s: %w", m, err)
		}
		removed++
	}
	return removed, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
