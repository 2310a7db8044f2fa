// Package lock keeps two runs from writing joined chunks into the same
// output directory.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the lock file created inside an output directory.
const FileName = ".agnvar.lock"

// PathFor returns the lock file guarding an output directory.
func PathFor(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Holder describes the run that owns an output directory.
type Holder struct {
	PID     int       `yaml:"pid"`
	Source  string    `yaml:"source,omitempty"`
	Started time.Time `yaml:"started,omitempty"`
}

// HeldError is returned by Acquire when another live run owns the directory.
type HeldError struct {
	Dir    string
	Holder Holder
}

func (e *HeldError) Error() string {
	msg := fmt.Sprintf("another agnvar run is writing to %s (PID %d", e.Dir, e.Holder.PID)
	if e.Holder.Source != "" {
		msg += ", source " + e.Holder.Source
	}
	return msg + ")"
}

// Acquire records the current process as the run reading source into the
// directory of path. A lock left by a process that is no longer running, or
// one that cannot be read, is taken over.
func Acquire(path, source string) error {
	if h, err := read(path); err == nil && h.PID != os.Getpid() && isProcessRunning(h.PID) {
		return &HeldError{Dir: filepath.Dir(path), Holder: h}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}
	data, err := yaml.Marshal(Holder{PID: os.Getpid(), Source: source, Started: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding lock: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Release removes the lock file.
func Release(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsHeld reports whether a running process holds the lock, and which one.
// A missing or unreadable lock is not held.
func IsHeld(path string) (Holder, bool, error) {
	h, err := read(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Holder{}, false, nil
	case errors.Is(err, errCorrupt):
		return Holder{}, false, nil
	case err != nil:
		return Holder{}, false, err
	}
	return h, isProcessRunning(h.PID), nil
}

var errCorrupt = errors.New("corrupt lock file")

// read parses a lock file. Files holding a bare PID are accepted.
func read(path string) (Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Holder{}, err
	}
	if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
		return Holder{PID: pid}, nil
	}
	var h Holder
	if err := yaml.Unmarshal(data, &h); err != nil || h.PID == 0 {
		return Holder{}, errCorrupt
	}
	return h, nil
}

func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
