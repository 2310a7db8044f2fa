package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	path := PathFor(filepath.Join(t.TempDir(), "joined"))
	if err := Acquire(path, "/data/agn.db"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	h, held, err := IsHeld(path)
	if err != nil || !held || h.PID != os.Getpid() {
		t.Errorf("IsHeld = %+v, %v, %v", h, held, err)
	}
	if h.Source != "/data/agn.db" || h.Started.IsZero() {
		t.Errorf("holder = %+v, want source and start time", h)
	}
	// Re-acquiring from the same process succeeds.
	if err := Acquire(path, "/data/agn.db"); err != nil {
		t.Errorf("re-Acquire: %v", err)
	}
	if err := Release(path); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, held, _ := IsHeld(path); held {
		t.Error("lock still held after Release")
	}
	if err := Release(path); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestAcquireHeldByOtherProcess(t *testing.T) {
	tests := []struct {
		name    string
		content string
		source  string
	}{
		{"bare pid", strconv.Itoa(os.Getppid()), ""},
		{"holder record", "pid: " + strconv.Itoa(os.Getppid()) + "\nsource: /data/other.db\n", "/data/other.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := PathFor(t.TempDir())
			// The parent process (go test runner) is alive for the duration of the test.
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			err := Acquire(path, "/data/agn.db")
			var held *HeldError
			if !errors.As(err, &held) {
				t.Fatalf("expected HeldError, got %v", err)
			}
			if held.Holder.PID != os.Getppid() || held.Holder.Source != tt.source {
				t.Errorf("holder = %+v", held.Holder)
			}
			if tt.source != "" && !strings.Contains(err.Error(), tt.source) {
				t.Errorf("error %q should name the other run's source", err)
			}
		})
	}
}

func TestAcquireStaleLock(t *testing.T) {
	for _, content := range []string{"not-a-pid", "pid: 0\n", "pid: -1\n"} {
		path := PathFor(t.TempDir())
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := Acquire(path, "/data/agn.db"); err != nil {
			t.Errorf("Acquire over lock %q: %v", content, err)
		}
	}
}

func TestIsHeldCorrupt(t *testing.T) {
	path := PathFor(t.TempDir())
	if err := os.WriteFile(path, []byte("{{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, held, err := IsHeld(path); held || err != nil {
		t.Errorf("IsHeld on corrupt lock = %v, %v; want not held", held, err)
	}
}
