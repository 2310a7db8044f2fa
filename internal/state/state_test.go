package state

import (
	"path/filepath"
	"sync"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "state.yaml")
	s := New("/data/agn.db", 200000)
	s.Set(0, ChunkState{Status: StatusCompleted, Rows: 200000, Joined: 199870, Output: "joined_0.csv"})
	s.Set(1, ChunkState{Status: StatusFailed, Error: "catalog offline"})
	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Compatible("/data/agn.db", 200000) {
		t.Error("loaded state should be compatible with its own source")
	}
	if loaded.Compatible("/data/agn.db", 1000) {
		t.Error("different chunk size must be incompatible")
	}
	if !loaded.IsCompleted(0) || loaded.IsCompleted(1) || loaded.IsCompleted(2) {
		t.Errorf("unexpected completion flags: %+v", loaded.Chunks)
	}
	if got := loaded.Get(0); got.Joined != 199870 || got.CompletedAt.IsZero() {
		t.Errorf("chunk 0 = %+v", got)
	}
	if got := loaded.Get(7); got.Status != StatusPending {
		t.Errorf("unknown chunk status = %s, want pending", got.Status)
	}
}

func TestLoadMissing(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil || s != nil {
		t.Errorf("Load of missing file = %v, %v; want nil, nil", s, err)
	}
}

func TestConcurrentSet(t *testing.T) {
	s := New("agn.db", 10)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Set(i, ChunkState{Status: StatusCompleted})
		}(i)
	}
	wg.Wait()
	if got := s.Counts()[StatusCompleted]; got != 50 {
		t.Errorf("completed = %d, want 50", got)
	}
	idx := s.Indices()
	if len(idx) != 50 || idx[0] != 0 || idx[49] != 49 {
		t.Errorf("Indices = %v", idx)
	}
}
