package state

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Status of one chunk.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// State tracks per-chunk progress of a run so an interrupted run can resume.
// Methods are safe for concurrent use.
type State struct {
	SourcePath  string             `yaml:"source_path"`
	ChunkSize   int                `yaml:"chunk_size"`
	StartedAt   time.Time          `yaml:"started_at"`
	LastUpdated time.Time          `yaml:"last_updated"`
	Chunks      map[int]ChunkState `yaml:"chunks,omitempty"`

	mu sync.Mutex
}

// ChunkState records the outcome of one chunk.
type ChunkState struct {
	Status      Status    `yaml:"status"`
	Rows        int       `yaml:"rows,omitempty"`
	Joined      int       `yaml:"joined,omitempty"`
	Output      string    `yaml:"output,omitempty"`
	Error       string    `yaml:"error,omitempty"`
	CompletedAt time.Time `yaml:"completed_at,omitempty"`
}

// New creates a fresh run state.
func New(sourcePath string, chunkSize int) *State {
	now := time.Now()
	return &State{
		SourcePath:  sourcePath,
		ChunkSize:   chunkSize,
		StartedAt:   now,
		LastUpdated: now,
		Chunks:      make(map[int]ChunkState),
	}
}

// Load reads the run state from disk. A missing file yields nil and no error.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	s := &State{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	if s.Chunks == nil {
		s.Chunks = make(map[int]ChunkState)
	}
	return s, nil
}

// Compatible reports whether s was recorded for the same source and chunking;
// chunk indices are meaningless otherwise.
func (s *State) Compatible(sourcePath string, chunkSize int) bool {
	return s.SourcePath == sourcePath && s.ChunkSize == chunkSize
}

// Save writes the run state to disk.
func (s *State) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastUpdated = time.Now()
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return os.Rename(tmp, path)
}

// Set records the state of a chunk.
func (s *State) Set(chunk int, cs ChunkState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs.Status == StatusCompleted || cs.Status == StatusFailed {
		cs.CompletedAt = time.Now()
	}
	s.Chunks[chunk] = cs
}

// Get returns the state of a chunk; unknown chunks are pending.
func (s *State) Get(chunk int) ChunkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.Chunks[chunk]
	if !ok {
		return ChunkState{Status: StatusPending}
	}
	return cs
}

// IsCompleted returns true if the chunk finished successfully.
func (s *State) IsCompleted(chunk int) bool {
	return s.Get(chunk).Status == StatusCompleted
}

// Indices returns the recorded chunk indices in ascending order.
func (s *State) Indices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.Chunks))
	for i := range s.Chunks {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// Counts returns the number of chunks in each status.
func (s *State) Counts() map[Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Status]int)
	for _, cs := range s.Chunks {
		out[cs.Status]++
	}
	return out
}
