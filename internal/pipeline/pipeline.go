// Package pipeline drives a run: every AGN parameter chunk is unravelled,
// joined with the galaxy catalog, extended with derived magnitudes,
// downcast and persisted as CSV.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agnvar/agnvar/internal/catalog"
	"github.com/agnvar/agnvar/internal/derive"
	"github.com/agnvar/agnvar/internal/join"
	"github.com/agnvar/agnvar/internal/lock"
	"github.com/agnvar/agnvar/internal/logging"
	"github.com/agnvar/agnvar/internal/metrics"
	"github.com/agnvar/agnvar/internal/optimize"
	"github.com/agnvar/agnvar/internal/output"
	"github.com/agnvar/agnvar/internal/params"
	"github.com/agnvar/agnvar/internal/publish"
	"github.com/agnvar/agnvar/internal/source"
	"github.com/agnvar/agnvar/internal/state"
)

// Run phases.
const (
	PhaseStarting       = "starting"
	PhaseRunning        = "running"
	PhaseCompleted      = "completed"
	PhasePartialFailure = "partial_failure"
	PhaseFailed         = "failed"
	PhaseAborted        = "aborted"
)

// Status is the progress of a run.
type Status struct {
	Phase       string        `yaml:"phase" json:"phase"`
	Overall     ProgressInfo  `yaml:"overall" json:"overall"`
	Chunks      []ChunkStatus `yaml:"chunks" json:"chunks"`
	ElapsedTime time.Duration `yaml:"elapsed_time" json:"elapsed_time"`
	Errors      []string      `yaml:"errors,omitempty" json:"errors,omitempty"`
}

// ProgressInfo aggregates chunk outcomes.
type ProgressInfo struct {
	ChunksDone      int     `yaml:"chunks_done" json:"chunks_done"`
	ChunksTotal     int     `yaml:"chunks_total" json:"chunks_total"`
	ChunksFailed    int     `yaml:"chunks_failed" json:"chunks_failed"`
	ChunksSkipped   int     `yaml:"chunks_skipped" json:"chunks_skipped"`
	RowsRead        int64   `yaml:"rows_read" json:"rows_read"`
	RowsJoined      int64   `yaml:"rows_joined" json:"rows_joined"`
	MemoryBefore    int64   `yaml:"memory_before" json:"memory_before"`
	MemoryAfter     int64   `yaml:"memory_after" json:"memory_after"`
	PercentComplete float64 `yaml:"percent_complete" json:"percent_complete"`
}

// ChunkStatus is the progress of one chunk.
type ChunkStatus struct {
	Index        int           `yaml:"index" json:"index"`
	State        state.Status  `yaml:"state" json:"state"`
	Skipped      bool          `yaml:"skipped,omitempty" json:"skipped,omitempty"`
	Rows         int           `yaml:"rows" json:"rows"`
	Joined       int           `yaml:"joined" json:"joined"`
	MemoryBefore int64         `yaml:"memory_before,omitempty" json:"memory_before,omitempty"`
	MemoryAfter  int64         `yaml:"memory_after,omitempty" json:"memory_after,omitempty"`
	Output       string        `yaml:"output,omitempty" json:"output,omitempty"`
	URI          string        `yaml:"uri,omitempty" json:"uri,omitempty"`
	Duration     time.Duration `yaml:"duration,omitempty" json:"duration,omitempty"`
	Error        string        `yaml:"error,omitempty" json:"error,omitempty"`
}

// StatusCallback receives a snapshot of the run after every change.
type StatusCallback func(status *Status)

// Options control which chunks are processed and how.
type Options struct {
	OutputDir string
	// SourcePath and ChunkSize identify the input for resume compatibility.
	SourcePath string
	ChunkSize  int
	// Chunks restricts the run to these chunk indices. Empty means all.
	Chunks          []int
	Parallelism     int
	ContinueOnError bool
	Resume          bool
	// StatePath, when set, persists per-chunk progress.
	StatePath string
}

// Pipeline wires the stages of a run. Reader, Catalog and Calculator are
// required; Uploader and Metrics are optional.
type Pipeline struct {
	Reader     source.Reader
	Catalog    catalog.Catalog
	Calculator *derive.Calculator
	Uploader   *publish.Uploader
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Options    Options

	mu      sync.Mutex
	status  *Status
	started time.Time
	state   *state.State
}

// Status returns a snapshot of the current run.
func (p *Pipeline) Status() *Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == nil {
		return &Status{Phase: "not_started"}
	}
	return p.snapshot()
}

// State returns the run state, if any.
func (p *Pipeline) State() *state.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run processes the selected chunks and returns the final status. With
// ContinueOnError a failing chunk is recorded and the run carries on;
// otherwise the first failure stops the run. Errors reading the source always
// stop the run.
func (p *Pipeline) Run(ctx context.Context, callback StatusCallback) (*Status, error) {
	if p.Reader == nil || p.Catalog == nil || p.Calculator == nil {
		return nil, errors.New("pipeline requires a reader, a catalog and a calculator")
	}
	if p.Options.OutputDir == "" {
		return nil, errors.New("pipeline requires an output directory")
	}
	if p.Logger == nil {
		p.Logger = logging.Discard()
	}
	if err := os.MkdirAll(p.Options.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	lockPath := lock.PathFor(p.Options.OutputDir)
	if err := lock.Acquire(lockPath, p.Options.SourcePath); err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(lockPath); err != nil {
			p.Logger.Warn("releasing lock", "path", lockPath, "error", err)
		}
	}()

	st, err := p.loadState()
	if err != nil {
		return nil, err
	}

	if err := p.Reader.Open(ctx); err != nil {
		return nil, err
	}
	defer p.Reader.Close()

	total := len(p.Options.Chunks)
	if total == 0 {
		rows, err := p.Reader.Count(ctx)
		if err != nil {
			return nil, err
		}
		total = source.ChunkCount(rows, p.Options.ChunkSize)
	}

	p.mu.Lock()
	p.started = time.Now()
	p.state = st
	p.status = &Status{Phase: PhaseStarting, Overall: ProgressInfo{ChunksTotal: total}}
	p.notify(callback)
	p.status.Phase = PhaseRunning
	p.mu.Unlock()

	p.Logger.Info("run started",
		"source", p.Options.SourcePath,
		"output", p.Options.OutputDir,
		"chunks", total,
		"parallelism", max(p.Options.Parallelism, 1),
	)

	runErr := p.dispatch(ctx, callback)

	p.mu.Lock()
	switch {
	case ctx.Err() != nil:
		p.status.Phase = PhaseAborted
	case runErr != nil:
		p.status.Phase = PhaseFailed
		p.status.Errors = append(p.status.Errors, runErr.Error())
	case p.status.Overall.ChunksFailed > 0:
		p.status.Phase = PhasePartialFailure
	default:
		p.status.Phase = PhaseCompleted
	}
	p.notify(callback)
	final := p.snapshot()
	p.mu.Unlock()

	p.Logger.Info("run finished",
		"phase", final.Phase,
		"chunks_done", final.Overall.ChunksDone,
		"chunks_failed", final.Overall.ChunksFailed,
		"chunks_skipped", final.Overall.ChunksSkipped,
		"rows_read", final.Overall.RowsRead,
		"rows_joined", final.Overall.RowsJoined,
		"elapsed", final.ElapsedTime.Round(time.Millisecond),
	)
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	return final, runErr
}

// dispatch reads batches sequentially and hands them to at most Parallelism
// workers. The reader is only ever touched from this goroutine.
func (p *Pipeline) dispatch(ctx context.Context, callback StatusCallback) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.Options.Parallelism, 1))

	selected := make(map[int]bool, len(p.Options.Chunks))
	for _, c := range p.Options.Chunks {
		selected[c] = true
	}
	last := -1
	if len(selected) > 0 {
		last = slices.Max(p.Options.Chunks)
	}
	seen := make(map[int]bool, len(selected))

	var readErr error
	for batch, err := range p.Reader.Chunks(gctx) {
		if err != nil {
			if gctx.Err() == nil {
				readErr = err
			}
			break
		}
		if len(selected) > 0 && !selected[batch.Index] {
			if batch.Index > last {
				break
			}
			continue
		}
		seen[batch.Index] = true

		if p.Options.Resume && p.state != nil && p.state.IsCompleted(batch.Index) {
			p.skip(batch, callback)
			continue
		}
		g.Go(func() error {
			return p.process(gctx, batch, callback)
		})
		if gctx.Err() != nil {
			break
		}
	}
	workErr := g.Wait()

	for _, c := range p.Options.Chunks {
		if !seen[c] && readErr == nil && workErr == nil && ctx.Err() == nil {
			p.Logger.Warn("selected chunk not present in source", "chunk", c)
		}
	}

	if readErr != nil {
		return readErr
	}
	return workErr
}

func (p *Pipeline) skip(batch *source.Batch, callback StatusCallback) {
	prev := p.state.Get(batch.Index)
	p.Logger.Info("chunk already completed, skipping", "chunk", batch.Index, "output", prev.Output)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Chunks = append(p.status.Chunks, ChunkStatus{
		Index:   batch.Index,
		State:   state.StatusCompleted,
		Skipped: true,
		Rows:    prev.Rows,
		Joined:  prev.Joined,
		Output:  prev.Output,
	})
	p.status.Overall.ChunksSkipped++
	p.notify(callback)
}

func (p *Pipeline) process(ctx context.Context, batch *source.Batch, callback StatusCallback) error {
	start := time.Now()
	rows := batch.Frame.Len()
	p.setChunk(ChunkStatus{Index: batch.Index, State: state.StatusRunning, Rows: rows}, callback)
	p.record(batch.Index, state.ChunkState{Status: state.StatusRunning, Rows: rows})

	cs, err := p.processChunk(ctx, batch)
	cs.Index = batch.Index
	cs.Rows = rows
	cs.Duration = time.Since(start)

	if err != nil {
		cs.State = state.StatusFailed
		cs.Error = err.Error()
		p.setChunk(cs, callback)
		p.record(batch.Index, state.ChunkState{Status: state.StatusFailed, Rows: rows, Error: cs.Error})
		p.observe("failed", rows, 0, 0, cs.Duration)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.Logger.Error("chunk failed", "chunk", batch.Index, "rows", rows, "error", err)
		if p.Options.ContinueOnError {
			return nil
		}
		return fmt.Errorf("chunk %d: %w", batch.Index, err)
	}

	cs.State = state.StatusCompleted
	p.setChunk(cs, callback)
	p.record(batch.Index, state.ChunkState{
		Status: state.StatusCompleted,
		Rows:   rows,
		Joined: cs.Joined,
		Output: cs.Output,
	})
	p.observe("completed", rows, cs.Joined, cs.MemoryBefore-cs.MemoryAfter, cs.Duration)
	p.Logger.Info("chunk completed",
		"chunk", batch.Index,
		"rows", rows,
		"joined", cs.Joined,
		"output", cs.Output,
		"duration", cs.Duration.Round(time.Millisecond),
	)
	return nil
}

// processChunk runs the per-chunk stages. Nothing it touches is shared with
// other chunks except the catalog handle and the output directory.
func (p *Pipeline) processChunk(ctx context.Context, batch *source.Batch) (ChunkStatus, error) {
	var cs ChunkStatus

	agn, err := params.Unravel(batch.Frame)
	if err != nil {
		return cs, err
	}
	cat, err := join.Fetch(ctx, p.Catalog, agn)
	if err != nil {
		return cs, err
	}
	joined, err := join.Inner(cat, agn)
	if err != nil {
		return cs, err
	}
	cs.Joined = joined.Len()
	p.Logger.Debug("chunk joined", "chunk", batch.Index, "agn", agn.Len(), "catalog", cat.Len(), "joined", cs.Joined)

	derived, err := p.Calculator.Apply(ctx, joined)
	if err != nil {
		return cs, err
	}

	narrowed, rep := optimize.Downcast(derived)
	rep.Log(p.Logger, batch.Index)
	cs.MemoryBefore = rep.TotalBefore
	cs.MemoryAfter = rep.TotalAfter

	path, err := output.WriteCSV(p.Options.OutputDir, batch.Index, narrowed)
	if err != nil {
		return cs, err
	}
	cs.Output = path

	if p.Uploader != nil {
		uri, err := p.Uploader.Publish(ctx, path)
		if err != nil {
			return cs, fmt.Errorf("publishing %s: %w", path, err)
		}
		cs.URI = uri
	}
	return cs, nil
}

func (p *Pipeline) loadState() (*state.State, error) {
	if p.Options.StatePath == "" {
		return nil, nil
	}
	if p.Options.Resume {
		prev, err := state.Load(p.Options.StatePath)
		if err != nil {
			return nil, err
		}
		if prev != nil && prev.Compatible(p.Options.SourcePath, p.Options.ChunkSize) {
			p.Logger.Info("resuming run", "state", p.Options.StatePath, "completed", prev.Counts()[state.StatusCompleted])
			return prev, nil
		}
		if prev != nil {
			p.Logger.Warn("run state does not match source or chunk size, starting over",
				"state", p.Options.StatePath,
				"state_source", prev.SourcePath,
				"state_chunk_size", prev.ChunkSize,
			)
		}
	}
	return state.New(p.Options.SourcePath, p.Options.ChunkSize), nil
}

func (p *Pipeline) record(chunk int, cs state.ChunkState) {
	if p.state == nil {
		return
	}
	p.state.Set(chunk, cs)
	if err := p.state.Save(p.Options.StatePath); err != nil {
		p.Logger.Warn("saving run state", "path", p.Options.StatePath, "error", err)
	}
}

func (p *Pipeline) observe(status string, read, joined int, saved int64, d time.Duration) {
	if p.Metrics != nil {
		p.Metrics.ObserveChunk(status, read, joined, saved, d.Seconds())
	}
}

// setChunk replaces or appends the status of one chunk and refreshes the
// totals.
func (p *Pipeline) setChunk(cs ChunkStatus, callback StatusCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := slices.IndexFunc(p.status.Chunks, func(c ChunkStatus) bool { return c.Index == cs.Index })
	if i < 0 {
		p.status.Chunks = append(p.status.Chunks, cs)
	} else {
		p.status.Chunks[i] = cs
	}

	o := &p.status.Overall
	switch cs.State {
	case state.StatusCompleted:
		o.ChunksDone++
		o.RowsRead += int64(cs.Rows)
		o.RowsJoined += int64(cs.Joined)
		o.MemoryBefore += cs.MemoryBefore
		o.MemoryAfter += cs.MemoryAfter
	case state.StatusFailed:
		o.ChunksFailed++
		o.RowsRead += int64(cs.Rows)
		p.status.Errors = append(p.status.Errors, fmt.Sprintf("chunk %d: %s", cs.Index, cs.Error))
	}
	p.notify(callback)
}

// notify must be called with p.mu held; the callback runs under the lock so
// snapshots are delivered in order.
func (p *Pipeline) notify(callback StatusCallback) {
	o := &p.status.Overall
	if o.ChunksTotal > 0 {
		finished := o.ChunksDone + o.ChunksFailed + o.ChunksSkipped
		o.PercentComplete = min(100*float64(finished)/float64(o.ChunksTotal), 100)
	}
	p.status.ElapsedTime = time.Since(p.started)
	if callback != nil {
		callback(p.snapshot())
	}
}

func (p *Pipeline) snapshot() *Status {
	s := *p.status
	s.Chunks = slices.Clone(p.status.Chunks)
	s.Errors = slices.Clone(p.status.Errors)
	return &s
}
