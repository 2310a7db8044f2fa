package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/agnvar/agnvar/internal/pipeline"
	"github.com/agnvar/agnvar/internal/state"
)

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestNewRunModel(t *testing.T) {
	m := NewRunModel(nil)
	if m.Done() {
		t.Error("should not be done initially")
	}
	if m.Cancelled() {
		t.Error("should not be cancelled initially")
	}
	if !strings.Contains(m.View(), pipeline.PhaseStarting) {
		t.Error("view should show the starting phase")
	}
}

func TestRunModel_ProgressDisplay(t *testing.T) {
	m := NewRunModel(nil)
	result, _ := m.Update(StatusMsg{Status: &pipeline.Status{
		Phase: pipeline.PhaseRunning,
		Overall: pipeline.ProgressInfo{
			ChunksDone:      1,
			ChunksTotal:     4,
			RowsRead:        1500000,
			RowsJoined:      1200000,
			MemoryBefore:    64 << 20,
			MemoryAfter:     20 << 20,
			PercentComplete: 25,
		},
		Chunks: []pipeline.ChunkStatus{
			{Index: 0, State: state.StatusCompleted, Joined: 1200000, Output: "joined_0.csv"},
			{Index: 1, State: state.StatusRunning},
			{Index: 2, State: state.StatusFailed, Error: "catalog timeout"},
		},
	}})
	v := result.(RunModel).View()

	for _, want := range []string{"running", "1 / 4 chunks", "1,500,000", "64 MiB", "joined_0.csv", "catalog timeout", "q: cancel"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestRunModel_TruncatesChunkList(t *testing.T) {
	chunks := make([]pipeline.ChunkStatus, maxChunkLines+3)
	for i := range chunks {
		chunks[i] = pipeline.ChunkStatus{Index: i, State: state.StatusCompleted}
	}
	m := NewRunModel(nil)
	m.SetStatus(&pipeline.Status{Phase: pipeline.PhaseRunning, Chunks: chunks})

	v := m.View()
	if !strings.Contains(v, "3 earlier") {
		t.Error("view should summarise hidden chunks")
	}
	if strings.Contains(v, "chunk 0 ") {
		t.Error("oldest chunk should be hidden")
	}
}

func TestRunModel_CancelWaitsForRun(t *testing.T) {
	cancelled := false
	m := NewRunModel(func() { cancelled = true })

	result, cmd := m.Update(key('q'))
	rm := result.(RunModel)
	if !cancelled || !rm.Cancelled() {
		t.Fatal("q should cancel the run")
	}
	if cmd != nil || rm.Done() {
		t.Error("view should wait for the run to stop")
	}
	if !strings.Contains(rm.View(), "Cancelling") {
		t.Error("view should show cancellation")
	}

	result, cmd = rm.Update(DoneMsg{Status: &pipeline.Status{Phase: pipeline.PhaseAborted}, Err: errors.New("context canceled")})
	rm = result.(RunModel)
	if !rm.Done() || cmd == nil {
		t.Error("done after cancel should quit")
	}
}

func TestRunModel_CompletedEnter(t *testing.T) {
	m := NewRunModel(nil)
	result, _ := m.Update(DoneMsg{Status: &pipeline.Status{Phase: pipeline.PhaseCompleted}})
	rm := result.(RunModel)
	if rm.Done() {
		t.Fatal("completed run should wait for enter")
	}
	if !strings.Contains(rm.View(), "completed successfully") {
		t.Error("view should report success")
	}

	result, _ = rm.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !result.(RunModel).Done() {
		t.Error("enter on completed should finish")
	}
}

func TestRunModel_FailedShowsError(t *testing.T) {
	m := NewRunModel(nil)
	result, _ := m.Update(DoneMsg{
		Status: &pipeline.Status{Phase: pipeline.PhaseFailed, Errors: []string{"chunk 3: join: duplicate galaxy_id 7"}},
		Err:    errors.New("1 chunk failed"),
	})
	v := result.(RunModel).View()
	for _, want := range []string{"failed", "duplicate galaxy_id 7", "1 chunk failed", "Press enter"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestRunModel_EnterIgnoredWhileRunning(t *testing.T) {
	m := NewRunModel(nil)
	result, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if result.(RunModel).Done() {
		t.Error("enter should not end a running view")
	}
}
