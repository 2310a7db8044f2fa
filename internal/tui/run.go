// Package tui renders a live terminal view of a pipeline run.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/agnvar/agnvar/internal/pipeline"
	"github.com/agnvar/agnvar/internal/state"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.DoubleBorder()).BorderBottom(true).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// maxChunkLines bounds the chunk list to the most recent entries.
const maxChunkLines = 12

// StatusMsg carries a progress snapshot into the view.
type StatusMsg struct{ Status *pipeline.Status }

// DoneMsg reports the end of the run.
type DoneMsg struct {
	Status *pipeline.Status
	Err    error
}

// RunModel is the bubbletea model of a pipeline run.
type RunModel struct {
	status    *pipeline.Status
	spinner   spinner.Model
	bar       progress.Model
	cancel    context.CancelFunc
	err       error
	finished  bool
	cancelled bool
	done      bool
	width     int
}

// NewRunModel creates a run view. cancel is invoked when the user aborts.
func NewRunModel(cancel context.CancelFunc) RunModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = highlightStyle
	return RunModel{
		status:  &pipeline.Status{Phase: pipeline.PhaseStarting},
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(60)),
		cancel:  cancel,
		width:   100,
	}
}

func (m RunModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 10)
		return m, nil

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StatusMsg:
		m.SetStatus(msg.Status)
		return m, nil

	case DoneMsg:
		if msg.Status != nil {
			m.status = msg.Status
		}
		m.err = msg.Err
		m.finished = true
		if m.cancelled {
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.finished {
				m.done = true
				return m, tea.Quit
			}
			if !m.cancelled {
				m.cancelled = true
				if m.cancel != nil {
					m.cancel()
				}
			}
		case "enter":
			if m.finished {
				m.done = true
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m RunModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("agnvar run"))
	b.WriteString("\n\n")

	st := m.status
	phaseStyle := dimStyle
	switch st.Phase {
	case pipeline.PhaseRunning:
		phaseStyle = highlightStyle
	case pipeline.PhaseCompleted:
		phaseStyle = successStyle
	case pipeline.PhaseFailed, pipeline.PhasePartialFailure:
		phaseStyle = errStyle
	case pipeline.PhaseAborted:
		phaseStyle = warnStyle
	}
	phase := phaseStyle.Render(st.Phase)
	if !m.finished {
		phase = m.spinner.View() + " " + phase
	}
	b.WriteString(fmt.Sprintf("  Phase: %s\n", phase))

	o := st.Overall
	if o.ChunksTotal > 0 {
		b.WriteString(fmt.Sprintf("  %s\n", m.bar.ViewAs(o.PercentComplete/100)))
		b.WriteString(fmt.Sprintf("  %d / %d chunks", o.ChunksDone+o.ChunksSkipped, o.ChunksTotal))
		if o.ChunksFailed > 0 {
			b.WriteString(errStyle.Render(fmt.Sprintf("  %d failed", o.ChunksFailed)))
		}
		b.WriteString("\n")
	}
	if o.RowsRead > 0 {
		b.WriteString(fmt.Sprintf("  Rows: %s read, %s joined\n", humanize.Comma(o.RowsRead), humanize.Comma(o.RowsJoined)))
	}
	if o.MemoryBefore > 0 {
		b.WriteString(fmt.Sprintf("  Memory: %s -> %s\n", humanize.IBytes(uint64(o.MemoryBefore)), humanize.IBytes(uint64(o.MemoryAfter))))
	}
	if st.ElapsedTime > 0 {
		b.WriteString(fmt.Sprintf("  Elapsed: %s\n", st.ElapsedTime.Round(time.Second)))
	}

	if len(st.Chunks) > 0 {
		b.WriteString("\n")
		b.WriteString(highlightStyle.Render("  Chunks:"))
		b.WriteString("\n")
		chunks := st.Chunks
		if len(chunks) > maxChunkLines {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  ... %d earlier", len(chunks)-maxChunkLines)))
			b.WriteString("\n")
			chunks = chunks[len(chunks)-maxChunkLines:]
		}
		for _, c := range chunks {
			b.WriteString(chunkLine(c) + "\n")
		}
	}

	if len(st.Errors) > 0 {
		b.WriteString("\n")
		b.WriteString(errStyle.Render("  Errors:"))
		b.WriteString("\n")
		for _, e := range st.Errors {
			b.WriteString(fmt.Sprintf("  - %s\n", e))
		}
	}

	b.WriteString("\n")
	switch {
	case m.finished && m.err == nil && st.Phase == pipeline.PhaseCompleted:
		b.WriteString(successStyle.Render("  Run completed successfully!"))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  Press enter to exit"))
	case m.finished:
		if m.err != nil {
			b.WriteString(errStyle.Render("  " + m.err.Error()))
			b.WriteString("\n")
		}
		b.WriteString(dimStyle.Render("  Press enter to exit"))
	case m.cancelled:
		b.WriteString(warnStyle.Render("  Cancelling, waiting for running chunks..."))
	default:
		b.WriteString(dimStyle.Render("  q: cancel run"))
	}
	return b.String()
}

func chunkLine(c pipeline.ChunkStatus) string {
	var icon string
	switch {
	case c.Skipped:
		icon = dimStyle.Render("--")
	case c.State == state.StatusCompleted:
		icon = successStyle.Render("OK")
	case c.State == state.StatusRunning:
		icon = highlightStyle.Render(">>")
	case c.State == state.StatusFailed:
		icon = errStyle.Render("XX")
	default:
		icon = dimStyle.Render("..")
	}
	line := fmt.Sprintf("  %s chunk %-6d", icon, c.Index)
	switch {
	case c.Skipped:
		line += dimStyle.Render(" skipped")
	case c.State == state.StatusCompleted:
		line += fmt.Sprintf(" %8s rows  %s", humanize.Comma(int64(c.Joined)), c.Output)
	case c.State == state.StatusFailed:
		line += " " + errStyle.Render(c.Error)
	}
	return line
}

// Done returns true when the model is finished.
func (m RunModel) Done() bool {
	return m.done
}

// Cancelled returns true if the user aborted the run.
func (m RunModel) Cancelled() bool {
	return m.cancelled
}

// SetStatus updates the run status for display.
func (m *RunModel) SetStatus(status *pipeline.Status) {
	if status != nil {
		m.status = status
	}
}

// RunFunc executes a run, reporting progress through callback.
type RunFunc func(ctx context.Context, callback pipeline.StatusCallback) (*pipeline.Status, error)

// Run executes run while showing its progress in the terminal. It returns
// once both the run and the view have ended.
func Run(ctx context.Context, run RunFunc, options ...tea.ProgramOption) (*pipeline.Status, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if len(options) == 0 {
		options = []tea.ProgramOption{tea.WithAltScreen()}
	}
	p := tea.NewProgram(NewRunModel(cancel), options...)

	var (
		status *pipeline.Status
		runErr error
	)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		status, runErr = run(ctx, func(s *pipeline.Status) {
			p.Send(StatusMsg{Status: s})
		})
		p.Send(DoneMsg{Status: status, Err: runErr})
	}()

	_, err := p.Run()
	cancel()
	<-finished
	if err != nil {
		return status, fmt.Errorf("running progress view: %w", err)
	}
	return status, runErr
}
