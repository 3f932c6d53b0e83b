// Package tui renders live research progress for a single job in the
// terminal. It subscribes to the progress bus and redraws on every event;
// quitting detaches the watcher without cancelling the job.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"prospect/internal/core"
	"prospect/internal/progress"
)

// phaseOrder is the pipeline's phase sequence as rendered top to bottom.
var phaseOrder = []core.JobState{
	core.StateDiscovering,
	core.StateSelecting,
	core.StateFetching,
	core.StateAggregating,
}

type phaseStatus struct {
	done    int
	total   int
	message string
}

type eventMsg progress.Event

type streamClosedMsg struct{}

type model struct {
	jobID   string
	company string
	events  <-chan progress.Event

	state    core.JobState
	phases   map[core.JobState]*phaseStatus
	warnings []string
	errKind  core.ErrorKind
	errMsg   string
	width    int
	closed   bool
	quitting bool
}

func newModel(jobID, company string, events <-chan progress.Event) model {
	return model{
		jobID:   jobID,
		company: company,
		events:  events,
		state:   core.StateQueued,
		phases:  make(map[core.JobState]*phaseStatus),
	}
}

// waitForEvent blocks on the bus subscription and hands the next event to
// Update. The channel closing after the terminal event ends the stream.
func waitForEvent(events <-chan progress.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case eventMsg:
		m = m.apply(progress.Event(msg))
		if m.closed {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		m.closed = true
		return m, tea.Quit
	}

	return m, nil
}

func (m model) apply(ev progress.Event) model {
	switch ev.Type {
	case progress.EventStateChanged:
		m.state = ev.State
		if ev.State == core.StateFailed {
			m.errKind = ev.ErrorKind
			m.errMsg = ev.Message
		}
		if ev.State.IsTerminal() {
			m.closed = true
		}

	case progress.EventPhaseUpdate:
		st := m.phaseFor(core.JobState(ev.Phase))
		st.done = ev.Done
		st.total = ev.Total
		st.message = ev.Message

	case progress.EventWarning:
		m.warnings = append(m.warnings, ev.Message)
	}
	return m
}

func (m *model) phaseFor(phase core.JobState) *phaseStatus {
	st, ok := m.phases[phase]
	if !ok {
		st = &phaseStatus{}
		m.phases[phase] = st
	}
	return st
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	outerStyle   = lipgloss.NewStyle().Margin(1, 2)
	phasePending = dimStyle.Render("·")
	phaseDone    = okStyle.Render("✓")
	phaseActive  = activeStyle.Render("▸")
)

func (m model) View() string {
	if m.quitting {
		return fmt.Sprintf("detached from job %s (still running)\n", m.jobID)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("researching %s", m.company)))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  job %s", m.jobID)))
	b.WriteString("\n\n")

	reached := phaseIndex(m.state)
	for i, phase := range phaseOrder {
		marker := phasePending
		label := dimStyle.Render(string(phase))
		switch {
		case m.state == core.StateCompleted || i < reached:
			marker = phaseDone
			label = string(phase)
		case i == reached && !m.state.IsTerminal():
			marker = phaseActive
			label = activeStyle.Render(string(phase))
		}
		b.WriteString(fmt.Sprintf("  %s %s", marker, label))
		if st, ok := m.phases[phase]; ok && st.total > 0 {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  %d/%d", st.done, st.total)))
		}
		b.WriteString("\n")
	}

	for _, w := range m.warnings {
		b.WriteString(warnStyle.Render(fmt.Sprintf("  ! %s", w)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch m.state {
	case core.StateCompleted:
		b.WriteString(okStyle.Render("research complete"))
	case core.StateFailed:
		b.WriteString(failStyle.Render(fmt.Sprintf("failed (%s): %s", m.errKind, m.errMsg)))
	case core.StateCancelled:
		b.WriteString(dimStyle.Render("cancelled"))
	default:
		b.WriteString(dimStyle.Render("press q to detach"))
	}
	b.WriteString("\n")

	return outerStyle.Render(b.String())
}

// phaseIndex maps the job state to its position in the rendered phase list.
// Terminal states count as past the last phase so everything shows done.
func phaseIndex(state core.JobState) int {
	for i, p := range phaseOrder {
		if p == state {
			return i
		}
	}
	if state.IsTerminal() {
		return len(phaseOrder)
	}
	return -1
}

// Watch runs the progress watcher until the job reaches a terminal state or
// the user detaches. The subscription channel should come from the progress
// bus or the SSE client.
func Watch(ctx context.Context, jobID, company string, events <-chan progress.Event) error {
	p := tea.NewProgram(newModel(jobID, company, events), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
