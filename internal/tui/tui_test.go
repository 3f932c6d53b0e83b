package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"prospect/internal/core"
	"prospect/internal/progress"
)

func applyEvent(t *testing.T, m model, ev progress.Event) model {
	t.Helper()
	next, _ := m.Update(eventMsg(ev))
	return next.(model)
}

func TestModelTracksPhaseProgress(t *testing.T) {
	m := newModel("j1", "Tracker Co", nil)

	m = applyEvent(t, m, progress.Event{Type: progress.EventStateChanged, State: core.StateFetching})
	m = applyEvent(t, m, progress.Event{
		Type: progress.EventPhaseUpdate, Phase: string(core.StateFetching), Done: 3, Total: 8,
	})

	if m.state != core.StateFetching {
		t.Errorf("state = %s, want fetching", m.state)
	}
	view := m.View()
	if !strings.Contains(view, "3/8") {
		t.Errorf("view missing fetch counter:\n%s", view)
	}
	if !strings.Contains(view, "Tracker Co") {
		t.Errorf("view missing company name:\n%s", view)
	}
}

func TestModelRendersWarnings(t *testing.T) {
	m := newModel("j1", "Tracker Co", nil)
	m = applyEvent(t, m, progress.Event{
		Type: progress.EventWarning, Phase: string(core.StateDiscovering),
		Message: "robots.txt disallows crawling, using homepage links only",
	})

	if !strings.Contains(m.View(), "robots.txt disallows") {
		t.Errorf("warning not rendered:\n%s", m.View())
	}
}

func TestModelQuitsOnTerminalEvent(t *testing.T) {
	m := newModel("j1", "Tracker Co", nil)
	next, cmd := m.Update(eventMsg(progress.Event{
		Type: progress.EventStateChanged, State: core.StateCompleted,
	}))
	m = next.(model)

	if cmd == nil {
		t.Fatal("expected a quit command after the terminal event")
	}
	if !strings.Contains(m.View(), "research complete") {
		t.Errorf("completed view:\n%s", m.View())
	}
}

func TestModelShowsFailureKind(t *testing.T) {
	m := newModel("j1", "Tracker Co", nil)
	m = applyEvent(t, m, progress.Event{
		Type: progress.EventStateChanged, State: core.StateFailed,
		ErrorKind: core.KindHomepageUnreachable, Message: "could not reach the homepage",
	})

	view := m.View()
	if !strings.Contains(view, string(core.KindHomepageUnreachable)) {
		t.Errorf("failure kind not rendered:\n%s", view)
	}
}

func TestModelDetachesOnQuitKey(t *testing.T) {
	m := newModel("j1", "Tracker Co", nil)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m = next.(model)

	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if !strings.Contains(m.View(), "detached") {
		t.Errorf("detach view:\n%s", m.View())
	}
}

func TestPhaseIndex(t *testing.T) {
	if got := phaseIndex(core.StateDiscovering); got != 0 {
		t.Errorf("discovering index = %d", got)
	}
	if got := phaseIndex(core.StateAggregating); got != 3 {
		t.Errorf("aggregating index = %d", got)
	}
	if got := phaseIndex(core.StateCompleted); got != len(phaseOrder) {
		t.Errorf("completed index = %d", got)
	}
	if got := phaseIndex(core.StateQueued); got != -1 {
		t.Errorf("queued index = %d", got)
	}
}
