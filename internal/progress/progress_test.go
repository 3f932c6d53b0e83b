package progress

import (
	"context"
	"testing"
	"time"

	"prospect/internal/core"
)

func drain(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	events := make([]Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(events) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(events), n)
		}
	}
	return events
}

func TestBusOrderAndSequence(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(context.Background(), "job-1")

	bus.StateChanged("job-1", core.StateDiscovering, "crawling")
	bus.PhaseUpdate("job-1", "fetching", 3, 12, "")
	bus.PhaseUpdate("job-1", "fetching", 7, 12, "")
	bus.StateChanged("job-1", core.StateCompleted, "done")

	events := drain(t, ch, 4)
	for i, ev := range events {
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d: seq = %d, want %d", i, ev.Seq, i+1)
		}
		if ev.JobID != "job-1" {
			t.Errorf("event %d: job id = %q", i, ev.JobID)
		}
	}
	if events[1].Done != 3 || events[1].Total != 12 {
		t.Errorf("phase update counts = %d/%d, want 3/12", events[1].Done, events[1].Total)
	}
	if !events[3].Terminal() {
		t.Error("last event should be terminal")
	}

	// Channel must be closed after the terminal event.
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after terminal event")
	}
}

func TestBusTerminalExactlyOnce(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(context.Background(), "job-1")

	bus.StateChanged("job-1", core.StateCancelled, "cancel requested")
	bus.StateChanged("job-1", core.StateCompleted, "should be dropped")
	bus.PhaseUpdate("job-1", "fetching", 1, 2, "should be dropped")

	events := drain(t, ch, 1)
	if events[0].State != core.StateCancelled {
		t.Errorf("state = %q, want cancelled", events[0].State)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed, no events after terminal")
	}
}

func TestBusLateSubscriberGetsTerminalReplay(t *testing.T) {
	bus := NewBus()
	bus.Failed("job-1", core.KindHomepageUnreachable, "no response")

	ch := bus.Subscribe(context.Background(), "job-1")
	events := drain(t, ch, 1)
	if events[0].State != core.StateFailed {
		t.Errorf("state = %q, want failed", events[0].State)
	}
	if events[0].ErrorKind != core.KindHomepageUnreachable {
		t.Errorf("error kind = %q, want %q", events[0].ErrorKind, core.KindHomepageUnreachable)
	}
	if _, ok := <-ch; ok {
		t.Error("replay channel should close after terminal event")
	}
}

func TestBusSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	bus := NewBus()
	_ = bus.Subscribe(context.Background(), "job-1") // never read

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+50; i++ {
			bus.PhaseUpdate("job-1", "fetching", i, subscriberBuffer+50, "")
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestBusSubscriberDetachOnContextCancel(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx, "job-1")
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // closed by unsubscribe
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancel")
		}
	}
}

func TestBusForgetAllowsNewRun(t *testing.T) {
	bus := NewBus()
	bus.StateChanged("job-1", core.StateCompleted, "first run")
	bus.Forget("job-1")

	ch := bus.Subscribe(context.Background(), "job-1")
	bus.StateChanged("job-1", core.StateDiscovering, "second run")

	events := drain(t, ch, 1)
	if events[0].State != core.StateDiscovering {
		t.Errorf("state = %q, want discovering", events[0].State)
	}
	if events[0].Seq != 1 {
		t.Errorf("seq = %d, want 1 after Forget", events[0].Seq)
	}
}

func TestCancelRegistry(t *testing.T) {
	reg := NewCancelRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	reg.Register("job-1", cancel)

	if reg.Cancel("unknown") {
		t.Error("cancel of unknown job should report false")
	}
	if !reg.Cancel("job-1") {
		t.Error("cancel of registered job should report true")
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}

	reg.Remove("job-1")
	if reg.Cancel("job-1") {
		t.Error("cancel after Remove should report false")
	}
}
