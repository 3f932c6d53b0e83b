// Package progress carries per-job research events from the pipeline to any
// number of listeners (CLI watcher, SSE handlers, tests). Delivery is
// best-effort: a slow subscriber loses events rather than stalling the
// pipeline. Per job, events are published in order with a monotonically
// increasing sequence number, and the terminal event is published exactly
// once.
package progress

import (
	"context"
	"sync"
	"time"

	"prospect/internal/core"
)

// EventType discriminates progress events.
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventPhaseUpdate  EventType = "phase_update"
	EventWarning      EventType = "warning"
)

// Event is one progress notification for a research job.
type Event struct {
	JobID     string         `json:"job_id"`
	Seq       uint64         `json:"seq"`
	Type      EventType      `json:"type"`
	State     core.JobState  `json:"state,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Message   string         `json:"message,omitempty"`
	Done      int            `json:"done,omitempty"`
	Total     int            `json:"total,omitempty"`
	ErrorKind core.ErrorKind `json:"error_kind,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Terminal reports whether this event closes the job's stream.
func (e Event) Terminal() bool {
	return e.Type == EventStateChanged && e.State.IsTerminal()
}

const subscriberBuffer = 100

// Bus fans events out to per-job subscribers.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string][]chan Event
	seq         map[string]uint64
	last        map[string]Event // terminal event, kept for late subscribers
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan Event),
		seq:         make(map[string]uint64),
		last:        make(map[string]Event),
	}
}

// Subscribe returns a channel of events for jobID. Subscribing before the
// job publishes anything is fine. If the job already finished, the terminal
// event is replayed and the channel closed immediately. The subscription
// ends when ctx is done or the job reaches a terminal state.
func (b *Bus) Subscribe(ctx context.Context, jobID string) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if terminal, done := b.last[jobID]; done {
		b.mu.Unlock()
		ch <- terminal
		close(ch)
		return ch
	}
	b.subscribers[jobID] = append(b.subscribers[jobID], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(jobID, ch)
	}()

	return ch
}

// Publish stamps the event with the job's next sequence number and fans it
// out. Events for a job that already emitted its terminal event are dropped,
// which is what makes the terminal emission exactly-once. A terminal event
// closes every subscriber channel after delivery.
func (b *Bus) Publish(jobID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, done := b.last[jobID]; done {
		return
	}

	b.seq[jobID]++
	ev.JobID = jobID
	ev.Seq = b.seq[jobID]
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	for _, ch := range b.subscribers[jobID] {
		select {
		case ch <- ev:
		default:
		}
	}

	if ev.Terminal() {
		b.last[jobID] = ev
		for _, ch := range b.subscribers[jobID] {
			close(ch)
		}
		delete(b.subscribers, jobID)
	}
}

// StateChanged publishes a state transition event.
func (b *Bus) StateChanged(jobID string, state core.JobState, message string) {
	b.Publish(jobID, Event{Type: EventStateChanged, State: state, Message: message})
}

// Failed publishes the failed terminal event with its error kind.
func (b *Bus) Failed(jobID string, kind core.ErrorKind, message string) {
	b.Publish(jobID, Event{Type: EventStateChanged, State: core.StateFailed, ErrorKind: kind, Message: message})
}

// PhaseUpdate publishes intra-phase progress, e.g. pages fetched so far.
func (b *Bus) PhaseUpdate(jobID, phase string, done, total int, message string) {
	b.Publish(jobID, Event{Type: EventPhaseUpdate, Phase: phase, Done: done, Total: total, Message: message})
}

// Warn publishes a non-fatal problem, e.g. a page that failed to fetch.
func (b *Bus) Warn(jobID, phase string, kind core.ErrorKind, message string) {
	b.Publish(jobID, Event{Type: EventWarning, Phase: phase, ErrorKind: kind, Message: message})
}

// Forget drops the retained terminal event and sequence counter for a job.
// The research engine calls this when a terminal job ages out of retention,
// after which late subscribers get no replay.
func (b *Bus) Forget(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.last, jobID)
	delete(b.seq, jobID)
}

// Close tears down every subscription, ending any blocked readers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for jobID, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, jobID)
	}
}

func (b *Bus) unsubscribe(jobID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[jobID]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
}
