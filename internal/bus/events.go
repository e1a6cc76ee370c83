package bus

import (
	"log/slog"
	"sync"
	"time"

	"xeterbot/internal/domain"
)

// EventType names a pipeline lifecycle event.
type EventType string

const (
	EventClassified  EventType = "event.classified"
	EventJobStarted  EventType = "job.started"
	EventJobFinished EventType = "job.finished"

	// AnyEvent subscribes to every type.
	AnyEvent EventType = "*"
)

// JobEvent is a pipeline lifecycle notification.
type JobEvent struct {
	Type      EventType
	Channel   string
	Action    string           // EventClassified only: ignore | help | job
	Job       domain.JobRecord // ID and Preset from EventJobStarted on, the rest on EventJobFinished
	Timestamp time.Time
}

// EventHandler is a callback for events.
type EventHandler func(JobEvent)

type subscription struct {
	id      uint64
	typ     EventType
	handler EventHandler
}

// EventBus fans pipeline lifecycle events out to observers (metrics, history).
// Handlers run synchronously on the emitting goroutine, in subscription order.
type EventBus struct {
	mu     sync.Mutex
	subs   []subscription // replaced, never mutated in place
	nextID uint64
	logger *slog.Logger
}

func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{logger: logger}
}

// On registers handler for typ (or AnyEvent) and returns a func that removes
// it again. Calling the returned func more than once is harmless.
func (eb *EventBus) On(typ EventType, handler EventHandler) (off func()) {
	eb.mu.Lock()
	eb.nextID++
	id := eb.nextID
	subs := make([]subscription, len(eb.subs), len(eb.subs)+1)
	copy(subs, eb.subs)
	eb.subs = append(subs, subscription{id: id, typ: typ, handler: handler})
	eb.mu.Unlock()

	return func() { eb.remove(id) }
}

func (eb *EventBus) remove(id uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	subs := make([]subscription, 0, len(eb.subs))
	for _, s := range eb.subs {
		if s.id != id {
			subs = append(subs, s)
		}
	}
	eb.subs = subs
}

func (eb *EventBus) snapshot() []subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return eb.subs
}

// Emit delivers event to every matching handler. A panicking handler is
// logged and skipped. A nil EventBus drops everything.
func (eb *EventBus) Emit(event JobEvent) {
	if eb == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, s := range eb.snapshot() {
		if s.typ == event.Type || s.typ == AnyEvent {
			eb.deliver(s, event)
		}
	}
}

func (eb *EventBus) deliver(s subscription, event JobEvent) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "event", event.Type, "subscription", s.id, "panic", r)
		}
	}()
	s.handler(event)
}
