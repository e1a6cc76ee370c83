package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"xeterbot/internal/domain"
)

const (
	defaultBuffer         = 100
	defaultPublishTimeout = 10 * time.Second
)

// InMemoryBus carries inbound events from channel adapters to the dispatcher
// over a buffered Go channel, and maps channel names to their responders.
type InMemoryBus struct {
	inbound        chan domain.InboundEvent
	closing        chan struct{}
	closeOnce      sync.Once
	sendMu         sync.RWMutex // held for reading while sending, for writing while closing inbound
	publishTimeout time.Duration

	respMu     sync.RWMutex
	responders map[string]domain.Responder

	dropped atomic.Int64
	logger  *slog.Logger
}

// New creates a bus holding up to bufferSize undelivered events.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryBus{
		inbound:        make(chan domain.InboundEvent, bufferSize),
		closing:        make(chan struct{}),
		publishTimeout: defaultPublishTimeout,
		responders:     make(map[string]domain.Responder),
		logger:         logger,
	}
}

// Publish queues ev for the dispatcher. When the buffer is full it waits up
// to the publish timeout, then drops the event. Events published after Close
// are dropped.
func (b *InMemoryBus) Publish(ev domain.InboundEvent) {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()

	select {
	case <-b.closing:
		b.drop(ev, "bus closed")
		return
	default:
	}

	select {
	case b.inbound <- ev:
		return
	default:
	}

	b.logger.Warn("inbound bus full, waiting", "channel", ev.Channel, "author", ev.AuthorID)
	timer := time.NewTimer(b.publishTimeout)
	defer timer.Stop()
	select {
	case b.inbound <- ev:
	case <-b.closing:
		b.drop(ev, "bus closed")
	case <-timer.C:
		b.drop(ev, "bus full")
	}
}

func (b *InMemoryBus) drop(ev domain.InboundEvent, reason string) {
	b.dropped.Add(1)
	b.logger.Warn("event dropped", "reason", reason, "channel", ev.Channel, "author", ev.AuthorID)
}

// Dropped reports how many events were never delivered.
func (b *InMemoryBus) Dropped() int64 { return b.dropped.Load() }

func (b *InMemoryBus) Subscribe() <-chan domain.InboundEvent {
	return b.inbound
}

// Attach registers the responder used to answer events from channelName.
func (b *InMemoryBus) Attach(channelName string, r domain.Responder) {
	b.respMu.Lock()
	defer b.respMu.Unlock()
	b.responders[channelName] = r
}

func (b *InMemoryBus) Responder(channelName string) (domain.Responder, bool) {
	b.respMu.RLock()
	r, ok := b.responders[channelName]
	b.respMu.RUnlock()
	if !ok {
		b.logger.Warn("no responder registered for channel", "channel", channelName)
	}
	return r, ok
}

// Close stops accepting events and closes the subscription channel once the
// publishers in flight have returned. Already queued events stay readable.
func (b *InMemoryBus) Close() {
	b.closeOnce.Do(func() {
		close(b.closing)
		b.sendMu.Lock()
		close(b.inbound)
		b.sendMu.Unlock()
	})
}
