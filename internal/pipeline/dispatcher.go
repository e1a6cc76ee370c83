package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"xeterbot/internal/domain"
)

const defaultConcurrency = 5

// DispatcherConfig holds the dependencies of a Dispatcher.
type DispatcherConfig struct {
	Pipeline    *Pipeline
	Bus         domain.MessageBus
	Logger      *slog.Logger
	Concurrency int           // max jobs in flight (default 5)
	JobTimeout  time.Duration // 0 = no whole-job deadline
}

// Dispatcher consumes inbound events and hands each to the pipeline on its
// own goroutine, with bounded concurrency.
type Dispatcher struct {
	pipeline    *Pipeline
	bus         domain.MessageBus
	logger      *slog.Logger
	concurrency int
	jobTimeout  time.Duration
	wg          sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		pipeline:    cfg.Pipeline,
		bus:         cfg.Bus,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		jobTimeout:  cfg.JobTimeout,
	}
}

// Run blocks until ctx is cancelled or the bus is closed, then waits for
// in-flight events to finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started", "concurrency", d.concurrency)
	defer d.wg.Wait()

	sem := make(chan struct{}, d.concurrency)
	inbound := d.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return nil
		case ev, ok := <-inbound:
			if !ok {
				d.logger.Info("inbound channel closed, dispatcher stopping")
				return nil
			}
			r, ok := d.bus.Responder(ev.Channel)
			if !ok {
				continue
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			d.wg.Add(1)
			go func(ev domain.InboundEvent) {
				defer d.wg.Done()
				defer func() { <-sem }()
				d.handle(ctx, ev, r)
			}(ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev domain.InboundEvent, r domain.Responder) {
	if d.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.jobTimeout)
		defer cancel()
	}
	d.pipeline.Handle(ctx, ev, r)
}
