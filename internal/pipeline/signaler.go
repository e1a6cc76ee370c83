package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"xeterbot/internal/domain"
)

// DefaultTypingInterval is how often the typing indicator is refreshed.
const DefaultTypingInterval = 8 * time.Second

// Signaler keeps a chat's "typing" indicator alive while a job runs.
type Signaler struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartSignaler sends one indicator right away and then one every interval
// until Stop is called or ctx ends. Send errors are logged and dropped.
func StartSignaler(ctx context.Context, typer domain.Typer, chatID string, interval time.Duration, logger *slog.Logger) *Signaler {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Signaler{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)

		send := func() {
			if err := typer.SendTyping(ctx, chatID); err != nil && ctx.Err() == nil {
				logger.Debug("typing indicator failed", "chat_id", chatID, "err", err)
			}
		}

		send()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				send()
			}
		}
	}()
	return s
}

// Stop cancels the signaler and waits for its goroutine. Idempotent.
func (s *Signaler) Stop() {
	s.once.Do(s.cancel)
	<-s.done
}
