package pipeline

import (
	"context"
	"sync"
	"time"
)

const (
	defaultJobBurst      = 10
	defaultJobsPerMinute = 30.0
)

// JobThrottle is a token bucket gating how fast jobs may start across all
// chats. A nil *JobThrottle never blocks.
type JobThrottle struct {
	mu       sync.Mutex
	tokens   float64
	burst    float64
	perSec   float64
	lastFill time.Time
	now      func() time.Time
}

func NewJobThrottle(burst int, perMinute float64) *JobThrottle {
	if burst <= 0 {
		burst = defaultJobBurst
	}
	if perMinute <= 0 {
		perMinute = defaultJobsPerMinute
	}
	return &JobThrottle{
		tokens:   float64(burst),
		burst:    float64(burst),
		perSec:   perMinute / 60.0,
		lastFill: time.Now(),
		now:      time.Now,
	}
}

// take refills the bucket and either consumes a token or reports how long
// until one is available.
func (t *JobThrottle) take() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.tokens = min(t.burst, t.tokens+now.Sub(t.lastFill).Seconds()*t.perSec)
	t.lastFill = now

	if t.tokens >= 1 {
		t.tokens--
		return 0, true
	}
	return time.Duration((1 - t.tokens) / t.perSec * float64(time.Second)), false
}

// Wait blocks until a job may start or ctx ends.
func (t *JobThrottle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	for {
		wait, ok := t.take()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
