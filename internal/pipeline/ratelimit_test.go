package pipeline

import (
	"context"
	"testing"
	"time"
)

func TestJobThrottle_ImmediateBurst(t *testing.T) {
	th := NewJobThrottle(5, 60.0)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := th.Wait(ctx); err != nil {
			t.Fatalf("burst token %d failed: %v", i, err)
		}
	}
}

func TestJobThrottle_WaitsAfterBurst(t *testing.T) {
	th := NewJobThrottle(1, 600.0) // 1 burst, 10/sec refill

	ctx := context.Background()
	if err := th.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := th.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected some wait time, got %v", elapsed)
	}
}

func TestJobThrottle_CancelledContext(t *testing.T) {
	th := NewJobThrottle(1, 1.0)

	ctx, cancel := context.WithCancel(context.Background())
	if err := th.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	cancel()
	if err := th.Wait(ctx); err == nil {
		t.Fatal("expected context cancelled error")
	}
}

func TestJobThrottle_Defaults(t *testing.T) {
	th := NewJobThrottle(0, 0)
	if th.burst != defaultJobBurst {
		t.Fatalf("expected default burst=%d, got %v", defaultJobBurst, th.burst)
	}
	if th.perSec != defaultJobsPerMinute/60.0 {
		t.Fatalf("unexpected default rate %v", th.perSec)
	}
}

func TestJobThrottle_RefillIsCapped(t *testing.T) {
	th := NewJobThrottle(2, 60.0)
	base := time.Now()
	th.now = func() time.Time { return base }
	th.lastFill = base

	th.take()
	th.take()
	if _, ok := th.take(); ok {
		t.Fatal("bucket should be empty")
	}

	// An hour later the bucket holds at most burst tokens.
	th.now = func() time.Time { return base.Add(time.Hour) }
	for i := 0; i < 2; i++ {
		if _, ok := th.take(); !ok {
			t.Fatalf("token %d should be available after refill", i)
		}
	}
	if _, ok := th.take(); ok {
		t.Fatal("refill must not exceed burst")
	}
}

func TestJobThrottle_NilNeverBlocks(t *testing.T) {
	var th *JobThrottle
	if err := th.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}
