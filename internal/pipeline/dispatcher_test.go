package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"xeterbot/internal/bus"
	"xeterbot/internal/domain"
)

func TestDispatcher_RoutesToChannelResponder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, appendEngine(" --obf"), nil)
	b := bus.New(10, quietLogger())
	discord, telegram := newFakeResponder(), newFakeResponder()
	b.Attach("discord", discord)
	b.Attach("telegram", telegram)

	d := NewDispatcher(DispatcherConfig{Pipeline: h.pipeline, Bus: b, Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	b.Publish(domain.InboundEvent{Channel: "telegram", Text: "!weak ```a()```"})
	b.Publish(domain.InboundEvent{Channel: "nowhere", Text: "!weak ```b()```"})
	b.Publish(domain.InboundEvent{Channel: "discord", Text: "!help"})

	select {
	case <-telegram.onReply:
	case <-time.After(5 * time.Second):
		t.Fatal("telegram reply not sent")
	}
	select {
	case <-discord.onReply:
	case <-time.After(5 * time.Second):
		t.Fatal("discord reply not sent")
	}

	cancel()
	require.NoError(t, <-done)
	b.Close()

	require.Equal(t, DefaultBanner+"\n\na() --obf", telegram.Replies()[0].FileContent)
	require.NotNil(t, discord.Replies()[0].Help)
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	eng := &fakeEngine{transform: func(ctx context.Context, req domain.TransformRequest) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return appendEngine("").transform(ctx, req)
	}}
	h := newHarness(t, eng, nil)
	b := bus.New(10, quietLogger())
	r := newFakeResponder()
	b.Attach("cli", r)

	d := NewDispatcher(DispatcherConfig{Pipeline: h.pipeline, Bus: b, Logger: quietLogger(), Concurrency: 2})
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	for range 5 {
		b.Publish(domain.InboundEvent{Channel: "cli", Text: "!weak ```x()```"})
	}
	require.Eventually(t, func() bool { return inFlight.Load() == 2 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 2, peak.Load())

	close(release)
	require.Eventually(t, func() bool { return len(r.Replies()) == 5 }, 5*time.Second, 5*time.Millisecond)

	b.Close()
	require.NoError(t, <-done)
	require.EqualValues(t, 2, peak.Load())
	requireEmptyDir(t, h.temp.Dir())
}

func TestDispatcher_JobTimeoutCancelsEngine(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	eng := &fakeEngine{transform: func(ctx context.Context, req domain.TransformRequest) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	h := newHarness(t, eng, nil)
	b := bus.New(10, quietLogger())
	r := newFakeResponder()
	b.Attach("cli", r)

	d := NewDispatcher(DispatcherConfig{Pipeline: h.pipeline, Bus: b, Logger: quietLogger(), JobTimeout: 30 * time.Millisecond})
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	b.Publish(domain.InboundEvent{Channel: "cli", Text: "!weak ```x()```"})
	select {
	case <-r.onReply:
	case <-time.After(5 * time.Second):
		t.Fatal("no reply after job timeout")
	}

	b.Close()
	require.NoError(t, <-done)
	require.Equal(t, DefaultApologyMessage, r.Replies()[0].Text)
	requireEmptyDir(t, h.temp.Dir())
}
