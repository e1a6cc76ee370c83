package bus

import (
	"context"
	"testing"
	"time"

	"xeterbot/internal/domain"
)

type nopResponder struct{}

func (nopResponder) SendTyping(context.Context, string) error                       { return nil }
func (nopResponder) Reply(context.Context, domain.InboundEvent, domain.Reply) error { return nil }

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	b := New(2, testEBLogger())
	defer b.Close()

	b.Publish(domain.InboundEvent{ID: "1", Channel: "discord"})

	ev := <-b.Subscribe()
	if ev.ID != "1" {
		t.Fatalf("expected event 1, got %q", ev.ID)
	}
}

func TestInMemoryBus_Responder(t *testing.T) {
	b := New(0, testEBLogger())
	defer b.Close()

	if _, ok := b.Responder("discord"); ok {
		t.Fatal("expected no responder before Attach")
	}
	b.Attach("discord", nopResponder{})
	if _, ok := b.Responder("discord"); !ok {
		t.Fatal("expected responder after Attach")
	}
}

func TestInMemoryBus_PublishAfterClose(t *testing.T) {
	b := New(1, testEBLogger())
	b.Close()
	b.Close()

	// Must not panic on a closed channel.
	b.Publish(domain.InboundEvent{ID: "late"})

	if _, ok := <-b.Subscribe(); ok {
		t.Fatal("expected closed inbound channel")
	}
}

func TestInMemoryBus_FullBusDropsAfterTimeout(t *testing.T) {
	b := New(1, testEBLogger())
	b.publishTimeout = 10 * time.Millisecond
	defer b.Close()

	b.Publish(domain.InboundEvent{ID: "1"})
	b.Publish(domain.InboundEvent{ID: "2"})

	if got := b.Dropped(); got != 1 {
		t.Fatalf("expected 1 dropped event, got %d", got)
	}
	if ev := <-b.Subscribe(); ev.ID != "1" {
		t.Fatalf("expected first event to survive, got %q", ev.ID)
	}
}

func TestInMemoryBus_CloseReleasesBlockedPublisher(t *testing.T) {
	b := New(1, testEBLogger())
	b.publishTimeout = time.Hour
	b.Publish(domain.InboundEvent{ID: "fills"})

	done := make(chan struct{})
	go func() {
		b.Publish(domain.InboundEvent{ID: "blocked"})
		close(done)
	}()

	// Wait for the goroutine to block on the full buffer.
	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not release the blocked publisher")
	}
	if ev, ok := <-b.Subscribe(); !ok || ev.ID != "fills" {
		t.Fatalf("queued event should remain readable after Close, got %q ok=%v", ev.ID, ok)
	}
	if _, ok := <-b.Subscribe(); ok {
		t.Fatal("expected closed channel after draining")
	}
	if b.Dropped() != 1 {
		t.Fatalf("expected the blocked event to be counted as dropped, got %d", b.Dropped())
	}
}
