package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSignaler_SendsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newFakeResponder()
	sig := StartSignaler(context.Background(), r, "chat", time.Hour, quietLogger())
	require.Eventually(t, func() bool { return r.typing.Load() == 1 }, time.Second, 5*time.Millisecond)
	sig.Stop()
}

func TestSignaler_RepeatsUntilStopped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newFakeResponder()
	sig := StartSignaler(context.Background(), r, "chat", 10*time.Millisecond, quietLogger())
	require.Eventually(t, func() bool { return r.typing.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	sig.Stop()

	after := r.typing.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, after, r.typing.Load(), "no indicators after Stop")
}

func TestSignaler_SendErrorsAreSwallowed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newFakeResponder()
	r.typeErr = errBoom
	sig := StartSignaler(context.Background(), r, "chat", 10*time.Millisecond, quietLogger())
	require.Eventually(t, func() bool { return r.typing.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	sig.Stop()
}

func TestSignaler_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sig := StartSignaler(context.Background(), newFakeResponder(), "chat", time.Hour, nil)
	sig.Stop()
	sig.Stop()
}

func TestSignaler_StopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	sig := StartSignaler(ctx, newFakeResponder(), "chat", time.Hour, quietLogger())
	cancel()
	select {
	case <-sig.done:
	case <-time.After(time.Second):
		t.Fatal("signaler did not exit after context cancel")
	}
	sig.Stop()
}
