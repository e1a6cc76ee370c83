package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"xeterbot/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// sentReply is a reply plus the attached file's content, read at send time.
type sentReply struct {
	domain.Reply
	FileContent string
}

type fakeResponder struct {
	mu       sync.Mutex
	replies  []sentReply
	typing   atomic.Int32
	replyErr error // returned for file replies
	typeErr  error
	onReply  chan struct{}

	panicOnFile bool
}

func newFakeResponder() *fakeResponder {
	return &fakeResponder{onReply: make(chan struct{}, 16)}
}

func (f *fakeResponder) SendTyping(ctx context.Context, chatID string) error {
	f.typing.Add(1)
	return f.typeErr
}

func (f *fakeResponder) Reply(ctx context.Context, ev domain.InboundEvent, r domain.Reply) error {
	sent := sentReply{Reply: r}
	if r.File != nil {
		if f.panicOnFile {
			panic("upload exploded")
		}
		if f.replyErr != nil {
			return f.replyErr
		}
		data, err := os.ReadFile(r.File.Path)
		if err != nil {
			return err
		}
		sent.FileContent = string(data)
	}
	f.mu.Lock()
	f.replies = append(f.replies, sent)
	f.mu.Unlock()
	f.onReply <- struct{}{}
	return nil
}

func (f *fakeResponder) Replies() []sentReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentReply(nil), f.replies...)
}

type engineCall struct {
	Preset string
	Source string
}

type fakeEngine struct {
	mu        sync.Mutex
	calls     []engineCall
	transform func(ctx context.Context, req domain.TransformRequest) error
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Transform(ctx context.Context, req domain.TransformRequest) error {
	src, _ := os.ReadFile(req.InputPath)
	e.mu.Lock()
	e.calls = append(e.calls, engineCall{Preset: req.Preset, Source: string(src)})
	e.mu.Unlock()
	return e.transform(ctx, req)
}

func (e *fakeEngine) Calls() []engineCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engineCall(nil), e.calls...)
}

// appendEngine writes the source followed by suffix.
func appendEngine(suffix string) *fakeEngine {
	return &fakeEngine{transform: func(ctx context.Context, req domain.TransformRequest) error {
		src, err := os.ReadFile(req.InputPath)
		if err != nil {
			return err
		}
		return os.WriteFile(req.OutputPath, append(src, suffix...), 0o600)
	}}
}

type diagError string

func (d diagError) Error() string          { return "engine: " + string(d) }
func (d diagError) DiagnosticText() string { return string(d) }

func failingEngine(diag string) *fakeEngine {
	return &fakeEngine{transform: func(context.Context, domain.TransformRequest) error {
		return diagError(diag)
	}}
}

var errBoom = errors.New("boom")

func newTestTempDir(t *testing.T) *TempDir {
	t.Helper()
	td, err := NewTempDir(t.TempDir())
	require.NoError(t, err)
	return td
}

// requireEmptyDir asserts every temp file was released.
func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Empty(t, names, "temp files left behind")
}
