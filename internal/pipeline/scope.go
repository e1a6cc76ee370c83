package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const (
	DefaultSourceSuffix = ".lua"
	tempPrefix          = "xeter-"
	maxAcquireAttempts  = 3
)

var errScopeClosed = errors.New("scope already closed")

// TempDir hands out uniquely named files under one directory.
type TempDir struct {
	dir string
}

// NewTempDir uses os.TempDir() when dir is empty.
func NewTempDir(dir string) (*TempDir, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir %s: %w", dir, err)
	}
	return &TempDir{dir: dir}, nil
}

func (t *TempDir) Dir() string { return t.dir }

// Acquire creates a new empty file with the given suffix. The file is created
// with O_EXCL so two handles never share a path.
func (t *TempDir) Acquire(suffix string) (*Handle, error) {
	if suffix == "" {
		suffix = DefaultSourceSuffix
	}
	var lastErr error
	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		path := filepath.Join(t.dir, tempPrefix+uuid.NewString()+suffix)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create temp file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return nil, fmt.Errorf("close temp file: %w", err)
		}
		return &Handle{path: path}, nil
	}
	return nil, fmt.Errorf("create temp file: %w", lastErr)
}

// NewScope starts a set of handles that are released together.
func (t *TempDir) NewScope(logger *slog.Logger) *Scope {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scope{tmp: t, logger: logger}
}

// Handle is a temporary file owned by exactly one job.
type Handle struct {
	path string
	once sync.Once
	err  error
}

func (h *Handle) Path() string { return h.path }

// Release removes the file. Only the first call does anything; a file that
// is already gone is not an error.
func (h *Handle) Release() {
	_ = h.release()
}

func (h *Handle) release() error {
	h.once.Do(func() {
		err := os.Remove(h.path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.err = err
		}
	})
	return h.err
}

// Scope tracks every handle acquired for one job. Close releases them all and
// is meant to be deferred right after the scope is created.
type Scope struct {
	tmp    *TempDir
	logger *slog.Logger

	mu       sync.Mutex
	handles  []*Handle
	acquired int
	closed   bool
}

func (s *Scope) Acquire(suffix string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errScopeClosed
	}
	h, err := s.tmp.Acquire(suffix)
	if err != nil {
		return nil, err
	}
	s.handles = append(s.handles, h)
	s.acquired++
	return h, nil
}

// Acquired returns how many handles the scope has handed out, including
// ones already released.
func (s *Scope) Acquired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}

// Close releases handles newest first. Safe to call more than once.
func (s *Scope) Close() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.closed = true
	s.mu.Unlock()

	for i := len(handles) - 1; i >= 0; i-- {
		if err := handles[i].release(); err != nil {
			s.logger.Warn("temp file not removed", "path", handles[i].path, "err", err)
		}
	}
}
