package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"

	"xeterbot/internal/domain"
)

// DefaultMaxSourceBytes caps attachments and inline code.
const DefaultMaxSourceBytes int64 = 100_000

const (
	OriginAttachment = "attachment"
	OriginCodeBlock  = "code block"
	OriginFile       = "file"
)

// fencePattern matches ``` + optional language tag + content + ```. A tag
// normally ends its own line; "lua" is also stripped when the code follows on
// the same line, as in ```lua print(1)```.
var fencePattern = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_+.-]*\\n|lua\\b[ \\t]*)?(.*?)```")

// JobInput is the acquired source, already on disk.
type JobInput struct {
	Handle *Handle
	Origin string
	Bytes  int64
}

// AcquirerConfig configures payload acquisition.
type AcquirerConfig struct {
	Client   *http.Client
	MaxBytes int64
	Suffix   string
	Logger   *slog.Logger
}

// Acquirer turns an event into a JobInput, from either the attachment or the
// first fenced code block in the text.
type Acquirer struct {
	client   *http.Client
	maxBytes int64
	suffix   string
	logger   *slog.Logger
}

func NewAcquirer(cfg AcquirerConfig) *Acquirer {
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(0)
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxSourceBytes
	}
	if cfg.Suffix == "" {
		cfg.Suffix = DefaultSourceSuffix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Acquirer{
		client:   cfg.Client,
		maxBytes: cfg.MaxBytes,
		suffix:   cfg.Suffix,
		logger:   cfg.Logger,
	}
}

// MaxBytes returns the configured ceiling.
func (a *Acquirer) MaxBytes() int64 { return a.maxBytes }

// Acquire writes the payload to a handle from scope. The scope owns the
// handle on every path, including failures.
func (a *Acquirer) Acquire(ctx context.Context, ev domain.InboundEvent, scope *Scope) (*JobInput, error) {
	if ev.HasAttachment() {
		return a.fromAttachment(ctx, ev.Attachment, scope)
	}
	return a.fromCodeBlock(ev.Text, scope)
}

func (a *Acquirer) fromAttachment(ctx context.Context, ref *domain.AttachmentRef, scope *Scope) (*JobInput, error) {
	if ref.Size > a.maxBytes {
		return nil, sizeExceeded(ref.Size, a.maxBytes)
	}

	link := ref.URL
	if link == "" {
		resolved, err := ref.Resolve(ctx)
		if err != nil {
			return nil, transportFailure(fmt.Errorf("resolve attachment: %w", err))
		}
		link = resolved
	}

	resp, err := getWithRetry(ctx, a.client, link, a.logger)
	if err != nil {
		return nil, transportFailure(err)
	}
	defer resp.Body.Close()

	// Checked before a temp file exists so nothing is written.
	if resp.ContentLength > a.maxBytes {
		return nil, sizeExceeded(resp.ContentLength, a.maxBytes)
	}

	h, err := scope.Acquire(a.suffix)
	if err != nil {
		return nil, unexpected(err)
	}
	f, err := os.OpenFile(h.Path(), os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, unexpected(err)
	}

	// Counted even when no length was declared; one byte over is enough to
	// know the cap was crossed.
	n, copyErr := io.Copy(f, io.LimitReader(resp.Body, a.maxBytes+1))
	closeErr := f.Close()
	if copyErr != nil {
		return nil, transportFailure(copyErr)
	}
	if n > a.maxBytes {
		return nil, sizeExceeded(n, a.maxBytes)
	}
	if closeErr != nil {
		return nil, unexpected(closeErr)
	}

	a.logger.Debug("attachment downloaded", "file", ref.Filename, "bytes", n)
	return &JobInput{Handle: h, Origin: OriginAttachment, Bytes: n}, nil
}

func (a *Acquirer) fromCodeBlock(text string, scope *Scope) (*JobInput, error) {
	code, ok := ExtractCodeBlock(text)
	if !ok {
		return nil, ErrNoPayload
	}
	if int64(len(code)) > a.maxBytes {
		return nil, sizeExceeded(int64(len(code)), a.maxBytes)
	}

	h, err := scope.Acquire(a.suffix)
	if err != nil {
		return nil, unexpected(err)
	}
	if err := os.WriteFile(h.Path(), []byte(code), 0o600); err != nil {
		return nil, unexpected(fmt.Errorf("write code block: %w", err))
	}
	return &JobInput{Handle: h, Origin: OriginCodeBlock, Bytes: int64(len(code))}, nil
}

// FromFile copies a local source file into scope, enforcing the same cap as
// downloads.
func (a *Acquirer) FromFile(path string, scope *Scope) (*JobInput, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if info.Size() > a.maxBytes {
		return nil, sizeExceeded(info.Size(), a.maxBytes)
	}

	h, err := scope.Acquire(a.suffix)
	if err != nil {
		return nil, unexpected(err)
	}
	data, err := io.ReadAll(io.LimitReader(src, a.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if int64(len(data)) > a.maxBytes {
		return nil, sizeExceeded(int64(len(data)), a.maxBytes)
	}
	if err := os.WriteFile(h.Path(), data, 0o600); err != nil {
		return nil, unexpected(err)
	}
	return &JobInput{Handle: h, Origin: OriginFile, Bytes: int64(len(data))}, nil
}

// ExtractCodeBlock returns the trimmed content of the first fenced block.
// An empty block counts as no block.
func ExtractCodeBlock(text string) (string, bool) {
	m := fencePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	code := strings.TrimSpace(m[1])
	if code == "" {
		return "", false
	}
	return code, true
}

// IsStatus reports whether err is a download that ended with the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.statusCode == code
}
