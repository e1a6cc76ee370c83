package pipeline

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"xeterbot/internal/domain"
)

// ErrorKind tags why a job stopped before replying with a file.
type ErrorKind string

const (
	KindSizeExceeded ErrorKind = "size_exceeded"
	KindNoPayload    ErrorKind = "no_payload"
	KindTransport    ErrorKind = "transport_failure"
	KindEngine       ErrorKind = "engine_failure"
	KindUnexpected   ErrorKind = "unexpected_failure"
)

// Sentinels for errors.Is; only the Kind is compared.
var (
	ErrSizeExceeded = &JobError{Kind: KindSizeExceeded}
	ErrNoPayload    = &JobError{Kind: KindNoPayload}
	ErrTransport    = &JobError{Kind: KindTransport}
	ErrEngine       = &JobError{Kind: KindEngine}
	ErrUnexpected   = &JobError{Kind: KindUnexpected}
)

// JobError is the single error type a job body returns.
// Detail is user-facing only for KindEngine.
type JobError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *JobError) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *JobError) Unwrap() error { return e.Err }

func (e *JobError) Is(target error) bool {
	t, ok := target.(*JobError)
	return ok && t.Kind == e.Kind
}

// Status maps the kind onto the recorded terminal job state.
func (k ErrorKind) Status() domain.JobStatus {
	switch k {
	case KindSizeExceeded:
		return domain.JobSizeExceeded
	case KindNoPayload:
		return domain.JobNoPayload
	case KindTransport:
		return domain.JobTransportFailure
	case KindEngine:
		return domain.JobEngineFailure
	default:
		return domain.JobUnexpected
	}
}

// asJobError classifies any error; unknown errors become KindUnexpected.
func asJobError(err error) *JobError {
	var je *JobError
	if errors.As(err, &je) {
		return je
	}
	return &JobError{Kind: KindUnexpected, Err: err}
}

func sizeExceeded(size, limit int64) *JobError {
	return &JobError{
		Kind:   KindSizeExceeded,
		Detail: fmt.Sprintf("%s over the %s limit", humanize.Bytes(uint64(size)), humanize.Bytes(uint64(limit))),
	}
}

func transportFailure(err error) *JobError {
	return &JobError{Kind: KindTransport, Err: err}
}

func unexpected(err error) *JobError {
	return &JobError{Kind: KindUnexpected, Err: err}
}
