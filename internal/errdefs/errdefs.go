// Package errdefs holds the error taxonomy shared by features, vaults,
// the write pipeline and workers.
package errdefs

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Backends map their native failures onto these so callers
// can match with errors.Is regardless of protocol.
var (
	ErrNotFound         = errors.New("not found")
	ErrLoginCanceled    = errors.New("login canceled")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrAccessDenied     = errors.New("access denied")
	ErrLengthMismatch   = errors.New("length mismatch")
	ErrUnsupported      = errors.New("unsupported")
	ErrCanceled         = errors.New("canceled")
)

// ChecksumError reports a verified digest disagreement. Expected and Actual
// are the rendered checksums ("algorithm:hex").
type ChecksumError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

func (e *ChecksumError) Is(target error) bool { return target == ErrChecksumMismatch }

// RetriableAccessDeniedError is an access failure the caller may retry after
// Backoff. Err is the underlying transport failure, if any.
type RetriableAccessDeniedError struct {
	Detail  string
	Backoff time.Duration
	Err     error
}

func (e *RetriableAccessDeniedError) Error() string {
	msg := "access denied: " + e.Detail
	if e.Backoff > 0 {
		msg = fmt.Sprintf("access denied (retry in %s): %s", e.Backoff, e.Detail)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RetriableAccessDeniedError) Is(target error) bool { return target == ErrAccessDenied }

func (e *RetriableAccessDeniedError) Unwrap() error { return e.Err }

// NewProxyLoginFailure reports failed proxy authentication caused by cause,
// which may be nil. It is retriable immediately.
func NewProxyLoginFailure(detail string, cause error) *RetriableAccessDeniedError {
	return &RetriableAccessDeniedError{Detail: "proxy login failed: " + detail, Err: cause}
}

// BackgroundError is the catch-all for backend or network failures surfaced
// to a worker.
type BackgroundError struct {
	Op   string
	Path string
	Err  error
}

func (e *BackgroundError) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *BackgroundError) Unwrap() error { return e.Err }

// Background wraps err in a BackgroundError unless it already is one or is nil.
func Background(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackgroundError
	if errors.As(err, &be) {
		return err
	}
	return &BackgroundError{Op: op, Path: path, Err: err}
}

// NotFound returns an error matching ErrNotFound that names path.
func NotFound(op, path string) error {
	return &BackgroundError{Op: op, Path: path, Err: ErrNotFound}
}

// Retriable reports whether err is a RetriableAccessDeniedError and returns
// its backoff.
func Retriable(err error) (time.Duration, bool) {
	var re *RetriableAccessDeniedError
	if errors.As(err, &re) {
		return re.Backoff, true
	}
	return 0, false
}
