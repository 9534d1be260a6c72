// Package errs defines the error-kind and severity taxonomy of spec.md §7,
// wrapped with golang.org/x/xerrors the way the teacher wraps build errors
// in cmd/distri/build.go and internal/batch/batch.go.
package errs

import "golang.org/x/xerrors"

// Kind classifies where and why an operation failed.
type Kind string

const (
	Config    Kind = "config"
	Resolve   Kind = "resolve"
	Connect   Kind = "connect"
	Transfer  Kind = "transfer"
	Execute   Kind = "execute"
	Stalled   Kind = "stalled"
	Cancelled Kind = "cancelled"
	Render    Kind = "render"
	CacheIO   Kind = "cache_io"
	Internal  Kind = "internal"
)

// Severity determines how far an error propagates.
type Severity int

const (
	// Low is logged only.
	Low Severity = iota
	// Medium warns and degrades (e.g. cache disabled for the run).
	Medium
	// High fails the affected host; other hosts continue.
	High
	// Critical aborts the entire run.
	Critical
)

// Error is a classified, wrapped error. It implements error and unwraps to
// the underlying cause via xerrors.
type Error struct {
	Kind     Kind
	Severity Severity
	cause    error
}

func New(kind Kind, sev Severity, cause error) *Error {
	return &Error{Kind: kind, Severity: sev, cause: cause}
}

func Wrap(kind Kind, sev Severity, msg string, cause error) *Error {
	return &Error{Kind: kind, Severity: sev, cause: xerrors.Errorf("%s: %w", msg, cause)}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return e.cause.Error()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// As reports whether err is (or wraps) an *Error, returning it if so.
func As(err error) (*Error, bool) {
	var target *Error
	if xerrors.As(err, &target) {
		return target, true
	}
	return nil, false
}
