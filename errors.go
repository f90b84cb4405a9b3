package lazybridge

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/paveg/lazybridge/internal/errors"
)

// Error is the error type returned by every fallible operation
type Error = errors.Error

// ErrorKind classifies an Error
type ErrorKind = errors.Kind

// Error kinds
const (
	KindCoercion      = errors.KindCoercion
	KindConfiguration = errors.KindConfiguration
	KindPlan          = errors.KindPlan
	KindExecution     = errors.KindExecution
)

// Kind sentinels; errors.Is(err, ErrCoercion) matches every coercion error
var (
	ErrCoercion      = errors.ErrCoercion
	ErrConfiguration = errors.ErrConfiguration
	ErrPlan          = errors.ErrPlan
	ErrExecution     = errors.ErrExecution
)

// ErrAlreadyJoined is returned by a second BackgroundHandle.Join
var ErrAlreadyJoined = stderrors.New("background handle already joined")

// IsCoercion reports whether err is a coercion error
func IsCoercion(err error) bool { return stderrors.Is(err, errors.ErrCoercion) }

// IsConfiguration reports whether err is a configuration error
func IsConfiguration(err error) bool { return stderrors.Is(err, errors.ErrConfiguration) }

// IsPlan reports whether err is a plan construction error
func IsPlan(err error) bool { return stderrors.Is(err, errors.ErrPlan) }

// IsExecution reports whether err is an engine error raised by collect
func IsExecution(err error) bool { return stderrors.Is(err, errors.ErrExecution) }

// collectError is an engine error rewritten for the caller. The engine error
// stays reachable through Unwrap.
type collectError struct {
	msg   string
	cause error
}

func (e *collectError) Error() string { return e.msg }

func (e *collectError) Unwrap() error { return e.cause }

// translateCollectError rewrites an engine error into text that names the
// failing operation and the offending identifier.
func translateCollectError(op string, err error) error {
	if err == nil {
		return nil
	}

	var text string
	var e *errors.Error
	switch {
	case stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded):
		text = "collect interrupted"
	case stderrors.As(err, &e):
		failing := e.Op
		if failing == "" {
			failing = op
		}
		switch {
		case e.Column != "":
			text = fmt.Sprintf("column %q not found (in %s)", e.Column, failing)
		case e.Kind == errors.KindExecution:
			text = fmt.Sprintf("%s failed: %s", failing, detail(e))
		default:
			text = e.Error()
		}
	default:
		text = fmt.Sprintf("%s failed: %s", op, err)
	}
	return &collectError{msg: "when calling " + op + " on LazyFrame: " + text, cause: err}
}

// detail renders e without its operation prefix
func detail(e *errors.Error) string {
	d := *e
	d.Op = ""
	return d.Error()
}
