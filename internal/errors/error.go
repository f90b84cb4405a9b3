// Package errors provides the error taxonomy shared by every layer of
// lazybridge. Each error carries a Kind, the failing operation and, when
// known, the parameter or column it concerns, with error wrapping support.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies where in the call pipeline an error originated.
type Kind int

const (
	// KindCoercion is a dynamic argument that does not match the expected
	// type or shape, including unrecognized option strings.
	KindCoercion Kind = iota + 1
	// KindConfiguration is a structurally invalid or mutually exclusive
	// combination of otherwise valid parameters.
	KindConfiguration
	// KindPlan is an operator that cannot be built from valid typed arguments.
	KindPlan
	// KindExecution is a failure inside the engine during optimization or
	// execution.
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindCoercion:
		return "coercion"
	case KindConfiguration:
		return "configuration"
	case KindPlan:
		return "plan"
	case KindExecution:
		return "execution"
	default:
		return fmt.Sprintf("unknown_kind(%d)", int(k))
	}
}

// Error is the standard error for every lazybridge operation.
type Error struct {
	Kind    Kind
	Op      string // Operation name (e.g. "select", "join_asof", "collect")
	Param   string // Parameter name for construction-time failures
	Column  string // Column name if applicable
	Message string // Human-readable description
	Cause   error  // Underlying error cause
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Param != "" {
		fmt.Fprintf(&b, "param [%s] ", e.Param)
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		if e.Message != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for error wrapping support
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error equality checking for errors.Is(). A target carrying
// only a Kind (the Err* sentinels) matches every error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" && t.Param == "" && t.Column == "" && t.Message == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Op == t.Op && e.Param == t.Param &&
		e.Column == t.Column && e.Message == t.Message
}

// Kind sentinels for errors.Is
var (
	ErrCoercion      = &Error{Kind: KindCoercion}
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrPlan          = &Error{Kind: KindPlan}
	ErrExecution     = &Error{Kind: KindExecution}
)

// NewCoercionError creates an error for a dynamic value that does not match
// the expected shape.
func NewCoercionError(param, expected string, got any) *Error {
	return &Error{
		Kind:    KindCoercion,
		Param:   param,
		Message: fmt.Sprintf("expected %s, got %s", expected, Describe(got)),
	}
}

// NewUnrecognizedOptionError creates an error for an option string outside
// the valid set.
func NewUnrecognizedOptionError(param, option string, valid []string) *Error {
	return &Error{
		Kind:    KindCoercion,
		Param:   param,
		Message: fmt.Sprintf("unrecognized option %q; valid options: %s", option, strings.Join(valid, ", ")),
	}
}

// NewConfigurationError creates an error for invalid parameter combinations
func NewConfigurationError(op, message string) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Op:      op,
		Message: message,
	}
}

// NewPlanError creates an error for operators that cannot be constructed
func NewPlanError(op, message string) *Error {
	return &Error{
		Kind:    KindPlan,
		Op:      op,
		Message: message,
	}
}

// NewColumnNotFoundError creates an error for references to non-existent columns
func NewColumnNotFoundError(op, column string) *Error {
	return &Error{
		Kind:    KindExecution,
		Op:      op,
		Column:  column,
		Message: fmt.Sprintf("column %q not found", column),
	}
}

// NewExecutionError creates an error for engine failures
func NewExecutionError(op, message string) *Error {
	return &Error{
		Kind:    KindExecution,
		Op:      op,
		Message: message,
	}
}

// NewInterruptedError creates an execution error for a cancelled context
func NewInterruptedError(op string, cause error) *Error {
	return &Error{
		Kind:    KindExecution,
		Op:      op,
		Message: "execution interrupted",
		Cause:   cause,
	}
}

// Annotate tags err with the operation that produced it. Errors that already
// name an operation are wrapped instead of rewritten.
func Annotate(err error, op string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) && e.Op == "" {
		annotated := *e
		annotated.Op = op
		return &annotated
	}
	return fmt.Errorf("%s: %w", op, err)
}

// KindOf reports the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Describe renders a dynamic value for error messages.
func Describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "absent value"
	case string:
		return fmt.Sprintf("%q (string)", x)
	case time.Time:
		return fmt.Sprintf("%s (time)", x.Format(time.RFC3339Nano))
	case fmt.Stringer:
		return fmt.Sprintf("%s (%T)", x.String(), v)
	default:
		return fmt.Sprintf("%v (%T)", v, v)
	}
}
