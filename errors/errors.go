package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseHost     Phase = "host"     // inside a host entry point
	PhaseBoundary Phase = "boundary" // crossing back into host code
	PhaseMemory   Phase = "memory"   // arena handles and ownership
	PhaseEncode   Phase = "encode"   // Go to datum
	PhaseDecode   Phase = "decode"   // datum to Go
	PhaseCall     Phase = "call"     // function-call frames
	PhaseConfig   Phase = "config"   // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindHostSignaled       Kind = "host_signaled"
	KindInvariantViolation Kind = "invariant_violation"
	KindEncodingOverflow   Kind = "encoding_overflow"
	KindTypeMismatch       Kind = "type_mismatch"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindInvalidData        Kind = "invalid_data"
	KindUnsupported        Kind = "unsupported"
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
	KindPanic              Kind = "panic"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value   any
	Cause   error
	Report  *Report
	Phase   Phase
	Kind    Kind
	GoType  string
	SQLType string
	Detail  string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.GoType != "" || e.SQLType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.SQLType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", SQL type ")
			b.WriteString(e.SQLType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("SQL type ")
			b.WriteString(e.SQLType)
		}
	}

	detail := e.Detail
	if detail == "" && e.Report != nil {
		detail = e.Report.String()
	}
	if detail != "" {
		if e.GoType != "" || e.SQLType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// SQLType sets the SQL type name
func (b *Builder) SQLType(t string) *Builder {
	b.err.SQLType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Report attaches a host diagnostic report
func (b *Builder) Report(r *Report) *Builder {
	b.err.Report = r
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the bridge error classes

// HostSignaled wraps a report captured at an interception point.
// The report is held by pointer and not copied, so a later re-raise
// replays exactly what the host produced.
func HostSignaled(r *Report) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindHostSignaled,
		Report: r,
	}
}

// InvariantViolation creates a programming-defect error. It is raised with
// panic and never recovered by catching boundaries.
func InvariantViolation(msg string, args ...any) *Error {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindInvariantViolation,
		Detail: msg,
	}
}

// EncodingOverflow creates an error for a value too large for the host format
func EncodingOverflow(sqlType string, size, limit uint64) *Error {
	return &Error{
		Phase:   PhaseEncode,
		Kind:    KindEncodingOverflow,
		SQLType: sqlType,
		Detail:  fmt.Sprintf("encoded size %d exceeds maximum %d", size, limit),
		Value:   size,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, goType, sqlType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTypeMismatch,
		GoType:  goType,
		SQLType: sqlType,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// IsKind reports whether err is an *Error of the given kind anywhere in its chain
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// ReportOf returns the host report carried by a host_signaled error in err's chain.
func ReportOf(err error) (*Report, bool) {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return nil, false
		}
		if e.Kind == KindHostSignaled && e.Report != nil {
			return e.Report, true
		}
		err = e.Cause
	}
	return nil, false
}
