package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Level is the host severity of a report. Levels at or above Error abort the
// current call; Fatal also ends the host session.
type Level int

const (
	LevelDebug Level = iota
	LevelLog
	LevelInfo
	LevelNotice
	LevelWarning
	LevelError
	LevelFatal
	LevelPanic
)

var levelNames = [...]string{"DEBUG", "LOG", "INFO", "NOTICE", "WARNING", "ERROR", "FATAL", "PANIC"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levelNames[l]
}

// SQLState is a five-character host error code.
type SQLState string

const (
	CodeSuccessfulCompletion SQLState = "00000"
	CodeDataException        SQLState = "22000"
	CodeStringTruncation     SQLState = "22001"
	CodeDivisionByZero       SQLState = "22012"
	CodeNullNotAllowed       SQLState = "22004"
	CodeCheckViolation       SQLState = "23514"
	CodeDatatypeMismatch     SQLState = "42804"
	CodeUndefinedFunction    SQLState = "42883"
	CodeOutOfMemory          SQLState = "53200"
	CodeProgramLimitExceeded SQLState = "54000"
	CodeQueryCanceled        SQLState = "57014"
	CodeFeatureNotSupported  SQLState = "0A000"
	CodeRaiseException       SQLState = "P0001"
	CodeInternalError        SQLState = "XX000"
)

// Valid reports whether s has the five-character [0-9A-Z] shape.
func (s SQLState) Valid() bool {
	if len(s) != 5 {
		return false
	}
	for i := 0; i < 5; i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// Packed returns the host's six-bits-per-character integer form.
func (s SQLState) Packed() int32 {
	var v int32
	for i := 0; i < len(s) && i < 5; i++ {
		v |= int32((s[i]-'0')&0x3F) << (6 * i)
	}
	return v
}

// UnpackSQLState is the inverse of SQLState.Packed.
func UnpackSQLState(v int32) SQLState {
	var b [5]byte
	for i := 0; i < 5; i++ {
		b[i] = byte((v>>(6*i))&0x3F) + '0'
	}
	return SQLState(b[:])
}

// Class returns the two-character class of the code.
func (s SQLState) Class() string {
	if len(s) < 2 {
		return string(s)
	}
	return string(s[:2])
}

// Location is where in host or Go source a report originated.
type Location struct {
	File string `cbor:"1,keyasint,omitempty"`
	Func string `cbor:"2,keyasint,omitempty"`
	Line int    `cbor:"3,keyasint,omitempty"`
}

// Report is the host diagnostic payload carried by the host signal.
//
// A report that travels host -> Go -> host unchanged is replayed exactly. Code
// on the propagation path that rewrites or drops fields degrades what the host
// sees; nothing defends against that beyond not doing it.
type Report struct {
	Code     SQLState `cbor:"1,keyasint"`
	Message  string   `cbor:"2,keyasint"`
	Detail   string   `cbor:"3,keyasint,omitempty"`
	Hint     string   `cbor:"4,keyasint,omitempty"`
	Location Location `cbor:"5,keyasint"`
	Position int      `cbor:"6,keyasint,omitempty"`
	Level    Level    `cbor:"7,keyasint"`
}

// Clone returns a deep copy of r.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Equal reports whether every field of r and o matches.
func (r *Report) Equal(o *Report) bool {
	if r == nil || o == nil {
		return r == o
	}
	return *r == *o
}

// String formats the report the way the host prints it.
func (r *Report) String() string {
	if r == nil {
		return "<nil report>"
	}
	var b strings.Builder
	b.WriteString(r.Level.String())
	b.WriteString(":  ")
	b.WriteString(r.Message)
	if r.Code != "" {
		b.WriteString(" (SQLSTATE ")
		b.WriteString(string(r.Code))
		b.WriteByte(')')
	}
	if r.Detail != "" {
		b.WriteString("\nDETAIL:  ")
		b.WriteString(r.Detail)
	}
	if r.Hint != "" {
		b.WriteString("\nHINT:  ")
		b.WriteString(r.Hint)
	}
	return b.String()
}

// ReportFor converts an error escaping into host code into the report the host
// should raise. A host_signaled error anywhere in the chain yields its original
// report untouched, however it was wrapped.
func ReportFor(err error) *Report {
	if err == nil {
		return nil
	}
	if r, ok := ReportOf(err); ok {
		return r
	}
	if r := attachedReport(err); r != nil {
		return r
	}
	var e *Error
	if !errors.As(err, &e) {
		return &Report{
			Level:   LevelError,
			Code:    CodeDataException,
			Message: err.Error(),
		}
	}

	r := &Report{
		Level:   LevelError,
		Code:    codeForKind(e.Kind),
		Message: e.Error(),
	}
	if e.Kind == KindInvariantViolation {
		r.Level = LevelFatal
	}
	if e.Cause != nil {
		r.Detail = e.Cause.Error()
	}
	return r
}

// attachedReport returns the first report set with Builder.Report in err's chain.
func attachedReport(err error) *Report {
	var e *Error
	for err != nil && errors.As(err, &e) {
		if e.Report != nil {
			return e.Report
		}
		err = e.Cause
	}
	return nil
}

func codeForKind(k Kind) SQLState {
	switch k {
	case KindEncodingOverflow:
		return CodeProgramLimitExceeded
	case KindTypeMismatch:
		return CodeDatatypeMismatch
	case KindUnsupported:
		return CodeFeatureNotSupported
	case KindNotFound:
		return CodeUndefinedFunction
	case KindInvalidData, KindInvalidInput, KindOutOfBounds:
		return CodeDataException
	default:
		return CodeInternalError
	}
}
