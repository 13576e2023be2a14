// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: SQL type name, Go type name, the host
// diagnostic Report when one was captured, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindEncodingOverflow).
//		GoType("string").
//		SQLType("text").
//		Detail("value needs %d bytes", n).
//		Build()
//
// Or use convenience constructors for the bridge's three error classes:
//
//	err := errors.HostSignaled(report)          // host raised, payload preserved
//	err := errors.EncodingOverflow("text", n, max)
//	err := errors.InvariantViolation("arena %#x is not live", p)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
