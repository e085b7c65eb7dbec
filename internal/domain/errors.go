package domain

import (
	"errors"
	"fmt"
)

// Stable numeric error codes surfaced to callers. Callers pattern-match on
// these, so the values must never change.
const (
	CodeNotInitialized = 3001
	CodeUnauthorized   = 3002
	CodeNotFound       = 3003
	CodeConflict       = 3004
	CodeValidation     = 3005
	CodeInvariant      = 3006
)

// LedgerError is a business error with a stable code
type LedgerError struct {
	Code    int
	Message string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Is matches two ledger errors by code so errors.Is works against the
// exported sentinels below.
func (e *LedgerError) Is(target error) bool {
	var le *LedgerError
	if errors.As(target, &le) {
		return le.Code == e.Code
	}
	return false
}

// Sentinels for errors.Is checks
var (
	ErrNotInitialized = &LedgerError{Code: CodeNotInitialized, Message: "contract not initialized"}
	ErrUnauthorized   = &LedgerError{Code: CodeUnauthorized, Message: "caller is not an organization admin"}
	ErrNotFound       = &LedgerError{Code: CodeNotFound, Message: "not found"}
	ErrConflict       = &LedgerError{Code: CodeConflict, Message: "conflict"}
	ErrInvariant      = &LedgerError{Code: CodeInvariant, Message: "invariant violated"}
)

func NewNotFound(format string, args ...any) *LedgerError {
	return &LedgerError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewConflict(format string, args ...any) *LedgerError {
	return &LedgerError{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

func NewUnauthorized(format string, args ...any) *LedgerError {
	return &LedgerError{Code: CodeUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func NewInvariant(format string, args ...any) *LedgerError {
	return &LedgerError{Code: CodeInvariant, Message: fmt.Sprintf(format, args...)}
}

// NewValidation wraps a structural validation failure. Message carries the
// JSON-Pointer path and reason produced by the validator.
func NewValidation(err error) *LedgerError {
	return &LedgerError{Code: CodeValidation, Message: err.Error()}
}

// CodeOf extracts the stable code from an error chain, or 0
func CodeOf(err error) int {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Code
	}
	return 0
}
