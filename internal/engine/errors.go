package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while dispatching a chain.
//
// Any RuntimeError aborts the chain. When the engine owns the transaction
// scope, every write made by the chain is rolled back.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Chain identifies the affected cascade chain.
	Chain string

	// RuleID identifies the reaction rule being applied, if any.
	RuleID string

	// Depth is the depth of the event being dispatched.
	Depth int

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeCascadeLimit indicates a write would exceed the maximum depth.
	ErrCodeCascadeLimit RuntimeErrorCode = "CASCADE_LIMIT_EXCEEDED"

	// ErrCodeCustomAction indicates a custom action returned an error.
	ErrCodeCustomAction RuntimeErrorCode = "CUSTOM_ACTION_FAILED"

	// ErrCodeMissingAction indicates a custom action name is not registered.
	ErrCodeMissingAction RuntimeErrorCode = "MISSING_ACTION"

	// ErrCodeWriteFailed indicates the data access failed to read or write.
	ErrCodeWriteFailed RuntimeErrorCode = "WRITE_FAILED"

	// ErrCodeWriteRejected indicates the write guard refused a write.
	ErrCodeWriteRejected RuntimeErrorCode = "WRITE_REJECTED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Chain != "" && e.RuleID != "" {
		msg = fmt.Sprintf("%s (chain=%s, rule=%s)", msg, e.Chain, e.RuleID)
	} else if e.Chain != "" {
		msg = fmt.Sprintf("%s (chain=%s)", msg, e.Chain)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsCascadeLimit returns true if the error is a cascade depth error.
// Uses errors.As to handle wrapped errors.
func IsCascadeLimit(err error) bool {
	return hasCode(err, ErrCodeCascadeLimit)
}

// IsCustomActionError returns true if a custom action failed or was missing.
func IsCustomActionError(err error) bool {
	return hasCode(err, ErrCodeCustomAction) || hasCode(err, ErrCodeMissingAction)
}

// IsWriteRejected returns true if the write guard refused a cascade write.
// The guard's own error is reachable with errors.As.
func IsWriteRejected(err error) bool {
	return hasCode(err, ErrCodeWriteRejected)
}

// ErrorCode returns the code of the RuntimeError in err's chain, or "".
func ErrorCode(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
