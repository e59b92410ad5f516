package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a provider failure for retry and circuit decisions
type Kind string

const (
	KindValidation  Kind = "validation"   // bad input, never retried
	KindTimeout     Kind = "timeout"      // deadline exceeded, retryable
	KindServerError Kind = "server_error" // 5xx-equivalent, retryable
	KindRateLimited Kind = "rate_limited" // 429-equivalent, retryable
	KindUnavailable Kind = "unavailable"  // network-level failure, retryable
	KindCircuitOpen Kind = "circuit_open" // call skipped, not attempted
)

// Error is a classified provider failure
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified provider error
func NewError(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// KindOf extracts the classification from an error chain.
// Unclassified errors are treated as unavailable.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnavailable
}

// Retryable reports whether a classified error is worth retrying.
// Validation failures and circuit-open skips never are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindTimeout, KindServerError, KindRateLimited, KindUnavailable:
		return true
	default:
		return false
	}
}

// Classify wraps a raw transport error with the matching classification
func Classify(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(KindTimeout, provider, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "eof"):
		return NewError(KindUnavailable, provider, err)
	case strings.Contains(msg, "timeout"):
		return NewError(KindTimeout, provider, err)
	default:
		return NewError(KindUnavailable, provider, err)
	}
}
