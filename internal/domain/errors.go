package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a missing or malformed credential or endpoint. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient marks network, timeout and rate-limit failures of an external boundary.
	ErrTransient = errors.New("transient external error")
	// ErrMalformedResponse marks an unexpected payload shape from an external API.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrPersistence marks an unreadable or unwritable state store.
	ErrPersistence = errors.New("persistence error")
	// ErrEntryNotFound is returned by queue operations on unknown ids.
	ErrEntryNotFound = errors.New("queue entry not found")
)

// PublishErrorKind classifies a failed publish call.
type PublishErrorKind string

const (
	PublishAuth      PublishErrorKind = "auth"
	PublishRateLimit PublishErrorKind = "rate_limit"
	PublishMalformed PublishErrorKind = "malformed"
	PublishTransient PublishErrorKind = "transient"
)

// PublishError is returned by publishers; only the affected entry fails.
type PublishError struct {
	Kind   PublishErrorKind
	Status int
	Err    error
}

func (e *PublishError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("publish %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("publish %s: %v", e.Kind, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a later attempt may succeed without operator action.
func (e *PublishError) Retryable() bool {
	return e.Kind == PublishRateLimit || e.Kind == PublishTransient
}

// Configf builds an ErrConfiguration-wrapped error.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
