// Package apperr holds the error taxonomy shared by prompt construction,
// the generation client and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// InvalidInputError is a client-side validation failure. It is never
// retried and never audited.
type InvalidInputError struct {
	Field  string
	Reason string
}

// Invalid builds an InvalidInputError.
func Invalid(field, reason string) *InvalidInputError {
	return &InvalidInputError{Field: field, Reason: reason}
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// IsInvalidInput reports whether err carries an InvalidInputError.
func IsInvalidInput(err error) bool {
	var target *InvalidInputError
	return errors.As(err, &target)
}

// Kind is the coarse class of a backend failure.
type Kind int

const (
	KindAPI Kind = iota
	KindRateLimit
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	default:
		return "api"
	}
}

// Sentinels for errors.Is matching on GenerationError kinds.
var (
	ErrAPI       = errors.New("generation api error")
	ErrRateLimit = errors.New("generation rate limited")
	ErrTimeout   = errors.New("generation timed out")
)

// GenerationError is a classified failure from the remote generation backend.
// Message is safe to show to users; Err is the underlying cause and must only
// reach logs.
type GenerationError struct {
	Kind     Kind
	Category string
	Message  string
	Err      error
}

func (e *GenerationError) Error() string {
	return e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *GenerationError) Is(target error) bool {
	switch target {
	case ErrAPI:
		return e.Kind == KindAPI
	case ErrRateLimit:
		return e.Kind == KindRateLimit
	case ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// AsGeneration extracts a GenerationError from err.
func AsGeneration(err error) (*GenerationError, bool) {
	var target *GenerationError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
