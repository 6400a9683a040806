package ai

import (
	"context"
	"errors"
)

// Backend is a remote text-generation API.
//
// Implementations must return the SDK error unchanged (or wrapped with %w and
// no extra text) so classification sees the provider's own message.
type Backend interface {
	Generate(ctx context.Context, req BackendRequest) (BackendResponse, error)
	Name() string
	Model() string
}

// BackendRequest is the provider-neutral generation call.
type BackendRequest struct {
	Prompt          string
	Temperature     float64
	MaxOutputTokens int
}

// BackendResponse carries the raw, un-normalized text.
type BackendResponse struct {
	Text string
}

// Structured provider signals, checked before message matching.
var (
	ErrPromptBlocked     = errors.New("prompt blocked by safety filters")
	ErrGenerationStopped = errors.New("generation stopped by provider")
)
