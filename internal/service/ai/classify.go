package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/failsafe-go/failsafe-go/timeout"

	"github.com/zhouzirui/drafting/backend/internal/apperr"
)

// User-facing failure messages. These are the only texts that leave the service.
const (
	MessageRateLimit     = "Rate limit exceeded. Please try again later."
	MessageTimeout       = "Request timed out. Please try again."
	MessageAuth          = "API authentication failed. Please check your API key configuration."
	MessageNetwork       = "Network error occurred. Please check your connection and try again."
	MessageGeneric       = "An error occurred while generating content. Please try again."
	MessageBlocked       = "Content generation blocked due to safety filters. Please revise your input and try again."
	MessageStopped       = "Content generation stopped. Please try again or modify your input."
	MessageEmptyResponse = "API returned empty response"
)

// Error categories recorded in logs and audit details.
const (
	CategoryRateLimit     = "rate_limit"
	CategoryTimeout       = "timeout"
	CategoryAuth          = "auth_error"
	CategoryNetwork       = "network_error"
	CategoryGeneric       = "api_error"
	CategoryBlocked       = "blocked_prompt"
	CategoryStopped       = "stop_candidate"
	CategoryEmptyResponse = "empty_response"
)

type rule struct {
	match    func(msg string) bool
	kind     apperr.Kind
	category string
	message  string
}

// Order matters: the first matching rule wins.
var messageRules = []rule{
	{
		match: func(msg string) bool {
			return strings.Contains(msg, "rate") || strings.Contains(msg, "quota") || strings.Contains(msg, "429")
		},
		kind: apperr.KindRateLimit, category: CategoryRateLimit, message: MessageRateLimit,
	},
	{
		match: func(msg string) bool {
			return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
		},
		kind: apperr.KindTimeout, category: CategoryTimeout, message: MessageTimeout,
	},
	{
		match: func(msg string) bool {
			return strings.Contains(msg, "api") && strings.Contains(msg, "key")
		},
		kind: apperr.KindAPI, category: CategoryAuth, message: MessageAuth,
	},
	{
		match: func(msg string) bool {
			return strings.Contains(msg, "network") || strings.Contains(msg, "connection")
		},
		kind: apperr.KindAPI, category: CategoryNetwork, message: MessageNetwork,
	},
}

// Classify maps a backend failure onto the generation error taxonomy. It is
// pure and never returns nil for a non-nil error.
func Classify(err error) *apperr.GenerationError {
	if err == nil {
		return nil
	}
	if genErr, ok := apperr.AsGeneration(err); ok {
		return genErr
	}

	switch {
	case errors.Is(err, ErrPromptBlocked):
		return &apperr.GenerationError{Kind: apperr.KindAPI, Category: CategoryBlocked, Message: MessageBlocked, Err: err}
	case errors.Is(err, ErrGenerationStopped):
		return &apperr.GenerationError{Kind: apperr.KindAPI, Category: CategoryStopped, Message: MessageStopped, Err: err}
	case errors.Is(err, timeout.ErrExceeded), errors.Is(err, context.DeadlineExceeded):
		return &apperr.GenerationError{Kind: apperr.KindTimeout, Category: CategoryTimeout, Message: MessageTimeout, Err: err}
	}

	msg := strings.ToLower(err.Error())
	for _, r := range messageRules {
		if r.match(msg) {
			return &apperr.GenerationError{Kind: r.kind, Category: r.category, Message: r.message, Err: err}
		}
	}
	return &apperr.GenerationError{Kind: apperr.KindAPI, Category: CategoryGeneric, Message: MessageGeneric, Err: err}
}
