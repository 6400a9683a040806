package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/failsafe-go/failsafe-go/timeout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/drafting/backend/internal/apperr"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		kind     apperr.Kind
		category string
		message  string
	}{
		{"quota", errors.New("Quota exceeded"), apperr.KindRateLimit, CategoryRateLimit, MessageRateLimit},
		{"status 429", errors.New("HTTP 429 Too Many Requests"), apperr.KindRateLimit, CategoryRateLimit, MessageRateLimit},
		{"rate limit", errors.New("rate limit reached"), apperr.KindRateLimit, CategoryRateLimit, MessageRateLimit},
		{"timeout text", errors.New("upstream timeout"), apperr.KindTimeout, CategoryTimeout, MessageTimeout},
		{"timed out text", errors.New("request timed out"), apperr.KindTimeout, CategoryTimeout, MessageTimeout},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), apperr.KindTimeout, CategoryTimeout, MessageTimeout},
		{"failsafe timeout", timeout.ErrExceeded, apperr.KindTimeout, CategoryTimeout, MessageTimeout},
		{"api key", errors.New("Invalid API key provided"), apperr.KindAPI, CategoryAuth, MessageAuth},
		{"network", errors.New("network unreachable"), apperr.KindAPI, CategoryNetwork, MessageNetwork},
		{"connection", errors.New("connection reset by peer"), apperr.KindAPI, CategoryNetwork, MessageNetwork},
		{"blocked", fmt.Errorf("%w (SAFETY)", ErrPromptBlocked), apperr.KindAPI, CategoryBlocked, MessageBlocked},
		{"stopped", fmt.Errorf("%w (content_filter)", ErrGenerationStopped), apperr.KindAPI, CategoryStopped, MessageStopped},
		{"other", errors.New("something odd"), apperr.KindAPI, CategoryGeneric, MessageGeneric},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			require.NotNil(t, got)
			assert.Equal(t, tc.kind, got.Kind)
			assert.Equal(t, tc.category, got.Category)
			assert.Equal(t, tc.message, got.Message)
			assert.ErrorIs(t, got, tc.err)
		})
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	got := Classify(errors.New("rate limit timeout on connection"))
	assert.Equal(t, apperr.KindRateLimit, got.Kind)

	got = Classify(errors.New("timeout while opening connection"))
	assert.Equal(t, apperr.KindTimeout, got.Kind)
}

func TestClassifyKeepsExistingGenerationError(t *testing.T) {
	orig := &apperr.GenerationError{Kind: apperr.KindAPI, Category: CategoryEmptyResponse, Message: MessageEmptyResponse}
	assert.Same(t, orig, Classify(fmt.Errorf("wrapped: %w", orig)))
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}
