package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/drafting/backend/internal/apperr"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
)

func newTestClient(backend Backend, opts Options) *Client {
	return NewClient(backend, opts, logging.NewNopLogger())
}

func floatPtr(v float64) *float64 { return &v }

func TestGenerateNormalizesOutput(t *testing.T) {
	backend := &fakeBackend{text: "  Hello.\r\n\n\n\nRegards  "}
	client := newTestClient(backend, Options{})

	got, err := client.Generate(context.Background(), GenerateParams{Prompt: "write", CorrelationID: "req-1"})
	require.NoError(t, err)

	assert.Equal(t, "Hello.\n\nRegards", got.Text)
	assert.Equal(t, "fake-model", got.Model)
	assert.Equal(t, "req-1", got.CorrelationID)
	assert.GreaterOrEqual(t, got.LatencyMs, int64(0))
	assert.False(t, got.Timestamp.IsZero())
}

func TestGenerateUsesDefaults(t *testing.T) {
	backend := &fakeBackend{text: "ok"}
	client := newTestClient(backend, Options{})

	got, err := client.Generate(context.Background(), GenerateParams{Prompt: "write"})
	require.NoError(t, err)

	require.Equal(t, 1, backend.callCount())
	assert.Equal(t, DefaultTemperature, backend.calls[0].Temperature)
	assert.Equal(t, DefaultMaxOutputTokens, backend.calls[0].MaxOutputTokens)
	assert.NotEmpty(t, got.CorrelationID)
}

func TestGeneratePassesExplicitTemperature(t *testing.T) {
	backend := &fakeBackend{text: "ok"}
	client := newTestClient(backend, Options{MaxOutputTokens: 512})

	_, err := client.Generate(context.Background(), GenerateParams{Prompt: "write", Temperature: floatPtr(0)})
	require.NoError(t, err)

	assert.Equal(t, 0.0, backend.calls[0].Temperature)
	assert.Equal(t, 512, backend.calls[0].MaxOutputTokens)
}

func TestGenerateRejectsInvalidInputWithoutCallingBackend(t *testing.T) {
	cases := []struct {
		name   string
		params GenerateParams
	}{
		{"empty prompt", GenerateParams{Prompt: "   "}},
		{"temperature too high", GenerateParams{Prompt: "write", Temperature: floatPtr(1.5)}},
		{"temperature negative", GenerateParams{Prompt: "write", Temperature: floatPtr(-0.1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &fakeBackend{text: "ok"}
			client := newTestClient(backend, Options{})

			_, err := client.Generate(context.Background(), tc.params)
			require.Error(t, err)
			assert.True(t, apperr.IsInvalidInput(err))
			assert.Zero(t, backend.callCount())
		})
	}
}

func TestGenerateClassifiesBackendFailure(t *testing.T) {
	backend := &fakeBackend{err: errors.New("Quota exceeded for project")}
	client := newTestClient(backend, Options{})

	_, err := client.Generate(context.Background(), GenerateParams{Prompt: "write"})
	require.Error(t, err)

	assert.ErrorIs(t, err, apperr.ErrRateLimit)
	assert.Equal(t, MessageRateLimit, err.Error())
	assert.NotContains(t, err.Error(), "project")
}

func TestGenerateEmptyResponse(t *testing.T) {
	for _, text := range []string{"", "  \n\t "} {
		backend := &fakeBackend{text: text}
		client := newTestClient(backend, Options{})

		_, err := client.Generate(context.Background(), GenerateParams{Prompt: "write"})
		require.Error(t, err)

		genErr, ok := apperr.AsGeneration(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindAPI, genErr.Kind)
		assert.Equal(t, CategoryEmptyResponse, genErr.Category)
		assert.Equal(t, MessageEmptyResponse, genErr.Message)
	}
}

func TestGenerateTimesOut(t *testing.T) {
	backend := &fakeBackend{generate: func(ctx context.Context, _ BackendRequest) (BackendResponse, error) {
		select {
		case <-ctx.Done():
			return BackendResponse{}, ctx.Err()
		case <-time.After(2 * time.Second):
			return BackendResponse{Text: "late"}, nil
		}
	}}
	client := newTestClient(backend, Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := client.Generate(context.Background(), GenerateParams{Prompt: "write"})
	require.Error(t, err)

	assert.ErrorIs(t, err, apperr.ErrTimeout)
	assert.Equal(t, MessageTimeout, err.Error())
	assert.Less(t, time.Since(start), time.Second)
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		backend := &fakeBackend{text: "OK"}
		status := newTestClient(backend, Options{}).HealthCheck(context.Background())

		assert.Equal(t, "healthy", status.Status)
		assert.Equal(t, "fake-model", status.Model)
		require.NotNil(t, status.LatencyMs)
		assert.Empty(t, status.Error)
		require.Equal(t, 1, backend.callCount())
		assert.Equal(t, healthCheckPrompt, backend.calls[0].Prompt)
		assert.Equal(t, 0.0, backend.calls[0].Temperature)
	})

	t.Run("unhealthy", func(t *testing.T) {
		backend := &fakeBackend{err: errors.New("invalid API key")}
		status := newTestClient(backend, Options{}).HealthCheck(context.Background())

		assert.Equal(t, "unhealthy", status.Status)
		assert.Nil(t, status.LatencyMs)
		assert.Equal(t, MessageAuth, status.Error)
	})
}
