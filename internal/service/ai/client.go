package ai

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/timeout"
	"github.com/google/uuid"

	"github.com/zhouzirui/drafting/backend/internal/apperr"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 2048

	healthCheckPrompt        = "Respond with 'OK' only."
	healthCheckCorrelationID = "health-check"
)

// Options configures a Client. Zero values and a nil Temperature fall back
// to the defaults above.
type Options struct {
	Timeout         time.Duration
	Temperature     *float64
	MaxOutputTokens int
}

// GenerateParams is a single generation call. Temperature nil means the
// client default; an empty CorrelationID is replaced with a fresh uuid.
type GenerateParams struct {
	Prompt        string
	Temperature   *float64
	CorrelationID string
}

// GeneratedContent is the normalized result of one backend call.
type GeneratedContent struct {
	Text          string    `json:"content"`
	Model         string    `json:"model"`
	CorrelationID string    `json:"correlation_id"`
	LatencyMs     int64     `json:"latency_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// HealthStatus reports the outcome of HealthCheck.
type HealthStatus struct {
	Status    string    `json:"status"`
	Model     string    `json:"model"`
	LatencyMs *int64    `json:"latency_ms,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client wraps a Backend with validation, a timeout, output normalization
// and failure classification. It holds no mutable state and is safe for
// concurrent use.
type Client struct {
	backend     Backend
	opts        Options
	temperature float64
	timeout     timeout.Timeout[BackendResponse]
	logger      logging.Logger
	now         func() time.Time
}

// NewClient builds a Client around backend.
func NewClient(backend Backend, opts Options, logger logging.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	temperature := DefaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	c := &Client{
		backend:     backend,
		opts:        opts,
		temperature: temperature,
		timeout:     timeout.New[BackendResponse](opts.Timeout),
		logger:      logger,
		now:         time.Now,
	}

	logger.WithFields(logging.Fields{
		"provider": backend.Name(),
		"model":    backend.Model(),
		"timeout":  opts.Timeout.String(),
	}).Info("generation client initialized")

	return c
}

// Model returns the backend model identifier.
func (c *Client) Model() string {
	return c.backend.Model()
}

// Generate validates params, calls the backend under the configured timeout
// and returns normalized content or a classified *apperr.GenerationError.
func (c *Client) Generate(ctx context.Context, params GenerateParams) (GeneratedContent, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return GeneratedContent{}, apperr.Invalid("prompt", "cannot be empty")
	}

	temperature := c.temperature
	if params.Temperature != nil {
		temperature = *params.Temperature
		if math.IsNaN(temperature) || temperature < 0 || temperature > 1 {
			return GeneratedContent{}, apperr.Invalid("temperature", "must be between 0.0 and 1.0")
		}
	}

	correlationID := params.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	log := c.logger.WithFields(logging.Fields{
		"correlation_id": correlationID,
		"model":          c.backend.Model(),
	})
	log.WithFields(logging.Fields{
		"prompt_length": len(params.Prompt),
		"temperature":   temperature,
	}).Info("generation request initiated")

	start := c.now()
	resp, err := failsafe.With[BackendResponse](c.timeout).
		WithContext(ctx).
		GetWithExecution(func(exec failsafe.Execution[BackendResponse]) (BackendResponse, error) {
			return c.backend.Generate(exec.Context(), BackendRequest{
				Prompt:          params.Prompt,
				Temperature:     temperature,
				MaxOutputTokens: c.opts.MaxOutputTokens,
			})
		})
	latency := c.now().Sub(start).Milliseconds()

	if err != nil {
		genErr := Classify(err)
		entry := log.WithFields(logging.Fields{
			"latency_ms": latency,
			"error_type": genErr.Category,
		})
		if genErr.Category == CategoryBlocked || genErr.Category == CategoryStopped {
			entry.Warn("generation request rejected by provider")
		} else {
			entry.Error("generation request failed")
		}
		return GeneratedContent{}, genErr
	}

	if strings.TrimSpace(resp.Text) == "" {
		log.WithFields(logging.Fields{
			"latency_ms": latency,
			"error_type": CategoryEmptyResponse,
		}).Error("generation request failed")
		return GeneratedContent{}, &apperr.GenerationError{
			Kind:     apperr.KindAPI,
			Category: CategoryEmptyResponse,
			Message:  MessageEmptyResponse,
		}
	}

	text := Normalize(resp.Text)
	log.WithFields(logging.Fields{
		"latency_ms":     latency,
		"content_length": len(text),
	}).Info("generation request completed")

	return GeneratedContent{
		Text:          text,
		Model:         c.backend.Model(),
		CorrelationID: correlationID,
		LatencyMs:     latency,
		Timestamp:     c.now().UTC(),
	}, nil
}

// HealthCheck issues a trivial generation and reports whether it succeeded.
// It is meant for diagnostics, not for the request path.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	zero := 0.0
	result, err := c.Generate(ctx, GenerateParams{
		Prompt:        healthCheckPrompt,
		Temperature:   &zero,
		CorrelationID: healthCheckCorrelationID,
	})
	if err != nil {
		return HealthStatus{
			Status:    "unhealthy",
			Model:     c.backend.Model(),
			Error:     err.Error(),
			Timestamp: c.now().UTC(),
		}
	}
	latency := result.LatencyMs
	return HealthStatus{
		Status:    "healthy",
		Model:     c.backend.Model(),
		LatencyMs: &latency,
		Timestamp: c.now().UTC(),
	}
}
