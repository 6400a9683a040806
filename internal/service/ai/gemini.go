package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-3-flash-preview"

// GeminiBackend calls the Gemini API through the official genai SDK.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a Gemini backend. The API key is only handed to the SDK.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, errors.New("gemini credential is required")
	}
	return newGeminiBackend(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, model)
}

func newGeminiBackend(ctx context.Context, cfg *genai.ClientConfig, model string) (*GeminiBackend, error) {
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiBackend{client: client, model: model}, nil
}

func (g *GeminiBackend) Name() string  { return "gemini" }
func (g *GeminiBackend) Model() string { return g.model }

// Generate sends a single-turn prompt.
func (g *GeminiBackend) Generate(ctx context.Context, req BackendRequest) (BackendResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxOutputTokens),
	})
	if err != nil {
		return BackendResponse{}, err
	}
	if resp == nil {
		return BackendResponse{}, nil
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return BackendResponse{}, fmt.Errorf("%w (%s)", ErrPromptBlocked, resp.PromptFeedback.BlockReason)
	}

	text := resp.Text()
	if text == "" && len(resp.Candidates) > 0 && resp.Candidates[0] != nil &&
		resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return BackendResponse{}, fmt.Errorf("%w (%s)", ErrGenerationStopped, resp.Candidates[0].FinishReason)
	}

	return BackendResponse{Text: text}, nil
}
