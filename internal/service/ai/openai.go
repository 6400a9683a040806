package ai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openAIFinishContentFilter = "content_filter"

// OpenAIBackend uses the chat completions API of any OpenAI-compatible endpoint.
type OpenAIBackend struct {
	client openai.Client
	model  string
}

// NewOpenAIBackend creates an OpenAI-compatible backend.
func NewOpenAIBackend(apiKey, baseURL, model string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, errors.New("openai credential is required")
	}
	if model == "" {
		return nil, errors.New("openai model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIBackend{client: openai.NewClient(opts...), model: model}, nil
}

func (o *OpenAIBackend) Name() string  { return "openai" }
func (o *OpenAIBackend) Model() string { return o.model }

// Generate sends the prompt as a single user message.
func (o *OpenAIBackend) Generate(ctx context.Context, req BackendRequest) (BackendResponse, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(o.model),
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage(req.Prompt)},
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(int64(req.MaxOutputTokens)),
	})
	if err != nil {
		return BackendResponse{}, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return BackendResponse{}, nil
	}
	choice := resp.Choices[0]
	if choice.Message.Content == "" && choice.FinishReason == openAIFinishContentFilter {
		return BackendResponse{}, fmt.Errorf("%w (%s)", ErrGenerationStopped, choice.FinishReason)
	}
	return BackendResponse{Text: choice.Message.Content}, nil
}
