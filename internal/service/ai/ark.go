package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

const arkFinishContentFilter = "content_filter"

// ArkBackend runs prompts through an eino chain ending in an Ark chat model.
type ArkBackend struct {
	model string
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArkBackend compiles the chat template + chat model chain.
func NewArkBackend(ctx context.Context, chatModel model.ChatModel, modelName string) (*ArkBackend, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("ark chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.UserMessage("{prompt}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile ark chain: %w", err)
	}

	return &ArkBackend{model: modelName, chain: runnable}, nil
}

func (a *ArkBackend) Name() string  { return "ark" }
func (a *ArkBackend) Model() string { return a.model }

// Generate invokes the chain with per-call sampling options.
func (a *ArkBackend) Generate(ctx context.Context, req BackendRequest) (BackendResponse, error) {
	msg, err := a.chain.Invoke(ctx,
		map[string]any{"prompt": req.Prompt},
		compose.WithChatModelOption(
			model.WithTemperature(float32(req.Temperature)),
			model.WithMaxTokens(req.MaxOutputTokens),
		),
	)
	if err != nil {
		return BackendResponse{}, err
	}
	if msg == nil {
		return BackendResponse{}, nil
	}
	if msg.Content == "" && msg.ResponseMeta != nil && msg.ResponseMeta.FinishReason == arkFinishContentFilter {
		return BackendResponse{}, fmt.Errorf("%w (%s)", ErrGenerationStopped, msg.ResponseMeta.FinishReason)
	}
	return BackendResponse{Text: msg.Content}, nil
}
