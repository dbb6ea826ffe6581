package platforms

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"paperpost/internal/config"
	"paperpost/internal/types"
)

// ChatPlatform adapts any langchaingo model to LLM.
type ChatPlatform struct {
	name  string
	model llms.Model
}

func NewOpenAIPlatform(cfg config.LLMConfig, client *http.Client) (*ChatPlatform, error) {
	if cfg.APIKey == "" {
		return nil, types.NewConfigurationError("llm", "llm.api_key (OPENAI_API_KEY)")
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if client != nil {
		opts = append(opts, openai.WithHTTPClient(client))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	return NewChatPlatform("openai/"+cfg.Model, model), nil
}

func NewChatPlatform(name string, model llms.Model) *ChatPlatform {
	return &ChatPlatform{name: name, model: model}
}

func (p *ChatPlatform) Name() string {
	return p.name
}

func (p *ChatPlatform) Generate(ctx context.Context, req Request) (string, error) {
	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	var opts []llms.CallOption
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := p.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		err = openai.MapError(err)
		if llms.IsAuthenticationError(err) {
			return "", types.NonRetryable(fmt.Errorf("%s: %w", p.name, err))
		}
		return "", fmt.Errorf("%s: %w", p.name, err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty response: %w", p.name, types.ErrMalformedResponse)
	}

	return strings.TrimSpace(resp.Choices[0].Content), nil
}
