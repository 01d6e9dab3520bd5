package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"datachat/internal/config"
)

// NewChatModel builds the chat model for the configured provider. The
// openai provider also covers OpenAI-compatible endpoints (set base_url).
func NewChatModel(ctx context.Context, provider string, provCfg config.ProviderConfig, apiKey string) (model.ToolCallingChatModel, error) {
	if apiKey == "" {
		apiKey = provCfg.APIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("api key for provider %s is not set", provider)
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  apiKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: apiKey,
		})
		if err != nil {
			return nil, fmt.Errorf("new gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    apiKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return chatModel, nil
}
