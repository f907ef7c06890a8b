package runtime

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dshills/flowmark/flow"
)

// AIRuntime implements ai:source over an OpenAI-compatible chat API.
//
// Config keys: prompt (required; usually a template referencing upstream
// outputs), model, system, apiKey, baseUrl, temperature. The API key
// should come from $secrets, never inline. Output is
// {"text": ..., "model": ..., "tokens": ...}.
type AIRuntime struct {
	// Client overrides the constructed client, mainly for tests.
	Client *openai.Client
}

func (a *AIRuntime) Execute(ctx context.Context, req *flow.Request) (any, error) {
	prompt := stringConfig(req.Config, "prompt", "")
	if prompt == "" {
		return nil, fmt.Errorf("ai:source requires a prompt config value")
	}

	client := a.Client
	if client == nil {
		apiKey := stringConfig(req.Config, "apiKey", "")
		if apiKey == "" {
			return nil, fmt.Errorf("ai:source requires an apiKey config value")
		}
		clientCfg := openai.DefaultConfig(apiKey)
		if baseURL := stringConfig(req.Config, "baseUrl", ""); baseURL != "" {
			clientCfg.BaseURL = baseURL
		}
		client = openai.NewClientWithConfig(clientCfg)
	}

	messages := []openai.ChatCompletionMessage{}
	if system := stringConfig(req.Config, "system", ""); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:    stringConfig(req.Config, "model", openai.GPT4oMini),
		Messages: messages,
	}
	if temp, ok := req.Config["temperature"].(float64); ok {
		chatReq.Temperature = float32(temp)
	}

	resp, err := client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	return map[string]any{
		"text":   resp.Choices[0].Message.Content,
		"model":  resp.Model,
		"tokens": resp.Usage.TotalTokens,
	}, nil
}
