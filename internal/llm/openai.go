package llm

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
)

// OpenAI is the OpenAI chat-completions provider. Images are sent as
// image_url parts, so vision-capable models see slide media.
type OpenAI struct {
	client *openai.Client
	model  string
}

// OpenAIOpts configures the OpenAI provider.
type OpenAIOpts struct {
	APIKey  string
	Model   string // defaults to gpt-4o-mini
	BaseURL string // optional, for compatible gateways
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(opts OpenAIOpts) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, errors.New("llm: openai: API key is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Name returns the provider name.
func (c *OpenAI) Name() string { return "openai" }

// Complete sends a chat completion request.
func (c *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(req.Images) == 0 {
		user.Content = req.Prompt
	} else {
		parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.Prompt}}
		for _, img := range req.Images {
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: img, Detail: openai.ImageURLDetailLow},
			})
		}
		user.MultiContent = parts
	}

	messages := []openai.ChatCompletionMessage{user}
	if req.Instructions != "" {
		messages = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instructions,
		}}, messages...)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
