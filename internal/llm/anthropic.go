package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic is the Anthropic messages provider. It is text only; images
// are dropped with a note in the prompt.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

// AnthropicOpts configures the Anthropic provider.
type AnthropicOpts struct {
	APIKey  string
	Model   string // defaults to claude-3-5-haiku-latest
	BaseURL string
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(opts AnthropicOpts) (*Anthropic, error) {
	if opts.APIKey == "" {
		return nil, errors.New("llm: anthropic: API key is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	model := opts.Model
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &Anthropic{client: anthropic.NewClient(reqOpts...), model: model}, nil
}

// Name returns the provider name.
func (c *Anthropic) Name() string { return "anthropic" }

// Complete sends a single-turn messages request.
func (c *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	prompt := req.Prompt
	if req.Instructions != "" {
		prompt = req.Instructions + "\n\n" + prompt
	}
	if len(req.Images) > 0 {
		prompt += "\n\n(The document also contains images that are not shown here.)"
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(c.model),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages: anthropic.F([]anthropic.MessageParam{{
			Role: anthropic.F(anthropic.MessageParamRole("user")),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(prompt),
				},
			}),
		}}),
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
