// Package llm provides the summarization and question-answering service
// used by the orchestrator, on top of interchangeable model providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/signoff/internal/config"
	"github.com/zulandar/signoff/internal/metrics"
	"go.uber.org/zap"
)

// ErrDisabled is returned by the service when no provider is configured.
var ErrDisabled = errors.New("llm: no provider configured")

// ErrNoContent is returned when there is neither text nor images to work on.
var ErrNoContent = errors.New("llm: document has no readable content")

// DefaultMaxChars bounds the document text sent to the model.
const DefaultMaxChars = 60_000

// Service is what the orchestrator needs from a language model.
type Service interface {
	Summarize(ctx context.Context, text string, images []string) (string, error)
	Answer(ctx context.Context, text, question string, images []string) (string, error)
}

// Request is a single-turn completion request.
type Request struct {
	Instructions string
	Prompt       string
	Images       []string // data URLs
	MaxTokens    int
}

// Completer is a model provider.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Assistant implements Service on a Completer.
type Assistant struct {
	backend   Completer
	log       *zap.Logger
	maxChars  int
	maxTokens int
}

// AssistantOpts holds parameters for creating an Assistant.
type AssistantOpts struct {
	Backend   Completer
	Logger    *zap.Logger
	MaxChars  int // defaults to DefaultMaxChars
	MaxTokens int // defaults to 1024
}

// NewAssistant creates an Assistant.
func NewAssistant(opts AssistantOpts) (*Assistant, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("llm: backend is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxChars := opts.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Assistant{backend: opts.Backend, log: log, maxChars: maxChars, maxTokens: maxTokens}, nil
}

const summarizeInstructions = `You review engineering documents for approval.
Summarize the document below for an approver in at most eight short bullet points.
Cover purpose, scope, key figures or decisions, and anything that looks incomplete or risky.
Reply in the document's language.`

const answerInstructions = `You answer questions about an engineering document awaiting approval.
Use only the document content below. If the answer is not in the document, say so plainly.
Keep the answer short.`

// Summarize returns an approver-oriented summary of the document.
func (a *Assistant) Summarize(ctx context.Context, text string, images []string) (string, error) {
	if strings.TrimSpace(text) == "" && len(images) == 0 {
		return "", ErrNoContent
	}
	return a.call(ctx, "summarize", Request{
		Instructions: summarizeInstructions,
		Prompt:       "Document:\n" + a.clip(text),
		Images:       images,
		MaxTokens:    a.maxTokens,
	})
}

// Answer answers question from the document content.
func (a *Assistant) Answer(ctx context.Context, text, question string, images []string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("llm: question is required")
	}
	if strings.TrimSpace(text) == "" && len(images) == 0 {
		return "", ErrNoContent
	}
	return a.call(ctx, "answer", Request{
		Instructions: answerInstructions,
		Prompt:       "Document:\n" + a.clip(text) + "\n\nQuestion: " + question,
		Images:       images,
		MaxTokens:    a.maxTokens,
	})
}

func (a *Assistant) call(ctx context.Context, op string, req Request) (string, error) {
	start := time.Now()
	out, err := a.backend.Complete(ctx, req)
	metrics.LLMDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCalls.WithLabelValues(op, "error").Inc()
		a.log.Warn("llm: call failed", zap.String("op", op), zap.String("provider", a.backend.Name()), zap.Error(err))
		return "", fmt.Errorf("llm: %s: %w", op, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		metrics.LLMCalls.WithLabelValues(op, "empty").Inc()
		return "", fmt.Errorf("llm: %s: empty response from %s", op, a.backend.Name())
	}
	metrics.LLMCalls.WithLabelValues(op, "ok").Inc()
	return out, nil
}

func (a *Assistant) clip(text string) string {
	r := []rune(text)
	if len(r) <= a.maxChars {
		return text
	}
	return string(r[:a.maxChars]) + "\n[truncated]"
}

// Disabled is the Service used when no provider is configured.
type Disabled struct{}

// Summarize implements Service.
func (Disabled) Summarize(context.Context, string, []string) (string, error) {
	return "", ErrDisabled
}

// Answer implements Service.
func (Disabled) Answer(context.Context, string, string, []string) (string, error) {
	return "", ErrDisabled
}

// New builds the Service selected by cfg.
func New(cfg config.LLMConfig, log *zap.Logger) (Service, error) {
	var backend Completer
	var err error
	switch cfg.Provider {
	case "none":
		return Disabled{}, nil
	case "openai":
		backend, err = NewOpenAI(OpenAIOpts{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case "anthropic":
		backend, err = NewAnthropic(AnthropicOpts{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewAssistant(AssistantOpts{Backend: backend, Logger: log, MaxTokens: cfg.MaxTokens})
}
