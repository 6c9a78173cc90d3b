package provider

import (
	"context"
	"errors"

	"github.com/permaevidence/HopPT/config"
	openai_provider "github.com/permaevidence/HopPT/provider/openai"
)

// Message is one chat turn handed to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the model surface the pipeline depends on: one-shot chat
// completions for planning/utility calls, a streaming completion for the
// final answer, embeddings for retrieval, and a translation helper for
// cross-lingual focus queries.
type Provider interface {
	// Complete runs a non-streaming chat call against the primary model.
	Complete(ctx context.Context, messages []Message) (string, error)

	// CompleteUtility runs a non-streaming call against the cheaper model
	// used for query generation and coverage assessment.
	CompleteUtility(ctx context.Context, messages []Message) (string, error)

	// Stream runs a streaming chat call, invoking onDelta for every text
	// fragment. It returns once the stream completes or ctx is cancelled.
	Stream(ctx context.Context, messages []Message, onDelta func(string)) error

	// Embed returns one vector per input text using the named model.
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)

	// Translate renders text into the target language (ISO 639-1 code).
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// NewProvider builds the configured LLM client.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key not configured")
	}
	client := openai_provider.NewClient(
		cfg.APIKey,
		cfg.BaseURL,
		cfg.ChatModel,
		cfg.UtilityModel,
		cfg.Temperature,
		cfg.MaxTokens,
		cfg.Timeout,
	)
	return &openaiAdapter{client: client}, nil
}

// openaiAdapter bridges the openai client's message type to Provider's.
type openaiAdapter struct {
	client *openai_provider.Client
}

func toOpenAI(messages []Message) []openai_provider.Message {
	out := make([]openai_provider.Message, len(messages))
	for i, m := range messages {
		out[i] = openai_provider.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func (a *openaiAdapter) Complete(ctx context.Context, messages []Message) (string, error) {
	return a.client.Complete(ctx, toOpenAI(messages))
}

func (a *openaiAdapter) CompleteUtility(ctx context.Context, messages []Message) (string, error) {
	return a.client.CompleteUtility(ctx, toOpenAI(messages))
}

func (a *openaiAdapter) Stream(ctx context.Context, messages []Message, onDelta func(string)) error {
	return a.client.Stream(ctx, toOpenAI(messages), onDelta)
}

func (a *openaiAdapter) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return a.client.Embed(ctx, model, texts)
}

func (a *openaiAdapter) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return a.client.Translate(ctx, text, targetLang)
}
