package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/sourcecheck/internal/logger"
	"github.com/ppiankov/sourcecheck/internal/util"
)

// OpenAIBackend uses OpenAI embeddings for similarity and a chat model for
// entailment classification
type OpenAIBackend struct {
	client *openai.Client
	config Config
}

// NewOpenAIBackend creates a new OpenAI backend
func NewOpenAIBackend(config Config) (*OpenAIBackend, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Transport: &http.Transport{Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy)},
	}

	return &OpenAIBackend{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the backend name
func (b *OpenAIBackend) Name() string {
	return "openai"
}

// IsAvailable checks if the backend is properly configured
func (b *OpenAIBackend) IsAvailable(ctx context.Context) bool {
	if _, err := b.client.ListModels(ctx); err != nil {
		logger.Warn("OpenAI API check failed: %v", err)
		return false
	}
	return true
}

// Similarity embeds both texts in one request and compares the vectors
func (b *OpenAIBackend) Similarity(ctx context.Context, a, c string) (float64, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	embeddingModel := b.config.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}

	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{a, c},
		Model: openai.EmbeddingModel(embeddingModel),
	})
	if err != nil {
		return 0, wrapOpenAIError(err)
	}
	if len(resp.Data) != 2 {
		return 0, fmt.Errorf("OpenAI returned %d embeddings, want 2", len(resp.Data))
	}

	vecs := make([][]float64, 2)
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index > 1 {
			return 0, fmt.Errorf("OpenAI returned embedding index %d", d.Index)
		}
		vec := make([]float64, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float64(v)
		}
		vecs[d.Index] = vec
	}
	return vectorCosine(vecs[0], vecs[1]), nil
}

// ClassifyEntailment asks the chat model for class probabilities as JSON
func (b *OpenAIBackend) ClassifyEntailment(ctx context.Context, premise, hypothesis string) (Entailment, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	chatModel := b.config.Model
	if chatModel == "" {
		chatModel = openai.GPT4oMini
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: entailmentSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: entailmentPrompt(premise, hypothesis)},
		},
		MaxTokens:   60,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Entailment{}, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return Entailment{}, fmt.Errorf("no response from OpenAI")
	}

	return parseEntailment(strings.TrimSpace(resp.Choices[0].Message.Content))
}

func (b *OpenAIBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(b.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// wrapOpenAIError exposes HTTP status codes so the guard can decide on retries
func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Provider: "OpenAI", Code: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &StatusError{Provider: "OpenAI", Code: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return fmt.Errorf("OpenAI API error: %w", err)
}
