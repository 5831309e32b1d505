package ai

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/diviner-ai/diviner/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the embedding model requested from the
	// OpenAI-compatible endpoint.
	DefaultEmbeddingModel = "text-embedding-v4"
	// DefaultEmbeddingDimensions is the vector dimension the knowledge store
	// is provisioned for.
	DefaultEmbeddingDimensions = 1024
	// DefaultChatModel is the completion model used for chat answers.
	DefaultChatModel = "qwen-max"
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding does not match the
	// configured dimension
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when the AI API key is not set
	ErrNoAPIKey = errors.New("DIVINER_AI_API_KEY environment variable not set")
)

// ChatStream is a handle on a streamed chat completion. RecvRaw yields one
// raw upstream chunk at a time and returns io.EOF when the stream ends.
type ChatStream interface {
	RecvRaw() ([]byte, error)
	Close() error
}

// API defines the upstream operations the client depends on
type API interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
	CreateChatStream(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (ChatStream, error)
}

// Client wraps an OpenAI-compatible API for embeddings and streamed chat
type Client struct {
	api        API
	chatModel  string
	dimensions int
}

// OpenAIAdapter implements API over sashabaranov/go-openai.
type OpenAIAdapter struct {
	client         *openai.Client
	embeddingModel openai.EmbeddingModel
	dimensions     int
}

func NewOpenAIAdapter(apiKey, baseURL, embeddingModel string, dimensions int) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client:         openai.NewClientWithConfig(cfg),
		embeddingModel: openai.EmbeddingModel(embeddingModel),
		dimensions:     dimensions,
	}
}

// CreateEmbeddings calls the embeddings API for a single input
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      a.embeddingModel,
		Dimensions: a.dimensions,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

// CreateChatStream opens a streamed chat completion
func (a *OpenAIAdapter) CreateChatStream(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (ChatStream, error) {
	return a.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      string
	EmbeddingDimensions int
	ChatModel           string
}

// NewClient creates a new AI client with explicit configuration.
func NewClient(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	return &Client{
		api:        NewOpenAIAdapter(cfg.APIKey, cfg.BaseURL, cfg.EmbeddingModel, dimensions),
		chatModel:  chatModel,
		dimensions: dimensions,
	}
}

// NewClientFromEnv creates a new AI client using the DIVINER_AI_API_KEY
// environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("DIVINER_AI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(Config{APIKey: apiKey}), nil
}

// GenerateEmbedding generates an embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	embedding, err := c.api.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(embedding) != c.dimensions {
		return nil, ErrWrongDimensions
	}

	return embedding, nil
}

// StreamChatCompletion opens a streamed completion for the conversation and
// returns the raw stream handle. The caller owns the stream and must Close it.
func (c *Client) StreamChatCompletion(ctx context.Context, messages []domain.ConversationMessage) (ChatStream, error) {
	if len(messages) == 0 {
		return nil, domain.ErrEmptyConversation
	}

	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		if !m.Role.IsValid() {
			return nil, domain.ErrInvalidRole
		}
		converted = append(converted, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	stream, err := c.api.CreateChatStream(ctx, c.chatModel, converted)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "completion service returned an error", err)
	}
	return stream, nil
}
