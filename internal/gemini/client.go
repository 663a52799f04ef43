// Package gemini provides the Google Gemini model client used for both
// embedding and answer generation.
//
// The same client (and therefore the same embedding model) must serve index
// time and query time; mixing embedding models across a collection's
// lifetime silently breaks similarity search.
package gemini

import (
	"context"
	"errors"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/fyrsmithlabs/supportd/internal/vectorstore"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")
)

// Config holds Gemini client configuration.
type Config struct {
	// APIKey is the Google AI API key. Required.
	APIKey string

	// ChatModel is the generation model name.
	ChatModel string

	// EmbeddingModel is the embedding model name.
	EmbeddingModel string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ChatModel == "" {
		c.ChatModel = "gemini-1.5-flash"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "embedding-001"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}
	return nil
}

var _ vectorstore.Embedder = (*Client)(nil)

// Client wraps the langchaingo Gemini client.
type Client struct {
	llm      *googleai.GoogleAI
	embedder *lcembeddings.EmbedderImpl
	config   Config
}

// NewClient creates a Gemini client for the given configuration.
func NewClient(ctx context.Context, config Config) (*Client, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(config.APIKey),
		googleai.WithDefaultModel(config.ChatModel),
		googleai.WithDefaultEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Client{
		llm:      llm,
		embedder: embedder,
		config:   config,
	}, nil
}

// Model returns the generation model.
func (c *Client) Model() llms.Model {
	return c.llm
}

// EmbedDocuments generates embeddings for multiple texts, one vector per
// input, all with the same dimensionality.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vector, nil
}
