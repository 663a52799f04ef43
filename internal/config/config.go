// Package config provides configuration loading for supportd.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/supportd/internal/logging"
	"github.com/fyrsmithlabs/supportd/internal/telemetry"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the top-level supportd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     logging.Config    `koanf:"logging"`
	Gemini      GeminiConfig      `koanf:"gemini"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Collections CollectionsConfig `koanf:"collections"`
	Documents   DocumentsConfig   `koanf:"documents"`
	Telemetry   telemetry.Config  `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// GeminiConfig holds Google Gemini model configuration.
//
// The same embedding model must serve both index time and query time;
// switching models invalidates every persisted collection.
type GeminiConfig struct {
	// APIKey is the Google AI API key. Required.
	APIKey string `koanf:"api_key"`

	// ChatModel is the generation model.
	ChatModel string `koanf:"chat_model"`

	// EmbeddingModel is the embedding model.
	EmbeddingModel string `koanf:"embedding_model"`

	// Temperature for answer generation. Nil means the 0.3 default;
	// an explicit 0 stays 0 for deterministic output.
	Temperature *float64 `koanf:"temperature"`
}

// VectorStoreConfig selects and configures the vector index backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string `koanf:"provider"`

	// Path is the persistence directory for the chromem provider.
	Path string `koanf:"path"`

	// QdrantHost and QdrantPort locate the Qdrant gRPC endpoint.
	QdrantHost string `koanf:"qdrant_host"`
	QdrantPort int    `koanf:"qdrant_port"`

	// VectorSize is the embedding dimensionality. Must match the
	// embedding model's output.
	VectorSize int `koanf:"vector_size"`
}

// ChunkingConfig controls document splitting.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// RetrievalConfig controls similarity search.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`
}

// CollectionsConfig names the default collection and the per-session prefix.
type CollectionsConfig struct {
	Default    string `koanf:"default"`
	UserPrefix string `koanf:"user_prefix"`
}

// DocumentsConfig locates the bundled default documents.
type DocumentsConfig struct {
	Dir string `koanf:"dir"`
}

// ApplyDefaults sets default values for missing configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	c.Logging.ApplyDefaults()

	if c.Gemini.ChatModel == "" {
		c.Gemini.ChatModel = "gemini-1.5-flash"
	}
	if c.Gemini.EmbeddingModel == "" {
		c.Gemini.EmbeddingModel = "embedding-001"
	}
	if c.Gemini.Temperature == nil {
		temp := 0.3
		c.Gemini.Temperature = &temp
	}

	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = "chromem"
	}
	if c.VectorStore.Path == "" {
		c.VectorStore.Path = "~/.config/supportd/vectorstore"
	}
	if c.VectorStore.QdrantHost == "" {
		c.VectorStore.QdrantHost = "localhost"
	}
	if c.VectorStore.QdrantPort == 0 {
		c.VectorStore.QdrantPort = 6334
	}
	if c.VectorStore.VectorSize == 0 {
		c.VectorStore.VectorSize = 768 // embedding-001 dimensions
	}

	// Overlap defaults only alongside size, so an explicit size with zero
	// overlap stays zero.
	if c.Chunking.Size == 0 {
		c.Chunking.Size = 1000
		if c.Chunking.Overlap == 0 {
			c.Chunking.Overlap = 200
		}
	}

	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 3
	}

	if c.Collections.Default == "" {
		c.Collections.Default = "support_docs"
	}
	if c.Collections.UserPrefix == "" {
		c.Collections.UserPrefix = "user_"
	}

	if c.Documents.Dir == "" {
		c.Documents.Dir = "default_docs"
	}

	c.Telemetry.ApplyDefaults()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port: %d", ErrInvalidConfig, c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: logging: %v", ErrInvalidConfig, err)
	}
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("%w: gemini api_key required (set GEMINI_API_KEY)", ErrInvalidConfig)
	}
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("%w: unsupported vectorstore provider: %s (supported: chromem, qdrant)",
			ErrInvalidConfig, c.VectorStore.Provider)
	}
	if c.VectorStore.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunk overlap must be in [0, size): got %d with size %d",
			ErrInvalidConfig, c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval top_k must be positive", ErrInvalidConfig)
	}
	if c.Collections.UserPrefix == "" {
		return fmt.Errorf("%w: collections user_prefix required", ErrInvalidConfig)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("%w: telemetry: %v", ErrInvalidConfig, err)
	}
	return nil
}
