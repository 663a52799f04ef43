package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{APIKey: "key"}
	cfg.ApplyDefaults()

	assert.Equal(t, "gemini-1.5-flash", cfg.ChatModel)
	assert.Equal(t, "embedding-001", cfg.EmbeddingModel)
}

func TestConfig_ApplyDefaults_PreservesSetValues(t *testing.T) {
	cfg := Config{
		APIKey:         "key",
		ChatModel:      "gemini-1.5-pro",
		EmbeddingModel: "text-embedding-004",
	}
	cfg.ApplyDefaults()

	assert.Equal(t, "gemini-1.5-pro", cfg.ChatModel)
	assert.Equal(t, "text-embedding-004", cfg.EmbeddingModel)
}

func TestConfig_Validate_RequiresAPIKey(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
