package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/supportd/internal/logging"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := logging.Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		config    logging.Config
		wantError bool
	}{
		{
			name:      "valid json config",
			config:    logging.Config{Level: "debug", Format: "json"},
			wantError: false,
		},
		{
			name:      "valid console config",
			config:    logging.Config{Level: "warn", Format: "console"},
			wantError: false,
		},
		{
			name:      "bad level",
			config:    logging.Config{Level: "verbose", Format: "json"},
			wantError: true,
		},
		{
			name:      "bad format",
			config:    logging.Config{Level: "info", Format: "yaml"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	logger, err := logging.New(logging.Config{
		Level:  "debug",
		Format: "console",
		Fields: map[string]string{"service": "supportd"},
	})
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Debug("plumbing check")
	_ = logger.Sync() // sync to stderr can fail on Linux, not asserted
}

func TestNew_DefaultsWhenEmpty(t *testing.T) {
	logger, err := logging.New(logging.Config{})
	require.NoError(t, err)
	require.NotNil(t, logger)
}
