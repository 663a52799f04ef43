package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/telemetry"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := telemetry.Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, "supportd", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SamplingRate)
	assert.Equal(t, 60*time.Second, cfg.ExportInterval)
	assert.False(t, cfg.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     telemetry.Config
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			cfg:     telemetry.Config{Protocol: "grpc", SamplingRate: 1.0},
			wantErr: false,
		},
		{
			name:    "http protobuf protocol",
			cfg:     telemetry.Config{Protocol: "http/protobuf", SamplingRate: 0.5},
			wantErr: false,
		},
		{
			name:    "unsupported protocol",
			cfg:     telemetry.Config{Protocol: "thrift", SamplingRate: 1.0},
			wantErr: true,
		},
		{
			name:    "sampling rate above one",
			cfg:     telemetry.Config{Protocol: "grpc", SamplingRate: 1.5},
			wantErr: true,
		},
		{
			name:    "negative sampling rate",
			cfg:     telemetry.Config{Protocol: "grpc", SamplingRate: -0.1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, telemetry.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.Config{}, zap.NewNop())
	require.NoError(t, err)

	// Disabled telemetry installs nothing and shuts down cleanly.
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := telemetry.New(context.Background(), telemetry.Config{Protocol: "thrift"}, zap.NewNop())
	assert.ErrorIs(t, err, telemetry.ErrInvalidConfig)
}

func TestShutdown_NilReceiver(t *testing.T) {
	var tel *telemetry.Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
}
