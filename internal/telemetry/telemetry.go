// Package telemetry wires OpenTelemetry tracing and metrics export.
//
// Telemetry is optional: when disabled the package installs nothing and the
// otel API calls throughout the codebase resolve to no-ops. Exporter
// failures degrade gracefully instead of failing startup.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// ErrInvalidConfig indicates invalid telemetry configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds telemetry settings.
type Config struct {
	// Enabled turns OTLP export on. Default: false.
	Enabled bool `koanf:"enabled"`

	// Endpoint is the OTLP collector endpoint, host:port.
	// Default: "localhost:4317"
	Endpoint string `koanf:"endpoint"`

	// Protocol is "grpc" (default) or "http/protobuf".
	Protocol string `koanf:"protocol"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `koanf:"insecure"`

	// ServiceName identifies this service in traces.
	// Default: "supportd"
	ServiceName string `koanf:"service_name"`

	// SamplingRate is the trace sampling ratio in [0, 1].
	// Default: 1.0
	SamplingRate float64 `koanf:"sampling_rate"`

	// MetricsEnabled turns OTLP metric export on alongside traces.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// ExportInterval is the metric export period.
	// Default: 60s
	ExportInterval time.Duration `koanf:"export_interval"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.Protocol == "" {
		c.Protocol = "grpc"
	}
	if c.ServiceName == "" {
		c.ServiceName = "supportd"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1.0
	}
	if c.ExportInterval == 0 {
		c.ExportInterval = 60 * time.Second
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("%w: unsupported protocol: %s (supported: grpc, http/protobuf)",
			ErrInvalidConfig, c.Protocol)
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("%w: sampling rate must be in [0, 1], got %v", ErrInvalidConfig, c.SamplingRate)
	}
	return nil
}

// Telemetry owns the installed tracer and meter providers.
type Telemetry struct {
	config Config
	logger *zap.Logger

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// New initializes telemetry and installs the global otel providers.
//
// Disabled config returns a no-op instance. Exporter setup errors are logged
// and leave the corresponding provider uninstalled; they never fail startup.
func New(ctx context.Context, config Config, logger *zap.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	t := &Telemetry{
		config: config,
		logger: logger,
	}

	if !config.Enabled {
		return t, nil
	}

	res, err := newResource(config)
	if err != nil {
		logger.Warn("telemetry resource creation failed, tracing disabled", zap.Error(err))
		return t, nil
	}

	tp, err := newTracerProvider(ctx, config, res)
	if err != nil {
		logger.Warn("tracer provider setup failed, tracing disabled", zap.Error(err))
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	if config.MetricsEnabled {
		mp, err := newMeterProvider(ctx, config, res)
		if err != nil {
			logger.Warn("meter provider setup failed, metric export disabled", zap.Error(err))
		} else {
			t.meterProvider = mp
			otel.SetMeterProvider(mp)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", config.Endpoint),
		zap.String("protocol", config.Protocol),
		zap.Float64("sampling_rate", config.SamplingRate),
		zap.Bool("metrics", t.meterProvider != nil),
	)

	return t, nil
}

// Shutdown flushes and stops the installed providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	return errors.Join(errs...)
}
