package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/skylift/skylift/pkg/telemetry"
)

// Config is the client configuration loaded from the YAML config file.
type Config struct {
	// Server configures the backend connection.
	Server ServerConfig `yaml:"server" validate:"required"`

	// Stream configures push-stream behavior.
	Stream StreamConfig `yaml:"stream"`

	// Storage configures the local operation database.
	Storage StorageConfig `yaml:"storage"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures distributed tracing.
	Tracing TracingConfig `yaml:"tracing"`

	// Metrics configures the metrics endpoint.
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the backend connection.
type ServerConfig struct {
	// BaseURL is the backend base URL.
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// Token is the bearer token for backend requests.
	Token string `yaml:"token"`

	// TokenFile is a file containing the bearer token. Takes precedence
	// over Token when both are set.
	TokenFile string `yaml:"token_file"`

	// RequestTimeout bounds each synchronous request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ReconcileTimeout bounds a resting-status reconciliation.
	ReconcileTimeout time.Duration `yaml:"reconcile_timeout"`
}

// StreamConfig configures push-stream behavior.
type StreamConfig struct {
	// InactivityWindow is how long a silent stream is tolerated before it
	// counts as stalled.
	InactivityWindow time.Duration `yaml:"inactivity_window"`

	// CoalesceWindow is the heartbeat coalescing window for the event log.
	CoalesceWindow time.Duration `yaml:"coalesce_window"`
}

// StorageConfig configures the local operation database.
type StorageConfig struct {
	// Path is the SQLite database path.
	Path string `yaml:"path" validate:"required"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level        string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	Format       string `yaml:"format" validate:"omitempty,oneof=console json"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Exporter      string        `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`
	Endpoint      string        `yaml:"endpoint"`
	SamplingRate  float64       `yaml:"sampling_rate" validate:"gte=0,lte=1"`
	ExportTimeout time.Duration `yaml:"export_timeout"`
	Insecure      bool          `yaml:"insecure"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	Path          string `yaml:"path"`
	Namespace     string `yaml:"namespace"`
}

// DefaultConfig returns the configuration defaults applied before loading.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			RequestTimeout:   30 * time.Second,
			ReconcileTimeout: 10 * time.Second,
		},
		Stream: StreamConfig{
			InactivityWindow: 90 * time.Second,
			CoalesceWindow:   3 * time.Second,
		},
		Storage: StorageConfig{
			Path: "skylift.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Exporter:      "stdout",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
			Insecure:      true,
		},
		Metrics: MetricsConfig{
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "skylift",
		},
	}
}

// ResolveToken returns the bearer token, reading the token file when one is
// configured.
func (c *ServerConfig) ResolveToken() (string, error) {
	if c.TokenFile != "" {
		data, err := os.ReadFile(c.TokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read token file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return c.Token, nil
}

// Telemetry converts the config file sections into a telemetry.Config.
func (c *Config) Telemetry(serviceVersion string) *telemetry.Config {
	return &telemetry.Config{
		ServiceName:    "skylift",
		ServiceVersion: serviceVersion,
		Environment:    "production",
		Logging: telemetry.LoggingConfig{
			Level:        c.Logging.Level,
			Format:       c.Logging.Format,
			Output:       c.Logging.Output,
			EnableCaller: c.Logging.EnableCaller,
		},
		Tracing: telemetry.TracingConfig{
			Enabled:       c.Tracing.Enabled,
			Exporter:      c.Tracing.Exporter,
			Endpoint:      c.Tracing.Endpoint,
			SamplingRate:  c.Tracing.SamplingRate,
			ExportTimeout: c.Tracing.ExportTimeout,
			Insecure:      c.Tracing.Insecure,
		},
		Metrics: telemetry.MetricsConfig{
			Enabled:       c.Metrics.Enabled,
			ListenAddress: c.Metrics.ListenAddress,
			Path:          c.Metrics.Path,
			Namespace:     c.Metrics.Namespace,
		},
	}
}
