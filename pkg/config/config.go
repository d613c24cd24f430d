// Package config loads session, logging and observability settings from
// MCP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/observability"
	"github.com/ajitpratap0/mcp-session-go/pkg/pagination"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/session"
)

// Config holds process-wide settings. Defaults are in the struct tags.
type Config struct {
	// ProtocolVersion pins the preferred protocol revision. ENV: MCP_PROTOCOL_VERSION
	ProtocolVersion string `env:"MCP_PROTOCOL_VERSION"`

	// Outbound request timeout. ENV: MCP_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"MCP_REQUEST_TIMEOUT,default=30s,strict"`
	// Inbound handler timeout, zero for none. ENV: MCP_HANDLER_TIMEOUT
	HandlerTimeout time.Duration `env:"MCP_HANDLER_TIMEOUT,strict"`
	// ENV: MCP_MAX_CONCURRENT_HANDLERS
	MaxConcurrentHandlers int `env:"MCP_MAX_CONCURRENT_HANDLERS,default=64,strict"`

	// ENV: MCP_PAGE_SIZE
	PageSize int `env:"MCP_PAGE_SIZE,default=50,strict"`
	// Cursor signing key; random per process when empty. ENV: MCP_CURSOR_SECRET
	CursorSecret string `env:"MCP_CURSOR_SECRET"`

	// ENV: MCP_LOG_LEVEL
	LogLevel string `env:"MCP_LOG_LEVEL,default=info"`
	// text or json. ENV: MCP_LOG_FORMAT
	LogFormat string `env:"MCP_LOG_FORMAT,default=text"`

	// ENV: MCP_SERVICE_NAME
	ServiceName string `env:"MCP_SERVICE_NAME,default=mcp-session"`
	// ENV: MCP_METRICS_NAMESPACE
	MetricsNamespace string `env:"MCP_METRICS_NAMESPACE,default=mcp"`
	// Metrics listen address, metrics are off when empty. ENV: MCP_METRICS_ADDR
	MetricsAddr string `env:"MCP_METRICS_ADDR"`

	// otlp-grpc, otlp-http or noop. ENV: MCP_TRACING_EXPORTER
	TracingExporter string `env:"MCP_TRACING_EXPORTER,default=noop"`
	// ENV: MCP_TRACING_ENDPOINT
	TracingEndpoint string `env:"MCP_TRACING_ENDPOINT"`
	// ENV: MCP_TRACING_SAMPLE_RATE
	TracingSampleRate float64 `env:"MCP_TRACING_SAMPLE_RATE,default=1.0,strict"`

	// Directory served by file resources. ENV: MCP_ROOT_DIR
	RootDir string `env:"MCP_ROOT_DIR"`
}

// Default returns the configuration used when no variables are set
func Default() Config {
	return Config{
		RequestTimeout:        session.DefaultRequestTimeout,
		MaxConcurrentHandlers: session.DefaultMaxConcurrentHandlers,
		PageSize:              pagination.DefaultLimit,
		LogLevel:              "info",
		LogFormat:             string(logging.FormatText),
		ServiceName:           "mcp-session",
		MetricsNamespace:      "mcp",
		TracingExporter:       string(observability.ExporterTypeNoop),
		TracingSampleRate:     1.0,
	}
}

// FromEnv decodes the environment over the defaults and validates the result
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("failed to decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used
func (c Config) Validate() error {
	if c.ProtocolVersion != "" && !protocol.IsSupportedVersion(c.ProtocolVersion) {
		return fmt.Errorf("MCP_PROTOCOL_VERSION: unsupported protocol version %q", c.ProtocolVersion)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("MCP_REQUEST_TIMEOUT: must not be negative, got %s", c.RequestTimeout)
	}
	if c.HandlerTimeout < 0 {
		return fmt.Errorf("MCP_HANDLER_TIMEOUT: must not be negative, got %s", c.HandlerTimeout)
	}
	if c.PageSize < 1 || c.PageSize > pagination.MaxLimit {
		return fmt.Errorf("MCP_PAGE_SIZE: must be between 1 and %d, got %d", pagination.MaxLimit, c.PageSize)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("MCP_LOG_LEVEL: %w", err)
	}
	switch logging.Format(c.LogFormat) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("MCP_LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	switch observability.ExporterType(c.TracingExporter) {
	case observability.ExporterTypeNoop, observability.ExporterTypeOTLPGRPC, observability.ExporterTypeOTLPHTTP:
	default:
		return fmt.Errorf("MCP_TRACING_EXPORTER: unknown exporter %q", c.TracingExporter)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("MCP_TRACING_SAMPLE_RATE: must be between 0 and 1, got %g", c.TracingSampleRate)
	}
	return nil
}

// SessionOptions converts the session settings
func (c Config) SessionOptions() []session.Option {
	opts := []session.Option{
		session.WithRequestTimeout(c.RequestTimeout),
		session.WithHandlerTimeout(c.HandlerTimeout),
		session.WithMaxConcurrentHandlers(c.MaxConcurrentHandlers),
	}
	if c.ProtocolVersion != "" {
		versions := []string{c.ProtocolVersion}
		for _, v := range protocol.SupportedProtocolVersions {
			if v != c.ProtocolVersion {
				versions = append(versions, v)
			}
		}
		opts = append(opts, session.WithProtocolVersions(versions...))
	}
	return opts
}

// Logger builds the process logger writing to w
func (c Config) Logger(w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(w, logging.Format(c.LogFormat), level), nil
}

// Paginator builds the cursor manager for list operations
func (c Config) Paginator() (*pagination.Manager, error) {
	return pagination.NewManager(
		pagination.WithPageSize(c.PageSize),
		pagination.WithSecret([]byte(c.CursorSecret)),
	)
}

// TracingConfig converts the tracing settings
func (c Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		ServiceName:  c.ServiceName,
		ExporterType: observability.ExporterType(c.TracingExporter),
		Endpoint:     c.TracingEndpoint,
		SampleRate:   c.TracingSampleRate,
	}
}

// MetricsConfig converts the metrics settings
func (c Config) MetricsConfig() observability.MetricsConfig {
	return observability.MetricsConfig{
		ServiceName: c.ServiceName,
		Namespace:   c.MetricsNamespace,
		MetricsAddr: c.MetricsAddr,
	}
}

// Observability enables tracing unless the exporter is noop, and metrics
// when a listen address is set
func (c Config) Observability() observability.Config {
	return observability.Config{
		EnableTracing: c.TracingExporter != string(observability.ExporterTypeNoop),
		TracingConfig: c.TracingConfig(),
		EnableMetrics: c.MetricsAddr != "",
		MetricsConfig: c.MetricsConfig(),
	}
}
