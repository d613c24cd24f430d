// Package observability exports session metrics to Prometheus and spans to
// OpenTelemetry
package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ExporterType selects where session spans go
type ExporterType string

const (
	ExporterTypeOTLPGRPC ExporterType = "otlp-grpc"
	ExporterTypeOTLPHTTP ExporterType = "otlp-http"
	ExporterTypeNoop     ExporterType = "noop"
)

// TracingConfig configures the spans sessions record for calls and handlers
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string

	ExporterType ExporterType
	// Endpoint is host:port of the collector; empty uses the exporter's
	// environment defaults
	Endpoint string
	Insecure bool
	// Exporter replaces ExporterType, mostly for tests
	Exporter sdktrace.SpanExporter

	// SampleRate is the fraction of calls traced; zero means all of them
	SampleRate float64
	// SkipMethods are never traced, typically ping
	SkipMethods []string

	// SetGlobal installs the provider as the otel global
	SetGlobal bool
}

// TracingProvider owns the tracer sessions record spans with
type TracingProvider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer

	mu      sync.Mutex
	stopped bool
}

// NewTracingProvider builds the exporter and provider for config
func NewTracingProvider(config TracingConfig) (*TracingProvider, error) {
	if config.ServiceName == "" {
		config.ServiceName = "mcp-session"
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = "unknown"
	}

	exporter := config.Exporter
	if exporter == nil {
		var err error
		if exporter, err = newExporter(config); err != nil {
			return nil, fmt.Errorf("failed to create %s exporter: %w", config.ExporterType, err)
		}
	}

	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.RPCSystemKey.String("jsonrpc"),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newMethodSampler(config.SampleRate, config.SkipMethods)),
	)
	if config.SetGlobal {
		otel.SetTracerProvider(tp)
	}

	return &TracingProvider{tp: tp, tracer: tp.Tracer(instrumentationName)}, nil
}

const instrumentationName = "github.com/ajitpratap0/mcp-session-go"

func newExporter(config TracingConfig) (sdktrace.SpanExporter, error) {
	var client otlptrace.Client
	switch config.ExporterType {
	case "", ExporterTypeNoop:
		return discardExporter{}, nil
	case ExporterTypeOTLPGRPC:
		var opts []otlptracegrpc.Option
		if config.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(config.Endpoint))
		}
		if config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		client = otlptracegrpc.NewClient(opts...)
	case ExporterTypeOTLPHTTP:
		var opts []otlptracehttp.Option
		if config.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(config.Endpoint))
		}
		if config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		client = otlptracehttp.NewClient(opts...)
	default:
		return nil, fmt.Errorf("unsupported exporter type %q", config.ExporterType)
	}
	return otlptrace.New(context.Background(), client)
}

// Tracer returns the tracer to hand to session.WithTracer
func (p *TracingProvider) Tracer() trace.Tracer { return p.tracer }

// ForceFlush exports the finished spans still queued
func (p *TracingProvider) ForceFlush(ctx context.Context) error {
	return p.tp.ForceFlush(ctx)
}

// Shutdown flushes and stops the provider; later calls do nothing
func (p *TracingProvider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	return p.tp.Shutdown(ctx)
}

// methodSampler drops spans whose mcp.method is in skip and samples the
// rest at a fixed ratio
type methodSampler struct {
	skip map[string]bool
	base sdktrace.Sampler
}

func newMethodSampler(rate float64, skip []string) sdktrace.Sampler {
	s := &methodSampler{skip: make(map[string]bool, len(skip)), base: sdktrace.AlwaysSample()}
	if rate > 0 && rate < 1 {
		s.base = sdktrace.TraceIDRatioBased(rate)
	}
	for _, m := range skip {
		s.skip[m] = true
	}
	return s
}

func (s *methodSampler) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if s.skip[methodOf(params.Attributes)] {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.Drop,
			Tracestate: trace.SpanContextFromContext(params.ParentContext).TraceState(),
		}
	}
	return s.base.ShouldSample(params)
}

func (s *methodSampler) Description() string {
	return fmt.Sprintf("MethodSampler{skip=%d,base=%s}", len(s.skip), s.base.Description())
}

func methodOf(attrs []attribute.KeyValue) string {
	for _, kv := range attrs {
		if kv.Key == "mcp.method" {
			return kv.Value.AsString()
		}
	}
	return ""
}

type discardExporter struct{}

func (discardExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (discardExporter) Shutdown(context.Context) error                             { return nil }
