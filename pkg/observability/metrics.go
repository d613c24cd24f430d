package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/session"
)

// MetricsConfig configures the metrics provider
type MetricsConfig struct {
	// Service identification
	ServiceName    string
	ServiceVersion string
	Environment    string

	// HTTP exposition
	MetricsPath string // default: /metrics
	MetricsAddr string // listen address for Start, default: :9090

	// Metric options
	Namespace        string    // default: mcp
	Subsystem        string    // default: session
	HistogramBuckets []float64 // latency buckets in seconds

	// Labels to add to all metrics
	ConstLabels prometheus.Labels
}

// Metrics records session activity in Prometheus collectors. One Metrics
// serves any number of sessions; each session gets its own Observer.
type Metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry

	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	decodeFailures   *prometheus.CounterVec
	staleResponses   prometheus.Counter
	callDuration     *prometheus.HistogramVec
	handlerDuration  *prometheus.HistogramVec
	pendingRequests  prometheus.Gauge
	sessions         *prometheus.GaugeVec
	transportBytes   *prometheus.CounterVec
	transportErrors  *prometheus.CounterVec

	mu     sync.Mutex
	server *http.Server
}

// NewMetrics creates the collectors and registers them with a private
// registry
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if config.Namespace == "" {
		config.Namespace = "mcp"
	}
	if config.Subsystem == "" {
		config.Subsystem = "session"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.MetricsAddr == "" {
		config.MetricsAddr = ":9090"
	}
	if config.HistogramBuckets == nil {
		config.HistogramBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	}

	constLabels := prometheus.Labels{}
	for k, v := range config.ConstLabels {
		constLabels[k] = v
	}
	if config.ServiceName != "" {
		constLabels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		constLabels["version"] = config.ServiceVersion
	}
	if config.Environment != "" {
		constLabels["environment"] = config.Environment
	}

	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}
	}
	histOpts := func(name, help string) prometheus.HistogramOpts {
		o := opts(name, help)
		return prometheus.HistogramOpts{
			Namespace:   o.Namespace,
			Subsystem:   o.Subsystem,
			Name:        o.Name,
			Help:        o.Help,
			ConstLabels: o.ConstLabels,
			Buckets:     config.HistogramBuckets,
		}
	}

	m := &Metrics{
		config:   config,
		registry: prometheus.NewRegistry(),

		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts(opts(
			"messages_received_total", "Decoded messages received, by kind and method")),
			[]string{"kind", "method"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts(opts(
			"messages_sent_total", "Messages sent, by kind and method")),
			[]string{"kind", "method"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts(opts(
			"decode_failures_total", "Inbound frames dropped because they could not be decoded")),
			[]string{"reason"}),
		staleResponses: prometheus.NewCounter(prometheus.CounterOpts(opts(
			"stale_responses_total", "Replies that matched no pending request"))),
		callDuration: prometheus.NewHistogramVec(histOpts(
			"call_duration_seconds", "Outbound request latency, by method and outcome"),
			[]string{"method", "outcome"}),
		handlerDuration: prometheus.NewHistogramVec(histOpts(
			"handler_duration_seconds", "Inbound request handling latency, by method and outcome"),
			[]string{"method", "outcome"}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts(opts(
			"pending_requests", "Outbound requests awaiting a reply"))),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts(opts(
			"sessions", "Sessions by lifecycle phase")),
			[]string{"phase"}),
		transportBytes: prometheus.NewCounterVec(prometheus.CounterOpts(opts(
			"transport_bytes_total", "Bytes moved by the transport, by direction")),
			[]string{"direction"}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts(opts(
			"transport_errors_total", "Transport send and receive failures, by direction")),
			[]string{"direction"}),
	}

	if err := m.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) registerMetrics() error {
	collectors := []prometheus.Collector{
		m.messagesReceived,
		m.messagesSent,
		m.decodeFailures,
		m.staleResponses,
		m.callDuration,
		m.handlerDuration,
		m.pendingRequests,
		m.sessions,
		m.transportBytes,
		m.transportErrors,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the registry holding the session collectors
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observer returns a session.Observer feeding these metrics. Each session
// needs its own, since pending counts and phases are tracked per session.
func (m *Metrics) Observer() session.Observer {
	return &sessionObserver{m: m, phase: session.PhaseUninitialized}
}

// Start serves the metrics endpoint on MetricsAddr until Shutdown
func (m *Metrics) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server != nil {
		return errors.New("metrics server already started")
	}

	ln, err := net.Listen("tcp", m.config.MetricsAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.MetricsAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.MetricsPath, m.Handler())
	m.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	srv := m.server
	go func() {
		_ = srv.Serve(ln)
	}()
	return nil
}

// Shutdown stops the metrics endpoint
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	srv := m.server
	m.server = nil
	m.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (m *Metrics) recordTransfer(direction string, n int, err error) {
	if err != nil {
		m.transportErrors.WithLabelValues(direction).Inc()
		return
	}
	m.transportBytes.WithLabelValues(direction).Add(float64(n))
}

// sessionObserver converts one session's absolute readings into deltas on
// the shared gauges
type sessionObserver struct {
	m *Metrics

	mu      sync.Mutex
	pending int
	phase   session.Phase
	started bool
}

func (o *sessionObserver) MessageReceived(kind protocol.Kind, method string) {
	o.m.messagesReceived.WithLabelValues(kind.String(), method).Inc()
}

func (o *sessionObserver) MessageSent(kind protocol.Kind, method string) {
	o.m.messagesSent.WithLabelValues(kind.String(), method).Inc()
}

func (o *sessionObserver) DecodeFailed(reason string) {
	o.m.decodeFailures.WithLabelValues(reason).Inc()
}

func (o *sessionObserver) StaleResponse() {
	o.m.staleResponses.Inc()
}

func (o *sessionObserver) CallFinished(method, outcome string, elapsed time.Duration) {
	o.m.callDuration.WithLabelValues(method, outcome).Observe(elapsed.Seconds())
}

func (o *sessionObserver) HandlerFinished(method, outcome string, elapsed time.Duration) {
	o.m.handlerDuration.WithLabelValues(method, outcome).Observe(elapsed.Seconds())
}

func (o *sessionObserver) PendingRequests(n int) {
	o.mu.Lock()
	delta := n - o.pending
	o.pending = n
	o.mu.Unlock()

	if delta != 0 {
		o.m.pendingRequests.Add(float64(delta))
	}
}

func (o *sessionObserver) PhaseChanged(phase session.Phase) {
	o.mu.Lock()
	prev, started := o.phase, o.started
	o.phase, o.started = phase, true
	o.mu.Unlock()

	// a session is counted from its first transition
	if started {
		o.m.sessions.WithLabelValues(prev.String()).Dec()
	}
	if phase != session.PhaseClosed {
		o.m.sessions.WithLabelValues(phase.String()).Inc()
	}
}
