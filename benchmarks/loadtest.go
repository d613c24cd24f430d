// Package benchmarks provides performance and load testing for MCP
// sessions
package benchmarks

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/mcp-session-go/pkg/client"
	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/server"
	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
)

// Operation names used in results
const (
	OpCallTool      = "CallTool"
	OpReadResource  = "ReadResource"
	OpListTools     = "ListTools"
	OpListResources = "ListResources"
)

// LoadTestConfig configures load testing parameters
type LoadTestConfig struct {
	// Number of concurrent clients
	Clients int

	// Number of requests per client, 0 runs until Duration
	RequestsPerClient int

	// Request rate limit across all clients (requests per second, 0 = unlimited)
	RateLimit int

	// Test duration (0 = run until all requests complete)
	Duration time.Duration

	// Ramp up period for gradual load increase
	RampUpTime time.Duration

	// Mix of operations to perform
	OperationMix OperationMix

	// Tool called by CallTool and the URI read by ReadResource
	Tool      string
	Arguments interface{}
	Resource  string
}

// OperationMix defines the distribution of different operations
type OperationMix struct {
	CallTool      float64
	ReadResource  float64
	ListTools     float64
	ListResources float64
}

// LoadTestResult contains the results of a load test
type LoadTestResult struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	TotalDuration      time.Duration

	MinLatency time.Duration
	MaxLatency time.Duration
	AvgLatency time.Duration
	P50Latency time.Duration
	P90Latency time.Duration
	P95Latency time.Duration
	P99Latency time.Duration

	RequestsPerSecond float64

	// Failures keyed by error code name, or "other"
	ErrorCounts map[string]int64

	OperationMetrics map[string]*OperationMetrics
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count      int64
	Successful int64
	Failed     int64
	TotalTime  time.Duration

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *OperationMetrics) record(d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Count++
	m.TotalTime += d
	m.latencies = append(m.latencies, d)
	if err != nil {
		m.Failed++
	} else {
		m.Successful++
	}
}

// LoadTester drives a server with many concurrent clients, each on its
// own in-memory connection
type LoadTester struct {
	config LoadTestConfig
	srv    *server.Server

	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64

	mu          sync.Mutex
	errorCounts map[string]int64
	operations  map[string]*OperationMetrics
}

// NewLoadTester creates a load tester against srv
func NewLoadTester(srv *server.Server, config LoadTestConfig) *LoadTester {
	if config.Clients <= 0 {
		config.Clients = 1
	}

	total := config.OperationMix.CallTool + config.OperationMix.ReadResource +
		config.OperationMix.ListTools + config.OperationMix.ListResources
	if total == 0 {
		config.OperationMix = OperationMix{
			CallTool:      40,
			ReadResource:  30,
			ListTools:     20,
			ListResources: 10,
		}
		total = 100
	}

	// normalize to fractions
	config.OperationMix.CallTool /= total
	config.OperationMix.ReadResource /= total
	config.OperationMix.ListTools /= total
	config.OperationMix.ListResources /= total

	return &LoadTester{
		config:      config,
		srv:         srv,
		errorCounts: make(map[string]int64),
		operations:  make(map[string]*OperationMetrics),
	}
}

// Run connects the clients, generates load and returns the results. A
// client that fails to connect aborts the run.
func (lt *LoadTester) Run(ctx context.Context) (*LoadTestResult, error) {
	if lt.config.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, lt.config.Duration)
		defer cancel()
	}

	clients := make([]*client.Client, 0, lt.config.Clients)
	defer func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}()
	for i := 0; i < lt.config.Clients; i++ {
		c, err := lt.connect(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("failed to connect client %d: %w", i, err)
		}
		clients = append(clients, c)
	}

	var limiter *rate.Limiter
	if lt.config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(lt.config.RateLimit), 1)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range clients {
		c := c
		seed := int64(i) + start.UnixNano()
		g.Go(func() error {
			lt.runClient(gctx, c, limiter, rand.New(rand.NewSource(seed)))
			return nil
		})

		if lt.config.RampUpTime > 0 && i < len(clients)-1 {
			select {
			case <-time.After(lt.config.RampUpTime / time.Duration(len(clients)-1)):
			case <-ctx.Done():
			}
		}
	}
	_ = g.Wait()

	return lt.results(time.Since(start)), nil
}

func (lt *LoadTester) connect(ctx context.Context, id int) (*client.Client, error) {
	a, b := transport.NewPipe()
	if _, err := lt.srv.Connect(ctx, a); err != nil {
		return nil, err
	}
	c := client.New(b,
		client.WithName(fmt.Sprintf("load-test-client-%d", id)),
		client.WithVersion("1.0.0"),
	)
	if _, err := c.Connect(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (lt *LoadTester) runClient(ctx context.Context, c *client.Client, limiter *rate.Limiter, rnd *rand.Rand) {
	for n := 0; lt.config.RequestsPerClient == 0 || n < lt.config.RequestsPerClient; n++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		lt.execute(ctx, c, lt.pick(rnd.Float64()))
	}
}

// pick chooses an operation for r in [0, 1)
func (lt *LoadTester) pick(r float64) string {
	mix := lt.config.OperationMix
	switch {
	case r < mix.CallTool:
		return OpCallTool
	case r < mix.CallTool+mix.ReadResource:
		return OpReadResource
	case r < mix.CallTool+mix.ReadResource+mix.ListTools:
		return OpListTools
	default:
		return OpListResources
	}
}

func (lt *LoadTester) execute(ctx context.Context, c *client.Client, op string) {
	start := time.Now()
	var err error

	switch op {
	case OpCallTool:
		var res *protocol.CallToolResult
		res, err = c.CallTool(ctx, lt.config.Tool, lt.config.Arguments)
		if err == nil && res.IsError {
			err = fmt.Errorf("tool %s reported an error", lt.config.Tool)
		}
	case OpReadResource:
		_, err = c.ReadResource(ctx, lt.config.Resource)
	case OpListTools:
		_, err = c.ListTools(ctx, "")
	case OpListResources:
		_, err = c.ListResources(ctx, "")
	}

	// the run ending mid-request is not a failure
	if err != nil && ctx.Err() != nil {
		return
	}

	elapsed := time.Since(start)
	lt.totalRequests.Add(1)
	lt.metrics(op).record(elapsed, err)
	if err != nil {
		lt.failedRequests.Add(1)
		lt.recordError(err)
	} else {
		lt.successfulRequests.Add(1)
	}
}

func (lt *LoadTester) metrics(op string) *OperationMetrics {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	m, ok := lt.operations[op]
	if !ok {
		m = &OperationMetrics{}
		lt.operations[op] = m
	}
	return m
}

func (lt *LoadTester) recordError(err error) {
	key := "other"
	if mcpErr, ok := mcperrors.AsMCPError(err); ok {
		key = mcperrors.GetErrorCodeName(mcpErr.Code())
	}
	lt.mu.Lock()
	lt.errorCounts[key]++
	lt.mu.Unlock()
}

func (lt *LoadTester) results(elapsed time.Duration) *LoadTestResult {
	result := &LoadTestResult{
		TotalRequests:      lt.totalRequests.Load(),
		SuccessfulRequests: lt.successfulRequests.Load(),
		FailedRequests:     lt.failedRequests.Load(),
		TotalDuration:      elapsed,
		ErrorCounts:        make(map[string]int64),
		OperationMetrics:   make(map[string]*OperationMetrics),
	}
	if elapsed > 0 {
		result.RequestsPerSecond = float64(result.TotalRequests) / elapsed.Seconds()
	}

	lt.mu.Lock()
	for k, v := range lt.errorCounts {
		result.ErrorCounts[k] = v
	}
	var all []time.Duration
	for op, m := range lt.operations {
		result.OperationMetrics[op] = m
		m.mu.Lock()
		all = append(all, m.latencies...)
		m.mu.Unlock()
	}
	lt.mu.Unlock()

	if len(all) == 0 {
		return result
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	var sum time.Duration
	for _, d := range all {
		sum += d
	}
	result.MinLatency = all[0]
	result.MaxLatency = all[len(all)-1]
	result.AvgLatency = sum / time.Duration(len(all))
	result.P50Latency = percentile(all, 50)
	result.P90Latency = percentile(all, 90)
	result.P95Latency = percentile(all, 95)
	result.P99Latency = percentile(all, 99)
	return result
}

// percentile uses the nearest-rank method on sorted durations
func percentile(sorted []time.Duration, p float64) time.Duration {
	index := int(float64(len(sorted))*p/100+0.999999) - 1
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

// PrintResults writes the results in a readable format
func (r *LoadTestResult) PrintResults(w io.Writer) {
	fmt.Fprintln(w, "\n=== Load Test Results ===")
	fmt.Fprintf(w, "Total Duration: %s\n", r.TotalDuration)
	fmt.Fprintf(w, "Total Requests: %d\n", r.TotalRequests)
	if r.TotalRequests > 0 {
		fmt.Fprintf(w, "Successful: %d (%.1f%%)\n", r.SuccessfulRequests,
			float64(r.SuccessfulRequests)/float64(r.TotalRequests)*100)
		fmt.Fprintf(w, "Failed: %d (%.1f%%)\n", r.FailedRequests,
			float64(r.FailedRequests)/float64(r.TotalRequests)*100)
	}
	fmt.Fprintf(w, "Requests/sec: %.2f\n", r.RequestsPerSecond)

	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min: %s\n", r.MinLatency)
	fmt.Fprintf(w, "  Avg: %s\n", r.AvgLatency)
	fmt.Fprintf(w, "  P50: %s\n", r.P50Latency)
	fmt.Fprintf(w, "  P90: %s\n", r.P90Latency)
	fmt.Fprintf(w, "  P95: %s\n", r.P95Latency)
	fmt.Fprintf(w, "  P99: %s\n", r.P99Latency)
	fmt.Fprintf(w, "  Max: %s\n", r.MaxLatency)

	if len(r.OperationMetrics) > 0 {
		ops := make([]string, 0, len(r.OperationMetrics))
		for op := range r.OperationMetrics {
			ops = append(ops, op)
		}
		sort.Strings(ops)

		fmt.Fprintln(w, "\nOperation Breakdown:")
		for _, op := range ops {
			m := r.OperationMetrics[op]
			if m.Count == 0 {
				continue
			}
			fmt.Fprintf(w, "  %s: %d calls, %.1f%% ok, avg %s\n", op, m.Count,
				float64(m.Successful)/float64(m.Count)*100, m.TotalTime/time.Duration(m.Count))
		}
	}

	if len(r.ErrorCounts) > 0 {
		fmt.Fprintln(w, "\nError Summary:")
		for name, count := range r.ErrorCounts {
			fmt.Fprintf(w, "  %s: %d\n", name, count)
		}
	}
}
