package benchmarks

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTesterCountsEveryRequest(t *testing.T) {
	srv := createTestServer(t, 5)
	lt := NewLoadTester(srv, LoadTestConfig{
		Clients:           4,
		RequestsPerClient: 25,
		Tool:              "test_tool",
		Arguments:         echoArgs{Input: "load"},
		Resource:          "test://resource/1",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := lt.Run(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 100, res.TotalRequests)
	assert.EqualValues(t, 100, res.SuccessfulRequests)
	assert.Zero(t, res.FailedRequests)
	assert.LessOrEqual(t, res.MinLatency, res.P50Latency)
	assert.LessOrEqual(t, res.P50Latency, res.P99Latency)
	assert.LessOrEqual(t, res.P99Latency, res.MaxLatency)

	var perOp int64
	for _, m := range res.OperationMetrics {
		perOp += m.Count
	}
	assert.EqualValues(t, 100, perOp)

	var out bytes.Buffer
	res.PrintResults(&out)
	assert.Contains(t, out.String(), "Total Requests: 100")
}

func TestLoadTesterRecordsFailuresByCode(t *testing.T) {
	srv := createTestServer(t, 0)
	lt := NewLoadTester(srv, LoadTestConfig{
		Clients:           2,
		RequestsPerClient: 5,
		OperationMix:      OperationMix{ReadResource: 1},
		Resource:          "test://missing",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := lt.Run(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 10, res.FailedRequests)
	assert.EqualValues(t, 10, res.ErrorCounts["ResourceNotFound"])
	require.Contains(t, res.OperationMetrics, OpReadResource)
	assert.EqualValues(t, 10, res.OperationMetrics[OpReadResource].Failed)
}

func TestLoadTesterHonoursDurationAndRate(t *testing.T) {
	if testing.Short() {
		t.Skip("runs for half a second")
	}
	srv := createTestServer(t, 0)
	lt := NewLoadTester(srv, LoadTestConfig{
		Clients:      3,
		RateLimit:    40,
		Duration:     500 * time.Millisecond,
		OperationMix: OperationMix{ListTools: 1},
	})

	res, err := lt.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, res.TotalDuration, 2*time.Second)
	// 40/s for half a second with a burst of one
	assert.LessOrEqual(t, res.TotalRequests, int64(25))
	assert.Greater(t, res.TotalRequests, int64(5))
	assert.Zero(t, res.FailedRequests)
}

func TestPickFollowsMix(t *testing.T) {
	lt := NewLoadTester(nil, LoadTestConfig{OperationMix: OperationMix{CallTool: 1, ListResources: 1}})
	assert.Equal(t, OpCallTool, lt.pick(0.2))
	assert.Equal(t, OpListResources, lt.pick(0.7))

	lt = NewLoadTester(nil, LoadTestConfig{})
	assert.Equal(t, OpCallTool, lt.pick(0.1))
	assert.Equal(t, OpReadResource, lt.pick(0.5))
	assert.Equal(t, OpListTools, lt.pick(0.8))
	assert.Equal(t, OpListResources, lt.pick(0.95))
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(9), percentile(sorted, 90))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
}
