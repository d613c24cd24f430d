package utils

import (
	"runtime"
	"time"
)

// Reporter is the part of testing.TB the leak detector needs
type Reporter interface {
	Helper()
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// GoroutineLeakDetector compares the goroutine count at the end of a test
// with the count at Start
type GoroutineLeakDetector struct {
	t             Reporter
	baseline      int
	allowedGrowth int
	pollInterval  time.Duration
	settleTimeout time.Duration
}

// NewGoroutineLeakDetector creates a detector reporting to t
func NewGoroutineLeakDetector(t Reporter) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		t:             t,
		pollInterval:  20 * time.Millisecond,
		settleTimeout: 2 * time.Second,
	}
}

// SetAllowedGrowth tolerates n goroutines above the baseline
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// SetStabilizeDelay bounds how long Check waits for goroutines to exit
func (d *GoroutineLeakDetector) SetStabilizeDelay(delay time.Duration) *GoroutineLeakDetector {
	d.settleTimeout = delay
	return d
}

// Start records the baseline. Goroutines left over from earlier tests
// are given a short time to exit first.
func (d *GoroutineLeakDetector) Start() {
	d.baseline = settle(runtime.NumGoroutine(), d.pollInterval, d.settleTimeout/4)
	d.t.Logf("goroutine baseline: %d", d.baseline)
}

// Check waits for the count to fall back within the allowance and fails
// the test with a stack dump when it does not. It reports whether the
// count settled.
func (d *GoroutineLeakDetector) Check() bool {
	d.t.Helper()

	limit := d.baseline + d.allowedGrowth
	deadline := time.Now().Add(d.settleTimeout)
	count := runtime.NumGoroutine()
	for count > limit && time.Now().Before(deadline) {
		time.Sleep(d.pollInterval)
		count = runtime.NumGoroutine()
	}

	if count <= limit {
		d.t.Logf("no goroutine leak: baseline %d, now %d", d.baseline, count)
		return true
	}

	d.t.Errorf("goroutine leak: baseline %d, now %d (allowed growth %d)", d.baseline, count, d.allowedGrowth)
	d.t.Logf("goroutines:\n%s", stacks())
	return false
}

// settle returns the lowest count seen within window
func settle(count int, interval, window time.Duration) int {
	lowest := count
	for end := time.Now().Add(window); time.Now().Before(end); {
		time.Sleep(interval)
		if n := runtime.NumGoroutine(); n < lowest {
			lowest = n
		}
	}
	return lowest
}

func stacks() string {
	buf := make([]byte, 1<<20)
	return string(buf[:runtime.Stack(buf, true)])
}
