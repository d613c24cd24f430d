package utils

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeReporter records failures instead of failing the running test
type fakeReporter struct {
	mu     sync.Mutex
	errors []string
}

func (f *fakeReporter) Helper() {}

func (f *fakeReporter) Logf(string, ...interface{}) {}

func (f *fakeReporter) Errorf(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, fmt.Sprintf(format, args...))
}

func TestGoroutineLeakDetector(t *testing.T) {
	t.Run("NoLeak", func(t *testing.T) {
		detector := NewGoroutineLeakDetector(t)
		detector.Start()

		ch := make(chan struct{})
		go func() {
			ch <- struct{}{}
		}()
		<-ch

		assert.True(t, detector.Check())
	})

	t.Run("WaitsForExitingGoroutines", func(t *testing.T) {
		detector := NewGoroutineLeakDetector(t)
		detector.Start()

		go time.Sleep(100 * time.Millisecond)

		assert.True(t, detector.Check())
	})

	t.Run("DetectsLeak", func(t *testing.T) {
		rep := &fakeReporter{}
		detector := NewGoroutineLeakDetector(rep).SetStabilizeDelay(200 * time.Millisecond)
		detector.Start()

		block := make(chan struct{})
		defer close(block)
		go func() { <-block }()

		assert.False(t, detector.Check())
		assert.Len(t, rep.errors, 1)
		assert.Contains(t, rep.errors[0], "goroutine leak")
	})

	t.Run("AllowedGrowth", func(t *testing.T) {
		rep := &fakeReporter{}
		detector := NewGoroutineLeakDetector(rep).SetStabilizeDelay(200 * time.Millisecond).SetAllowedGrowth(1)
		detector.Start()

		block := make(chan struct{})
		defer close(block)
		go func() { <-block }()

		assert.True(t, detector.Check())
		assert.Empty(t, rep.errors)
	})
}
