package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai-assistant-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }
func (nopLogger) GetLogs(string, int, int) ([]logger.LogEntry, error) {
	return nil, nil
}
func (nopLogger) GetLogById(string) (*logger.LogEntry, error) { return nil, nil }

func TestScheduleRunsWork(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(2, 8, nopLogger{})
	defer m.Close()

	done := make(chan struct{})
	ok := m.Schedule("k1", func(context.Context) error {
		close(done)
		return nil
	})
	assert.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled work never ran")
	}
}

func TestScheduleIsIdempotentPerKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(1, 8, nopLogger{})
	defer m.Close()

	var runs int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	m.Schedule("same-key", func(context.Context) error {
		defer wg.Done()
		atomic.AddInt32(&runs, 1)
		<-release
		return nil
	})

	// Wait for the first execution to start, then re-schedule the same key.
	assert.Eventually(t, func() bool { return m.Active() == 1 }, time.Second, time.Millisecond)
	assert.True(t, m.Schedule("same-key", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}), "duplicate key is a no-op, not a failure")

	close(release)
	wg.Wait()

	assert.Eventually(t, func() bool { return m.Active() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestScheduleDropsWhenQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(1, 1, nopLogger{})
	defer m.Close()

	release := make(chan struct{})
	block := func(context.Context) error {
		<-release
		return nil
	}

	m.Schedule("running", block)
	assert.Eventually(t, func() bool { return m.Active() >= 1 }, time.Second, time.Millisecond)

	m.Schedule("queued", block)
	dropped := m.Schedule("overflow", func(context.Context) error { return nil })
	assert.False(t, dropped, "work beyond the queue bound is dropped")
	assert.Equal(t, 2, m.Active(), "the dropped key is evicted immediately")

	close(release)
}

func TestWorkErrorAndPanicAreContained(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(1, 4, nopLogger{})
	defer m.Close()

	m.Schedule("fails", func(context.Context) error {
		return assert.AnError
	})
	m.Schedule("panics", func(context.Context) error {
		panic("boom")
	})

	// Both terminal states evict their keys; the manager keeps serving.
	assert.Eventually(t, func() bool { return m.Active() == 0 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	m.Schedule("after", func(context.Context) error {
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("manager stopped executing after a panic")
	}
}
