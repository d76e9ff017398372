// Package tasks provides a bounded-concurrency, idempotent background task
// scheduler. It exists so post-turn side effects (episodic indexing and the
// like) run without blocking or corrupting the primary response.
package tasks

import (
	"context"
	"sync"

	"ai-assistant-be/internal/pkg/logger"
)

// Work is a scheduled unit. Errors and panics are logged and swallowed; they
// never reach the caller and never terminate the manager.
type Work func(ctx context.Context) error

type status int

const (
	statusPending status = iota
	statusRunning
)

type job struct {
	key  string
	work Work
}

// Manager runs scheduled work on a fixed worker pool over a bounded queue.
// When the queue is full new work is dropped with a warning: the tasks it
// carries are best-effort (index staleness is non-critical) so backpressure
// on the caller would be worse than the loss.
type Manager struct {
	mu     sync.Mutex
	active map[string]status

	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.ILogger
}

func NewManager(workers, queueSize int, log logger.ILogger) *Manager {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		active: make(map[string]status),
		queue:  make(chan job, queueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: log,
	}

	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// Schedule enqueues work under an idempotency key. A key that is already
// pending or running is a no-op returning true; no second execution starts.
// Returns false only when the queue is full and the work was dropped.
func (m *Manager) Schedule(key string, work Work) bool {
	m.mu.Lock()
	if _, exists := m.active[key]; exists {
		m.mu.Unlock()
		return true
	}
	m.active[key] = statusPending
	m.mu.Unlock()

	select {
	case m.queue <- job{key: key, work: work}:
		return true
	default:
		m.logger.Warn("TaskManager", "Queue full, dropping task", map[string]interface{}{
			"key": key,
		})
		m.evict(key)
		return false
	}
}

// Active reports how many keys are currently pending or running.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Close stops the workers and waits for in-flight work to finish. Queued but
// unstarted work is abandoned.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case j := <-m.queue:
			m.execute(j)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) execute(j job) {
	m.mu.Lock()
	m.active[j.key] = statusRunning
	m.mu.Unlock()

	// Terminal state evicts the key; there are no automatic retries.
	defer m.evict(j.key)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("TaskManager", "Task panicked", map[string]interface{}{
				"key":   j.key,
				"panic": r,
			})
		}
	}()

	if err := j.work(m.ctx); err != nil {
		m.logger.Error("TaskManager", "Task failed", map[string]interface{}{
			"key":   j.key,
			"error": err.Error(),
		})
		return
	}

	m.logger.Debug("TaskManager", "Task completed", map[string]interface{}{
		"key": j.key,
	})
}

func (m *Manager) evict(key string) {
	m.mu.Lock()
	delete(m.active, key)
	m.mu.Unlock()
}
