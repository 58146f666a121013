package utils

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WorkerPool runs submitted tasks on a fixed set of goroutines, in submission order
// per worker, with an optional minimum interval between task starts.
type WorkerPool struct {
	tasks   chan func()
	limiter *rate.Limiter
	wg      sync.WaitGroup

	pace     context.Context
	stopPace context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewWorkerPool starts maxWorkers goroutines draining a queue of queueSize tasks.
// A zero minInterval disables pacing.
func NewWorkerPool(maxWorkers, queueSize int, minInterval time.Duration) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	pace, stopPace := context.WithCancel(context.Background())
	wp := &WorkerPool{
		tasks:    make(chan func(), queueSize),
		limiter:  rate.NewLimiter(limit, 1),
		pace:     pace,
		stopPace: stopPace,
	}
	for i := 0; i < maxWorkers; i++ {
		wp.wg.Add(1)
		go wp.work()
	}
	return wp
}

func (wp *WorkerPool) work() {
	defer wp.wg.Done()
	for task := range wp.tasks {
		_ = wp.limiter.Wait(wp.pace)
		task()
	}
}

// Submit enqueues a task. It returns false when the queue is full or the pool is closed.
func (wp *WorkerPool) Submit(task func()) bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return false
	}
	select {
	case wp.tasks <- task:
		return true
	default:
		return false
	}
}

// Close stops accepting tasks and blocks until queued tasks have completed.
func (wp *WorkerPool) Close() {
	wp.mu.Lock()
	if !wp.closed {
		wp.closed = true
		close(wp.tasks)
	}
	wp.mu.Unlock()
	wp.wg.Wait()
	wp.stopPace()
}

// Shutdown is Close without pacing: queued tasks start back to back.
func (wp *WorkerPool) Shutdown() {
	wp.stopPace()
	wp.Close()
}

// URLSet is a thread-safe set for tracking visited URLs.
type URLSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewURLSet creates an empty URLSet.
func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]struct{})}
}

// Add returns true if the URL was newly added, false if already present.
func (s *URLSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[url]; exists {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}

// Contains returns true if the URL has already been visited.
func (s *URLSet) Contains(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[url]
	return exists
}

// Size returns the number of unique URLs tracked.
func (s *URLSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
