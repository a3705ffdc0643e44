package models

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/adtedit/internal/logger"
)

// unloadQueue disposes renderers on a background worker.
type unloadQueue struct {
	interval time.Duration

	mu      sync.Mutex
	pending []*Renderer
	started bool
	stopped bool
	exited  bool // worker left on context cancellation

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newUnloadQueue(interval time.Duration) *unloadQueue {
	return &unloadQueue{
		interval: interval,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// enqueue schedules r for disposal. A renderer is queued at most once.
// Once the worker has exited the renderer is disposed on the calling goroutine.
func (q *unloadQueue) enqueue(r *Renderer) {
	q.mu.Lock()
	if q.stopped || r.queued {
		q.mu.Unlock()
		return
	}
	r.queued = true
	if q.exited {
		q.mu.Unlock()
		r.dispose()
		return
	}
	q.pending = append(q.pending, r)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *unloadQueue) pop() (*Renderer, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, false
	}
	r := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return r, true
}

func (q *unloadQueue) start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	go q.run(ctx)
}

func (q *unloadQueue) run(ctx context.Context) {
	defer close(q.done)
	timer := time.NewTimer(q.interval)
	defer timer.Stop()
	for {
		if r, ok := q.pop(); ok {
			r.dispose()
			continue
		}
		timer.Reset(q.interval)
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.exited = true
			q.mu.Unlock()
			q.drain()
			return
		case <-q.stop:
			q.drain()
			return
		case <-q.wake:
		case <-timer.C:
		}
	}
}

func (q *unloadQueue) drain() {
	n := 0
	for {
		r, ok := q.pop()
		if !ok {
			break
		}
		r.dispose()
		n++
	}
	if n > 0 {
		logger.Debug("unload queue drained", zap.Int("renderers", n))
	}
}

// shutdown stops the worker and waits for it. Without a running worker the
// queue is drained on the calling goroutine.
func (q *unloadQueue) shutdown() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	started := q.started
	q.mu.Unlock()

	close(q.stop)
	if started {
		<-q.done
	}
	// The worker may have exited early on context cancellation.
	q.drain()
}

func (q *unloadQueue) pendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
