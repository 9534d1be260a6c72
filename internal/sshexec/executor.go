package sshexec

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Executor admits up to maxConcurrent hosts at a time into the active
// pool and spawns one worker per admitted host (spec.md §4.1). Admission
// is FIFO and otherwise order-preserving, with no priority, implemented
// with golang.org/x/sync/semaphore the way the teacher's batch scheduler
// (internal/batch/batch.go) bounds concurrent builds with a worker count,
// generalized here from a fixed worker-goroutine pool to a weighted
// semaphore so admission order is exactly the input order.
type Executor struct {
	sink Sink

	cancelCtx context.Context
	cancel    context.CancelFunc

	wg sync.WaitGroup

	mu     sync.Mutex
	active int

	// runHost performs one host's protocol. It defaults to the real SSH
	// worker; tests substitute a fake to exercise admission bounds
	// without a network dependency.
	runHost func(ctx context.Context, host HostSpec, cfg WorkerConfig, sink Sink)
}

// NewExecutor returns an Executor that will deliver events to sink.
func NewExecutor(sink Sink) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		sink:      sink,
		cancelCtx: ctx,
		cancel:    cancel,
		runHost: func(ctx context.Context, host HostSpec, cfg WorkerConfig, sink Sink) {
			newWorker(host, cfg, sink).run(ctx)
		},
	}
}

// Start admits hosts, up to maxConcurrent at a time, and spawns one
// worker per host. It returns immediately; completion is observed via
// events on the sink (spec.md §4.1 "Public contract").
func (e *Executor) Start(parent context.Context, hosts []HostSpec, cfg WorkerConfig, maxConcurrent int) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(parent)
	go func() {
		<-e.cancelCtx.Done()
		cancel()
	}()

	sem := semaphore.NewWeighted(int64(maxConcurrent))

	go func() {
		for _, h := range hosts {
			h := h
			if err := sem.Acquire(ctx, 1); err != nil {
				// Context already cancelled before admission: the host
				// never started, so wait() owes it no terminal event
				// (it only promises termination for workers that ran).
				return
			}
			e.mu.Lock()
			e.active++
			e.mu.Unlock()

			e.wg.Add(1)
			go func(spec HostSpec) {
				defer e.wg.Done()
				defer sem.Release(1)
				defer func() {
					e.mu.Lock()
					e.active--
					e.mu.Unlock()
				}()
				e.runHost(ctx, spec, cfg, e.sink)
			}(h)
		}
	}()
}

// ActiveCount returns the number of workers currently admitted and
// running, for the invariant "active_workers <= max_concurrent".
func (e *Executor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// CancelAll requests cooperative shutdown of all workers. Idempotent.
func (e *Executor) CancelAll() {
	e.cancel()
}

// Wait blocks until every admitted worker has reached a terminal event.
func (e *Executor) Wait() {
	e.wg.Wait()
}
