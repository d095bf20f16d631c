// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor is a small fixed-size worker pool backed by eapache/queue,
// used by the NUMA manager to fan out per-node setup work concurrently.

package concurrency

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// ErrExecutorClosed is returned by Submit once Close has been called.
var ErrExecutorClosed = errors.New("concurrency: executor closed")

type TaskFunc func()

// Executor runs submitted tasks on a fixed pool of goroutines, pulling work
// from a single shared queue guarded by a mutex (eapache/queue.Queue is not
// safe for concurrent use on its own).
type Executor struct {
	mu         sync.Mutex
	cond       *sync.Cond
	q          *queue.Queue
	closed     bool
	wg         sync.WaitGroup
	numWorkers int
}

// NewExecutor starts numWorkers goroutines draining a shared task queue.
// numaNode is advisory only; callers that need node-local worker placement
// pin their own goroutines separately (see numanode.NumaNode).
func NewExecutor(numWorkers, numaNode int) *Executor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	e := &Executor{q: queue.New(), numWorkers: numWorkers}
	e.cond = sync.NewCond(&e.mu)
	for i := 0; i < numWorkers; i++ {
		e.wg.Add(1)
		go e.loop()
	}
	return e
}

func (e *Executor) loop() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for e.q.Length() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.q.Length() == 0 && e.closed {
			e.mu.Unlock()
			return
		}
		item := e.q.Remove()
		e.mu.Unlock()

		if task, ok := item.(TaskFunc); ok {
			task()
		}
	}
}

// Submit enqueues task for execution by the next free worker. Returns
// ErrExecutorClosed once Close has been called.
func (e *Executor) Submit(task TaskFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}
	e.q.Add(task)
	e.cond.Signal()
	return nil
}

// NumWorkers reports the configured worker count.
func (e *Executor) NumWorkers() int {
	return e.numWorkers
}

// Close stops accepting new tasks and waits for queued tasks to drain and
// all worker goroutines to exit.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
	e.wg.Wait()
}
