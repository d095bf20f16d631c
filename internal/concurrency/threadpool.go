// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ThreadPool wraps Executor, giving callers a fixed-size fan-out pool for
// per-node setup work (NUMA manager's InitKBD) without exposing queue
// mechanics directly.

package concurrency

type ThreadPool struct {
	executor *Executor
}

func NewThreadPool(size, numaNode int) *ThreadPool {
	return &ThreadPool{
		executor: NewExecutor(size, numaNode),
	}
}

func (tp *ThreadPool) Submit(f func()) error {
	return tp.executor.Submit(f)
}

func (tp *ThreadPool) Close() {
	tp.executor.Close()
}
