// this file implements the background worker pool used for pre-caching
package meta

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs tasks on a fixed set of workers, dispatched round-robin.
// Downloads are isolated here so a slow pre-fetch never blocks the player.
type WorkerPool struct {
	tasks []chan func()
	next  uint32
	wg    sync.WaitGroup
}

// NewWorkerPool starts the workers. A non-positive count defaults to half
// the CPUs, rounded up.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = (runtime.NumCPU() + 1) / 2
	}
	p := &WorkerPool{
		tasks: make([]chan func(), workers),
	}
	for i := range p.tasks {
		p.tasks[i] = make(chan func(), 16)
		p.wg.Add(1)
		go func(tasks <-chan func()) {
			defer p.wg.Done()
			for task := range tasks {
				task()
			}
		}(p.tasks[i])
	}
	return p
}

// Submit hands a task to the next worker in line. Must not be called after
// Shutdown.
func (p *WorkerPool) Submit(task func()) {
	i := atomic.AddUint32(&p.next, 1)
	p.tasks[int(i)%len(p.tasks)] <- task
}

// Shutdown stops accepting work and waits for in-flight tasks to finish.
func (p *WorkerPool) Shutdown() {
	for _, ch := range p.tasks {
		close(ch)
	}
	p.wg.Wait()
}
