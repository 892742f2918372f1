// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"sync"
)

// Executor runs fiber slices. A fiber is handed to its executor when it
// starts, when it resumes from an async suspension and when it yields.
// Submit must not run task on the caller's stack.
type Executor interface {
	Submit(task func())
}

// ExecutorFunc adapts a function to [Executor].
type ExecutorFunc func(task func())

// Submit calls f(task).
func (f ExecutorFunc) Submit(task func()) { f(task) }

// GoExecutor runs every task on a new goroutine.
type GoExecutor struct{}

// Submit starts task on a new goroutine.
func (GoExecutor) Submit(task func()) { go task() }

// PoolExecutor runs tasks on a fixed set of worker goroutines in FIFO
// order. A pool of one worker is a single-threaded event loop: fibers
// interleave only at yields and suspensions.
type PoolExecutor struct {
	mu      sync.Mutex
	cond    sync.Cond
	queue   []func()
	head    int
	closed  bool
	workers sync.WaitGroup
}

// NewPoolExecutor starts a pool of n workers. n < 1 is treated as 1.
func NewPoolExecutor(n int) *PoolExecutor {
	if n < 1 {
		n = 1
	}
	p := &PoolExecutor{}
	p.cond.L = &p.mu
	for range n {
		p.workers.Go(p.work)
	}
	return p
}

// Submit enqueues task. After Close, tasks run on their own goroutine so
// that no fiber is stranded.
func (p *PoolExecutor) Submit(task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		go task()
		return
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.cond.Signal()
}

// Close stops the workers once the queue has drained and waits for them.
func (p *PoolExecutor) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.workers.Wait()
}

func (p *PoolExecutor) work() {
	for {
		p.mu.Lock()
		for p.head == len(p.queue) && !p.closed {
			p.cond.Wait()
		}
		if p.head == len(p.queue) {
			p.mu.Unlock()
			return
		}
		task := p.queue[p.head]
		p.queue[p.head] = nil
		p.head++
		switch {
		case p.head == len(p.queue):
			p.queue = p.queue[:0]
			p.head = 0
		case p.head >= 64 && p.head*2 >= len(p.queue):
			n := copy(p.queue, p.queue[p.head:])
			clear(p.queue[n:])
			p.queue = p.queue[:n]
			p.head = 0
		}
		p.mu.Unlock()
		task()
	}
}
