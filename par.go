// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"math/bits"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// ForeachParN applies f to every element of as using at most n concurrent
// worker fibers and collects the results in input order.
//
// Each input is paired with its own result cell before any worker starts.
// The first failure fails every pending cell with its cause, so the
// traversal ends promptly with that cause; the remaining workers are
// interrupted. n is clamped to [1, len(as)].
func ForeachParN[A, B any](n int, as []A, f func(A) Effect[B]) Effect[[]B] {
	if len(as) == 0 {
		return Succeed([]B{})
	}
	n = max(1, min(n, len(as)))
	return UninterruptibleMask(func(r Restore) Effect[[]B] {
		return Suspend(func() Effect[[]B] {
			p := newParPool(as, f)
			workers := make([]Fiber[any], 0, n)
			spawn := Foreach(make([]struct{}, n), func(struct{}) Effect[Unit] {
				return FlatMap(Fork(Interruptible(p.worker())), func(w Fiber[Unit]) Effect[Unit] {
					w.observe(func(x Exit[any]) {
						if !x.IsSuccess() {
							p.failPending(x.Cause())
						}
					})
					workers = append(workers, w.Erase())
					return Skip()
				})
			})
			return ZipRight(spawn, Ensuring(Restored(r, p.collect()), Suspend(func() Effect[Unit] {
				return InterruptAll(workers)
			})))
		})
	})
}

// ForeachPar is [ForeachParN] with one worker per element.
func ForeachPar[A, B any](as []A, f func(A) Effect[B]) Effect[[]B] {
	return ForeachParN(len(as), as, f)
}

// CollectAllPar runs es concurrently and collects their values in order.
func CollectAllPar[A any](es []Effect[A]) Effect[[]A] {
	return ForeachPar(es, func(e Effect[A]) Effect[A] { return e })
}

type parTask struct {
	index int
}

// parPool is the shared state of one ForeachParN traversal. The task
// queue is filled before the workers start; consumers take turns under mu.
type parPool[A, B any] struct {
	inputs    []A
	f         func(A) Effect[B]
	cells     []*Cell[B]
	mu        sync.Mutex
	queue     lfq.SPSC[parTask]
	remaining atomix.Uint32
}

func newParPool[A, B any](as []A, f func(A) Effect[B]) *parPool[A, B] {
	p := &parPool[A, B]{
		inputs: as,
		f:      f,
		cells:  make([]*Cell[B], len(as)),
	}
	p.queue.Init(1 << bits.Len(uint(len(as))))
	for i := range as {
		p.cells[i] = NewCell[B]()
		t := parTask{index: i}
		_ = p.queue.Enqueue(&t)
	}
	p.remaining.Add(uint32(len(as)))
	return p
}

func (p *parPool[A, B]) pull() (int, bool) {
	p.mu.Lock()
	t, err := p.queue.Dequeue()
	p.mu.Unlock()
	if err != nil {
		if iox.IsWouldBlock(err) {
			return 0, false
		}
		panic(err)
	}
	return t.index, true
}

// worker runs tasks until the queue drains, every task has finished, or
// a task fails.
func (p *parPool[A, B]) worker() Effect[Unit] {
	return Suspend(func() Effect[Unit] {
		i, ok := p.pull()
		if !ok {
			return Skip()
		}
		c := p.cells[i]
		run := ExitOf(Suspend(func() Effect[B] { return p.f(p.inputs[i]) }))
		return FlatMap(run, func(x Exit[B]) Effect[Unit] {
			c.unsafeDone(x)
			if !x.IsSuccess() {
				p.failPending(x.Cause())
				return Skip()
			}
			if p.remaining.Add(^uint32(0)) == 0 {
				return Skip()
			}
			return p.worker()
		})
	})
}

func (p *parPool[A, B]) failPending(cause Cause) {
	for _, c := range p.cells {
		c.unsafeDone(Failed[B](cause))
	}
}

func (p *parPool[A, B]) collect() Effect[[]B] {
	return Foreach(p.cells, func(c *Cell[B]) Effect[B] { return c.Await() })
}
