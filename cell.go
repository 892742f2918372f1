// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"sync/atomic"

	"code.hybscloud.com/kont"
)

// Cell is a one-shot completion cell: a single-assignment variable with
// any number of waiters. It moves from pending to done exactly once.
// Waiters registered while pending are invoked once each, in registration
// order, right after the winning transition.
//
// The zero value is a pending cell with no waiters.
type Cell[A any] struct {
	state atomic.Pointer[cellState[A]]
}

// cellState is an immutable snapshot; every mutation replaces it with a
// single compare-and-swap. A nil snapshot is pending with no waiters.
type cellState[A any] struct {
	done    bool
	exit    Exit[A]
	waiters []*cellWaiter[A]
}

type cellWaiter[A any] struct {
	cb func(Exit[A])
}

// NewCell returns a pending cell.
func NewCell[A any]() *Cell[A] {
	return &Cell[A]{}
}

// MakeCell produces a new pending cell.
func MakeCell[A any]() Effect[*Cell[A]] {
	return SyncTotal(NewCell[A])
}

// unsafeDone attempts the pending to done transition. It reports whether
// this call performed it.
func (c *Cell[A]) unsafeDone(exit Exit[A]) bool {
	next := &cellState[A]{done: true, exit: exit}
	for {
		s := c.state.Load()
		if s != nil && s.done {
			return false
		}
		if c.state.CompareAndSwap(s, next) {
			if s != nil {
				for _, w := range s.waiters {
					w.cb(exit)
				}
			}
			return true
		}
	}
}

// unsafePoll returns the exit if the cell is done.
func (c *Cell[A]) unsafePoll() (Exit[A], bool) {
	if s := c.state.Load(); s != nil && s.done {
		return s.exit, true
	}
	return Exit[A]{}, false
}

// unsafeAwait enqueues w unless the cell is done, in which case it returns
// the exit and w is not enqueued.
func (c *Cell[A]) unsafeAwait(w *cellWaiter[A]) (Exit[A], bool) {
	for {
		s := c.state.Load()
		if s != nil && s.done {
			return s.exit, true
		}
		var waiters []*cellWaiter[A]
		if s != nil {
			waiters = make([]*cellWaiter[A], len(s.waiters), len(s.waiters)+1)
			copy(waiters, s.waiters)
		}
		next := &cellState[A]{waiters: append(waiters, w)}
		if c.state.CompareAndSwap(s, next) {
			return Exit[A]{}, false
		}
	}
}

// unsafeRemove dequeues w if the cell is still pending.
func (c *Cell[A]) unsafeRemove(w *cellWaiter[A]) {
	for {
		s := c.state.Load()
		if s == nil || s.done {
			return
		}
		waiters := make([]*cellWaiter[A], 0, len(s.waiters))
		for _, x := range s.waiters {
			if x != w {
				waiters = append(waiters, x)
			}
		}
		if len(waiters) == len(s.waiters) {
			return
		}
		if c.state.CompareAndSwap(s, &cellState[A]{waiters: waiters}) {
			return
		}
	}
}

// Done completes the cell with exit. It produces whether this call
// completed the cell; false means it was already done.
func (c *Cell[A]) Done(exit Exit[A]) Effect[bool] {
	return SyncTotal(func() bool { return c.unsafeDone(exit) })
}

// Succeed completes the cell with a.
func (c *Cell[A]) Succeed(a A) Effect[bool] { return c.Done(Succeeded(a)) }

// Fail completes the cell with a typed failure.
func (c *Cell[A]) Fail(err error) Effect[bool] { return c.Done(Failed[A](CauseFail(err))) }

// Halt completes the cell with cause.
func (c *Cell[A]) Halt(cause Cause) Effect[bool] { return c.Done(Failed[A](cause)) }

// Die completes the cell with a defect.
func (c *Cell[A]) Die(defect any) Effect[bool] { return c.Done(Failed[A](CauseDie(defect))) }

// Interrupt completes the cell with an interruption by the current fiber.
func (c *Cell[A]) Interrupt() Effect[bool] {
	return DescriptorWith(func(d Descriptor) Effect[bool] {
		return c.InterruptAs(d.ID)
	})
}

// InterruptAs completes the cell with an interruption by id.
func (c *Cell[A]) InterruptAs(id FiberID) Effect[bool] {
	return c.Done(Failed[A](CauseInterrupt(id)))
}

// Complete runs e and completes the cell with its exit.
func (c *Cell[A]) Complete(e Effect[A]) Effect[bool] {
	return FlatMap(ExitOf(e), c.Done)
}

// To runs e to completion and feeds its exit into c. The hand-off is
// uninterruptible, so an interruption of e is recorded in the cell rather
// than lost between e's completion and the cell's.
func To[A any](c *Cell[A], e Effect[A]) Effect[bool] {
	return UninterruptibleMask(func(r Restore) Effect[bool] {
		return c.Complete(Restored(r, e))
	})
}

// AwaitExit suspends until the cell is done and produces its exit.
// An interrupted waiter removes itself from the cell.
func (c *Cell[A]) AwaitExit() Effect[Exit[A]] {
	return AsyncInterrupt(func(resume func(Effect[Exit[A]])) kont.Either[Effect[Unit], Effect[Exit[A]]] {
		w := &cellWaiter[A]{cb: func(x Exit[A]) { resume(Succeed(x)) }}
		if x, ok := c.unsafeAwait(w); ok {
			return kont.Right[Effect[Unit], Effect[Exit[A]]](Succeed(x))
		}
		return kont.Left[Effect[Unit], Effect[Exit[A]]](SyncTotal(func() Unit {
			c.unsafeRemove(w)
			return Unit{}
		}))
	})
}

// Await suspends until the cell is done and replays its outcome.
func (c *Cell[A]) Await() Effect[A] {
	return FlatMap(c.AwaitExit(), Done[A])
}

// Poll produces the cell's exit if it is done, or nil.
func (c *Cell[A]) Poll() Effect[*Exit[A]] {
	return SyncTotal(func() *Exit[A] {
		if x, ok := c.unsafePoll(); ok {
			return &x
		}
		return nil
	})
}

// IsDone produces whether the cell is done.
func (c *Cell[A]) IsDone() Effect[bool] {
	return SyncTotal(func() bool {
		_, ok := c.unsafePoll()
		return ok
	})
}
