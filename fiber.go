// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"slices"
	"sync"
)

// FiberStatus is the coarse lifecycle state of a fiber.
type FiberStatus uint32

const (
	// FiberRunning means the fiber is evaluating or queued on its executor.
	FiberRunning FiberStatus = iota
	// FiberSuspended means the fiber waits on an async instruction.
	FiberSuspended
	// FiberDone means the fiber's exit is known.
	FiberDone
)

// String returns the status name.
func (s FiberStatus) String() string {
	switch s {
	case FiberRunning:
		return "Running"
	case FiberSuspended:
		return "Suspended"
	case FiberDone:
		return "Done"
	}
	return "FiberStatus(?)"
}

// Descriptor is a snapshot of the current fiber.
type Descriptor struct {
	ID           FiberID
	Status       InterruptStatus
	Interruptors []FiberID
	Children     []Fiber[any]
}

// Fiber is a handle on a running fiber producing an A.
// Handles are values; copies refer to the same fiber.
type Fiber[A any] struct {
	fc *fiberContext
}

// ID returns the fiber's identity.
func (f Fiber[A]) ID() FiberID { return f.fc.id }

// Status returns the fiber's lifecycle state at the time of the call.
func (f Fiber[A]) Status() FiberStatus {
	return FiberStatus(f.fc.state.Load())
}

// Erase returns the untyped view of the handle.
func (f Fiber[A]) Erase() Fiber[any] { return Fiber[any]{fc: f.fc} }

// Await suspends until the fiber's exit is known. It never fails.
func (f Fiber[A]) Await() Effect[Exit[A]] {
	return Map(f.fc.exit.AwaitExit(), narrowExit[A])
}

// Poll returns the fiber's exit if it is known, or nil.
func (f Fiber[A]) Poll() Effect[*Exit[A]] {
	return SyncTotal(func() *Exit[A] {
		x, ok := f.fc.exit.unsafePoll()
		if !ok {
			return nil
		}
		e := narrowExit[A](x)
		return &e
	})
}

// Join awaits the fiber, merges its fiber refs into the caller and replays
// its outcome. A fiber that was interrupted surfaces as a typed
// [*InnerInterruptError], catchable like any failure.
func (f Fiber[A]) Join() Effect[A] {
	return FlatMap(f.fc.exit.AwaitExit(), func(x Exit[any]) Effect[A] {
		return ZipRight(f.InheritRefs(), joinExit[A](f.fc.id, x))
	})
}

func joinExit[A any](id FiberID, x Exit[any]) Effect[A] {
	if v, ok := x.Value(); ok {
		return Succeed(castValue[A](v))
	}
	c := x.Cause()
	if c.IsInterruptedOnly() {
		return Fail[A](&InnerInterruptError{Fiber: id, Interruptors: c.Interruptors()})
	}
	return Halt[A](c)
}

// InterruptAs requests interruption of the fiber on behalf of id and
// waits until the fiber has finished unwinding. A fiber interrupting
// itself halts at once instead of waiting on its own exit.
func (f Fiber[A]) InterruptAs(id FiberID) Effect[Exit[A]] {
	return localEff(func(cur *fiberContext) Effect[Exit[A]] {
		f.fc.signalInterrupt(id)
		if cur == f.fc {
			return Halt[Exit[A]](CauseInterrupt(id))
		}
		return f.Await()
	})
}

// Interrupt is [Fiber.InterruptAs] on behalf of the current fiber.
func (f Fiber[A]) Interrupt() Effect[Exit[A]] {
	return DescriptorWith(func(d Descriptor) Effect[Exit[A]] {
		return f.InterruptAs(d.ID)
	})
}

// InheritRefs merges the fiber's final fiber-ref values into the current
// fiber with each ref's join transform. It does nothing while the fiber is
// still running.
func (f Fiber[A]) InheritRefs() Effect[Unit] {
	return localEff(func(cur *fiberContext) Effect[Unit] {
		if _, done := f.fc.exit.unsafePoll(); done && cur != f.fc {
			cur.inheritRefs(f.fc)
		}
		return Skip()
	})
}

// observe calls cb with the fiber's exit once it is known.
func (f Fiber[A]) observe(cb func(Exit[any])) {
	if x, ok := f.fc.exit.unsafeAwait(&cellWaiter[any]{cb: cb}); ok {
		cb(x)
	}
}

// Fork starts e on a new child fiber of the current fiber and produces its
// handle without waiting. The child inherits the environment, supervisor,
// failure reporter, interrupt status and fiber refs of the parent.
func Fork[A any](e Effect[A]) Effect[Fiber[A]] {
	return forkEffect[A](&forkOp{src: e.op})
}

// ForkDaemon is [Fork] without registering the child with its parent.
func ForkDaemon[A any](e Effect[A]) Effect[Fiber[A]] {
	return forkEffect[A](&forkOp{src: e.op, daemon: true})
}

// ForkWithReporter is [Fork] with a custom sink for the child's unhandled
// defects.
func ForkWithReporter[A any](e Effect[A], reporter Reporter) Effect[Fiber[A]] {
	return forkEffect[A](&forkOp{src: e.op, reporter: reporter})
}

func forkEffect[A any](op *forkOp) Effect[Fiber[A]] {
	op.wrap = func(fc *fiberContext) any {
		return Fiber[A]{fc: fc}
	}
	return Effect[Fiber[A]]{op: op}
}

// DescriptorWith continues with the descriptor of the current fiber.
func DescriptorWith[A any](f func(Descriptor) Effect[A]) Effect[A] {
	return Effect[A]{op: &descriptorOp{f: func(d Descriptor) instr {
		return f(d).op
	}}}
}

// CurrentFiberID produces the identity of the current fiber.
func CurrentFiberID() Effect[FiberID] {
	return DescriptorWith(func(d Descriptor) Effect[FiberID] {
		return Succeed(d.ID)
	})
}

// InterruptAll interrupts every fiber on behalf of the current fiber and
// waits for each to finish. Their exits are discarded. The current fiber
// is skipped if listed.
func InterruptAll(fibers []Fiber[any]) Effect[Unit] {
	return DescriptorWith(func(d Descriptor) Effect[Unit] {
		return Suspend(func() Effect[Unit] {
			targets := make([]Fiber[any], 0, len(fibers))
			for _, f := range fibers {
				if f.fc != nil && f.fc.id != d.ID {
					f.fc.signalInterrupt(d.ID)
					targets = append(targets, f)
				}
			}
			return Void(AwaitAll(targets))
		})
	})
}

// AwaitAll waits for every fiber to finish and returns their exits in order.
func AwaitAll(fibers []Fiber[any]) Effect[[]Exit[any]] {
	return Foreach(fibers, func(f Fiber[any]) Effect[Exit[any]] {
		return f.Await()
	})
}

// childSet is a fiber's registry of non-daemon children. The parent adds
// on fork; a child removes itself on completion.
type childSet struct {
	mu sync.Mutex
	m  map[FiberID]*fiberContext
}

func (s *childSet) add(fc *fiberContext) {
	s.mu.Lock()
	if s.m == nil {
		s.m = make(map[FiberID]*fiberContext)
	}
	s.m[fc.id] = fc
	s.mu.Unlock()
}

func (s *childSet) remove(fc *fiberContext) {
	s.mu.Lock()
	delete(s.m, fc.id)
	s.mu.Unlock()
}

// snapshot returns the live children ordered by identity.
func (s *childSet) snapshot() []Fiber[any] {
	s.mu.Lock()
	out := make([]Fiber[any], 0, len(s.m))
	for _, fc := range s.m {
		out = append(out, Fiber[any]{fc: fc})
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b Fiber[any]) int {
		return int(a.fc.id) - int(b.fc.id)
	})
	return out
}
