// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"sync/atomic"
)

// frameKind tags a continuation frame.
type frameKind uint8

const (
	frameBind       frameKind = iota // success continuation only
	frameFold                        // failure and success continuations
	frameStatus                      // pops the interrupt-status stack
	frameEnv                         // restores the environment
	frameSupervisor                  // restores the supervisor
)

// frame is one entry of a fiber's continuation stack.
type frame struct {
	kind      frameKind
	onSuccess func(any) instr
	onFailure func(Cause) instr
	env       *Env
	sup       Supervisor
}

// Async handshake phases. The executor and a single claimant (the resume
// callback or an interrupter) meet on phase to decide who continues the fiber.
const (
	asyncRegistering uint32 = iota
	asyncWaiting
	asyncDelivered
)

// asyncWait is the suspension record of one async instruction.
type asyncWait struct {
	interruptible bool
	canceler      instr
	claimed       atomic.Bool
	phase         atomic.Uint32
	result        instr
	interrupted   bool
}

// claim reports whether the caller won the right to resume.
func (w *asyncWait) claim() bool {
	return w.claimed.CompareAndSwap(false, true)
}

// deliver publishes the claimant's outcome. It returns true when the
// executor has already suspended and the claimant must resume the fiber.
func (w *asyncWait) deliver(next instr, interrupted bool) bool {
	w.result = next
	w.interrupted = interrupted
	return w.phase.Swap(asyncDelivered) == asyncWaiting
}

// fiberContext is the record of one fiber. The continuation stack, the
// interrupt-status stack, the environment, the supervisor and the fiber
// refs are owned by the fiber's own run loop. Other fibers reach it only
// through the exit cell, the pending-interrupt pointer and the async record.
type fiberContext struct {
	id       FiberID
	rt       *Runtime
	parent   *fiberContext
	env      *Env
	sup      Supervisor
	reporter Reporter
	stack    []frame
	status   []InterruptStatus
	refs     map[*refKey]any
	opCount  int

	interrupt atomic.Pointer[Cause]
	async     atomic.Pointer[asyncWait]
	state     atomic.Uint32
	exit      *Cell[any]
	children  childSet
}

func newFiberContext(rt *Runtime, env *Env, sup Supervisor, reporter Reporter, status InterruptStatus) *fiberContext {
	fc := &fiberContext{
		id:       nextFiberID(),
		rt:       rt,
		env:      env,
		sup:      sup,
		reporter: reporter,
		stack:    make([]frame, 0, 16),
		status:   []InterruptStatus{status},
		exit:     NewCell[any](),
	}
	fc.state.Store(uint32(FiberRunning))
	return fc
}

func (fc *fiberContext) push(f frame) {
	fc.stack = append(fc.stack, f)
}

func (fc *fiberContext) pop() frame {
	n := len(fc.stack) - 1
	f := fc.stack[n]
	fc.stack[n] = frame{}
	fc.stack = fc.stack[:n]
	return f
}

func (fc *fiberContext) currentStatus() InterruptStatus {
	return fc.status[len(fc.status)-1]
}

func (fc *fiberContext) pushStatus(s InterruptStatus) {
	fc.status = append(fc.status, s)
	fc.push(frame{kind: frameStatus})
}

func (fc *fiberContext) popStatus() {
	fc.status = fc.status[:len(fc.status)-1]
}

func (fc *fiberContext) interrupted() bool {
	return fc.interrupt.Load() != nil
}

func (fc *fiberContext) shouldInterrupt() bool {
	return fc.currentStatus() == InterruptibleStatus && fc.interrupted()
}

func (fc *fiberContext) interruptCause() Cause {
	if p := fc.interrupt.Load(); p != nil {
		return *p
	}
	return Cause{}
}

// signalInterrupt records an interruption request by id. If the fiber is
// suspended on an interruptible async instruction, the request claims the
// suspension and resumes the fiber so that it can unwind.
func (fc *fiberContext) signalInterrupt(by FiberID) {
	add := CauseInterrupt(by)
	for {
		old := fc.interrupt.Load()
		next := add
		if old != nil {
			if containsInterruptor(*old, by) {
				break
			}
			next = CauseBoth(*old, add)
		}
		if fc.interrupt.CompareAndSwap(old, &next) {
			break
		}
	}
	if w := fc.async.Load(); w != nil && w.interruptible && w.claim() {
		if w.deliver(nil, true) {
			fc.resumeAsync(w)
		}
	}
}

func containsInterruptor(c Cause, id FiberID) bool {
	for n := range c.leaves() {
		if n.kind == KindInterrupt && n.id == id {
			return true
		}
	}
	return false
}

// resumeAsync continues a suspended fiber on the executor.
func (fc *fiberContext) resumeAsync(w *asyncWait) {
	fc.rt.executor.Submit(func() {
		fc.async.Store(nil)
		fc.state.Store(uint32(FiberRunning))
		fc.run(fc.afterAsync(w))
	})
}

// afterAsync returns the instruction that continues a fiber whose async
// suspension was claimed. An interrupted suspension runs its canceler
// uninterruptibly before unwinding; the status is pushed here so that the
// pending interruption cannot preempt the canceler.
func (fc *fiberContext) afterAsync(w *asyncWait) instr {
	if !w.interrupted {
		return orDie(w.result)
	}
	cause := fc.interruptCause()
	halt := &failOp{cause: cause}
	if w.canceler == nil {
		return halt
	}
	fc.pushStatus(UninterruptibleStatus)
	return &foldOp{
		src: w.canceler,
		onFailure: func(c Cause) instr {
			return &failOp{cause: CauseThen(cause, c)}
		},
		onSuccess: func(any) instr {
			return halt
		},
	}
}

// run drives the fiber from cur until it suspends or completes.
func (fc *fiberContext) run(cur instr) {
	cur = orDie(cur)
	for cur != nil {
		cur = fc.runLoop(cur)
	}
}

// runLoop is the trampoline. It returns nil when the fiber suspended or
// completed, or the instruction to continue with after a recovered panic.
func (fc *fiberContext) runLoop(cur instr) (next instr) {
	defer func() {
		if p := recover(); p != nil {
			next = &failOp{cause: panicCause(p)}
		}
	}()
	yieldOpCount := fc.rt.yieldOpCount
	for cur != nil {
		if _, failing := cur.(*failOp); !failing && fc.shouldInterrupt() {
			cur = &failOp{cause: fc.interruptCause()}
		}
		fc.opCount++
		if fc.opCount >= yieldOpCount {
			fc.opCount = 0
			fc.reschedule(cur)
			return nil
		}
		switch op := cur.(type) {
		case *succeedOp:
			cur = fc.nextSuccess(op.value)
		case *failOp:
			cur = fc.nextFailure(op.cause)
		case *syncOp:
			v, err := op.f()
			if err != nil {
				cur = &failOp{cause: CauseFail(err)}
			} else {
				cur = fc.nextSuccess(v)
			}
		case *suspendOp:
			cur = orDie(op.f())
		case *flatMapOp:
			fc.push(frame{kind: frameBind, onSuccess: op.k})
			cur = orDie(op.src)
		case *foldOp:
			fc.push(frame{kind: frameFold, onSuccess: op.onSuccess, onFailure: op.onFailure})
			cur = orDie(op.src)
		case *asyncOp:
			var suspended bool
			cur, suspended = fc.suspend(op)
			if suspended {
				return nil
			}
		case *accessOp:
			cur = orDie(op.f(fc.env))
		case *provideOp:
			fc.push(frame{kind: frameEnv, env: fc.env})
			fc.env = op.env
			cur = orDie(op.src)
		case *forkOp:
			child := fc.fork(op)
			cur = fc.nextSuccess(op.wrap(child))
		case *setStatusOp:
			fc.pushStatus(op.status)
			cur = orDie(op.src)
		case *getStatusOp:
			cur = orDie(op.f(fc.currentStatus()))
		case *descriptorOp:
			cur = orDie(op.f(fc.descriptor()))
		case *superviseOp:
			fc.push(frame{kind: frameSupervisor, sup: fc.sup})
			fc.sup = composeSupervisors(fc.sup, op.sup)
			cur = orDie(op.src)
		case *yieldOp:
			fc.opCount = 0
			fc.reschedule(unitOp)
			return nil
		case *localOp:
			cur = orDie(op.f(fc))
		default:
			panic("fx: unknown instruction")
		}
	}
	return nil
}

// orDie replaces the nil instruction of a zero Effect with a defect.
// Inside the run loop nil means the fiber suspended or completed.
func orDie(i instr) instr {
	if i == nil {
		return &failOp{cause: CauseDie(errNilEffect)}
	}
	return i
}

// reschedule suspends the run loop and continues with cur on the executor.
func (fc *fiberContext) reschedule(cur instr) {
	fc.rt.executor.Submit(func() {
		fc.run(cur)
	})
}

// nextSuccess pops frames until a success continuation accepts v. It
// completes the fiber and returns nil when the stack empties. A
// continuation reached while the fiber is interrupted and interruptible
// is dropped and unwinding starts instead, so leaving an uninterruptible
// region with an interruption pending runs no further user code.
func (fc *fiberContext) nextSuccess(v any) instr {
	for len(fc.stack) > 0 {
		f := fc.pop()
		switch f.kind {
		case frameBind, frameFold:
			if fc.shouldInterrupt() {
				return &failOp{cause: fc.interruptCause()}
			}
			return orDie(f.onSuccess(v))
		case frameStatus:
			fc.popStatus()
		case frameEnv:
			fc.env = f.env
		case frameSupervisor:
			fc.sup = f.sup
		}
	}
	fc.complete(Succeeded(v))
	return nil
}

// nextFailure unwinds frames until a failure continuation accepts c.
// Fold handlers are skipped while the fiber is interrupted and
// interruptible; status frames are popped on the way, so a handler
// installed inside an uninterruptible region still runs. A fiber that
// unwinds to the end while interrupted records the interruption after c.
func (fc *fiberContext) nextFailure(c Cause) instr {
	for len(fc.stack) > 0 {
		f := fc.pop()
		switch f.kind {
		case frameFold:
			if !fc.shouldInterrupt() {
				return orDie(f.onFailure(c))
			}
		case frameStatus:
			fc.popStatus()
		case frameEnv:
			fc.env = f.env
		case frameSupervisor:
			fc.sup = f.sup
		}
	}
	if ic := fc.interruptCause(); !ic.IsEmpty() && !c.Interrupted() {
		c = CauseThen(c, ic)
	}
	fc.complete(Failed[any](c))
	return nil
}

// suspend evaluates an async instruction. It returns the instruction to
// continue with, or suspended=true when the fiber is parked until resumed.
func (fc *fiberContext) suspend(op *asyncOp) (instr, bool) {
	w := &asyncWait{interruptible: fc.currentStatus() == InterruptibleStatus}
	fc.async.Store(w)
	if w.interruptible && fc.interrupted() && w.claim() {
		fc.async.Store(nil)
		return &failOp{cause: fc.interruptCause()}, false
	}
	var canceler, now instr
	if !w.claimed.Load() {
		canceler, now = fc.register(op, w)
	}
	if now != nil && w.claim() {
		fc.async.Store(nil)
		return now, false
	}
	w.canceler = canceler
	fc.state.Store(uint32(FiberSuspended))
	if w.phase.Swap(asyncWaiting) == asyncRegistering {
		return nil, true
	}
	fc.state.Store(uint32(FiberRunning))
	fc.async.Store(nil)
	return fc.afterAsync(w), false
}

// register invokes the registration function of op. A panic during
// registration becomes a synchronous defect.
func (fc *fiberContext) register(op *asyncOp, w *asyncWait) (canceler, now instr) {
	defer func() {
		if p := recover(); p != nil {
			canceler, now = nil, &failOp{cause: panicCause(p)}
		}
	}()
	return op.register(func(next instr) {
		if w.claim() && w.deliver(next, false) {
			fc.resumeAsync(w)
		}
	})
}

// fork starts a child fiber evaluating op.src.
func (fc *fiberContext) fork(op *forkOp) *fiberContext {
	reporter := op.reporter
	if reporter == nil {
		reporter = fc.reporter
	}
	child := newFiberContext(fc.rt, fc.env, fc.sup, reporter, fc.currentStatus())
	child.refs = forkRefs(fc.refs)
	if !op.daemon {
		child.parent = fc
		fc.children.add(child)
	}
	child.sup.OnStart(Fiber[any]{fc: child})
	src := op.src
	fc.rt.executor.Submit(func() {
		child.run(src)
	})
	return child
}

// complete deregisters the fiber from its parent, notifies its supervisor
// and reports unhandled defects, then publishes the exit and releases
// every waiter. The exit is published even if a hook panics.
func (fc *fiberContext) complete(exit Exit[any]) {
	if FiberStatus(fc.state.Swap(uint32(FiberDone))) == FiberDone {
		return
	}
	fc.stack = nil
	defer fc.exit.unsafeDone(exit)
	if fc.parent != nil {
		fc.parent.children.remove(fc)
		fc.parent = nil
	}
	fc.sup.OnEnd(Fiber[any]{fc: fc}, exit)
	if c := exit.Cause(); len(c.Defects()) > 0 && fc.reporter != nil {
		fc.reporter(fc.id, c)
	}
}

func (fc *fiberContext) descriptor() Descriptor {
	return Descriptor{
		ID:           fc.id,
		Status:       fc.currentStatus(),
		Interruptors: fc.interruptCause().Interruptors(),
		Children:     fc.children.snapshot(),
	}
}
