// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

// InterruptStatus governs whether a pending interruption may take effect.
type InterruptStatus bool

const (
	// InterruptibleStatus lets pending interruptions unwind the fiber.
	InterruptibleStatus InterruptStatus = true
	// UninterruptibleStatus records interruptions without acting on them.
	UninterruptibleStatus InterruptStatus = false
)

// String returns "interruptible" or "uninterruptible".
func (s InterruptStatus) String() string {
	if s {
		return "interruptible"
	}
	return "uninterruptible"
}

// Restore re-enables, inside a mask, the interrupt status that was active
// immediately outside it. Apply it with [Restored].
type Restore struct {
	status InterruptStatus
}

// Status returns the status the capability restores.
func (r Restore) Status() InterruptStatus { return r.status }

// Restored evaluates e under the status captured by r.
func Restored[A any](r Restore, e Effect[A]) Effect[A] {
	return Effect[A]{op: &setStatusOp{status: r.status, src: e.op}}
}

// Interruptible evaluates e as interruptible, even inside an
// uninterruptible region.
func Interruptible[A any](e Effect[A]) Effect[A] {
	return Effect[A]{op: &setStatusOp{status: InterruptibleStatus, src: e.op}}
}

// Uninterruptible evaluates e with interruption deferred until e completes.
func Uninterruptible[A any](e Effect[A]) Effect[A] {
	return Effect[A]{op: &setStatusOp{status: UninterruptibleStatus, src: e.op}}
}

// CheckInterruptible continues with the current interrupt status.
func CheckInterruptible[A any](f func(InterruptStatus) Effect[A]) Effect[A] {
	return Effect[A]{op: &getStatusOp{f: func(s InterruptStatus) instr {
		return f(s).op
	}}}
}

// UninterruptibleMask evaluates f's effect as uninterruptible. The
// [Restore] passed to f re-enables the enclosing status for nested effects.
func UninterruptibleMask[A any](f func(Restore) Effect[A]) Effect[A] {
	return CheckInterruptible(func(s InterruptStatus) Effect[A] {
		return Uninterruptible(f(Restore{status: s}))
	})
}

// InterruptibleMask evaluates f's effect as interruptible. The [Restore]
// passed to f re-enables the enclosing status for nested effects.
func InterruptibleMask[A any](f func(Restore) Effect[A]) Effect[A] {
	return CheckInterruptible(func(s InterruptStatus) Effect[A] {
		return Interruptible(f(Restore{status: s}))
	})
}

// Interrupt halts the current fiber with an interruption by itself.
func Interrupt[A any]() Effect[A] {
	return DescriptorWith(func(d Descriptor) Effect[A] {
		return Halt[A](CauseInterrupt(d.ID))
	})
}

// InterruptAs halts the current fiber with an interruption by id.
func InterruptAs[A any](id FiberID) Effect[A] {
	return Halt[A](CauseInterrupt(id))
}

// OnInterrupt runs cleanup if e is interrupted. The cleanup itself is
// uninterruptible; its failure is composed after the interruption.
func OnInterrupt[A any](e Effect[A], cleanup Effect[Unit]) Effect[A] {
	return UninterruptibleMask(func(r Restore) Effect[A] {
		return FoldCause(Restored(r, e),
			func(c Cause) Effect[A] {
				if !c.Interrupted() {
					return Halt[A](c)
				}
				return FoldCause(cleanup,
					func(c2 Cause) Effect[A] { return Halt[A](CauseThen(c, c2)) },
					func(Unit) Effect[A] { return Halt[A](c) })
			},
			Succeed[A])
	})
}

// Disconnect runs e on a daemon fiber so that interrupting the caller
// returns immediately, while e's own interruption and finalizers continue
// in the background.
func Disconnect[A any](e Effect[A]) Effect[A] {
	return UninterruptibleMask(func(r Restore) Effect[A] {
		return DescriptorWith(func(d Descriptor) Effect[A] {
			return FlatMap(ForkDaemon(Restored(r, e)), func(f Fiber[A]) Effect[A] {
				return OnInterrupt(Restored(r, f.Join()), Void(ForkDaemon(f.InterruptAs(d.ID))))
			})
		})
	})
}
