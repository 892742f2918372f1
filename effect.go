// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"errors"

	"code.hybscloud.com/kont"
)

// Unit is the result of effects evaluated only for their side effects.
type Unit = struct{}

// Effect is a lazy, immutable description of a computation that either
// succeeds with an A or fails with a [Cause]. Building an Effect performs
// nothing; a fiber evaluates it (see [RunFiber], [RunSync], [Fork]).
//
// The environment is not a type parameter: it is the [*Env] visible to the
// running fiber, read by [Access] and replaced by [Provide].
type Effect[A any] struct {
	op instr
}

// instr is the erased instruction evaluated by the fiber run loop.
// The set of implementations is closed.
type instr interface {
	isInstr()
}

type (
	// succeedOp produces a value.
	succeedOp struct {
		value any
	}
	// failOp raises a cause.
	failOp struct {
		cause Cause
	}
	// syncOp runs a thunk that may fail; panics become Die.
	syncOp struct {
		f func() (any, error)
	}
	// suspendOp builds the next description lazily.
	suspendOp struct {
		f func() instr
	}
	// flatMapOp sequences src with a continuation.
	flatMapOp struct {
		src instr
		k   func(any) instr
	}
	// foldOp sequences src with a failure and a success continuation.
	foldOp struct {
		src       instr
		onFailure func(Cause) instr
		onSuccess func(any) instr
	}
	// asyncOp suspends the fiber until resume is called. A non-nil now
	// result completes synchronously. A non-nil canceler runs if the fiber
	// is interrupted while suspended.
	asyncOp struct {
		register func(resume func(instr)) (canceler instr, now instr)
	}
	// accessOp reads the environment.
	accessOp struct {
		f func(*Env) instr
	}
	// provideOp evaluates src under env.
	provideOp struct {
		env *Env
		src instr
	}
	// forkOp starts src on a new fiber; wrap turns the child into the
	// typed handle produced to the caller.
	forkOp struct {
		src      instr
		reporter Reporter
		daemon   bool
		wrap     func(*fiberContext) any
	}
	// setStatusOp evaluates src under an interrupt status.
	setStatusOp struct {
		status InterruptStatus
		src    instr
	}
	// getStatusOp reads the current interrupt status.
	getStatusOp struct {
		f func(InterruptStatus) instr
	}
	// descriptorOp reads the current fiber's descriptor.
	descriptorOp struct {
		f func(Descriptor) instr
	}
	// superviseOp evaluates src with sup attached to every fork.
	superviseOp struct {
		sup Supervisor
		src instr
	}
	// yieldOp reschedules the fiber.
	yieldOp struct{}
	// localOp runs f against the current fiber's own state: fiber refs,
	// interruption of the current fiber, children.
	localOp struct {
		f func(*fiberContext) instr
	}
)

func (*succeedOp) isInstr()    {}
func (*failOp) isInstr()       {}
func (*syncOp) isInstr()       {}
func (*suspendOp) isInstr()    {}
func (*flatMapOp) isInstr()    {}
func (*foldOp) isInstr()       {}
func (*asyncOp) isInstr()      {}
func (*accessOp) isInstr()     {}
func (*provideOp) isInstr()    {}
func (*forkOp) isInstr()       {}
func (*setStatusOp) isInstr()  {}
func (*getStatusOp) isInstr()  {}
func (*descriptorOp) isInstr() {}
func (*superviseOp) isInstr()  {}
func (*yieldOp) isInstr()      {}
func (*localOp) isInstr()      {}

var (
	unitOp  instr = &succeedOp{value: Unit{}}
	yieldIn instr = &yieldOp{}

	errNilEffect = errors.New("fx: nil effect")
)

// Succeed returns an effect that produces a.
func Succeed[A any](a A) Effect[A] {
	return Effect[A]{op: &succeedOp{value: a}}
}

// Skip returns an effect that produces Unit.
func Skip() Effect[Unit] {
	return Effect[Unit]{op: unitOp}
}

// Fail returns an effect that fails with the typed error err.
func Fail[A any](err error) Effect[A] {
	return Effect[A]{op: &failOp{cause: CauseFail(err)}}
}

// Halt returns an effect that fails with cause.
func Halt[A any](cause Cause) Effect[A] {
	return Effect[A]{op: &failOp{cause: cause}}
}

// Die returns an effect that fails with the defect.
func Die[A any](defect any) Effect[A] {
	return Effect[A]{op: &failOp{cause: CauseDie(defect)}}
}

// DieMessage returns an effect that dies with an error holding msg.
func DieMessage[A any](msg string) Effect[A] {
	return Die[A](errors.New(msg))
}

// Done returns an effect that replays exit.
func Done[A any](exit Exit[A]) Effect[A] {
	if v, ok := exit.Value(); ok {
		return Succeed(v)
	}
	return Halt[A](exit.Cause())
}

// Sync returns an effect that runs f each time it is evaluated.
// A non-nil error becomes a typed failure; a panic becomes a defect.
func Sync[A any](f func() (A, error)) Effect[A] {
	return Effect[A]{op: &syncOp{f: func() (any, error) {
		return f()
	}}}
}

// SyncTotal returns an effect that runs f, which cannot fail, each time it
// is evaluated.
func SyncTotal[A any](f func() A) Effect[A] {
	return Effect[A]{op: &syncOp{f: func() (any, error) {
		return f(), nil
	}}}
}

// Suspend defers building an effect until it is evaluated.
func Suspend[A any](f func() Effect[A]) Effect[A] {
	return Effect[A]{op: &suspendOp{f: func() instr {
		return f().op
	}}}
}

// FlatMap sequences e with f.
func FlatMap[A, B any](e Effect[A], f func(A) Effect[B]) Effect[B] {
	return Effect[B]{op: &flatMapOp{src: e.op, k: func(v any) instr {
		return f(castValue[A](v)).op
	}}}
}

// Map transforms the success value of e.
func Map[A, B any](e Effect[A], f func(A) B) Effect[B] {
	return Effect[B]{op: &flatMapOp{src: e.op, k: func(v any) instr {
		return &succeedOp{value: f(castValue[A](v))}
	}}}
}

// FoldCause continues with onFailure when e fails, with the full cause,
// and with onSuccess when it succeeds.
func FoldCause[A, B any](e Effect[A], onFailure func(Cause) Effect[B], onSuccess func(A) Effect[B]) Effect[B] {
	return Effect[B]{op: &foldOp{
		src: e.op,
		onFailure: func(c Cause) instr {
			return onFailure(c).op
		},
		onSuccess: func(v any) instr {
			return onSuccess(castValue[A](v)).op
		},
	}}
}

// Async suspends the fiber until register's resume callback is invoked
// with the effect to continue with. Only the first call to resume has an
// effect.
func Async[A any](register func(resume func(Effect[A]))) Effect[A] {
	return Effect[A]{op: &asyncOp{register: func(resume func(instr)) (instr, instr) {
		register(func(e Effect[A]) { resume(e.op) })
		return nil, nil
	}}}
}

// AsyncMaybe is [Async] with a synchronous fast path: when register
// returns true, its effect is used immediately and the fiber does not suspend.
func AsyncMaybe[A any](register func(resume func(Effect[A])) (Effect[A], bool)) Effect[A] {
	return Effect[A]{op: &asyncOp{register: func(resume func(instr)) (instr, instr) {
		e, ok := register(func(e Effect[A]) { resume(e.op) })
		if ok {
			return nil, e.op
		}
		return nil, nil
	}}}
}

// AsyncInterrupt is [Async] with cancellation. register returns Left with a
// canceler run if the fiber is interrupted while suspended, or Right with an
// effect to continue with immediately.
func AsyncInterrupt[A any](register func(resume func(Effect[A])) kont.Either[Effect[Unit], Effect[A]]) Effect[A] {
	return Effect[A]{op: &asyncOp{register: func(resume func(instr)) (instr, instr) {
		r := register(func(e Effect[A]) { resume(e.op) })
		if canceler, ok := r.GetLeft(); ok {
			return canceler.op, nil
		}
		now, _ := r.GetRight()
		return nil, now.op
	}}}
}

// Yield reschedules the current fiber, letting others sharing the
// executor make progress.
func Yield() Effect[Unit] {
	return Effect[Unit]{op: yieldIn}
}

// localEff runs f against the current fiber.
func localEff[A any](f func(*fiberContext) Effect[A]) Effect[A] {
	return Effect[A]{op: &localOp{f: func(fc *fiberContext) instr {
		return f(fc).op
	}}}
}
