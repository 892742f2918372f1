// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"code.hybscloud.com/kont"
)

// Pair holds the results of two combined effects.
type Pair[A, B any] struct {
	First  A
	Second B
}

// As replaces the success value of e with b.
func As[A, B any](e Effect[A], b B) Effect[B] {
	return Map(e, func(A) B { return b })
}

// Void discards the success value of e.
func Void[A any](e Effect[A]) Effect[Unit] {
	return As(e, Unit{})
}

// Tap runs f on the success value of e and keeps that value.
func Tap[A, B any](e Effect[A], f func(A) Effect[B]) Effect[A] {
	return FlatMap(e, func(a A) Effect[A] {
		return As(f(a), a)
	})
}

// ZipWith runs a then b and combines their values with f.
func ZipWith[A, B, C any](a Effect[A], b Effect[B], f func(A, B) C) Effect[C] {
	return FlatMap(a, func(x A) Effect[C] {
		return Map(b, func(y B) C { return f(x, y) })
	})
}

// Zip runs a then b and pairs their values.
func Zip[A, B any](a Effect[A], b Effect[B]) Effect[Pair[A, B]] {
	return ZipWith(a, b, func(x A, y B) Pair[A, B] { return Pair[A, B]{First: x, Second: y} })
}

// ZipRight runs a then b and keeps b's value.
func ZipRight[A, B any](a Effect[A], b Effect[B]) Effect[B] {
	return FlatMap(a, func(A) Effect[B] { return b })
}

// ZipLeft runs a then b and keeps a's value.
func ZipLeft[A, B any](a Effect[A], b Effect[B]) Effect[A] {
	return FlatMap(a, func(x A) Effect[A] { return As(b, x) })
}

// Fold continues with onFailure on the first typed failure of e and with
// onSuccess on its value. Defects and interruptions are re-raised.
func Fold[A, B any](e Effect[A], onFailure func(error) Effect[B], onSuccess func(A) Effect[B]) Effect[B] {
	return FoldCause(e, func(c Cause) Effect[B] {
		if err, ok := c.FirstFailure(); ok {
			return onFailure(err)
		}
		return Halt[B](c)
	}, onSuccess)
}

// CatchAll recovers from the first typed failure of e with h.
// Defects and interruptions pass through unchanged.
func CatchAll[A any](e Effect[A], h func(error) Effect[A]) Effect[A] {
	return Fold(e, h, Succeed[A])
}

// CatchSome recovers from typed failures for which pf reports true.
func CatchSome[A any](e Effect[A], pf func(error) (Effect[A], bool)) Effect[A] {
	return FoldCause(e, func(c Cause) Effect[A] {
		if err, ok := c.FirstFailure(); ok {
			if r, ok := pf(err); ok {
				return r
			}
		}
		return Halt[A](c)
	}, Succeed[A])
}

// CatchAllCause recovers from any failure of e, seeing the full cause.
func CatchAllCause[A any](e Effect[A], h func(Cause) Effect[A]) Effect[A] {
	return FoldCause(e, h, Succeed[A])
}

// OrElse runs that when e fails with a typed failure.
func OrElse[A any](e Effect[A], that Effect[A]) Effect[A] {
	return CatchAll(e, func(error) Effect[A] { return that })
}

// MapError rewrites the typed failures of e with f.
func MapError[A any](e Effect[A], f func(error) error) Effect[A] {
	return FoldCause(e, func(c Cause) Effect[A] {
		return Halt[A](c.Map(f))
	}, Succeed[A])
}

// Either exposes the first typed failure of e as a Left value.
func Either[A any](e Effect[A]) Effect[kont.Either[error, A]] {
	return Fold(e,
		func(err error) Effect[kont.Either[error, A]] {
			return Succeed(kont.Left[error, A](err))
		},
		func(a A) Effect[kont.Either[error, A]] {
			return Succeed(kont.Right[error, A](a))
		})
}

// Absolve is the inverse of [Either]: Left becomes a typed failure.
func Absolve[A any](e Effect[kont.Either[error, A]]) Effect[A] {
	return FlatMap(e, func(r kont.Either[error, A]) Effect[A] {
		if err, ok := r.GetLeft(); ok {
			return Fail[A](err)
		}
		a, _ := r.GetRight()
		return Succeed(a)
	})
}

// ExitOf runs e and produces its exit. It never fails, except through
// interruption of the current fiber.
func ExitOf[A any](e Effect[A]) Effect[Exit[A]] {
	return FoldCause(e,
		func(c Cause) Effect[Exit[A]] { return Succeed(Failed[A](c)) },
		func(a A) Effect[Exit[A]] { return Succeed(Succeeded(a)) })
}

// Resurrect turns a defect of e into a typed [*DefectError] failure.
// It is meant for diagnostic boundaries; ordinary catch combinators never
// see defects.
func Resurrect[A any](e Effect[A]) Effect[A] {
	return CatchAllCause(e, func(c Cause) Effect[A] {
		if ds := c.Defects(); len(ds) > 0 {
			return Fail[A](&DefectError{Defect: ds[0]})
		}
		return Halt[A](c)
	})
}

// Foreach applies f to each element of as in order and collects the results.
func Foreach[A, B any](as []A, f func(A) Effect[B]) Effect[[]B] {
	return Suspend(func() Effect[[]B] {
		out := make([]B, 0, len(as))
		var step func(i int) Effect[[]B]
		step = func(i int) Effect[[]B] {
			if i == len(as) {
				return Succeed(out)
			}
			return FlatMap(f(as[i]), func(b B) Effect[[]B] {
				out = append(out, b)
				return step(i + 1)
			})
		}
		return step(0)
	})
}

// CollectAll runs es in order and collects their values.
func CollectAll[A any](es []Effect[A]) Effect[[]A] {
	return Foreach(es, func(e Effect[A]) Effect[A] { return e })
}

// Loop runs step repeatedly. step returns Left(nextState) to continue or
// Right(result) to finish. Iterations are trampolined.
func Loop[S, A any](initial S, step func(S) Effect[kont.Either[S, A]]) Effect[A] {
	return Suspend(func() Effect[A] {
		return FlatMap(step(initial), func(e kont.Either[S, A]) Effect[A] {
			if left, ok := e.GetLeft(); ok {
				return Loop(left, step)
			}
			right, _ := e.GetRight()
			return Succeed(right)
		})
	})
}

// When runs e only if cond holds.
func When(cond bool, e Effect[Unit]) Effect[Unit] {
	if cond {
		return e
	}
	return Skip()
}

// RepeatForever runs e until it fails.
func RepeatForever[A any](e Effect[A]) Effect[Unit] {
	var loop Effect[Unit]
	loop = FlatMap(e, func(A) Effect[Unit] { return loop })
	return loop
}
