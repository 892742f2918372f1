// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"errors"
)

// scheduleDriver is the mutable cursor over one run of a schedule.
// It is confined to the fiber that created it.
type scheduleDriver[I, O any] struct {
	clock Clock
	next  Schedule[I, O]
	last  O
}

// step advances the schedule with in. On Continue it sleeps until the
// decision's time and produces its output; on Stop it fails with
// [*ScheduleExhausted] carrying the final output.
func (d *scheduleDriver[I, O]) step(in I) Effect[O] {
	return Suspend(func() Effect[O] {
		now := d.clock.Now()
		dec := d.next.step(now, in)
		d.last = dec.Out
		if !dec.Continue {
			return Fail[O](&ScheduleExhausted{Last: dec.Out})
		}
		d.next = dec.Next
		if wait := dec.At.Sub(now); wait > 0 {
			return As(d.clock.Sleep(wait), dec.Out)
		}
		return Succeed(dec.Out)
	})
}

func withDriver[I, O, A any](s Schedule[I, O], body func(*scheduleDriver[I, O]) Effect[A]) Effect[A] {
	return AccessEffect(func(env *Env) Effect[A] {
		return body(&scheduleDriver[I, O]{clock: clockFrom(env), next: s})
	})
}

// Repeat runs e once, then again each time s continues with e's value.
// It produces the schedule's final output. A failure of e ends the
// repetition with that failure.
func Repeat[A, O any](e Effect[A], s Schedule[A, O]) Effect[O] {
	return withDriver(s, func(d *scheduleDriver[A, O]) Effect[O] {
		var loop func() Effect[O]
		loop = func() Effect[O] {
			return FlatMap(e, func(a A) Effect[O] {
				return Fold(d.step(a),
					func(err error) Effect[O] {
						if errors.Is(err, ErrScheduleExhausted) {
							return Succeed(d.last)
						}
						return Fail[O](err)
					},
					func(O) Effect[O] { return loop() })
			})
		}
		return loop()
	})
}

// RepeatN runs e once and then n more times, producing the last value.
func RepeatN[A any](e Effect[A], n int) Effect[A] {
	return repeatInput(e, Recurs[A](n))
}

// RepeatWhile runs e until pred is false for its value, which it produces.
func RepeatWhile[A any](e Effect[A], pred func(A) bool) Effect[A] {
	return repeatInput(e, RecurWhile(pred))
}

// RepeatUntil runs e until pred holds for its value, which it produces.
func RepeatUntil[A any](e Effect[A], pred func(A) bool) Effect[A] {
	return repeatInput(e, RecurUntil(pred))
}

// repeatInput is [Repeat] producing e's last value instead of the
// schedule's output.
func repeatInput[A, O any](e Effect[A], s Schedule[A, O]) Effect[A] {
	both := Intersect(s, Identity[A]())
	return Map(Repeat(e, both), func(p Pair[O, A]) A { return p.Second })
}

// Retry runs e and, while it fails and s continues with the error, runs
// it again. When s stops, the effect fails with e's last error. Defects
// and interruption are not retried.
func Retry[A, O any](e Effect[A], s Schedule[error, O]) Effect[A] {
	return RetryOrElse(e, s, func(err error, _ O) Effect[A] { return Fail[A](err) })
}

// RetryOrElse is [Retry] that continues with orElse, given the last error
// and the schedule's final output, once s stops.
func RetryOrElse[A, O any](e Effect[A], s Schedule[error, O], orElse func(error, O) Effect[A]) Effect[A] {
	return withDriver(s, func(d *scheduleDriver[error, O]) Effect[A] {
		var loop func() Effect[A]
		loop = func() Effect[A] {
			return CatchAll(e, func(err error) Effect[A] {
				return Fold(d.step(err),
					func(serr error) Effect[A] {
						if errors.Is(serr, ErrScheduleExhausted) {
							return orElse(err, d.last)
						}
						return Fail[A](serr)
					},
					func(O) Effect[A] { return loop() })
			})
		}
		return loop()
	})
}

// RetryN retries e at most n times.
func RetryN[A any](e Effect[A], n int) Effect[A] {
	return Retry(e, Recurs[error](n))
}

// RetryWhile retries e while pred holds for its error.
func RetryWhile[A any](e Effect[A], pred func(error) bool) Effect[A] {
	return Retry(e, RecurWhile(pred))
}

// RetryUntil retries e until pred holds for its error, then fails with
// that error.
func RetryUntil[A any](e Effect[A], pred func(error) bool) Effect[A] {
	return Retry(e, RecurUntil(pred))
}
