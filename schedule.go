// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"math"
	"math/rand/v2"
	"time"
)

// Schedule is a pure recurrence policy for [Repeat] and [Retry].
//
// Each step maps the current time and an input to a [Decision]. All state
// lives in the returned Next schedule; a Schedule value can be reused
// across runs.
type Schedule[I, O any] struct {
	step func(now time.Time, in I) Decision[I, O]
}

// Decision is the result of one schedule step.
// When Continue is false, Out is the final output and Next is unused.
type Decision[I, O any] struct {
	Continue bool
	Out      O
	At       time.Time
	Next     Schedule[I, O]
}

// NewSchedule builds a schedule from a step function.
func NewSchedule[I, O any](step func(now time.Time, in I) Decision[I, O]) Schedule[I, O] {
	return Schedule[I, O]{step: step}
}

// Step runs one step of s.
func (s Schedule[I, O]) Step(now time.Time, in I) Decision[I, O] {
	return s.step(now, in)
}

// ContinueAt continues with out at time at, then with next.
func ContinueAt[I, O any](out O, at time.Time, next Schedule[I, O]) Decision[I, O] {
	return Decision[I, O]{Continue: true, Out: out, At: at, Next: next}
}

// Stop ends the schedule with a final output.
func Stop[I, O any](out O) Decision[I, O] {
	return Decision[I, O]{Out: out}
}

func stopped[I, O any](out O) Schedule[I, O] {
	return NewSchedule(func(time.Time, I) Decision[I, O] { return Stop[I](out) })
}

// Forever recurs without delay and outputs the number of prior recurrences.
func Forever[I any]() Schedule[I, int] {
	return countFrom[I](0)
}

func countFrom[I any](n int) Schedule[I, int] {
	return NewSchedule(func(now time.Time, _ I) Decision[I, int] {
		return ContinueAt(n, now, countFrom[I](n+1))
	})
}

// Recurs recurs n times without delay. Its final output is n.
func Recurs[I any](n int) Schedule[I, int] {
	return Forever[I]().WhileOutput(func(k int) bool { return k < n })
}

// Once recurs a single time.
func Once[I any]() Schedule[I, int] {
	return Recurs[I](1)
}

// Identity recurs forever without delay and outputs its input.
func Identity[I any]() Schedule[I, I] {
	var s Schedule[I, I]
	s = NewSchedule(func(now time.Time, in I) Decision[I, I] {
		return ContinueAt(in, now, s)
	})
	return s
}

// RecurWhile recurs while pred holds for the input.
func RecurWhile[I any](pred func(I) bool) Schedule[I, I] {
	return Identity[I]().WhileInput(pred)
}

// RecurUntil recurs until pred holds for the input.
func RecurUntil[I any](pred func(I) bool) Schedule[I, I] {
	return Identity[I]().WhileInput(func(in I) bool { return !pred(in) })
}

// Spaced recurs forever, waiting d after each step.
func Spaced[I any](d time.Duration) Schedule[I, int] {
	return Forever[I]().AddDelay(func(int) time.Duration { return d })
}

// Fixed recurs on a fixed interval measured from the first step. A step
// that arrives after its window recurs at once; missed windows do not
// accumulate.
func Fixed[I any](interval time.Duration) Schedule[I, int] {
	return NewSchedule(func(now time.Time, in I) Decision[I, int] {
		return fixedFrom[I](now, interval, 0).step(now, in)
	})
}

func fixedFrom[I any](start time.Time, interval time.Duration, n int) Schedule[I, int] {
	return NewSchedule(func(now time.Time, _ I) Decision[I, int] {
		if interval <= 0 {
			return ContinueAt(n, now, fixedFrom[I](start, interval, n+1))
		}
		at := start.Add(time.Duration(n+1) * interval)
		next := n + 1
		if at.Before(now) {
			at = now
			next = int(now.Sub(start) / interval)
		}
		return ContinueAt(n, at, fixedFrom[I](start, interval, next))
	})
}

// Exponential recurs forever with delays base, base*factor,
// base*factor², and so on. It outputs the current delay.
func Exponential[I any](base time.Duration, factor float64) Schedule[I, time.Duration] {
	if factor <= 0 {
		factor = 2
	}
	return exponentialFrom[I](base, factor, 0)
}

func exponentialFrom[I any](base time.Duration, factor float64, n int) Schedule[I, time.Duration] {
	return NewSchedule(func(now time.Time, _ I) Decision[I, time.Duration] {
		d := scaleDuration(base, math.Pow(factor, float64(n)))
		return ContinueAt(d, now.Add(d), exponentialFrom[I](base, factor, n+1))
	})
}

// Fibonacci recurs forever with delays one, one, 2*one, 3*one, 5*one, and
// so on. It outputs the current delay.
func Fibonacci[I any](one time.Duration) Schedule[I, time.Duration] {
	return fibonacciFrom[I](one, one)
}

func fibonacciFrom[I any](a, b time.Duration) Schedule[I, time.Duration] {
	return NewSchedule(func(now time.Time, _ I) Decision[I, time.Duration] {
		return ContinueAt(a, now.Add(a), fibonacciFrom[I](b, saturatingAdd(a, b)))
	})
}

// Elapsed recurs forever without delay and outputs the time since the
// first step.
func Elapsed[I any]() Schedule[I, time.Duration] {
	return NewSchedule(func(now time.Time, in I) Decision[I, time.Duration] {
		return elapsedFrom[I](now).step(now, in)
	})
}

func elapsedFrom[I any](start time.Time) Schedule[I, time.Duration] {
	var s Schedule[I, time.Duration]
	s = NewSchedule(func(now time.Time, _ I) Decision[I, time.Duration] {
		return ContinueAt(now.Sub(start), now, s)
	})
	return s
}

// MapOut transforms the outputs of s.
func MapOut[I, O, O2 any](s Schedule[I, O], f func(O) O2) Schedule[I, O2] {
	return NewSchedule(func(now time.Time, in I) Decision[I, O2] {
		d := s.step(now, in)
		if !d.Continue {
			return Stop[I](f(d.Out))
		}
		return ContinueAt(f(d.Out), d.At, MapOut(d.Next, f))
	})
}

// Intersect continues while both schedules continue, at the later of
// their times, and pairs their outputs.
func Intersect[I, A, B any](a Schedule[I, A], b Schedule[I, B]) Schedule[I, Pair[A, B]] {
	return NewSchedule(func(now time.Time, in I) Decision[I, Pair[A, B]] {
		da, db := a.step(now, in), b.step(now, in)
		out := Pair[A, B]{First: da.Out, Second: db.Out}
		if !da.Continue || !db.Continue {
			return Stop[I](out)
		}
		return ContinueAt(out, later(da.At, db.At), Intersect(da.Next, db.Next))
	})
}

// Union continues while either schedule continues, at the earlier of the
// continuing times, and pairs their outputs. A schedule that stops stays
// stopped.
func Union[I, A, B any](a Schedule[I, A], b Schedule[I, B]) Schedule[I, Pair[A, B]] {
	return NewSchedule(func(now time.Time, in I) Decision[I, Pair[A, B]] {
		da, db := a.step(now, in), b.step(now, in)
		out := Pair[A, B]{First: da.Out, Second: db.Out}
		switch {
		case da.Continue && db.Continue:
			return ContinueAt(out, earlier(da.At, db.At), Union(da.Next, db.Next))
		case da.Continue:
			return ContinueAt(out, da.At, Union(da.Next, stopped[I](db.Out)))
		case db.Continue:
			return ContinueAt(out, db.At, Union(stopped[I](da.Out), db.Next))
		}
		return Stop[I](out)
	})
}

// And continues while both s and that continue, at the later time, and
// keeps the output of s.
func (s Schedule[I, O]) And(that Schedule[I, O]) Schedule[I, O] {
	return NewSchedule(func(now time.Time, in I) Decision[I, O] {
		da, db := s.step(now, in), that.step(now, in)
		if !da.Continue || !db.Continue {
			return Stop[I](da.Out)
		}
		return ContinueAt(da.Out, later(da.At, db.At), da.Next.And(db.Next))
	})
}

// Or continues while either s or that continues, at the earlier time, and
// keeps the output of s. A schedule that stops stays stopped.
func (s Schedule[I, O]) Or(that Schedule[I, O]) Schedule[I, O] {
	return NewSchedule(func(now time.Time, in I) Decision[I, O] {
		da, db := s.step(now, in), that.step(now, in)
		switch {
		case da.Continue && db.Continue:
			return ContinueAt(da.Out, earlier(da.At, db.At), da.Next.Or(db.Next))
		case da.Continue:
			return ContinueAt(da.Out, da.At, da.Next.Or(stopped[I](db.Out)))
		case db.Continue:
			return ContinueAt(da.Out, db.At, stopped[I](da.Out).Or(db.Next))
		}
		return Stop[I](da.Out)
	})
}

// reshape applies f to every decision of s.
func (s Schedule[I, O]) reshape(f func(now time.Time, in I, d Decision[I, O]) Decision[I, O]) Schedule[I, O] {
	return NewSchedule(func(now time.Time, in I) Decision[I, O] {
		d := f(now, in, s.step(now, in))
		if d.Continue {
			d.Next = d.Next.reshape(f)
		}
		return d
	})
}

// WhileOutput stops s at the first output for which pred is false.
func (s Schedule[I, O]) WhileOutput(pred func(O) bool) Schedule[I, O] {
	return s.reshape(func(_ time.Time, _ I, d Decision[I, O]) Decision[I, O] {
		if d.Continue && !pred(d.Out) {
			return Stop[I](d.Out)
		}
		return d
	})
}

// WhileInput stops s at the first input for which pred is false.
func (s Schedule[I, O]) WhileInput(pred func(I) bool) Schedule[I, O] {
	return s.reshape(func(_ time.Time, in I, d Decision[I, O]) Decision[I, O] {
		if d.Continue && !pred(in) {
			return Stop[I](d.Out)
		}
		return d
	})
}

// Delayed rewrites every delay of s with f.
func (s Schedule[I, O]) Delayed(f func(time.Duration) time.Duration) Schedule[I, O] {
	return s.reshape(func(now time.Time, _ I, d Decision[I, O]) Decision[I, O] {
		if d.Continue {
			d.At = now.Add(max(0, f(d.At.Sub(now))))
		}
		return d
	})
}

// AddDelay extends every delay of s by f of the output.
func (s Schedule[I, O]) AddDelay(f func(O) time.Duration) Schedule[I, O] {
	return s.reshape(func(_ time.Time, _ I, d Decision[I, O]) Decision[I, O] {
		if d.Continue {
			d.At = d.At.Add(f(d.Out))
		}
		return d
	})
}

// Capped limits every delay of s to limit.
func (s Schedule[I, O]) Capped(limit time.Duration) Schedule[I, O] {
	return s.Delayed(func(d time.Duration) time.Duration { return min(d, limit) })
}

// Jittered scales every delay of s by a random factor in [lo, hi).
func (s Schedule[I, O]) Jittered(lo, hi float64) Schedule[I, O] {
	if hi < lo {
		lo, hi = hi, lo
	}
	return s.Delayed(func(d time.Duration) time.Duration {
		return scaleDuration(d, lo+rand.Float64()*(hi-lo))
	})
}

// UpTo stops s once limit has elapsed since its first step.
func (s Schedule[I, O]) UpTo(limit time.Duration) Schedule[I, O] {
	return NewSchedule(func(now time.Time, in I) Decision[I, O] {
		deadline := now.Add(limit)
		return s.reshape(func(now time.Time, _ I, d Decision[I, O]) Decision[I, O] {
			if d.Continue && !now.Before(deadline) {
				return Stop[I](d.Out)
			}
			return d
		}).step(now, in)
	})
}

func scaleDuration(d time.Duration, f float64) time.Duration {
	x := float64(d) * f
	if x >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(x)
}

func saturatingAdd(a, b time.Duration) time.Duration {
	if a > math.MaxInt64-b {
		return time.Duration(math.MaxInt64)
	}
	return a + b
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
