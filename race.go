// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"sync/atomic"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/kont"
)

// raceWith forks left and right as interruptible children and continues
// with the handler of whichever finishes first, passing it the winner's
// exit and the loser's handle. If the caller is interrupted while waiting,
// both children are interrupted.
func raceWith[A, B, C any](
	left Effect[A], right Effect[B],
	leftDone func(Exit[A], Fiber[B]) Effect[C],
	rightDone func(Exit[B], Fiber[A]) Effect[C],
) Effect[C] {
	return UninterruptibleMask(func(r Restore) Effect[C] {
		return Suspend(func() Effect[C] {
			leftWon := NewCell[bool]()
			return FlatMap(Fork(Interruptible(left)), func(lf Fiber[A]) Effect[C] {
				return FlatMap(Fork(Interruptible(right)), func(rf Fiber[B]) Effect[C] {
					lf.observe(func(Exit[any]) { leftWon.unsafeDone(Succeeded(true)) })
					rf.observe(func(Exit[any]) { leftWon.unsafeDone(Succeeded(false)) })
					arbiter := FlatMap(leftWon.Await(), func(won bool) Effect[C] {
						if won {
							return FlatMap(lf.Await(), func(x Exit[A]) Effect[C] { return leftDone(x, rf) })
						}
						return FlatMap(rf.Await(), func(x Exit[B]) Effect[C] { return rightDone(x, lf) })
					})
					return OnInterrupt(Restored(r, arbiter),
						InterruptAll([]Fiber[any]{lf.Erase(), rf.Erase()}))
				})
			})
		})
	})
}

// Race runs left and right concurrently and produces the first success.
// The loser is interrupted once a winner succeeds. If the first to finish
// failed, the other is awaited: its success wins, and otherwise both
// causes are composed with Both, unless the other was merely interrupted.
func Race[A any](left, right Effect[A]) Effect[A] {
	return DescriptorWith(func(d Descriptor) Effect[A] {
		arbiter := func(x Exit[A], loser Fiber[A]) Effect[A] {
			return raceArbiter(d.ID, x, loser)
		}
		return raceWith(left, right, arbiter, arbiter)
	})
}

func raceArbiter[A any](self FiberID, x Exit[A], loser Fiber[A]) Effect[A] {
	if v, ok := x.Value(); ok {
		return As(loser.InterruptAs(self), v)
	}
	return FlatMap(loser.Await(), func(lx Exit[A]) Effect[A] {
		if v, ok := lx.Value(); ok {
			return Succeed(v)
		}
		if lx.Cause().IsInterruptedOnly() {
			return Halt[A](x.Cause())
		}
		return Halt[A](CauseBoth(x.Cause(), lx.Cause()))
	})
}

// RaceEither is [Race] over effects of different types.
func RaceEither[A, B any](left Effect[A], right Effect[B]) Effect[kont.Either[A, B]] {
	return Race(
		Map(left, func(a A) kont.Either[A, B] { return kont.Left[A, B](a) }),
		Map(right, func(b B) kont.Either[A, B] { return kont.Right[A, B](b) }),
	)
}

type raceAllWin[A any] struct {
	index int
	value A
}

// RaceAll runs every contender concurrently and produces the first
// success, interrupting the rest. It fails only once every contender has
// failed, with all their causes composed with Both. Interruption outcomes
// of the losers are not reported.
func RaceAll[A any](first Effect[A], rest ...Effect[A]) Effect[A] {
	contenders := append([]Effect[A]{first}, rest...)
	return UninterruptibleMask(func(r Restore) Effect[A] {
		return Suspend(func() Effect[A] {
			winner := NewCell[raceAllWin[A]]()
			var pending atomix.Uint32
			pending.Add(uint32(len(contenders)))
			var causes atomic.Pointer[Cause]
			forks := Foreach(contenders, func(e Effect[A]) Effect[Fiber[A]] {
				return Fork(Interruptible(e))
			})
			return FlatMap(forks, func(fs []Fiber[A]) Effect[A] {
				all := make([]Fiber[any], len(fs))
				for i, f := range fs {
					all[i] = f.Erase()
					f.observe(func(x Exit[any]) {
						if v, ok := x.Value(); ok {
							winner.unsafeDone(Succeeded(raceAllWin[A]{index: i, value: castValue[A](v)}))
							return
						}
						accumulateCause(&causes, x.Cause())
						if pending.Add(^uint32(0)) == 0 {
							winner.unsafeDone(Failed[raceAllWin[A]](*causes.Load()))
						}
					})
				}
				losers := func(w int) []Fiber[any] {
					out := make([]Fiber[any], 0, len(all))
					for i, f := range all {
						if i != w {
							out = append(out, f)
						}
					}
					return out
				}
				arbiter := FlatMap(winner.Await(), func(w raceAllWin[A]) Effect[A] {
					return As(InterruptAll(losers(w.index)), w.value)
				})
				return OnInterrupt(Restored(r, arbiter), InterruptAll(all))
			})
		})
	})
}

// accumulateCause composes c into *acc with Both.
func accumulateCause(acc *atomic.Pointer[Cause], c Cause) {
	for {
		old := acc.Load()
		next := c
		if old != nil {
			next = CauseBoth(*old, c)
		}
		if acc.CompareAndSwap(old, &next) {
			return
		}
	}
}

// ZipWithPar runs a and b concurrently and combines their values with f.
// The first failure interrupts the other side; causes of two genuine
// failures are composed with Both.
func ZipWithPar[A, B, C any](a Effect[A], b Effect[B], f func(A, B) C) Effect[C] {
	return DescriptorWith(func(d Descriptor) Effect[C] {
		return raceWith(a, b,
			func(x Exit[A], other Fiber[B]) Effect[C] {
				return FlatMap(zipParOther(d.ID, x.IsSuccess(), other), func(y Exit[B]) Effect[C] {
					return Done(zipParExit(x, y, f))
				})
			},
			func(y Exit[B], other Fiber[A]) Effect[C] {
				return FlatMap(zipParOther(d.ID, y.IsSuccess(), other), func(x Exit[A]) Effect[C] {
					return Done(zipParExit(x, y, f))
				})
			})
	})
}

// zipParOther awaits the other side after a success, or interrupts it
// after a failure.
func zipParOther[B any](self FiberID, firstOK bool, other Fiber[B]) Effect[Exit[B]] {
	if firstOK {
		return other.Await()
	}
	return other.InterruptAs(self)
}

func zipParExit[A, B, C any](x Exit[A], y Exit[B], f func(A, B) C) Exit[C] {
	switch {
	case !x.IsSuccess() && !y.IsSuccess() && y.Cause().IsInterruptedOnly():
		return Failed[C](x.Cause())
	case !x.IsSuccess() && !y.IsSuccess() && x.Cause().IsInterruptedOnly():
		return Failed[C](y.Cause())
	}
	return ExitZipPar(x, y, f)
}

// ZipPar runs a and b concurrently and pairs their values.
func ZipPar[A, B any](a Effect[A], b Effect[B]) Effect[Pair[A, B]] {
	return ZipWithPar(a, b, func(x A, y B) Pair[A, B] { return Pair[A, B]{First: x, Second: y} })
}

// TimeoutFail runs e with a deadline of d on the environment's clock.
// If the deadline passes first, e is interrupted and the effect fails
// with err.
func TimeoutFail[A any](e Effect[A], d time.Duration, err error) Effect[A] {
	return DescriptorWith(func(desc Descriptor) Effect[A] {
		return raceWith(e, Sleep(d),
			func(x Exit[A], timer Fiber[Unit]) Effect[A] {
				return ZipRight(timer.InterruptAs(desc.ID), Done(x))
			},
			func(_ Exit[Unit], work Fiber[A]) Effect[A] {
				return ZipRight(work.InterruptAs(desc.ID), Fail[A](err))
			})
	})
}

// Timeout is [TimeoutFail] with [ErrTimeout].
func Timeout[A any](e Effect[A], d time.Duration) Effect[A] {
	return TimeoutFail(e, d, ErrTimeout)
}
