// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx_test

import (
	"sync/atomic"
	"testing"
	"time"

	"code.hybscloud.com/fx"
	"code.hybscloud.com/kont"
)

// started returns a cell and an effect that completes it.
func started() (*fx.Cell[fx.Unit], fx.Effect[bool]) {
	c := fx.NewCell[fx.Unit]()
	return c, c.Succeed(fx.Unit{})
}

func TestInterruptSuspendedFiber(t *testing.T) {
	ready, signal := started()
	e := fx.FlatMap(fx.Fork(fx.ZipRight(signal, never[int]())), func(f fx.Fiber[int]) fx.Effect[fx.Exit[int]] {
		return fx.ZipRight(ready.Await(), f.Interrupt())
	})
	x := run(t, e)
	if !x.Interrupted() || !x.Cause().IsInterruptedOnly() {
		t.Fatalf("expected interrupted-only exit, got %v", x)
	}
}

func TestInterruptRecordsInterruptor(t *testing.T) {
	ready, signal := started()
	e := fx.FlatMap(fx.Fork(fx.ZipRight(signal, never[int]())), func(f fx.Fiber[int]) fx.Effect[fx.Exit[int]] {
		return fx.ZipRight(ready.Await(), f.InterruptAs(77))
	})
	x := run(t, e)
	if ids := x.Cause().Interruptors(); len(ids) != 1 || ids[0] != 77 {
		t.Fatalf("Interruptors: got %v", ids)
	}
}

func TestInterruptCancelerRuns(t *testing.T) {
	var cancelled atomic.Bool
	ready, signal := started()
	pending := fx.AsyncInterrupt(func(func(fx.Effect[int])) kont.Either[fx.Effect[fx.Unit], fx.Effect[int]] {
		return kont.Left[fx.Effect[fx.Unit], fx.Effect[int]](fx.SyncTotal(func() fx.Unit {
			cancelled.Store(true)
			return fx.Unit{}
		}))
	})
	e := fx.FlatMap(fx.Fork(fx.ZipRight(signal, pending)), func(f fx.Fiber[int]) fx.Effect[fx.Exit[int]] {
		return fx.ZipRight(ready.Await(), f.Interrupt())
	})
	x := run(t, e)
	if !x.Interrupted() || !cancelled.Load() {
		t.Fatalf("canceler should run on interruption: exit=%v cancelled=%v", x, cancelled.Load())
	}
}

func TestUninterruptibleRegionDefersInterruption(t *testing.T) {
	ready, signal := started()
	release := fx.NewCell[fx.Unit]()
	var finished atomic.Bool
	body := fx.Uninterruptible(fx.ZipRight(signal, fx.ZipRight(release.Await(),
		fx.SyncTotal(func() fx.Unit { finished.Store(true); return fx.Unit{} }))))
	e := fx.FlatMap(fx.Fork(body), func(f fx.Fiber[fx.Unit]) fx.Effect[fx.Exit[fx.Unit]] {
		return fx.ZipRight(ready.Await(), fx.FlatMap(fx.Fork(f.Interrupt()), func(interrupter fx.Fiber[fx.Exit[fx.Unit]]) fx.Effect[fx.Exit[fx.Unit]] {
			return fx.ZipRight(release.Succeed(fx.Unit{}), interrupter.Join())
		}))
	})
	x := run(t, e)
	if !finished.Load() {
		t.Fatalf("uninterruptible body should run to completion")
	}
	if !x.IsSuccess() {
		t.Fatalf("an uninterruptible body that completes should succeed, got %v", x)
	}
}

func TestUninterruptibleFailureKeepsInterruption(t *testing.T) {
	ready, signal := started()
	release := fx.NewCell[fx.Unit]()
	body := fx.Uninterruptible(fx.ZipRight(signal, fx.ZipRight(release.Await(), fx.Fail[fx.Unit](errA))))
	e := fx.FlatMap(fx.Fork(body), func(f fx.Fiber[fx.Unit]) fx.Effect[fx.Exit[fx.Unit]] {
		return fx.ZipRight(ready.Await(), fx.FlatMap(fx.Fork(f.Interrupt()), func(interrupter fx.Fiber[fx.Exit[fx.Unit]]) fx.Effect[fx.Exit[fx.Unit]] {
			return fx.ZipRight(release.Succeed(fx.Unit{}), interrupter.Join())
		}))
	})
	x := run(t, e)
	if err, ok := x.Cause().FirstFailure(); !ok || err != errA {
		t.Fatalf("the failure should be kept, got %v", x)
	}
	if !x.Interrupted() {
		t.Fatalf("the interruption should be recorded after the failure, got %v", x)
	}
}

func TestInterruptTakesEffectAfterUninterruptibleRegion(t *testing.T) {
	ready, signal := started()
	release := fx.NewCell[fx.Unit]()
	var continued atomic.Bool
	region := fx.Uninterruptible(fx.ZipRight(signal, release.Await()))
	body := fx.ZipRight(region, fx.SyncTotal(func() fx.Unit { continued.Store(true); return fx.Unit{} }))
	e := fx.FlatMap(fx.Fork(body), func(f fx.Fiber[fx.Unit]) fx.Effect[fx.Exit[fx.Unit]] {
		return fx.ZipRight(ready.Await(), fx.FlatMap(fx.Fork(f.Interrupt()), func(interrupter fx.Fiber[fx.Exit[fx.Unit]]) fx.Effect[fx.Exit[fx.Unit]] {
			return fx.ZipRight(release.Succeed(fx.Unit{}), interrupter.Join())
		}))
	})
	x := run(t, e)
	if !x.Interrupted() {
		t.Fatalf("expected interruption once the region ends, got %v", x)
	}
	if continued.Load() {
		t.Fatalf("code after the region must not run once interrupted")
	}
}

func TestTimeoutInTimeCancelsTimer(t *testing.T) {
	clock := fx.NewManualClock(epoch)
	rt := newTestRuntime(fx.WithClock(clock))
	ready, signal := started()
	release := fx.NewCell[int]()
	f := fx.RunFiber(rt, fx.Timeout(fx.ZipRight(signal, release.Await()), time.Hour))
	fx.RunSync(rt, ready.Await())
	waitFor(t, "timer", func() bool { return clock.Sleepers() == 1 })
	fx.RunSync(rt, release.Succeed(7))
	got, err := fx.RunSync(rt, f.Join()).Get()
	if err != nil || got != 7 {
		t.Fatalf("got %d, %v", got, err)
	}
	if n := clock.Sleepers(); n != 0 {
		t.Fatalf("the interrupted timer should run its canceler, %d sleepers remain", n)
	}
}

func TestUninterruptibleMaskRestore(t *testing.T) {
	var statuses []fx.InterruptStatus
	record := fx.CheckInterruptible(func(s fx.InterruptStatus) fx.Effect[fx.Unit] {
		statuses = append(statuses, s)
		return fx.Skip()
	})
	e := fx.UninterruptibleMask(func(r fx.Restore) fx.Effect[fx.Unit] {
		return fx.ZipRight(record, fx.Restored(r, record))
	})
	run(t, fx.ZipRight(e, record))
	want := []fx.InterruptStatus{fx.UninterruptibleStatus, fx.InterruptibleStatus, fx.InterruptibleStatus}
	if len(statuses) != len(want) {
		t.Fatalf("got %v", statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("status %d: got %v, want %v", i, statuses[i], want[i])
		}
	}
}

func TestUninterruptibleMaskRestoreIsNoopInsideUninterruptible(t *testing.T) {
	var got fx.InterruptStatus = fx.InterruptibleStatus
	e := fx.Uninterruptible(fx.UninterruptibleMask(func(r fx.Restore) fx.Effect[fx.Unit] {
		return fx.Restored(r, fx.CheckInterruptible(func(s fx.InterruptStatus) fx.Effect[fx.Unit] {
			got = s
			return fx.Skip()
		}))
	}))
	run(t, e)
	if got != fx.UninterruptibleStatus {
		t.Fatalf("restore should return to the outer uninterruptible status, got %v", got)
	}
}

func TestInterruptibleMask(t *testing.T) {
	var inner, restored fx.InterruptStatus
	e := fx.Uninterruptible(fx.InterruptibleMask(func(r fx.Restore) fx.Effect[fx.Unit] {
		return fx.ZipRight(
			fx.CheckInterruptible(func(s fx.InterruptStatus) fx.Effect[fx.Unit] { inner = s; return fx.Skip() }),
			fx.Restored(r, fx.CheckInterruptible(func(s fx.InterruptStatus) fx.Effect[fx.Unit] { restored = s; return fx.Skip() })),
		)
	}))
	run(t, e)
	if inner != fx.InterruptibleStatus || restored != fx.UninterruptibleStatus {
		t.Fatalf("got inner=%v restored=%v", inner, restored)
	}
}

func TestSelfInterrupt(t *testing.T) {
	var after atomic.Bool
	e := fx.ZipRight(fx.Interrupt[int](), fx.SyncTotal(func() int { after.Store(true); return 1 }))
	c := failure(t, e)
	if !c.IsInterruptedOnly() || after.Load() {
		t.Fatalf("self interruption should halt at once, got %v", c)
	}
}

func TestInterruptSkipsCatchAllButRunsFinalizers(t *testing.T) {
	ready, signal := started()
	var caught, finalized atomic.Bool
	body := fx.Ensuring(
		fx.CatchAllCause(fx.ZipRight(signal, never[int]()), func(fx.Cause) fx.Effect[int] {
			caught.Store(true)
			return fx.Succeed(0)
		}),
		fx.SyncTotal(func() fx.Unit { finalized.Store(true); return fx.Unit{} }),
	)
	e := fx.FlatMap(fx.Fork(body), func(f fx.Fiber[int]) fx.Effect[fx.Exit[int]] {
		return fx.ZipRight(ready.Await(), f.Interrupt())
	})
	x := run(t, e)
	if !x.Interrupted() {
		t.Fatalf("expected interruption, got %v", x)
	}
	if caught.Load() {
		t.Fatalf("handlers must not recover an interrupted fiber")
	}
	if !finalized.Load() {
		t.Fatalf("finalizer should run")
	}
}

func TestOnInterrupt(t *testing.T) {
	ready, signal := started()
	var cleaned atomic.Int32
	cleanup := fx.SyncTotal(func() fx.Unit { cleaned.Add(1); return fx.Unit{} })
	body := fx.OnInterrupt(fx.ZipRight(signal, never[int]()), cleanup)
	e := fx.FlatMap(fx.Fork(body), func(f fx.Fiber[int]) fx.Effect[fx.Exit[int]] {
		return fx.ZipRight(ready.Await(), f.Interrupt())
	})
	run(t, e)
	run(t, fx.OnInterrupt(fx.Succeed(1), cleanup))
	if got := cleaned.Load(); got != 1 {
		t.Fatalf("cleanup should run only on interruption, ran %d times", got)
	}
}

func TestDisconnectReturnsWithoutWaitingForCleanup(t *testing.T) {
	ready, signal := started()
	releaseCleanup := fx.NewCell[fx.Unit]()
	var cleaned atomic.Bool
	slowCleanup := fx.ZipRight(releaseCleanup.Await(), fx.SyncTotal(func() fx.Unit {
		cleaned.Store(true)
		return fx.Unit{}
	}))
	body := fx.Disconnect(fx.OnInterrupt(fx.ZipRight(signal, never[int]()), slowCleanup))
	e := fx.FlatMap(fx.Fork(body), func(f fx.Fiber[int]) fx.Effect[fx.Exit[int]] {
		return fx.ZipRight(ready.Await(), f.Interrupt())
	})
	x := run(t, e)
	if !x.Interrupted() {
		t.Fatalf("expected interruption, got %v", x)
	}
	if cleaned.Load() {
		t.Fatalf("disconnected cleanup should still be pending")
	}
	run(t, releaseCleanup.Succeed(fx.Unit{}))
	waitFor(t, "disconnected cleanup", cleaned.Load)
}

func TestInterruptWhileAwaitingCell(t *testing.T) {
	var ran atomic.Bool
	gate := fx.NewCell[fx.Unit]()
	child := fx.ZipRight(gate.Await(), fx.SyncTotal(func() fx.Unit { ran.Store(true); return fx.Unit{} }))
	e := fx.FlatMap(fx.Fork(child), func(f fx.Fiber[fx.Unit]) fx.Effect[fx.Exit[fx.Unit]] {
		return f.Interrupt()
	})
	x := run(t, e)
	if !x.Interrupted() || ran.Load() {
		t.Fatalf("got exit=%v ran=%v", x, ran.Load())
	}
}
