// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx_test

import (
	"log/slog"
	"testing"
	"time"

	"code.hybscloud.com/fx"
)

const testTimeout = 10 * time.Second

// newTestRuntime returns a quiet runtime. opts override the defaults.
func newTestRuntime(opts ...fx.Option) *fx.Runtime {
	return fx.NewRuntime(append([]fx.Option{fx.WithLogger(slog.New(slog.DiscardHandler))}, opts...)...)
}

// runExit runs e on a fresh test runtime and returns its exit.
// It fails the test if e does not finish within testTimeout.
func runExit[A any](t testing.TB, e fx.Effect[A], opts ...fx.Option) fx.Exit[A] {
	t.Helper()
	done := make(chan fx.Exit[A], 1)
	fx.RunAsync(newTestRuntime(opts...), e, func(x fx.Exit[A]) { done <- x })
	select {
	case x := <-done:
		return x
	case <-time.After(testTimeout):
	}
	t.Fatalf("effect did not finish within %v", testTimeout)
	return fx.Exit[A]{}
}

// run runs e and fails the test unless it succeeds.
func run[A any](t testing.TB, e fx.Effect[A], opts ...fx.Option) A {
	t.Helper()
	x := runExit(t, e, opts...)
	v, err := x.Get()
	if err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	return v
}

// failure runs e and returns its cause, failing the test if e succeeds.
func failure[A any](t testing.TB, e fx.Effect[A], opts ...fx.Option) fx.Cause {
	t.Helper()
	x := runExit(t, e, opts...)
	if x.IsSuccess() {
		v, _ := x.Value()
		t.Fatalf("expected failure, got success %v", v)
	}
	return x.Cause()
}

// never suspends forever unless interrupted.
func never[A any]() fx.Effect[A] {
	return fx.Async(func(func(fx.Effect[A])) {})
}

// waitFor polls cond until it holds or testTimeout elapses.
func waitFor(t testing.TB, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
