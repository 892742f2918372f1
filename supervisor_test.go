// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"code.hybscloud.com/fx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// lockedBuffer is a bytes.Buffer safe for concurrent log writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTrackingSupervisor(t *testing.T) {
	ts := fx.NewTrackingSupervisor()
	e := fx.FlatMap(fx.Supervised(ts, fx.Fork(never[int]())), func(f fx.Fiber[int]) fx.Effect[[]int] {
		before := fx.SyncTotal(func() int { return len(ts.Children()) })
		remaining := fx.SyncTotal(func() int { return len(ts.Children()) })
		return fx.FlatMap(before, func(n int) fx.Effect[[]int] {
			return fx.ZipRight(f.Interrupt(), fx.Map(remaining, func(m int) []int { return []int{n, m} }))
		})
	})
	assert.Equal(t, []int{1, 0}, run(t, e))
}

func TestSupervisedScopesToInnerForks(t *testing.T) {
	ts := fx.NewTrackingSupervisor()
	outside := fx.Fork(never[int]())
	inside := fx.Supervised(ts, fx.Fork(never[int]()))
	e := fx.FlatMap(outside, func(a fx.Fiber[int]) fx.Effect[[]fx.FiberID] {
		return fx.FlatMap(inside, func(b fx.Fiber[int]) fx.Effect[[]fx.FiberID] {
			ids := fx.SyncTotal(func() []fx.FiberID {
				var out []fx.FiberID
				for _, f := range ts.Children() {
					out = append(out, f.ID())
				}
				return out
			})
			return fx.ZipLeft(fx.ZipLeft(ids, a.Interrupt()), b.Interrupt())
		})
	})
	ids := run(t, e)
	require.Len(t, ids, 1)
}

func TestWithChildren(t *testing.T) {
	e := fx.WithChildren(func(children fx.Effect[[]fx.Fiber[any]]) fx.Effect[int] {
		forks := fx.ZipRight(fx.Fork(never[int]()), fx.Fork(never[string]()))
		return fx.FlatMap(fx.ZipRight(forks, children), func(fs []fx.Fiber[any]) fx.Effect[int] {
			return fx.As(fx.InterruptAll(fs), len(fs))
		})
	})
	assert.Equal(t, 2, run(t, e))
}

func TestInterruptChildren(t *testing.T) {
	var first, second atomic.Bool
	a, readyA := interruptFlag[int](&first)
	b, readyB := interruptFlag[int](&second)
	body := fx.ZipRight(fx.Fork(a), fx.ZipRight(fx.Fork(b), after(readyA, after(readyB, fx.Succeed("body")))))
	assert.Equal(t, "body", run(t, fx.InterruptChildren(body)))
	assert.True(t, first.Load())
	assert.True(t, second.Load())
}

func TestInterruptChildrenOnFailure(t *testing.T) {
	ts := fx.NewTrackingSupervisor()
	e := fx.Supervised(ts, fx.InterruptChildren(fx.ZipRight(fx.Fork(never[int]()), fx.Fail[int](errA))))
	c := failure(t, e)
	assert.ErrorIs(t, c.Squash(), errA)
	assert.Empty(t, ts.Children())
}

func TestLoggingSupervisor(t *testing.T) {
	var buf lockedBuffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := fx.Supervised(fx.LoggingSupervisor{Logger: logger}, fx.FlatMap(fx.Fork(fx.Fail[int](errA)), func(f fx.Fiber[int]) fx.Effect[fx.Exit[int]] {
		return f.Await()
	}))
	x := run(t, e)
	require.False(t, x.IsSuccess())

	out := buf.String()
	assert.Contains(t, out, "fiber started")
	assert.Contains(t, out, "fiber ended")
	assert.Contains(t, out, "outcome=failure")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestCompositeSupervisor(t *testing.T) {
	a, b := fx.NewTrackingSupervisor(), fx.NewTrackingSupervisor()
	e := fx.FlatMap(fx.Supervised(fx.CompositeSupervisor{a, b}, fx.Fork(never[int]())), func(f fx.Fiber[int]) fx.Effect[[]int] {
		sizes := fx.SyncTotal(func() []int { return []int{len(a.Children()), len(b.Children())} })
		return fx.ZipLeft(sizes, f.Interrupt())
	})
	assert.Equal(t, []int{1, 1}, run(t, e))
}

func TestMetricsSupervisor(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	sup, err := fx.NewMetricsSupervisor(provider.Meter("fx-test"), attribute.String("suite", "supervisor"))
	require.NoError(t, err)

	children := []fx.Effect[int]{
		fx.Succeed(1),
		fx.Fail[int](errA),
		fx.Die[int]("boom"),
	}
	e := fx.Foreach(children, func(c fx.Effect[int]) fx.Effect[fx.Exit[int]] {
		return fx.FlatMap(fx.Fork(c), func(f fx.Fiber[int]) fx.Effect[fx.Exit[int]] { return f.Await() })
	})
	run(t, e, fx.WithSupervisor(sup), fx.WithReporter(func(fx.FiberID, fx.Cause) {}))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(4), total(sumOf(t, rm, "fx.fibers.started")))

	assert.Equal(t, int64(0), total(sumOf(t, rm, "fx.fibers.active")))

	ended := sumOf(t, rm, "fx.fibers.ended")
	byOutcome := make(map[string]int64)
	for _, dp := range ended.DataPoints {
		outcome, ok := dp.Attributes.Value("fx.outcome")
		require.True(t, ok)
		suite, ok := dp.Attributes.Value("suite")
		require.True(t, ok)
		assert.Equal(t, "supervisor", suite.AsString())
		byOutcome[outcome.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"success": 2, "failure": 1, "defect": 1}, byOutcome)
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s: unexpected aggregation %T", name, m.Data)
			return sum
		}
	}
	t.Fatalf("metric %s not recorded", name)
	return metricdata.Sum[int64]{}
}

func total(sum metricdata.Sum[int64]) int64 {
	var n int64
	for _, dp := range sum.DataPoints {
		n += dp.Value
	}
	return n
}
