// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"context"
	"log/slog"
	"sync"

	"code.hybscloud.com/iox"
	"github.com/google/uuid"
)

// DefaultYieldOpCount is the number of instructions a fiber evaluates
// before yielding to its executor.
const DefaultYieldOpCount = 2048

// Reporter receives the cause of a fiber that ended with an unhandled
// defect. It must not block.
type Reporter func(id FiberID, cause Cause)

// Runtime holds what root fibers start with: the executor, the
// environment, the supervisor, the failure reporter and the logger.
type Runtime struct {
	id           uuid.UUID
	executor     Executor
	env          *Env
	logger       *slog.Logger
	reporter     Reporter
	supervisor   Supervisor
	yieldOpCount int
}

// Option configures a [Runtime].
type Option func(*Runtime)

// WithExecutor sets the executor. The default is [GoExecutor].
func WithExecutor(e Executor) Option {
	return func(rt *Runtime) { rt.executor = e }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) { rt.logger = l }
}

// WithReporter sets the sink for unhandled defects. The default logs
// them at error level.
func WithReporter(r Reporter) Option {
	return func(rt *Runtime) { rt.reporter = r }
}

// WithSupervisor sets the supervisor of every fiber. The default is
// [NoopSupervisor].
func WithSupervisor(s Supervisor) Option {
	return func(rt *Runtime) { rt.supervisor = s }
}

// WithEnv sets the environment of root fibers.
func WithEnv(env *Env) Option {
	return func(rt *Runtime) { rt.env = Merge(rt.env, env) }
}

// WithClock provides c under [ClockTag]. The default is [LiveClock].
func WithClock(c Clock) Option {
	return func(rt *Runtime) { rt.env = With(rt.env, ClockTag, c) }
}

// WithYieldOpCount sets how many instructions a fiber evaluates before
// yielding. n < 1 selects [DefaultYieldOpCount].
func WithYieldOpCount(n int) Option {
	return func(rt *Runtime) { rt.yieldOpCount = n }
}

// NewRuntime returns a runtime configured by opts.
func NewRuntime(opts ...Option) *Runtime {
	rt := &Runtime{id: uuid.New()}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.executor == nil {
		rt.executor = GoExecutor{}
	}
	if rt.logger == nil {
		rt.logger = slog.Default()
	}
	rt.logger = rt.logger.With("component", "fx", "runtime", rt.id.String())
	if rt.reporter == nil {
		rt.reporter = rt.logDefect
	}
	if rt.supervisor == nil {
		rt.supervisor = NoopSupervisor{}
	}
	if rt.yieldOpCount < 1 {
		rt.yieldOpCount = DefaultYieldOpCount
	}
	if _, ok := Lookup(rt.env, ClockTag); !ok {
		rt.env = With(rt.env, ClockTag, Clock(LiveClock{}))
	}
	return rt
}

var defaultRuntime = sync.OnceValue(func() *Runtime { return NewRuntime() })

// Default returns the process-wide runtime with default options.
func Default() *Runtime { return defaultRuntime() }

// ID returns the runtime's identity.
func (rt *Runtime) ID() uuid.UUID { return rt.id }

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() *slog.Logger { return rt.logger }

// Close releases the executor if it has a Close method. Fibers still
// running keep running on fresh goroutines.
func (rt *Runtime) Close() {
	if c, ok := rt.executor.(interface{ Close() }); ok {
		c.Close()
	}
}

// Env returns the environment of root fibers.
func (rt *Runtime) Env() *Env { return rt.env }

func (rt *Runtime) logDefect(id FiberID, cause Cause) {
	rt.logger.Error("fiber ended with an unhandled defect",
		"fiber", id.String(),
		"cause", cause.String())
}

// newRoot returns a fiber with no parent.
func (rt *Runtime) newRoot() *fiberContext {
	fc := newFiberContext(rt, rt.env, rt.supervisor, rt.reporter, InterruptibleStatus)
	rt.supervisor.OnStart(Fiber[any]{fc: fc})
	return fc
}

// RunFiber starts e on a new root fiber and returns its handle without
// waiting.
func RunFiber[A any](rt *Runtime, e Effect[A]) Fiber[A] {
	fc := rt.newRoot()
	rt.executor.Submit(func() {
		fc.run(e.op)
	})
	return Fiber[A]{fc: fc}
}

// RunAsync starts e on a new root fiber and calls done with its exit.
// done runs on the goroutine that completes the fiber.
func RunAsync[A any](rt *Runtime, e Effect[A], done func(Exit[A])) Fiber[A] {
	fc := rt.newRoot()
	f := Fiber[A]{fc: fc}
	f.observe(func(x Exit[any]) { done(narrowExit[A](x)) })
	rt.executor.Submit(func() {
		fc.run(e.op)
	})
	return f
}

// RunSync runs e on a new root fiber and blocks the calling goroutine
// until it ends, waiting with adaptive backoff (iox.Backoff).
func RunSync[A any](rt *Runtime, e Effect[A]) Exit[A] {
	f := RunFiber(rt, e)
	var bo iox.Backoff
	for {
		if x, ok := f.fc.exit.unsafePoll(); ok {
			return narrowExit[A](x)
		}
		bo.Wait()
	}
}

// RunContext runs e like [RunSync] and interrupts it when ctx is done.
// The fiber is always awaited. An interruption caused by ctx is reported
// as context.Cause(ctx); any other failure as the exit's error.
func RunContext[A any](ctx context.Context, rt *Runtime, e Effect[A]) (A, error) {
	f := RunFiber(rt, e)
	var bo iox.Backoff
	cancelled := false
	for {
		if x, ok := f.fc.exit.unsafePoll(); ok {
			exit := narrowExit[A](x)
			if cancelled && exit.Cause().IsInterruptedOnly() {
				var zero A
				return zero, context.Cause(ctx)
			}
			return exit.Get()
		}
		if !cancelled && ctx.Err() != nil {
			cancelled = true
			f.fc.signalInterrupt(FiberIDNone)
			bo.Reset()
			continue
		}
		bo.Wait()
	}
}
