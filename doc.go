// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fx provides a fiber-based effect runtime: lazily built effect
// descriptions interpreted by a trampolined executor on cooperatively
// scheduled fibers.
//
// An [Effect] is a value. Nothing runs until it is handed to a [Runtime].
// Failures are tracked as a [Cause] tree distinguishing typed failures,
// defects (panics) and interruption, and every fiber ends with an [Exit].
//
// # Architecture
//
//   - Executor: Each fiber runs an explicit continuation stack and interrupt-status stack; bind chains of any length do not grow the Go stack.
//   - Scheduling: Fibers run on an [Executor] ([GoExecutor] or a bounded [PoolExecutor]) and yield after [DefaultYieldOpCount] instructions.
//   - Interruption: Cooperative. Requests are recorded atomically and honoured at instruction boundaries of interruptible regions.
//   - Synchronization: [Cell] is a one-shot cross-fiber result cell; fiber exits are published through one.
//   - Environment: Services are read from an [Env] keyed by typed [Tag] values. Time comes from the [Clock] under [ClockTag].
//
// # API Topologies
//
//   - Construction: [Succeed], [Fail], [Die], [Sync], [SyncTotal], [Suspend], [Async], [AsyncMaybe], [AsyncInterrupt], [FromContext].
//   - Composition: [FlatMap], [Map], [FoldCause], [Fold], [CatchAll], [Zip], [Foreach], [Loop], [Do] with [Bind].
//   - Fibers: [Fork], [ForkDaemon], [Fiber.Join], [Fiber.Await], [Fiber.Interrupt], [Supervised], [FiberRef].
//   - Interruption: [Uninterruptible], [Interruptible], [UninterruptibleMask], [Disconnect], [OnInterrupt], [Ensuring], [Bracket].
//   - Concurrency: [Race], [RaceEither], [RaceAll], [ZipPar], [ForeachParN], [Timeout].
//   - Policies: [Schedule] with [Repeat] and [Retry].
//
// # Integration
//
//   - Entry points: [RunFiber] and [RunAsync] return at once; [RunSync] waits with adaptive backoff; [RunContext] ties a fiber to a context.Context.
//   - Observability: [LoggingSupervisor] logs through log/slog; [MetricsSupervisor] records fiber counts through OpenTelemetry.
//   - Configuration: [LoadConfig] and [NewRuntimeFromConfig] build a runtime from YAML.
//
// # Example
//
//	rt := fx.NewRuntime()
//	work := fx.Retry(fetch(url), fx.Exponential[error](10*time.Millisecond, 2).UpTo(time.Second))
//	body, err := fx.RunContext(ctx, rt, fx.Timeout(work, 5*time.Second))
package fx
