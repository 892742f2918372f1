// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Supervisor observes the fibers started under it.
// OnStart runs on the forking fiber before the child is scheduled; OnEnd
// runs on the child just before its exit is published, so an awaiter
// observes OnEnd as done. Implementations must be safe for concurrent use.
type Supervisor interface {
	OnStart(child Fiber[any])
	OnEnd(child Fiber[any], exit Exit[any])
}

// NoopSupervisor ignores every fiber.
type NoopSupervisor struct{}

func (NoopSupervisor) OnStart(Fiber[any])          {}
func (NoopSupervisor) OnEnd(Fiber[any], Exit[any]) {}

// CompositeSupervisor fans out to each supervisor in order.
type CompositeSupervisor []Supervisor

func (cs CompositeSupervisor) OnStart(child Fiber[any]) {
	for _, s := range cs {
		s.OnStart(child)
	}
}

func (cs CompositeSupervisor) OnEnd(child Fiber[any], exit Exit[any]) {
	for _, s := range cs {
		s.OnEnd(child, exit)
	}
}

// composeSupervisors attaches next after cur.
func composeSupervisors(cur, next Supervisor) Supervisor {
	if cur == nil {
		return next
	}
	if _, ok := cur.(NoopSupervisor); ok {
		return next
	}
	return CompositeSupervisor{cur, next}
}

// TrackingSupervisor keeps the set of live fibers started under it.
type TrackingSupervisor struct {
	mu   sync.Mutex
	live map[FiberID]Fiber[any]
}

// NewTrackingSupervisor returns an empty tracking supervisor.
func NewTrackingSupervisor() *TrackingSupervisor {
	return &TrackingSupervisor{live: make(map[FiberID]Fiber[any])}
}

func (t *TrackingSupervisor) OnStart(child Fiber[any]) {
	t.mu.Lock()
	t.live[child.ID()] = child
	t.mu.Unlock()
}

func (t *TrackingSupervisor) OnEnd(child Fiber[any], _ Exit[any]) {
	t.mu.Lock()
	delete(t.live, child.ID())
	t.mu.Unlock()
}

// Children returns the live fibers ordered by identity.
func (t *TrackingSupervisor) Children() []Fiber[any] {
	t.mu.Lock()
	out := make([]Fiber[any], 0, len(t.live))
	for _, f := range t.live {
		out = append(out, f)
	}
	t.mu.Unlock()
	slices.SortFunc(out, func(a, b Fiber[any]) int {
		return int(a.ID()) - int(b.ID())
	})
	return out
}

// LoggingSupervisor logs fiber lifecycle events at debug level.
type LoggingSupervisor struct {
	Logger *slog.Logger
}

func (l LoggingSupervisor) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l LoggingSupervisor) OnStart(child Fiber[any]) {
	l.logger().LogAttrs(context.Background(), slog.LevelDebug, "fiber started",
		slog.String("fiber", child.ID().String()))
}

func (l LoggingSupervisor) OnEnd(child Fiber[any], exit Exit[any]) {
	l.logger().LogAttrs(context.Background(), slog.LevelDebug, "fiber ended",
		slog.String("fiber", child.ID().String()),
		slog.String("outcome", exitOutcome(exit)))
}

// exitOutcome classifies an exit as success, failure, defect or interrupted.
func exitOutcome(exit Exit[any]) string {
	switch c := exit.Cause(); {
	case exit.IsSuccess():
		return "success"
	case len(c.Defects()) > 0:
		return "defect"
	case c.IsInterruptedOnly():
		return "interrupted"
	}
	return "failure"
}

// Supervised evaluates e with s observing every fiber forked inside it,
// in addition to the supervisors already in effect.
func Supervised[A any](s Supervisor, e Effect[A]) Effect[A] {
	return Effect[A]{op: &superviseOp{sup: s, src: e.op}}
}

// Children produces the live non-daemon children of the current fiber.
func Children() Effect[[]Fiber[any]] {
	return DescriptorWith(func(d Descriptor) Effect[[]Fiber[any]] {
		return Succeed(d.Children)
	})
}

// WithChildren evaluates f's effect under a fresh tracking supervisor.
// The effect passed to f snapshots the live fibers forked so far under
// that supervisor, excluding the calling fiber.
func WithChildren[A any](f func(children Effect[[]Fiber[any]]) Effect[A]) Effect[A] {
	return Suspend(func() Effect[A] {
		s := NewTrackingSupervisor()
		return Supervised(s, f(trackedChildren(s)))
	})
}

// EnsuringChildren runs e under a fresh tracking supervisor and, however e
// ends, passes the fibers still alive under it to cleanup.
func EnsuringChildren[A any](e Effect[A], cleanup func([]Fiber[any]) Effect[Unit]) Effect[A] {
	return Suspend(func() Effect[A] {
		s := NewTrackingSupervisor()
		return Ensuring(Supervised(s, e), FlatMap(trackedChildren(s), cleanup))
	})
}

// InterruptChildren runs e and interrupts every fiber it forked that is
// still alive when it ends.
func InterruptChildren[A any](e Effect[A]) Effect[A] {
	return EnsuringChildren(e, InterruptAll)
}

func trackedChildren(s *TrackingSupervisor) Effect[[]Fiber[any]] {
	return DescriptorWith(func(d Descriptor) Effect[[]Fiber[any]] {
		return SyncTotal(func() []Fiber[any] {
			return slices.DeleteFunc(s.Children(), func(f Fiber[any]) bool {
				return f.ID() == d.ID
			})
		})
	})
}
