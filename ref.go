// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

// FiberRef is a fiber-local variable. A forked child starts from the
// fork transform of its parent's value; [Fiber.Join] and
// [Fiber.InheritRefs] fold the child's final value back into the parent
// with the join transform. Both transforms default to keeping the
// parent's value.
type FiberRef[A any] struct {
	key *refKey
}

// refKey is the erased identity and transforms of a FiberRef.
type refKey struct {
	initial any
	fork    func(any) any
	join    func(parent, child any) any
}

// RefOption configures a [FiberRef].
type RefOption[A any] func(*refConfig[A])

type refConfig[A any] struct {
	fork func(A) A
	join func(parent, child A) A
}

// WithFork sets the transform applied to the parent's value when a child
// is forked.
func WithFork[A any](f func(A) A) RefOption[A] {
	return func(c *refConfig[A]) { c.fork = f }
}

// WithJoin sets the transform combining the parent's and the child's
// values on join.
func WithJoin[A any](f func(parent, child A) A) RefOption[A] {
	return func(c *refConfig[A]) { c.join = f }
}

// NewFiberRef returns a fiber ref whose value is initial in every fiber
// that has not set it.
func NewFiberRef[A any](initial A, opts ...RefOption[A]) FiberRef[A] {
	cfg := refConfig[A]{
		fork: func(a A) A { return a },
		join: func(parent, _ A) A { return parent },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return FiberRef[A]{key: &refKey{
		initial: initial,
		fork: func(v any) any {
			return cfg.fork(castValue[A](v))
		},
		join: func(p, c any) any {
			return cfg.join(castValue[A](p), castValue[A](c))
		},
	}}
}

// MakeFiberRef produces a new fiber ref.
func MakeFiberRef[A any](initial A, opts ...RefOption[A]) Effect[FiberRef[A]] {
	return SyncTotal(func() FiberRef[A] { return NewFiberRef(initial, opts...) })
}

// Get produces the current fiber's value.
func (r FiberRef[A]) Get() Effect[A] {
	return localEff(func(fc *fiberContext) Effect[A] {
		return Succeed(castValue[A](fc.refGet(r.key)))
	})
}

// Set replaces the current fiber's value.
func (r FiberRef[A]) Set(a A) Effect[Unit] {
	return localEff(func(fc *fiberContext) Effect[Unit] {
		fc.refSet(r.key, a)
		return Skip()
	})
}

// Update replaces the current fiber's value with f of it.
func (r FiberRef[A]) Update(f func(A) A) Effect[Unit] {
	return localEff(func(fc *fiberContext) Effect[Unit] {
		fc.refSet(r.key, f(castValue[A](fc.refGet(r.key))))
		return Skip()
	})
}

// Modify replaces the current fiber's value and produces a result, both
// computed by f from the old value.
func Modify[A, B any](r FiberRef[A], f func(A) (B, A)) Effect[B] {
	return localEff(func(fc *fiberContext) Effect[B] {
		b, a := f(castValue[A](fc.refGet(r.key)))
		fc.refSet(r.key, a)
		return Succeed(b)
	})
}

// Locally evaluates e with r set to a, restoring the previous value after.
func Locally[A, B any](r FiberRef[A], a A, e Effect[B]) Effect[B] {
	return FlatMap(r.Get(), func(old A) Effect[B] {
		return Ensuring(ZipRight(r.Set(a), e), r.Set(old))
	})
}

func (fc *fiberContext) refGet(k *refKey) any {
	if v, ok := fc.refs[k]; ok {
		return v
	}
	return k.initial
}

func (fc *fiberContext) refSet(k *refKey, v any) {
	if fc.refs == nil {
		fc.refs = make(map[*refKey]any)
	}
	fc.refs[k] = v
}

// forkRefs returns a child's initial refs from the parent's.
func forkRefs(parent map[*refKey]any) map[*refKey]any {
	if len(parent) == 0 {
		return nil
	}
	child := make(map[*refKey]any, len(parent))
	for k, v := range parent {
		child[k] = k.fork(v)
	}
	return child
}

// inheritRefs folds a completed child's refs into fc.
func (fc *fiberContext) inheritRefs(child *fiberContext) {
	for k, v := range child.refs {
		fc.refSet(k, k.join(fc.refGet(k), v))
	}
}
