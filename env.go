// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

// Tag identifies a service of type T in an [Env]. Tags compare by
// identity: two tags created with the same name are distinct keys.
type Tag[T any] struct {
	key *tagKey
}

type tagKey struct {
	name string
}

// NewTag returns a fresh tag for services of type T.
func NewTag[T any](name string) Tag[T] {
	return Tag[T]{key: &tagKey{name: name}}
}

// Name returns the name the tag was created with.
func (t Tag[T]) Name() string {
	if t.key == nil {
		return "<nil tag>"
	}
	return t.key.name
}

// Env is an immutable registry of services keyed by [Tag]. Adding a
// service returns a new Env sharing the old one; later entries shadow
// earlier ones. The nil *Env is the empty environment.
type Env struct {
	parent *Env
	key    *tagKey
	value  any
}

// EmptyEnv returns the empty environment.
func EmptyEnv() *Env { return nil }

// With returns env extended with v under tag.
func With[T any](env *Env, tag Tag[T], v T) *Env {
	return &Env{parent: env, key: tag.key, value: v}
}

// Lookup returns the service stored under tag.
func Lookup[T any](env *Env, tag Tag[T]) (T, bool) {
	for e := env; e != nil; e = e.parent {
		if e.key == tag.key {
			v, _ := e.value.(T)
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Merge returns base with every entry of overlay added on top.
func Merge(base, overlay *Env) *Env {
	var entries []*Env
	for e := overlay; e != nil; e = e.parent {
		entries = append(entries, e)
	}
	out := base
	for i := len(entries) - 1; i >= 0; i-- {
		out = &Env{parent: out, key: entries[i].key, value: entries[i].value}
	}
	return out
}

// Access reads a value out of the current environment.
func Access[A any](f func(*Env) A) Effect[A] {
	return Effect[A]{op: &accessOp{f: func(env *Env) instr {
		return &succeedOp{value: f(env)}
	}}}
}

// AccessEffect continues with an effect built from the current environment.
func AccessEffect[A any](f func(*Env) Effect[A]) Effect[A] {
	return Effect[A]{op: &accessOp{f: func(env *Env) instr {
		return f(env).op
	}}}
}

// Service produces the service stored under tag, failing with
// [*MissingServiceError] when there is none.
func Service[T any](tag Tag[T]) Effect[T] {
	return AccessEffect(func(env *Env) Effect[T] {
		if v, ok := Lookup(env, tag); ok {
			return Succeed(v)
		}
		return Fail[T](&MissingServiceError{Name: tag.Name()})
	})
}

// Provide evaluates e with env as its environment.
func Provide[A any](env *Env, e Effect[A]) Effect[A] {
	return Effect[A]{op: &provideOp{env: env, src: e.op}}
}

// ProvideService evaluates e with the current environment extended by v
// under tag.
func ProvideService[T, A any](tag Tag[T], v T, e Effect[A]) Effect[A] {
	return AccessEffect(func(env *Env) Effect[A] {
		return Provide(With(env, tag, v), e)
	})
}
