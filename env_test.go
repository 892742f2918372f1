// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/fx"
)

type greeter interface {
	Greet(name string) string
}

type english struct{}

func (english) Greet(name string) string { return "hello " + name }

type french struct{}

func (french) Greet(name string) string { return "bonjour " + name }

var greeterTag = fx.NewTag[greeter]("greeter")

func greet(name string) fx.Effect[string] {
	return fx.Map(fx.Service(greeterTag), func(g greeter) string { return g.Greet(name) })
}

func TestEnvLookupAndShadowing(t *testing.T) {
	env := fx.With(fx.EmptyEnv(), greeterTag, greeter(english{}))
	if g, ok := fx.Lookup(env, greeterTag); !ok || g.Greet("a") != "hello a" {
		t.Fatalf("Lookup: got %v, %v", g, ok)
	}
	shadowed := fx.With(env, greeterTag, greeter(french{}))
	if g, _ := fx.Lookup(shadowed, greeterTag); g.Greet("a") != "bonjour a" {
		t.Fatalf("later entries should shadow earlier ones")
	}
	other := fx.NewTag[greeter]("greeter")
	if _, ok := fx.Lookup(env, other); ok {
		t.Fatalf("tags with the same name must be distinct keys")
	}
}

func TestEnvMerge(t *testing.T) {
	nameTag := fx.NewTag[string]("name")
	base := fx.With(fx.With(fx.EmptyEnv(), greeterTag, greeter(english{})), nameTag, "base")
	overlay := fx.With(fx.EmptyEnv(), nameTag, "overlay")
	merged := fx.Merge(base, overlay)
	if v, _ := fx.Lookup(merged, nameTag); v != "overlay" {
		t.Fatalf("overlay should win, got %q", v)
	}
	if _, ok := fx.Lookup(merged, greeterTag); !ok {
		t.Fatalf("base entries should survive the merge")
	}
}

func TestServiceMissing(t *testing.T) {
	c := failure(t, greet("x"))
	var missing *fx.MissingServiceError
	err, _ := c.FirstFailure()
	if !errors.As(err, &missing) || missing.Name != "greeter" {
		t.Fatalf("got %v", c)
	}
}

func TestProvideScopes(t *testing.T) {
	e := fx.ProvideService(greeterTag, greeter(english{}),
		fx.FlatMap(greet("a"), func(outer string) fx.Effect[[2]string] {
			inner := fx.ProvideService(greeterTag, greeter(french{}), greet("b"))
			return fx.FlatMap(inner, func(in string) fx.Effect[[2]string] {
				return fx.Map(greet("c"), func(after string) [2]string {
					return [2]string{outer + "|" + in, after}
				})
			})
		}))
	got := run(t, e)
	if got[0] != "hello a|bonjour b" || got[1] != "hello c" {
		t.Fatalf("got %v", got)
	}
}

func TestProvideRestoredOnFailure(t *testing.T) {
	inner := fx.ProvideService(greeterTag, greeter(french{}), fx.ZipRight(greet("x"), fx.Fail[string](errA)))
	e := fx.ProvideService(greeterTag, greeter(english{}),
		fx.ZipRight(fx.CatchAll(inner, func(error) fx.Effect[string] { return fx.Succeed("") }), greet("y")))
	if got := run(t, e); got != "hello y" {
		t.Fatalf("environment should be restored after a failure, got %q", got)
	}
}

func TestForkInheritsEnv(t *testing.T) {
	e := fx.FlatMap(fx.Fork(greet("child")), fx.Fiber[string].Join)
	got := run(t, e, fx.WithEnv(fx.With(fx.EmptyEnv(), greeterTag, greeter(english{}))))
	if got != "hello child" {
		t.Fatalf("got %q", got)
	}
}

func TestAccess(t *testing.T) {
	nameTag := fx.NewTag[string]("name")
	e := fx.Access(func(env *fx.Env) string {
		v, _ := fx.Lookup(env, nameTag)
		return v
	})
	if got := run(t, fx.Provide(fx.With(fx.EmptyEnv(), nameTag, "n"), e)); got != "n" {
		t.Fatalf("got %q", got)
	}
}
