// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

// Ensuring runs fin after e however e ends: success, failure or
// interruption. fin is uninterruptible. If fin fails after e failed, the
// causes are composed with Then.
func Ensuring[A any](e Effect[A], fin Effect[Unit]) Effect[A] {
	return OnExit(e, func(Exit[A]) Effect[Unit] { return fin })
}

// OnExit runs cleanup with e's exit however e ends.
func OnExit[A any](e Effect[A], cleanup func(Exit[A]) Effect[Unit]) Effect[A] {
	return UninterruptibleMask(func(r Restore) Effect[A] {
		return FoldCause(Restored(r, e),
			func(c Cause) Effect[A] {
				return FoldCause(cleanup(Failed[A](c)),
					func(c2 Cause) Effect[A] { return Halt[A](CauseThen(c, c2)) },
					func(Unit) Effect[A] { return Halt[A](c) })
			},
			func(a A) Effect[A] {
				return As(cleanup(Succeeded(a)), a)
			})
	})
}

// Bracket acquires a resource uninterruptibly, uses it, and releases it
// however use ends.
func Bracket[R, A any](acquire Effect[R], release func(R) Effect[Unit], use func(R) Effect[A]) Effect[A] {
	return BracketExit(acquire, func(r R, _ Exit[A]) Effect[Unit] { return release(r) }, use)
}

// BracketExit is [Bracket] with release observing use's exit.
func BracketExit[R, A any](acquire Effect[R], release func(R, Exit[A]) Effect[Unit], use func(R) Effect[A]) Effect[A] {
	return UninterruptibleMask(func(r Restore) Effect[A] {
		return FlatMap(acquire, func(res R) Effect[A] {
			return OnExit(Restored(r, use(res)), func(x Exit[A]) Effect[Unit] {
				return release(res, x)
			})
		})
	})
}
