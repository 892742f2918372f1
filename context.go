// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"context"

	"code.hybscloud.com/kont"
)

// FromContext runs a blocking, context-aware function on its own
// goroutine. Interrupting the fiber cancels ctx and returns at once;
// f's eventual result is then dropped. A panic in f becomes a defect.
func FromContext[A any](f func(ctx context.Context) (A, error)) Effect[A] {
	return AsyncInterrupt(func(resume func(Effect[A])) kont.Either[Effect[Unit], Effect[A]] {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			defer cancel()
			defer func() {
				if p := recover(); p != nil {
					resume(Die[A](p))
				}
			}()
			a, err := f(ctx)
			if err != nil {
				resume(Fail[A](err))
				return
			}
			resume(Succeed(a))
		}()
		return kont.Left[Effect[Unit], Effect[A]](SyncTotal(func() Unit {
			cancel()
			return Unit{}
		}))
	})
}
