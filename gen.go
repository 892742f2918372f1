// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"code.hybscloud.com/kont"
)

// bindStep is the kont operation performed by [Bind].
type bindStep[A any] struct {
	kont.Phantom[A]
	eff instr
}

func (s bindStep[A]) effect() instr { return s.eff }

type effectStep interface {
	effect() instr
}

// Bind lifts e into a kont program. Inside [Do], the program resumes
// with e's value; a failure of e ends the program with that cause.
func Bind[A any](e Effect[A]) kont.Eff[A] {
	return kont.Perform(bindStep[A]{eff: e.op})
}

// Do runs a kont program written with [Bind] as an effect.
//
//	prog := kont.Bind(fx.Bind(readConfig), func(cfg Config) kont.Eff[int] {
//		return kont.Bind(fx.Bind(connect(cfg)), func(c *Conn) kont.Eff[int] {
//			return kont.Pure(c.Port())
//		})
//	})
//	port := fx.Do(prog)
//
// Each step is run on the current fiber and the program is resumed with
// its value. The program is reified lazily each time the effect runs.
func Do[A any](prog kont.Eff[A]) Effect[A] {
	return Suspend(func() Effect[A] {
		return driveDo(kont.StepExpr(kont.Reify(prog)))
	})
}

// DoExpr is [Do] for a program already in expression form.
func DoExpr[A any](prog kont.Expr[A]) Effect[A] {
	return Suspend(func() Effect[A] {
		return driveDo(kont.StepExpr(prog))
	})
}

func driveDo[A any](result A, susp *kont.Suspension[A]) Effect[A] {
	if susp == nil {
		return Succeed(result)
	}
	step, ok := susp.Op().(effectStep)
	if !ok {
		susp.Discard()
		return DieMessage[A]("fx: Do program performed an operation other than Bind")
	}
	return FoldCause(Effect[any]{op: step.effect()},
		func(c Cause) Effect[A] {
			susp.Discard()
			return Halt[A](c)
		},
		func(v any) Effect[A] {
			return driveDo(susp.Resume(v))
		})
}
