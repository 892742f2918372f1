// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import "fmt"

// Exit is the terminal outcome of a fiber: Success(A) or Failure(Cause).
type Exit[A any] struct {
	value   A
	cause   Cause
	success bool
}

// Succeeded returns a successful Exit holding a.
func Succeeded[A any](a A) Exit[A] {
	return Exit[A]{value: a, success: true}
}

// Failed returns a failed Exit holding cause.
func Failed[A any](cause Cause) Exit[A] {
	return Exit[A]{cause: cause}
}

// IsSuccess reports whether the exit is a success.
func (e Exit[A]) IsSuccess() bool { return e.success }

// Value returns the success value.
func (e Exit[A]) Value() (A, bool) { return e.value, e.success }

// Cause returns the failure cause, or Empty on success.
func (e Exit[A]) Cause() Cause { return e.cause }

// Interrupted reports whether the exit is a failure that contains an interruption.
func (e Exit[A]) Interrupted() bool { return !e.success && e.cause.Interrupted() }

// Get returns the value, or the cause rendered as an error.
func (e Exit[A]) Get() (A, error) {
	if e.success {
		return e.value, nil
	}
	var zero A
	err := e.cause.Err()
	if err == nil {
		err = &FiberFailure{Cause: e.cause}
	}
	return zero, err
}

// String renders the exit as "Success(v)" or "Failure(cause)".
func (e Exit[A]) String() string {
	if e.success {
		return "Success(" + fmt.Sprint(e.value) + ")"
	}
	return "Failure(" + e.cause.String() + ")"
}

// ExitMap maps the success value of e with f.
func ExitMap[A, B any](e Exit[A], f func(A) B) Exit[B] {
	if e.success {
		return Succeeded(f(e.value))
	}
	return Failed[B](e.cause)
}

// ExitZip combines two exits of sequential computations. Failures are
// composed with Then.
func ExitZip[A, B, C any](a Exit[A], b Exit[B], f func(A, B) C) Exit[C] {
	return exitZipWith(a, b, f, CauseThen)
}

// ExitZipPar combines two exits of parallel computations. Failures are
// composed with Both.
func ExitZipPar[A, B, C any](a Exit[A], b Exit[B], f func(A, B) C) Exit[C] {
	return exitZipWith(a, b, f, CauseBoth)
}

func exitZipWith[A, B, C any](a Exit[A], b Exit[B], f func(A, B) C, combine func(Cause, Cause) Cause) Exit[C] {
	switch {
	case a.success && b.success:
		return Succeeded(f(a.value, b.value))
	case a.success:
		return Failed[C](b.cause)
	case b.success:
		return Failed[C](a.cause)
	}
	return Failed[C](combine(a.cause, b.cause))
}

// eraseExit widens e to Exit[any].
func eraseExit[A any](e Exit[A]) Exit[any] {
	if e.success {
		return Succeeded[any](e.value)
	}
	return Failed[any](e.cause)
}

// narrowExit restores the static type of an erased exit.
func narrowExit[A any](e Exit[any]) Exit[A] {
	if e.success {
		return Succeeded(castValue[A](e.value))
	}
	return Failed[A](e.cause)
}

// castValue asserts v to A. A nil interface converts to A's zero value.
func castValue[A any](v any) A {
	if v == nil {
		var zero A
		return zero
	}
	return v.(A)
}
