// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInterrupted matches every [*InnerInterruptError] under errors.Is.
	ErrInterrupted = errors.New("fx: fiber interrupted")

	// ErrTimeout is the failure of [Timeout] when the deadline elapses first.
	ErrTimeout = errors.New("fx: timeout")

	// ErrScheduleExhausted matches every [*ScheduleExhausted] under errors.Is.
	ErrScheduleExhausted = errors.New("fx: schedule exhausted")
)

// FiberFailure is the error form of a non-empty [Cause].
// Unwrap exposes the typed failures and defects so errors.Is and errors.As
// see through it at the host boundary.
type FiberFailure struct {
	Cause Cause
}

func (e *FiberFailure) Error() string {
	return "fx: fiber failed: " + e.Cause.String()
}

// Unwrap returns the typed failures, then the defects, then
// [ErrInterrupted] if the cause contains an interruption.
func (e *FiberFailure) Unwrap() []error {
	errs := e.Cause.Failures()
	for _, d := range e.Cause.Defects() {
		errs = append(errs, defectError(d))
	}
	if e.Cause.Interrupted() {
		errs = append(errs, ErrInterrupted)
	}
	return errs
}

// DefectError carries a defect as a typed failure. [Resurrect] produces it.
type DefectError struct {
	Defect any
}

func (e *DefectError) Error() string {
	return fmt.Sprintf("fx: defect: %v", e.Defect)
}

// Unwrap returns the defect when it is itself an error.
func (e *DefectError) Unwrap() error {
	if err, ok := e.Defect.(error); ok {
		return err
	}
	return nil
}

func defectError(d any) error {
	if err, ok := d.(error); ok {
		return err
	}
	return &DefectError{Defect: d}
}

// InnerInterruptError is the catchable failure raised when joining a fiber
// that was interrupted. It differs from the joiner itself being interrupted.
type InnerInterruptError struct {
	Fiber        FiberID
	Interruptors []FiberID
}

func (e *InnerInterruptError) Error() string {
	var b strings.Builder
	b.WriteString("fx: fiber ")
	b.WriteString(e.Fiber.String())
	b.WriteString(" was interrupted")
	if len(e.Interruptors) > 0 {
		b.WriteString(" by")
		for _, id := range e.Interruptors {
			b.WriteByte(' ')
			b.WriteString(id.String())
		}
	}
	return b.String()
}

// Is matches [ErrInterrupted].
func (e *InnerInterruptError) Is(target error) bool {
	return target == ErrInterrupted
}

// MissingServiceError is the failure of [Service] when the environment has
// no value for the tag.
type MissingServiceError struct {
	Name string
}

func (e *MissingServiceError) Error() string {
	return "fx: missing service " + e.Name
}

// ScheduleExhausted signals that a schedule returned Done. Last is the
// schedule's final output.
type ScheduleExhausted struct {
	Last any
}

func (e *ScheduleExhausted) Error() string {
	return fmt.Sprintf("fx: schedule exhausted (last output %v)", e.Last)
}

// Is matches [ErrScheduleExhausted].
func (e *ScheduleExhausted) Is(target error) bool {
	return target == ErrScheduleExhausted
}

// panicCause converts a recovered panic value into a Die cause.
func panicCause(p any) Cause {
	return CauseDie(p)
}
