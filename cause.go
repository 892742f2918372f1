// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"fmt"
	"iter"
	"reflect"
	"strings"
)

// CauseKind discriminates the variants of a [Cause].
type CauseKind uint8

const (
	// KindEmpty is the absence of failure.
	KindEmpty CauseKind = iota
	// KindFail is an expected, typed failure.
	KindFail
	// KindDie is an unexpected defect.
	KindDie
	// KindInterrupt is cooperative cancellation by a fiber.
	KindInterrupt
	// KindThen is sequential composition.
	KindThen
	// KindBoth is parallel composition.
	KindBoth
)

// String returns the variant name.
func (k CauseKind) String() string {
	switch k {
	case KindEmpty:
		return "Empty"
	case KindFail:
		return "Fail"
	case KindDie:
		return "Die"
	case KindInterrupt:
		return "Interrupt"
	case KindThen:
		return "Then"
	case KindBoth:
		return "Both"
	}
	return "CauseKind(" + fmt.Sprint(uint8(k)) + ")"
}

// Cause describes why a computation ended abnormally.
//
// A Cause is an immutable binary tree. The zero value is Empty, the identity
// of both Then and Both. Then and Both keep the structure they were built
// with for diagnostics; equivalence up to the algebra's laws is [Cause.Equivalent].
type Cause struct {
	node *causeNode
}

type causeNode struct {
	kind   CauseKind
	err    error
	defect any
	id     FiberID
	left   Cause
	right  Cause
}

// CauseEmpty returns the Empty cause.
func CauseEmpty() Cause { return Cause{} }

// CauseFail returns a cause holding the typed failure err.
func CauseFail(err error) Cause {
	return Cause{node: &causeNode{kind: KindFail, err: err}}
}

// CauseDie returns a cause holding the defect.
func CauseDie(defect any) Cause {
	return Cause{node: &causeNode{kind: KindDie, defect: defect}}
}

// CauseInterrupt returns a cause recording interruption by fiber id.
func CauseInterrupt(id FiberID) Cause {
	return Cause{node: &causeNode{kind: KindInterrupt, id: id}}
}

// CauseThen composes l and r sequentially. Empty operands are dropped.
func CauseThen(l, r Cause) Cause {
	switch {
	case l.IsEmpty():
		return r
	case r.IsEmpty():
		return l
	}
	return Cause{node: &causeNode{kind: KindThen, left: l, right: r}}
}

// CauseBoth composes l and r in parallel. Empty operands are dropped.
func CauseBoth(l, r Cause) Cause {
	switch {
	case l.IsEmpty():
		return r
	case r.IsEmpty():
		return l
	}
	return Cause{node: &causeNode{kind: KindBoth, left: l, right: r}}
}

// Then composes c and r sequentially.
func (c Cause) Then(r Cause) Cause { return CauseThen(c, r) }

// Both composes c and r in parallel.
func (c Cause) Both(r Cause) Cause { return CauseBoth(c, r) }

// Kind returns the variant of the root node.
func (c Cause) Kind() CauseKind {
	if c.node == nil {
		return KindEmpty
	}
	return c.node.kind
}

// IsEmpty reports whether c contains no failure, defect or interruption.
// Then and Both nodes are never built over Empty operands, so only the
// root needs checking.
func (c Cause) IsEmpty() bool { return c.node == nil }

// Children returns the operands of a Then or Both node.
// For any other variant both results are Empty.
func (c Cause) Children() (Cause, Cause) {
	if c.node == nil {
		return Cause{}, Cause{}
	}
	return c.node.left, c.node.right
}

// leaves yields the Fail, Die and Interrupt nodes of c from left to right.
// The traversal uses an explicit stack.
func (c Cause) leaves() iter.Seq[*causeNode] {
	return func(yield func(*causeNode) bool) {
		if c.node == nil {
			return
		}
		stack := []*causeNode{c.node}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			switch n.kind {
			case KindThen, KindBoth:
				stack = append(stack, n.right.node, n.left.node)
			default:
				if !yield(n) {
					return
				}
			}
		}
	}
}

// Interrupted reports whether c contains at least one interruption.
func (c Cause) Interrupted() bool {
	for n := range c.leaves() {
		if n.kind == KindInterrupt {
			return true
		}
	}
	return false
}

// IsInterruptedOnly reports whether c is purely an interruption: it is
// non-empty and every leaf is an Interrupt.
func (c Cause) IsInterruptedOnly() bool {
	if c.IsEmpty() {
		return false
	}
	for n := range c.leaves() {
		if n.kind != KindInterrupt {
			return false
		}
	}
	return true
}

// Failures returns the typed failures of c, left to right.
func (c Cause) Failures() []error {
	var errs []error
	for n := range c.leaves() {
		if n.kind == KindFail {
			errs = append(errs, n.err)
		}
	}
	return errs
}

// FirstFailure returns the leftmost typed failure of c.
func (c Cause) FirstFailure() (error, bool) {
	for n := range c.leaves() {
		if n.kind == KindFail {
			return n.err, true
		}
	}
	return nil, false
}

// Defects returns the defects of c, left to right.
func (c Cause) Defects() []any {
	var ds []any
	for n := range c.leaves() {
		if n.kind == KindDie {
			ds = append(ds, n.defect)
		}
	}
	return ds
}

// FindDefect returns the leftmost defect satisfying pred.
func (c Cause) FindDefect(pred func(any) bool) (any, bool) {
	for n := range c.leaves() {
		if n.kind == KindDie && pred(n.defect) {
			return n.defect, true
		}
	}
	return nil, false
}

// Interruptors returns the distinct fibers that interrupted, in first-seen order.
func (c Cause) Interruptors() []FiberID {
	var ids []FiberID
	for n := range c.leaves() {
		if n.kind != KindInterrupt {
			continue
		}
		seen := false
		for _, id := range ids {
			if id == n.id {
				seen = true
				break
			}
		}
		if !seen {
			ids = append(ids, n.id)
		}
	}
	return ids
}

// Map rewrites every typed failure of c with f, keeping the structure.
func (c Cause) Map(f func(error) error) Cause {
	return c.rebuild(func(n *causeNode) Cause {
		if n.kind == KindFail {
			return CauseFail(f(n.err))
		}
		return Cause{node: n}
	})
}

// StripFailures removes every typed failure from c, keeping defects and
// interruptions.
func (c Cause) StripFailures() Cause {
	return c.rebuild(func(n *causeNode) Cause {
		if n.kind == KindFail {
			return Cause{}
		}
		return Cause{node: n}
	})
}

// rebuild maps every leaf of c through f and recombines with the original
// composition, dropping operands that became Empty.
func (c Cause) rebuild(f func(*causeNode) Cause) Cause {
	n := c.node
	if n == nil {
		return c
	}
	switch n.kind {
	case KindThen:
		return CauseThen(n.left.rebuild(f), n.right.rebuild(f))
	case KindBoth:
		return CauseBoth(n.left.rebuild(f), n.right.rebuild(f))
	}
	return f(n)
}

// Equivalent reports whether c and other contain the same failures,
// defects and interruptions, irrespective of how they were composed.
// Both is commutative and both operators are associative under this relation.
func (c Cause) Equivalent(other Cause) bool {
	a := collectLeaves(c)
	b := collectLeaves(other)
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
outer:
	for _, x := range a {
		for j, y := range b {
			if !used[j] && sameLeaf(x, y) {
				used[j] = true
				continue outer
			}
		}
		return false
	}
	return true
}

func collectLeaves(c Cause) []*causeNode {
	var ns []*causeNode
	for n := range c.leaves() {
		ns = append(ns, n)
	}
	return ns
}

func sameLeaf(x, y *causeNode) bool {
	if x.kind != y.kind {
		return false
	}
	switch x.kind {
	case KindFail:
		return x.err == y.err || reflect.DeepEqual(x.err, y.err)
	case KindDie:
		return reflect.DeepEqual(x.defect, y.defect)
	case KindInterrupt:
		return x.id == y.id
	}
	return false
}

// Squash collapses c into a single error: the first typed failure, else the
// first defect, else an [*InnerInterruptError], else nil.
func (c Cause) Squash() error {
	if err, ok := c.FirstFailure(); ok {
		return err
	}
	if ds := c.Defects(); len(ds) > 0 {
		return defectError(ds[0])
	}
	if ids := c.Interruptors(); len(ids) > 0 {
		return &InnerInterruptError{Interruptors: ids}
	}
	return nil
}

// Err renders c as an error. It returns nil for the Empty cause.
func (c Cause) Err() error {
	if c.IsEmpty() {
		return nil
	}
	return &FiberFailure{Cause: c}
}

// String renders c in constructor notation, e.g. "Then(Fail(boom), Interrupt(#3))".
func (c Cause) String() string {
	var b strings.Builder
	c.format(&b)
	return b.String()
}

func (c Cause) format(b *strings.Builder) {
	n := c.node
	if n == nil {
		b.WriteString("Empty")
		return
	}
	switch n.kind {
	case KindFail:
		b.WriteString("Fail(")
		if n.err != nil {
			b.WriteString(n.err.Error())
		} else {
			b.WriteString("<nil>")
		}
		b.WriteByte(')')
	case KindDie:
		fmt.Fprintf(b, "Die(%v)", n.defect)
	case KindInterrupt:
		b.WriteString("Interrupt(" + n.id.String() + ")")
	case KindThen, KindBoth:
		b.WriteString(n.kind.String())
		b.WriteByte('(')
		n.left.format(b)
		b.WriteString(", ")
		n.right.format(b)
		b.WriteByte(')')
	}
}
