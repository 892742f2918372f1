// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/fx"
)

func TestExitAccessors(t *testing.T) {
	ok := fx.Succeeded(3)
	if v, isOK := ok.Value(); !isOK || v != 3 || !ok.IsSuccess() {
		t.Fatalf("Succeeded: got %v, %v", v, isOK)
	}
	if v, err := ok.Get(); err != nil || v != 3 {
		t.Fatalf("Get: got %v, %v", v, err)
	}
	bad := fx.Failed[int](fx.CauseFail(errA))
	if _, err := bad.Get(); !errors.Is(err, errA) {
		t.Fatalf("Get on failure: got %v", err)
	}
	if bad.Interrupted() {
		t.Fatalf("a typed failure is not an interruption")
	}
	if !fx.Failed[int](fx.CauseInterrupt(1)).Interrupted() {
		t.Fatalf("expected Interrupted")
	}
	if got := ok.String(); got != "Success(3)" {
		t.Fatalf("String: got %q", got)
	}
	if got := bad.String(); got != "Failure(Fail(a))" {
		t.Fatalf("String: got %q", got)
	}
}

func TestExitZip(t *testing.T) {
	add := func(a, b int) int { return a + b }
	if v, _ := fx.ExitZip(fx.Succeeded(1), fx.Succeeded(2), add).Value(); v != 3 {
		t.Fatalf("ExitZip: got %v", v)
	}
	seq := fx.ExitZip(fx.Failed[int](fx.CauseFail(errA)), fx.Failed[int](fx.CauseFail(errB)), add)
	if seq.Cause().Kind() != fx.KindThen {
		t.Fatalf("ExitZip should compose with Then, got %v", seq.Cause())
	}
	par := fx.ExitZipPar(fx.Failed[int](fx.CauseFail(errA)), fx.Failed[int](fx.CauseFail(errB)), add)
	if par.Cause().Kind() != fx.KindBoth {
		t.Fatalf("ExitZipPar should compose with Both, got %v", par.Cause())
	}
	one := fx.ExitZipPar(fx.Succeeded(1), fx.Failed[int](fx.CauseFail(errB)), add)
	if err, _ := one.Cause().FirstFailure(); err != errB {
		t.Fatalf("one failure should pass through, got %v", one.Cause())
	}
	m := fx.ExitMap(fx.Succeeded(2), func(v int) string { return "x" })
	if v, _ := m.Value(); v != "x" {
		t.Fatalf("ExitMap: got %q", v)
	}
}
