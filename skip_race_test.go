// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package fx_test

import "testing"

// skipRace skips benchmarks under the race detector, whose
// instrumentation dominates both timings and allocation counts.
func skipRace(tb testing.TB) {
	tb.Helper()
	tb.Skip("skip: benchmark numbers are meaningless under -race")
}
