// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

// Waiters reports the number of callbacks registered on a pending cell.
func (c *Cell[A]) Waiters() int {
	if s := c.state.Load(); s != nil && !s.done {
		return len(s.waiters)
	}
	return 0
}
