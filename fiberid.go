// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"strconv"

	"code.hybscloud.com/atomix"
)

// FiberID is a monotonically increasing fiber identifier.
// Each fork assigns the next value. The zero value [FiberIDNone] names
// no fiber and is used for interruptions issued from outside any fiber.
type FiberID uint32

// FiberIDNone is the identity of the host, outside any fiber.
const FiberIDNone FiberID = 0

// fiberCounter is the global monotonic counter for fiber identities.
var fiberCounter atomix.Uint32

// nextFiberID returns the next monotonically increasing fiber identity.
func nextFiberID() FiberID {
	return FiberID(fiberCounter.Add(1))
}

// String renders the identity as "#n", or "#none" for [FiberIDNone].
func (id FiberID) String() string {
	if id == FiberIDNone {
		return "#none"
	}
	return "#" + strconv.FormatUint(uint64(id), 10)
}
