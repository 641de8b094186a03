//go:build !linux

package notify

import "time"

var monotonicBase = time.Now()

// monotonicUsec approximates a monotonic reading on platforms without a
// native supervisor. time.Since uses the runtime monotonic clock, so values
// only ever move forward.
func monotonicUsec() int64 {
	return time.Since(monotonicBase).Microseconds()
}
