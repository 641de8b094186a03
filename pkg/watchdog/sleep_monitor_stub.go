//go:build !linux

package watchdog

import "context"

// Start is a no-op on platforms without a wired suspend signal source. The
// keeper still pings on its regular interval.
func (m *SleepMonitor) Start(ctx context.Context) {}
