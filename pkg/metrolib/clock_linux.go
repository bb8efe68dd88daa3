//go:build linux

package metrolib

import (
	"time"

	"golang.org/x/sys/unix"
)

// monotonicMs reads CLOCK_BOOTTIME, which keeps counting through suspend
// and is shared by every process on the machine.
func monotonicMs() float64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return float64(time.Now().UnixNano()) / 1e6
	}
	return float64(ts.Sec)*1e3 + float64(ts.Nsec)/1e6
}
