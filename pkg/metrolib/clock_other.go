//go:build !linux

package metrolib

import "time"

func monotonicMs() float64 {
	return float64(time.Now().UnixNano()) / 1e6
}
