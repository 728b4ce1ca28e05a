package util

import "runtime"

// Wipe zeroes every buffer. Used for passwords and derived keys.
func Wipe(bufs ...[]byte) {
	for _, b := range bufs {
		for i := range b {
			b[i] = 0
		}
		runtime.KeepAlive(b)
	}
}
