package crypto

import "runtime"

// Wipe zeroes the provided buffer. Best-effort: Go gives no guarantee that
// earlier copies made by the runtime are cleared.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
