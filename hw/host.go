// Package hw holds host-side pieces shared by the hardware backends.
package hw

import (
	"runtime"
	"sync"
	"time"
)

// Host is the gamma.Platform of a measurement running on a general purpose
// operating system. Critical sections run on a locked OS thread and never
// overlap each other.
type Host struct {
	mu sync.Mutex
}

// Sleep blocks for d.
func (h *Host) Sleep(d time.Duration) { time.Sleep(d) }

// Critical runs fn.
func (h *Host) Critical(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	fn()
}
