// Package lifecycle tracks process-wide serving state read by the health endpoint.
package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	shuttingDown atomic.Bool
	startedAt    atomic.Int64 // unix nanos; 0 until MarkStarted
)

// MarkStarted records when the server began accepting traffic.
func MarkStarted(now time.Time) {
	startedAt.Store(now.UnixNano())
}

// Uptime is the time since MarkStarted, or 0 when not started.
func Uptime(now time.Time) time.Duration {
	ns := startedAt.Load()
	if ns == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, ns))
}

// SetShuttingDown flips the drain flag. Set on SIGTERM/SIGINT before the server stops
// accepting connections; health reports shutting-down with 503 while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
