package lifecycle

import "sync/atomic"

var (
	shuttingDown atomic.Bool
	ready        atomic.Bool
)

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// SetReady marks whether the first refresh has completed and the cache holds a snapshot.
func SetReady(v bool) {
	ready.Store(v)
}

// IsReady returns true once the initial refresh has populated the cache.
func IsReady() bool {
	return ready.Load()
}
