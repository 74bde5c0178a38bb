package metrics

import "sync"

var (
	mu       sync.RWMutex
	instance RPCMetrics = NewNoopMetrics()
)

// Set installs the process-wide metrics implementation. Call once at startup,
// before any RPC traffic.
func Set(m RPCMetrics) {
	mu.Lock()
	defer mu.Unlock()
	if m == nil {
		m = NewNoopMetrics()
	}
	instance = m
}

// Get returns the installed metrics implementation, defaulting to no-op.
func Get() RPCMetrics {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}
