package client

import "sync"

var (
	defaultMu   sync.RWMutex
	defaultConn *Connection
)

// SetDefault installs the process-wide default connection returned by
// Default, shutting down the previously installed one. Passing nil clears
// the holder (and tears the previous connection down).
func SetDefault(c *Connection) {
	defaultMu.Lock()
	prev := defaultConn
	defaultConn = c
	defaultMu.Unlock()

	if prev != nil && prev != c {
		prev.Shutdown()
	}
}

// Default returns the process-wide default connection, or nil if none was
// installed
func Default() *Connection {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultConn
}
