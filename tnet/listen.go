// Package tnet contains networking helpers: listeners for tests and
// classification of connection teardown errors.
package tnet

import (
	"context"
	"net"

	"github.com/ridge/must/v2"
	"time"
)

var lc = net.ListenConfig{
	KeepAlive: 3 * time.Minute,
}

// Listen installs a TCP listener on the specified [address]:port with TCP
// keep-alive enabled
func Listen(address string) (net.Listener, error) {
	return lc.Listen(context.Background(), "tcp", address)
}

// ListenOnRandomPort selects a random local TCP port and installs a listener
// on it with TCP keep-alive enabled
func ListenOnRandomPort() net.Listener {
	return must.OK1(Listen("localhost:"))
}
