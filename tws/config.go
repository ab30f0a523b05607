// Package tws is a WebSocket transport layer.
//
// The client side is a Multiplexer: it owns zero or more socket handles,
// serializes outgoing frames per handle and runs a receive loop per handle,
// reporting everything to the Observer registered with each handle.
//
// The server side is session-based: Serve upgrades an HTTP request and runs a
// session function connected to the socket with a pair of channels. It exists
// for test servers and tools.
package tws

import (
	"crypto/tls"
	"net/http"
	"time"
)

// Config is the WebSocket configuration
type Config struct {
	// Timeout for the WebSocket protocol upgrade
	HandshakeTimeout time.Duration

	// Disconnect when an outgoing packet is not acknowledged for this long.
	// 0 for kernel default.
	TCPTimeout time.Duration

	// Send protocol-level pings this often on served connections. 0 to disable.
	PingInterval time.Duration

	// Request specific WebSocket subprotocols. Client-only.
	Subprotocols []string

	// Pass specific TLS configuration to the connection. Client-only.
	TLSClientConfig *tls.Config

	// Extra headers to send with the upgrade request. Client-only.
	Headers http.Header

	// CheckOrigin returns true if the request Origin header is acceptable.
	// Server-only.
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig is the default Config value
var DefaultConfig = Config{
	HandshakeTimeout: 5 * time.Second,

	TCPTimeout: 30 * time.Second,
}
