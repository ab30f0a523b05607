// Package client manages live query connections: connection lifecycle,
// reconnection with backoff, the subscription registry, and classification
// and routing of inbound messages.
package client

import (
	"errors"

	"github.com/ridge/livequery/tws"
)

// ErrShutdown is returned by operations on a connection that has been shut
// down for good
var ErrShutdown = errors.New("connection has been shut down")

// ErrNotConnected is returned by operations that require an established
// channel when there is none
var ErrNotConnected = errors.New("live query channel is not established")

// Transport is the transport multiplexer surface the connection uses.
// *tws.Multiplexer implements it. A transport may be shared by any number of
// connections, each owning its own handles.
type Transport interface {
	CreateHandle(url string, observer tws.Observer) tws.Handle
	Open(h tws.Handle)
	Send(h tws.Handle, data []byte, completion func(error))
	Ping(h tws.Handle, completion func(error))
	CloseHandle(h tws.Handle)
	RemoveHandle(h tws.Handle)
	CloseAll()
}

var _ Transport = (*tws.Multiplexer)(nil)

// Delegate receives connection-level notifications.
//
// The connection invokes the delegate but does not manage its lifetime.
// All methods are called on the connection's notification context, never
// concurrently.
type Delegate interface {
	// SocketOpened reports that the underlying socket came up (the handshake
	// has not necessarily completed yet)
	SocketOpened(c *Connection)

	// SocketClosed reports that the underlying socket went down. err is nil
	// when the closure was requested locally.
	SocketClosed(c *Connection, err error)

	// ConnectionError reports protocol errors, server errors, diagnostic
	// inconsistencies and terminal failures. The connection survives unless
	// the error says otherwise.
	ConnectionError(c *Connection, err error)

	// UnsupportedMessage reports an inbound frame of a kind the protocol
	// does not use (such as a binary frame)
	UnsupportedMessage(c *Connection, data []byte)
}

// NopDelegate is a Delegate that ignores everything. Embed it to implement
// only a subset of the interface.
type NopDelegate struct{}

// SocketOpened implements Delegate
func (NopDelegate) SocketOpened(*Connection) {}

// SocketClosed implements Delegate
func (NopDelegate) SocketClosed(*Connection, error) {}

// ConnectionError implements Delegate
func (NopDelegate) ConnectionError(*Connection, error) {}

// UnsupportedMessage implements Delegate
func (NopDelegate) UnsupportedMessage(*Connection, []byte) {}

// Stats receives transport-level measurements. Implementations must be safe
// for concurrent use.
type Stats interface {
	// FrameSent reports one outbound frame of the given size
	FrameSent(bytes int)

	// FrameReceived reports one inbound frame of the given size
	FrameReceived(bytes int)

	// Connected reports one completed handshake
	Connected()

	// Error reports one connection error
	Error()
}

// NopStats is a Stats that measures nothing
type NopStats struct{}

// FrameSent implements Stats
func (NopStats) FrameSent(int) {}

// FrameReceived implements Stats
func (NopStats) FrameReceived(int) {}

// Connected implements Stats
func (NopStats) Connected() {}

// Error implements Stats
func (NopStats) Error() {}
