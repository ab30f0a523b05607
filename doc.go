// Package livequery is a client for live query servers: it subscribes to
// queries over a WebSocket connection and streams matching object events to
// the application as they happen.
//
// # Connections and subscriptions
//
// A Connection is one logical channel to one server. It is created with New
// and does not touch the network until Open is called. Subscriptions can be
// registered at any time, before or after Open, and survive everything the
// network does to the connection: they are replayed after every successful
// handshake, in the order they were first made.
//
//	conn := must.OK1(livequery.New("https://example.com/live",
//	    livequery.WithCredentials(livequery.NewStaticCredentials(livequery.Credentials{
//	        ApplicationID: "app",
//	    }))))
//	defer conn.Shutdown()
//
//	must.OK(conn.Subscribe(livequery.Query{ClassName: "Message"}, handler))
//	must.OK(conn.Open())
//
// The handler receives the server's acknowledgment (OnSubscribed, with a
// flag telling a fresh subscription from a replayed one), the stream of
// object events (OnEvent, with the raw message for the application to
// decode), and the cancellation acknowledgment (OnUnsubscribed).
//
// # Lifecycle
//
// The connection reconnects by itself with exponential backoff, up to a
// configurable number of attempts; an explicit Open resets the budget. When
// the last subscription is cancelled, the connection closes the channel and
// stays idle until the next Open. Connection-level events (socket up and
// down, errors) are delivered to an optional Delegate.
//
// All delegate and handler callbacks are delivered one at a time, in order,
// on a dedicated goroutine, so callback code may call back into the
// connection freely.
//
// # Package structure
//
// The wire package defines the protocol messages. The tws package owns the
// WebSocket sockets; client drives the connection state machine and the
// subscription registry on top of it. The mock package is an in-process
// server for tests, and lqwatch is a command-line subscription watcher.
// This root package re-exports the surface most applications need.
package livequery
