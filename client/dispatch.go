package client

import (
	"fmt"

	"github.com/ridge/livequery/tnet"
	"github.com/ridge/livequery/tws"
	"github.com/ridge/livequery/wire"
	"go.uber.org/zap"
)

// connObserver funnels transport events onto the connection's serial loop.
// Events from a handle that is no longer current are dropped: once a socket
// has been replaced, nothing it reports can matter.
type connObserver struct {
	c *Connection
}

func (o connObserver) stale(h tws.Handle) bool {
	return o.c.handle == nil || o.c.handle.ID() != h.ID()
}

func (o connObserver) SocketOpened(h tws.Handle) {
	c := o.c
	c.do(func() {
		if o.stale(h) {
			return
		}
		c.logger.Debug("Socket opened", zap.String("url", h.URL()))
		c.setSocketEstablished(true)
		c.dispatch(func() { c.delegate.SocketOpened(c) })
		c.sendHandshake()
	})
}

func (o connObserver) SocketClosed(h tws.Handle, err error) {
	c := o.c
	c.do(func() {
		if o.stale(h) {
			return
		}
		c.logger.Debug("Socket closed", zap.Error(err))
		c.setSocketEstablished(false)
		c.isConnecting = false
		c.clientID = ""
		c.dispatch(func() { c.delegate.SocketClosed(c, err) })
		if !c.isDisconnectedByUser && !c.stopReconnect {
			c.open(false)
		}
	})
}

func (o connObserver) Received(h tws.Handle, data []byte) {
	c := o.c
	c.do(func() {
		if o.stale(h) {
			return
		}
		c.handleFrame(data)
	})
}

func (o connObserver) ReceivedUnsupported(h tws.Handle, data []byte) {
	c := o.c
	c.do(func() {
		if o.stale(h) {
			return
		}
		c.logger.Debug("Unsupported frame received", zap.Int("bytes", len(data)))
		c.dispatch(func() { c.delegate.UnsupportedMessage(c, data) })
	})
}

func (o connObserver) ReceivedError(h tws.Handle, err error) {
	c := o.c
	c.do(func() {
		if o.stale(h) {
			return
		}
		c.logger.Debug("Receive failed", zap.Error(err))
		c.setSocketEstablished(false)
		c.isConnecting = false
		c.clientID = ""
		c.dispatch(func() { c.delegate.SocketClosed(c, err) })
		if !c.isDisconnectedByUser && !c.stopReconnect {
			c.open(false)
		}
		if !tnet.IsDisconnectError(err) {
			c.reportError(fmt.Errorf("websocket receive: %w", err))
		}
	})
}

// handleFrame classifies one inbound text frame. Before the handshake
// completes only "connected", "error" and "redirect" are legal; afterwards
// every event type is routed to its subscription.
func (c *Connection) handleFrame(data []byte) {
	c.stats.FrameReceived(len(data))

	op, err := wire.DecodeHead(data)
	if err != nil {
		c.reportError(err)
		return
	}

	switch {
	case op == wire.OpRedirect:
		var msg wire.Redirect
		if err := wire.Decode(data, &msg); err != nil {
			c.reportError(err)
			return
		}
		c.handleRedirect(msg.URL)

	case op == wire.OpError:
		var msg wire.ServerError
		if err := wire.Decode(data, &msg); err != nil {
			c.reportError(err)
			return
		}
		c.reportError(msg)
		if !msg.Reconnect {
			c.stopReconnect = true
			c.closeSocket(false)
		}

	case !c.isConnected:
		if op != wire.OpConnected {
			c.reportError(wire.ErrProtocol(fmt.Sprintf("out of order message %q before handshake completion", op)))
			return
		}
		var msg wire.Connected
		if err := wire.Decode(data, &msg); err != nil {
			c.reportError(err)
			return
		}
		c.handleConnected(msg)

	case op == wire.OpConnected:
		// A second handshake acknowledgment is harmless, some servers
		// repeat it after an internal failover.
		c.logger.Debug("Duplicate connected message ignored")

	case op.IsEvent():
		c.handleEvent(op, data)

	default:
		c.reportError(wire.ErrProtocol(fmt.Sprintf("undefined state for op %q", op)))
	}
}

func (c *Connection) handleConnected(msg wire.Connected) {
	c.logger.Debug("Handshake complete", zap.String("clientID", msg.ClientID))
	c.clientID = msg.ClientID
	c.setConnected(true)
	c.delays = c.retryCfg.Delays()
	c.stats.Connected()

	// Replay every subscription, acknowledged ones first in their original
	// order, then the ones that never made it to the server.
	for _, rec := range c.subs.DrainForResubscribe() {
		c.sendFrame(rec.Message)
	}
}

func (c *Connection) handleRedirect(url string) {
	c.logger.Debug("Redirected", zap.String("url", url))
	c.url = url
	if !c.isSocketEstablished && !c.isConnecting {
		return // remember the URL for the next Open
	}
	c.dropHandle()
	c.setSocketEstablished(false)
	c.clientID = ""
	c.delays = c.retryCfg.Delays()
	c.open(false)
}

// handleEvent routes a subscription-scoped message. Identity mismatches are
// reported but do not suppress delivery: the server is authoritative about
// who a message is for.
func (c *Connection) handleEvent(op wire.Op, data []byte) {
	var env wire.EventEnvelope
	if err := wire.Decode(data, &env); err != nil {
		c.reportError(err)
		return
	}

	if env.ClientID != "" && env.ClientID != c.clientID {
		c.reportError(fmt.Errorf("message for client %q received by client %q", env.ClientID, c.clientID))
	}
	if env.InstallationID != "" && c.installationID != "" && env.InstallationID != c.installationID {
		c.reportError(fmt.Errorf("message for installation %q received by installation %q", env.InstallationID, c.installationID))
	}

	switch op {
	case wire.OpSubscribed:
		rec, wasActive, ok := c.subs.Promote(env.RequestID)
		if !ok {
			c.logger.Debug("Acknowledgment for unknown subscription", zap.Int64("requestID", int64(env.RequestID)))
			return
		}
		c.dispatch(func() { rec.Handler.OnSubscribed(!wasActive) })

	case wire.OpUnsubscribed:
		rec, ok := c.subs.RemoveActive(env.RequestID)
		if !ok {
			// A cancellation issued while the socket was down rides the
			// pending queue to the next connection.
			rec, ok = c.subs.RemovePending(env.RequestID)
		}
		if !ok {
			c.logger.Debug("Cancellation acknowledgment for unknown subscription", zap.Int64("requestID", int64(env.RequestID)))
			return
		}
		c.dispatch(func() { rec.Handler.OnUnsubscribed() })
		c.closeIfIdle()

	default:
		rec := c.subs.Active(env.RequestID)
		if rec == nil {
			c.logger.Debug("Event for unknown subscription",
				zap.String("op", string(op)), zap.Int64("requestID", int64(env.RequestID)))
			return
		}
		c.dispatch(func() { rec.Handler.OnEvent(data) })
	}
}
