package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ridge/livequery/registry"
	"github.com/ridge/livequery/retry"
	"github.com/ridge/livequery/tnet"
	"github.com/ridge/livequery/tws"
	"github.com/ridge/livequery/wire"
	"github.com/ridge/must/v2"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// A Connection is one logical live query channel to one server.
//
// Public methods may be called from any goroutine; they only block long
// enough to enqueue the operation onto the connection's serial loop. The
// asynchronous outcome of an operation arrives through the delegate or
// through the operation's own completion callback, never as a late error
// from the method that started it.
type Connection struct {
	transport Transport
	wsConfig  tws.Config
	creds     CredentialsProvider
	delegate  Delegate
	stats     Stats
	logger    *zap.Logger
	execFn    func(fn func())

	maxAttempts int
	backoffCfg  retry.ExpConfig
	retryCfg    retry.Config

	// The inbox is unbounded for the same reason the notifier queue is:
	// the loop posts follow-up work to itself (send completions that fail
	// synchronously), and a bounded inbox would let the loop block on its
	// own output.
	callsMu  sync.Mutex
	calls    []func()
	wake     chan struct{}
	done     chan struct{}
	shutdown sync.Once
	notify   *notifier

	// The fields below belong to the serial loop and must not be touched
	// from anywhere else.
	url                  string
	handle               tws.Handle
	subs                 *registry.Registry
	delays               retry.DelayFn
	clientID             string
	installationID       string
	isSocketEstablished  bool
	isConnected          bool
	isConnecting         bool
	isDisconnectedByUser bool
	stopReconnect        bool
	fatalReported        bool
	reconnectTimer       *time.Timer
}

// New creates a Connection against the given http(s) URL. The URL scheme is
// rewritten to its WebSocket equivalent; a URL a later redirect points to is
// trusted as-is.
//
// The connection does not dial until Open is called, but its transport
// handle and internal loops exist from the start.
func New(url string, opts ...Option) (*Connection, error) {
	wsURL, err := tws.WithWSScheme(url)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		creds:       StaticCredentials{},
		delegate:    NopDelegate{},
		stats:       NopStats{},
		logger:      zap.NewNop(),
		maxAttempts: DefaultMaxAttempts,
		backoffCfg:  DefaultBackoffConfig,
		wsConfig:    tws.DefaultConfig,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		url:         wsURL,
		subs:        registry.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = tws.NewMultiplexer(c.wsConfig, c.logger)
	}
	cfg := c.backoffCfg
	cfg.MaxAttempts = c.maxAttempts
	c.retryCfg = cfg
	c.delays = c.retryCfg.Delays()
	if c.execFn == nil {
		c.notify = newNotifier()
	}
	c.handle = c.transport.CreateHandle(c.url, connObserver{c})

	go c.runLoop()
	return c, nil
}

func (c *Connection) runLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		for {
			c.callsMu.Lock()
			if len(c.calls) == 0 {
				c.callsMu.Unlock()
				break
			}
			fn := c.calls[0]
			c.calls = c.calls[1:]
			c.callsMu.Unlock()
			fn()
		}
	}
}

// do funnels a state mutation onto the serial loop. Never blocks; returns
// false if the connection has been shut down.
func (c *Connection) do(fn func()) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	c.callsMu.Lock()
	c.calls = append(c.calls, fn)
	c.callsMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// dispatch runs a delegate or subscription callback on the notification
// context
func (c *Connection) dispatch(fn func()) {
	if c.execFn != nil {
		c.execFn(fn)
		return
	}
	c.notify.enqueue(fn)
}

// Open asks the connection to establish its channel. The method returns once
// the request is enqueued; the outcome arrives through the delegate.
func (c *Connection) Open() error {
	if !c.do(func() { c.open(true) }) {
		return ErrShutdown
	}
	return nil
}

// Close shuts the channel down at the user's request. Auto-reconnect is
// disabled until the next Open; subscriptions are kept and will be replayed
// after the next successful handshake.
func (c *Connection) Close() {
	c.do(func() { c.closeSocket(true) })
}

// CloseAll forcibly closes every socket handle registered with this
// connection's transport, including handles of other connections sharing it.
// Used for process-wide teardown.
func (c *Connection) CloseAll() {
	c.do(func() { c.closeSocket(true) })
	c.transport.CloseAll()
}

// Shutdown tears the connection down for good: closes the socket and stops
// the internal loops. The connection cannot be used afterwards.
func (c *Connection) Shutdown() {
	finished := make(chan struct{})
	c.do(func() {
		c.closeSocket(true)
		close(finished)
	})
	select {
	case <-finished:
	case <-c.done:
	}
	c.shutdown.Do(func() { close(c.done) })
	if c.notify != nil {
		c.notify.stop()
	}
}

// Subscribe registers interest in a query. The subscription becomes live
// when the server acknowledges it (Handler.OnSubscribed); if the connection
// is down, the command is sent after the next successful handshake.
//
// Subscribing twice to the same query with the same handler is a caller
// error: the server will acknowledge two independent subscriptions.
func (c *Connection) Subscribe(query wire.Query, handler registry.Handler) error {
	ok := c.do(func() {
		rec := c.subs.EnqueuePending(query.Fingerprint(), handler)
		cmd := wire.SubscribeCommand{
			Op:          wire.OpSubscribe,
			RequestID:   rec.RequestID,
			Query:       query,
			Credentials: c.credentials(),
		}
		rec.Message = must.OK1(json.Marshal(cmd))
		if c.isConnected {
			c.sendFrame(rec.Message)
		}
	})
	if !ok {
		return ErrShutdown
	}
	return nil
}

// Unsubscribe cancels every subscription matching the query, optionally
// narrowed to particular handlers.
//
// An acknowledged subscription stays live until the server confirms the
// cancellation with Handler.OnUnsubscribed. A subscription that was still
// pending is dropped locally without a wire round-trip, since the server
// holds no state for it yet.
func (c *Connection) Unsubscribe(query wire.Query, handlers ...registry.Handler) error {
	fp := query.Fingerprint()
	match := func(rec *registry.Record) bool {
		if !bytes.Equal(rec.Fingerprint, fp) {
			return false
		}
		return len(handlers) == 0 ||
			slices.ContainsFunc(handlers, func(h registry.Handler) bool { return h == rec.Handler })
	}

	ok := c.do(func() {
		for _, rec := range c.subs.ActiveRecords() {
			if !match(rec) {
				continue
			}
			cmd := wire.UnsubscribeCommand{
				Op:          wire.OpUnsubscribe,
				RequestID:   rec.RequestID,
				Credentials: c.credentials(),
			}
			rec.Message = must.OK1(json.Marshal(cmd))
			if c.isConnected {
				c.sendFrame(rec.Message)
			}
		}
		for _, rec := range c.subs.PendingRecords() {
			if !match(rec) {
				continue
			}
			c.subs.RemovePending(rec.RequestID)
			rec := rec
			c.dispatch(func() { rec.Handler.OnUnsubscribed() })
		}
		c.closeIfIdle()
	})
	if !ok {
		return ErrShutdown
	}
	return nil
}

// Update replaces the query of every acknowledged subscription owned by the
// handler, keeping the request ids. The new query takes effect when the
// server acknowledges it with another Handler.OnSubscribed.
func (c *Connection) Update(handler registry.Handler, query wire.Query) error {
	fp := query.Fingerprint()
	ok := c.do(func() {
		for _, rec := range c.subs.ActiveRecords() {
			if rec.Handler != handler {
				continue
			}
			rec.Fingerprint = fp
			cmd := wire.SubscribeCommand{
				Op:          wire.OpUpdate,
				RequestID:   rec.RequestID,
				Query:       query,
				Credentials: c.credentials(),
			}
			rec.Message = must.OK1(json.Marshal(cmd))
			if c.isConnected {
				c.sendFrame(rec.Message)
			}
		}
		c.closeIfIdle()
	})
	if !ok {
		return ErrShutdown
	}
	return nil
}

// SendPing sends a transport-level ping. When the channel is not
// established, the completion fires immediately with ErrNotConnected and no
// network traffic is attempted.
func (c *Connection) SendPing(completion func(error)) {
	complete := func(err error) {
		if completion != nil {
			c.dispatch(func() { completion(err) })
		}
	}
	ok := c.do(func() {
		if !c.isSocketEstablished || c.handle == nil {
			complete(ErrNotConnected)
			return
		}
		c.transport.Ping(c.handle, complete)
	})
	if !ok && completion != nil {
		completion(ErrShutdown)
	}
}

// Ping is a synchronous facade over SendPing
func (c *Connection) Ping(ctx context.Context) error {
	errCh := make(chan error, 1)
	c.SendPing(func(err error) { errCh <- err })
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether the handshake has completed and the channel is
// live
func (c *Connection) Connected() bool {
	var v bool
	c.inspect(func() { v = c.isConnected })
	return v
}

// ClientID returns the server-assigned client identity, valid only while
// connected
func (c *Connection) ClientID() string {
	var v string
	c.inspect(func() { v = c.clientID })
	return v
}

// URL returns the current target URL (possibly updated by a redirect)
func (c *Connection) URL() string {
	var v string
	c.inspect(func() { v = c.url })
	return v
}

func (c *Connection) inspect(fn func()) {
	finished := make(chan struct{})
	if !c.do(func() { fn(); close(finished) }) {
		return
	}
	select {
	case <-finished:
	case <-c.done:
	}
}

// credentials fetches the current credential set, downgrading provider
// failures to an empty set plus a delegate error
func (c *Connection) credentials() wire.Credentials {
	creds, err := c.creds.Credentials(context.Background())
	if err != nil {
		c.reportError(fmt.Errorf("failed to obtain credentials: %w", err))
		return wire.Credentials{}
	}
	return creds
}

// open drives the Disconnected -> Connecting transition. userInitiated marks
// an explicit Open call, which re-enables auto-reconnect and restarts the
// attempt budget.
func (c *Connection) open(userInitiated bool) {
	if userInitiated {
		c.isDisconnectedByUser = false
		c.stopReconnect = false
		c.fatalReported = false
		c.delays = c.retryCfg.Delays()
	} else if c.isDisconnectedByUser || c.stopReconnect {
		return
	}
	if c.isConnected {
		return
	}
	if c.isSocketEstablished {
		c.sendHandshake()
		return
	}
	c.scheduleConnect()
}

// scheduleConnect arms the next connection attempt after the delay the retry
// policy dictates, or gives up when the policy declines another attempt.
func (c *Connection) scheduleConnect() {
	if c.reconnectTimer != nil {
		return // an attempt is already scheduled
	}
	delay, ok := c.delays()
	if !ok {
		if !c.fatalReported {
			c.fatalReported = true
			c.reportError(fmt.Errorf("giving up after %d connection attempts", c.maxAttempts))
		}
		c.stopReconnect = true
		c.closeSocket(false)
		return
	}
	c.isConnecting = true

	c.logger.Debug("Scheduling connection attempt",
		zap.String("url", c.url), zap.Duration("delay", delay))
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.do(func() {
			c.reconnectTimer = nil
			c.connectSocket()
		})
	})
}

// connectSocket replaces the current handle with a fresh one and dials it. A
// handle whose receive loop has stopped cannot be revived.
func (c *Connection) connectSocket() {
	if c.isDisconnectedByUser || c.stopReconnect || c.isSocketEstablished {
		return
	}
	c.dropHandle()
	c.handle = c.transport.CreateHandle(c.url, connObserver{c})
	c.transport.Open(c.handle)
}

func (c *Connection) sendHandshake() {
	creds, err := c.creds.Credentials(context.Background())
	if err != nil {
		c.reportError(fmt.Errorf("failed to obtain credentials: %w", err))
		c.scheduleConnect()
		return
	}
	c.installationID = creds.InstallationID
	cmd := wire.ConnectCommand{Op: wire.OpConnect, Credentials: creds}
	c.sendFrame(must.OK1(json.Marshal(cmd)))
}

func (c *Connection) sendFrame(data []byte) {
	h := c.handle
	c.transport.Send(h, data, func(err error) {
		if err == nil {
			c.stats.FrameSent(len(data))
			return
		}
		c.do(func() { c.handleSendError(h, err) })
	})
}

// handleSendError applies the transport error policy to a failed write: the
// socket is treated as lost and a reopen is scheduled; only errors that do
// not describe a plain disconnect are surfaced to the delegate.
func (c *Connection) handleSendError(h tws.Handle, err error) {
	if c.handle == nil || c.handle.ID() != h.ID() {
		return // stale handle
	}
	c.logger.Debug("Send failed", zap.Error(err))
	c.setSocketEstablished(false)
	c.clientID = ""
	if !c.isDisconnectedByUser && !c.stopReconnect {
		c.open(false)
	}
	if !errors.Is(err, tws.ErrSocketNotOpen) && !tnet.IsDisconnectError(err) {
		c.reportError(fmt.Errorf("websocket send: %w", err))
	}
}

// closeSocket tears down the socket and eagerly creates a fresh unopened
// handle so that a subsequent Open has plumbing ready
func (c *Connection) closeSocket(userInitiated bool) {
	if userInitiated {
		c.isDisconnectedByUser = true
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	wasEstablished := c.isSocketEstablished
	c.dropHandle()
	c.setSocketEstablished(false)
	c.isConnecting = false
	c.clientID = ""
	c.handle = c.transport.CreateHandle(c.url, connObserver{c})
	if wasEstablished {
		c.dispatch(func() { c.delegate.SocketClosed(c, nil) })
	}
}

func (c *Connection) dropHandle() {
	if c.handle == nil {
		return
	}
	c.transport.CloseHandle(c.handle)
	c.transport.RemoveHandle(c.handle)
	c.handle = nil
}

// closeIfIdle tears the channel down when no subscription remains. This is
// the only idle-timeout behavior of the system.
func (c *Connection) closeIfIdle() {
	if !c.subs.Empty() {
		return
	}
	if !c.isSocketEstablished && !c.isConnecting {
		return
	}
	c.logger.Debug("No subscriptions left, closing the channel")
	c.stopReconnect = true
	c.closeSocket(false)
}

// setSocketEstablished maintains the state invariants: a connection cannot
// be connected without an established socket
func (c *Connection) setSocketEstablished(v bool) {
	c.isSocketEstablished = v
	if !v {
		c.isConnected = false
	}
}

// setConnected maintains the state invariants: becoming connected ends the
// connecting phase
func (c *Connection) setConnected(v bool) {
	c.isConnected = v && c.isSocketEstablished
	if c.isConnected {
		c.isConnecting = false
	}
}

func (c *Connection) reportError(err error) {
	c.stats.Error()
	c.logger.Debug("Connection error", zap.Error(err))
	c.dispatch(func() { c.delegate.ConnectionError(c, err) })
}
