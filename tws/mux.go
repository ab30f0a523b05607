package tws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const sendQueueDepth = 64

const writeTimeout = 10 * time.Second

// ErrSocketNotOpen is reported by Send and Ping when the handle has no open
// socket behind it
var ErrSocketNotOpen = errors.New("socket is not open")

// Handle identifies one socket connection owned by a Multiplexer
type Handle interface {
	// ID is the unique identity of the handle
	ID() ulid.ULID

	// URL is the address the handle connects to
	URL() string
}

// Observer receives lifecycle and data callbacks for one handle.
//
// Callbacks for a single handle are sequential: the receive loop delivers one
// frame at a time and reads the next frame only after the previous callback
// returns. No callbacks are delivered for a handle after RemoveHandle.
type Observer interface {
	// SocketOpened reports that the connection attempt succeeded and the
	// receive loop is running
	SocketOpened(h Handle)

	// SocketClosed reports that the connection attempt failed
	SocketClosed(h Handle, err error)

	// Received delivers one inbound text frame
	Received(h Handle, data []byte)

	// ReceivedUnsupported delivers an inbound frame of an unsupported kind
	// (binary); the receive loop keeps running
	ReceivedUnsupported(h Handle, data []byte)

	// ReceivedError reports a receive failure; the receive loop has stopped
	// and will not restart for this handle
	ReceivedError(h Handle, err error)
}

type outFrame struct {
	data       []byte
	ping       bool
	completion func(error)
}

type socketHandle struct {
	id  ulid.ULID
	url string

	mu      sync.Mutex
	ws      *websocket.Conn
	sends   chan outFrame
	dialing bool
	open    bool
	closed  bool

	receiving atomic.Bool
}

func (h *socketHandle) ID() ulid.ULID { return h.id }
func (h *socketHandle) URL() string   { return h.url }

// A Multiplexer owns socket handles on behalf of any number of connections.
// It is safe for concurrent use; handle bookkeeping is mutated only by
// CreateHandle and RemoveHandle.
type Multiplexer struct {
	config Config
	logger *zap.Logger

	mu        sync.Mutex
	handles   map[ulid.ULID]*socketHandle
	observers map[ulid.ULID]Observer
}

// NewMultiplexer creates a Multiplexer
func NewMultiplexer(config Config, logger *zap.Logger) *Multiplexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multiplexer{
		config:    config,
		logger:    logger,
		handles:   map[ulid.ULID]*socketHandle{},
		observers: map[ulid.ULID]Observer{},
	}
}

// CreateHandle registers a new idle handle for the given URL. The observer
// will receive all callbacks for this handle until RemoveHandle. The handle
// does not connect until Open is called.
func (m *Multiplexer) CreateHandle(url string, observer Observer) Handle {
	h := &socketHandle{id: ulid.Make(), url: url}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles[h.id] = h
	m.observers[h.id] = observer
	return h
}

// RemoveHandle detaches the observer and forgets the handle. No callbacks are
// delivered after RemoveHandle returns, even if the socket produces further
// events before it is fully torn down.
func (m *Multiplexer) RemoveHandle(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handles, h.ID())
	delete(m.observers, h.ID())
}

// Open starts the connection attempt for a handle created by CreateHandle.
// The outcome arrives on the observer: SocketOpened followed by inbound
// traffic, or SocketClosed with the dial error.
func (m *Multiplexer) Open(h Handle) {
	sh := m.handle(h)
	if sh == nil {
		return
	}

	sh.mu.Lock()
	if sh.dialing || sh.open || sh.closed {
		sh.mu.Unlock()
		return
	}
	sh.dialing = true
	sh.mu.Unlock()

	go m.dial(sh)
}

func (m *Multiplexer) dial(h *socketHandle) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var netDialer net.Dialer
			conn, err := netDialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if err := tuneTCP(conn, m.config); err != nil {
				conn.Close()
				return nil, err
			}
			return conn, nil
		},
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: m.config.HandshakeTimeout,
		Subprotocols:     m.config.Subprotocols,
		TLSClientConfig:  m.config.TLSClientConfig,
	}

	ws, resp, err := dialer.Dial(h.url, m.config.Headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	h.mu.Lock()
	h.dialing = false
	if err == nil && h.closed {
		err = net.ErrClosed
		ws.Close()
		ws = nil
	}
	if err != nil {
		h.mu.Unlock()
		m.logger.Debug("WebSocket connection failed",
			zap.String("url", h.url), zap.Stringer("handle", h.id), zap.Error(err))
		if obs := m.observer(h); obs != nil {
			obs.SocketClosed(h, err)
		}
		return
	}
	h.ws = ws
	h.open = true
	h.sends = make(chan outFrame, sendQueueDepth)
	h.mu.Unlock()

	m.logger.Debug("WebSocket established",
		zap.String("url", h.url), zap.Stringer("handle", h.id))

	go h.writeLoop()
	if obs := m.observer(h); obs != nil {
		obs.SocketOpened(h)
	}
	go m.receiveLoop(h)
}

// Send transmits one text frame over the handle's socket. Frames are sent in
// the order Send was called. The completion callback receives the write error,
// or nil; it is a side effect only, there is no retry.
func (m *Multiplexer) Send(h Handle, data []byte, completion func(error)) {
	m.enqueue(h, outFrame{data: data, completion: completion})
}

// Ping sends a WebSocket ping control frame. The completion callback receives
// the write error, or nil.
func (m *Multiplexer) Ping(h Handle, completion func(error)) {
	m.enqueue(h, outFrame{ping: true, completion: completion})
}

func (m *Multiplexer) enqueue(h Handle, f outFrame) {
	sh := m.handle(h)
	if sh == nil {
		complete(f, ErrSocketNotOpen)
		return
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if !sh.open || sh.closed {
		complete(f, ErrSocketNotOpen)
		return
	}
	select {
	case sh.sends <- f:
	default:
		complete(f, errors.New("send queue overflow"))
	}
}

func complete(f outFrame, err error) {
	if f.completion != nil {
		f.completion(err)
	}
}

// CloseHandle forcibly closes the handle's socket, if any. The handle cannot
// be reused afterwards; a new handle must be created instead. Works on
// already removed handles too, so the close/remove order does not matter.
func (m *Multiplexer) CloseHandle(h Handle) {
	if sh, ok := h.(*socketHandle); ok {
		sh.close()
	}
}

// CloseAll forcibly closes every registered handle. Used for process-wide
// teardown.
func (m *Multiplexer) CloseAll() {
	m.mu.Lock()
	handles := make([]*socketHandle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.close()
	}
}

func (m *Multiplexer) handle(h Handle) *socketHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[h.ID()]
}

func (m *Multiplexer) observer(h *socketHandle) Observer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.observers[h.id]
}

func (h *socketHandle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.sends != nil {
		close(h.sends)
		h.sends = nil
	}
	if h.ws != nil {
		h.ws.Close()
	}
}

func (h *socketHandle) writeLoop() {
	h.mu.Lock()
	ws, sends := h.ws, h.sends
	h.mu.Unlock()
	if sends == nil { // closed before the loop started
		return
	}

	for f := range sends {
		var err error
		if f.ping {
			err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
		} else {
			err = ws.WriteMessage(websocket.TextMessage, f.data)
		}
		complete(f, err)
	}
}

// receiveLoop reads frames until the socket fails. The re-entry guard keeps
// at most one receive in flight per handle: Received is never delivered
// concurrently for the same handle.
func (m *Multiplexer) receiveLoop(h *socketHandle) {
	if !h.receiving.CompareAndSwap(false, true) {
		return
	}
	defer h.receiving.Store(false)

	for {
		mt, data, err := h.ws.ReadMessage()
		if err != nil {
			if obs := m.observer(h); obs != nil {
				obs.ReceivedError(h, err)
			}
			return
		}
		obs := m.observer(h)
		if obs == nil {
			continue
		}
		switch mt {
		case websocket.TextMessage:
			obs.Received(h, data)
		default:
			obs.ReceivedUnsupported(h, data)
		}
	}
}
