package tws

import (
	"context"
	"net/http"
	"testing"

	"github.com/ridge/livequery/test"
	"github.com/ridge/livequery/thttp"
	"github.com/ridge/livequery/tlog"
	"github.com/ridge/livequery/tnet"
	"github.com/ridge/parallel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recObserver struct {
	opened      chan Handle
	closed      chan error
	frames      chan []byte
	unsupported chan []byte
	errs        chan error
}

func newRecObserver() *recObserver {
	return &recObserver{
		opened:      make(chan Handle, 16),
		closed:      make(chan error, 16),
		frames:      make(chan []byte, 16),
		unsupported: make(chan []byte, 16),
		errs:        make(chan error, 16),
	}
}

func (o *recObserver) SocketOpened(h Handle) { o.opened <- h }
func (o *recObserver) SocketClosed(h Handle, err error) { o.closed <- err }
func (o *recObserver) Received(h Handle, data []byte) { o.frames <- data }
func (o *recObserver) ReceivedUnsupported(h Handle, data []byte) { o.unsupported <- data }
func (o *recObserver) ReceivedError(h Handle, err error) { o.errs <- err }

// startEchoServer serves an endpoint that echoes text frames back and sends
// one binary frame when it receives the text "binary"
func startEchoServer(t *testing.T) string {
	group := test.Group(t)
	l := tnet.ListenOnRandomPort()
	server := thttp.NewServer(l, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Serve(w, r, DefaultConfig, func(ctx context.Context, incoming <-chan Message, outgoing chan<- Message) error {
			for {
				select {
				case msg, ok := <-incoming:
					if !ok {
						return nil
					}
					if string(msg.Data) == "binary" {
						msg.Binary = true
					}
					select {
					case outgoing <- msg:
					case <-ctx.Done():
						return ctx.Err()
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}))
	group.Spawn("server", parallel.Fail, server.Run)
	return "ws://" + l.Addr().String()
}

func TestMultiplexerEcho(t *testing.T) {
	url := startEchoServer(t)
	m := NewMultiplexer(DefaultConfig, tlog.NewForTesting(t))
	obs := newRecObserver()

	h := m.CreateHandle(url, obs)
	assert.Equal(t, url, h.URL())
	m.Open(h)
	assert.Equal(t, h.ID(), test.Receive(t, obs.opened).ID())

	sent := make(chan error, 1)
	m.Send(h, []byte("hello"), func(err error) { sent <- err })
	require.NoError(t, test.Receive(t, sent))
	assert.Equal(t, []byte("hello"), test.Receive(t, obs.frames))

	m.CloseHandle(h)
	m.RemoveHandle(h)
}

func TestMultiplexerBinaryUnsupported(t *testing.T) {
	url := startEchoServer(t)
	m := NewMultiplexer(DefaultConfig, tlog.NewForTesting(t))
	obs := newRecObserver()

	h := m.CreateHandle(url, obs)
	m.Open(h)
	test.Receive(t, obs.opened)

	m.Send(h, []byte("binary"), nil)
	assert.Equal(t, []byte("binary"), test.Receive(t, obs.unsupported))
	test.NoEvent(t, obs.frames)

	m.CloseHandle(h)
	m.RemoveHandle(h)
}

func TestMultiplexerSendBeforeOpen(t *testing.T) {
	m := NewMultiplexer(DefaultConfig, tlog.NewForTesting(t))
	h := m.CreateHandle("ws://localhost:1/live", newRecObserver())

	sent := make(chan error, 1)
	m.Send(h, []byte("hello"), func(err error) { sent <- err })
	assert.ErrorIs(t, test.Receive(t, sent), ErrSocketNotOpen)
}

func TestMultiplexerDialFailure(t *testing.T) {
	// a port that is not listening
	l := tnet.ListenOnRandomPort()
	url := "ws://" + l.Addr().String()
	require.NoError(t, l.Close())

	m := NewMultiplexer(DefaultConfig, tlog.NewForTesting(t))
	obs := newRecObserver()
	h := m.CreateHandle(url, obs)
	m.Open(h)

	require.Error(t, test.Receive(t, obs.closed))
	test.NoEvent(t, obs.opened)
}

func TestMultiplexerPing(t *testing.T) {
	url := startEchoServer(t)
	m := NewMultiplexer(DefaultConfig, tlog.NewForTesting(t))
	obs := newRecObserver()

	h := m.CreateHandle(url, obs)
	m.Open(h)
	test.Receive(t, obs.opened)

	pinged := make(chan error, 1)
	m.Ping(h, func(err error) { pinged <- err })
	require.NoError(t, test.Receive(t, pinged))

	m.CloseHandle(h)
	m.RemoveHandle(h)
}

func TestMultiplexerRemovedHandleSilent(t *testing.T) {
	url := startEchoServer(t)
	m := NewMultiplexer(DefaultConfig, tlog.NewForTesting(t))
	obs := newRecObserver()

	h := m.CreateHandle(url, obs)
	m.Open(h)
	test.Receive(t, obs.opened)

	m.RemoveHandle(h)
	m.CloseHandle(h) // works after removal
	test.NoEvent(t, obs.errs)
	test.NoEvent(t, obs.closed)
}

func TestCloseAll(t *testing.T) {
	url := startEchoServer(t)
	m := NewMultiplexer(DefaultConfig, tlog.NewForTesting(t))
	obs1, obs2 := newRecObserver(), newRecObserver()

	h1 := m.CreateHandle(url, obs1)
	h2 := m.CreateHandle(url, obs2)
	m.Open(h1)
	m.Open(h2)
	test.Receive(t, obs1.opened)
	test.Receive(t, obs2.opened)

	m.CloseAll()
	require.Error(t, test.Receive(t, obs1.errs))
	require.Error(t, test.Receive(t, obs2.errs))
}
