// Package mock is a scriptable in-process live query server for tests.
//
// The server accepts WebSocket connections on /live and hands each one to
// the test as a Session: the test reads the client's commands from the
// Frames channel and answers with Send. With AutoConnect enabled, the
// handshake is answered automatically and only subscription traffic reaches
// the test.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/ridge/livequery/thttp"
	"github.com/ridge/livequery/tnet"
	"github.com/ridge/livequery/tws"
	"github.com/ridge/livequery/wire"
	"github.com/ridge/must/v2"
)

// Server is a mock live query server
type Server struct {
	server        *thttp.Server
	config        tws.Config
	autoConnectID string
	sessions      chan *Session
}

// Option configures a Server
type Option func(s *Server)

// WithAutoConnect makes the server complete the handshake by itself,
// assigning the given client identity. The connect command is consumed and
// does not appear on the session's Frames channel.
func WithAutoConnect(clientID string) Option {
	return func(s *Server) { s.autoConnectID = clientID }
}

// WithConfig sets the WebSocket configuration of the server
func WithConfig(config tws.Config) Option {
	return func(s *Server) { s.config = config }
}

// NewServer creates a mock server on a random localhost port
func NewServer(opts ...Option) *Server {
	s := &Server{
		config:   tws.DefaultConfig,
		sessions: make(chan *Session, 16),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := mux.NewRouter()
	router.HandleFunc("/live", s.handleLive)
	s.server = thttp.NewServer(tnet.ListenOnRandomPort(),
		thttp.Wrap(router, thttp.StandardMiddleware))
	return s
}

// Run serves connections until the context is closed
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx)
}

// URL returns the http URL of the live query endpoint
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s/live", s.server.ListenAddr())
}

// Sessions delivers one Session per accepted connection, in connection order
func (s *Server) Sessions() <-chan *Session {
	return s.sessions
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	tws.Serve(w, r, s.config, func(ctx context.Context, incoming <-chan tws.Message, outgoing chan<- tws.Message) error {
		sess := &Session{
			frames:   make(chan []byte, 16),
			outgoing: outgoing,
			done:     make(chan struct{}),
		}
		sess.Frames = sess.frames

		select {
		case s.sessions <- sess:
		case <-ctx.Done():
			return ctx.Err()
		}

		defer close(sess.frames)
		for {
			select {
			case msg, ok := <-incoming:
				if !ok {
					return nil
				}
				if msg.Binary {
					continue
				}
				if s.autoConnectID != "" && s.answerHandshake(sess, msg.Data) {
					continue
				}
				select {
				case sess.frames <- msg.Data:
				case <-sess.done:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			case <-sess.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

func (s *Server) answerHandshake(sess *Session, data []byte) bool {
	op, err := wire.DecodeHead(data)
	if err != nil || op != wire.OpConnect {
		return false
	}
	sess.Send(wire.Connected{Op: wire.OpConnected, ClientID: s.autoConnectID})
	return true
}

// Session is one client connection as seen by the test script
type Session struct {
	// Frames carries the client's text frames. Closed when the client
	// disconnects.
	Frames <-chan []byte

	frames    chan []byte
	outgoing  chan<- tws.Message
	done      chan struct{}
	closeOnce sync.Once
}

// Send marshals the message and sends it to the client
func (s *Session) Send(msg any) {
	s.SendRaw(must.OK1(json.Marshal(msg)))
}

// SendRaw sends a raw text frame to the client
func (s *Session) SendRaw(data []byte) {
	select {
	case s.outgoing <- tws.Message{Data: data}:
	case <-s.done:
	}
}

// Close drops the connection from the server side
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
