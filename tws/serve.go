package tws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ridge/livequery/tlog"
	"github.com/ridge/parallel"
	"go.uber.org/zap"
)

// Message defines the message passed through a served WebSocket
type Message struct {
	Binary bool
	Data   []byte
}

// SessionFn is a function that implements a WebSocket interaction scenario.
//
// The function receives incoming messages through one channel and sends
// outgoing messages through another. Both the incoming channel and the context
// will be closed when the connection closes. Once the session function
// returns, the connection will be closed if it's still open.
type SessionFn func(ctx context.Context, incoming <-chan Message, outgoing chan<- Message) error

// Serve handles an HTTP request by upgrading the connection to WebSocket and
// executing the interaction scenario described by the session function.
//
// The context passed into the session function is a descendant of the request
// context.
func Serve(w http.ResponseWriter, r *http.Request, config Config, sessionFn SessionFn) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout: config.HandshakeTimeout,
		CheckOrigin:      config.CheckOrigin,
	}
	logger := tlog.Get(r.Context())

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to serve WebSocket connection", zap.Error(err))
		return
	}

	if err := tuneTCP(ws.UnderlyingConn(), config); err != nil {
		ws.Close()
		logger.Error("Failed to serve WebSocket connection", zap.Error(err))
		return
	}

	err = handleSession(r.Context(), ws, config, sessionFn)
	logger.Debug("WebSocket disconnected", zap.Error(err))
}

func handleSession(ctx context.Context, ws *websocket.Conn, config Config, sessionFn SessionFn) error {
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		incoming := make(chan Message)
		outgoing := make(chan Message)

		spawn("session", parallel.Continue, func(ctx context.Context) error {
			defer close(outgoing)
			return sessionFn(ctx, incoming, outgoing)
		})

		spawn("receiver", parallel.Continue, func(ctx context.Context) error {
			defer close(incoming)

			for {
				mt, buff, err := ws.ReadMessage()
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					var e *websocket.CloseError
					if errors.As(err, &e) {
						return nil
					}
					return err
				}
				switch mt {
				case websocket.TextMessage, websocket.BinaryMessage:
					select {
					case incoming <- Message{Binary: mt == websocket.BinaryMessage, Data: buff}:
					case <-ctx.Done():
						return ctx.Err()
					}
				default:
					return fmt.Errorf("unexpected WebSocket message type %d", mt)
				}
			}
		})

		spawn("sender", parallel.Exit, func(ctx context.Context) error {
			// The websocket library does not support concurrent writes, so
			// outgoing messages and pings share a single goroutine.
			var ticks <-chan time.Time
			if config.PingInterval != 0 {
				ticker := time.NewTicker(config.PingInterval)
				defer ticker.Stop()
				ticks = ticker.C
			}
			for {
				select {
				case msg, ok := <-outgoing:
					if !ok {
						return nil
					}
					messageType := websocket.TextMessage
					if msg.Binary {
						messageType = websocket.BinaryMessage
					}
					if err := ws.WriteMessage(messageType, msg.Data); err != nil {
						return err
					}
				case <-ticks:
					if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
						return err
					}
				}
			}
		})

		spawn("closer", parallel.Exit, func(ctx context.Context) error {
			<-ctx.Done()
			if err := ws.Close(); err != nil {
				return err
			}
			return ctx.Err()
		})

		return nil
	})
}
