package tnet

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

// IsClosedConnectionError returns if the passed error is "closed network connection".
func IsClosedConnectionError(err error) bool {
	// error is not exported from net, so it can't be directly matched using errors.Is.
	return err != nil && strings.HasSuffix(err.Error(), "use of closed network connection")
}

// IsDisconnectError reports whether the error describes an ordinary loss of
// the underlying connection rather than a protocol or application failure:
// the peer closed the socket, the network reset the connection, or the local
// side tore the socket down.
//
// Such errors indicate that the connection is simply gone and the usual
// response to them is to reconnect rather than to report a failure.
func IsDisconnectError(err error) bool {
	if err == nil {
		return false
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		IsClosedConnectionError(err)
}
