package wire

import "fmt"

// ErrProtocol reports a frame that does not conform to the protocol:
// undecodable payload, unknown op, or a message arriving out of order
// relative to the handshake.
type ErrProtocol string

func (err ErrProtocol) Error() string {
	return string(err)
}

// ServerError is an error reported by the server in an OpError message.
//
// Reconnect tells the client whether automatic reconnection is still allowed.
// A false value is a server-initiated permanent disconnect.
type ServerError struct {
	Op        Op     `json:"op"`
	Code      int    `json:"code"`
	Message   string `json:"error"`
	Reconnect bool   `json:"reconnect"`
}

func (err ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", err.Code, err.Message)
}
