// Package wire defines the message envelopes of the live query protocol.
//
// Every message is a single UTF-8 JSON text frame. Messages in both directions
// carry an "op" discriminator as the first thing a receiver looks at; the rest
// of the payload is decoded according to the op.
package wire

import (
	"encoding/json"

	"github.com/ridge/must/v2"
)

// Op discriminates the type of a protocol message
type Op string

// Client-originated ops
const (
	OpConnect     Op = "connect"
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
)

// Server-originated ops
const (
	OpConnected    Op = "connected"
	OpRedirect     Op = "redirect"
	OpError        Op = "error"
	OpSubscribed   Op = "subscribed"
	OpUnsubscribed Op = "unsubscribed"
	OpCreate       Op = "create"
	OpEnter        Op = "enter"
	OpLeave        Op = "leave"
	OpDelete       Op = "delete"
)

// OpUpdate is sent by the client to modify an existing subscription in place,
// and by the server to report a change to a record already in the result set.
const OpUpdate Op = "update"

// IsEvent reports whether op denotes subscription traffic: an acknowledgement
// or a data event addressed to a particular requestId.
func (op Op) IsEvent() bool {
	switch op {
	case OpSubscribed, OpUnsubscribed, OpCreate, OpUpdate, OpEnter, OpLeave, OpDelete:
		return true
	default:
		return false
	}
}

// RequestID correlates a subscribe or unsubscribe command with its server
// acknowledgement. IDs are allocated per connection, start at 1 and are never
// reused within the lifetime of a connection.
type RequestID int64

// Credentials are the identity fields the client presents to the server.
// All fields are optional; empty fields are omitted from the wire.
type Credentials struct {
	ApplicationID  string `json:"applicationId,omitempty"`
	ClientKey      string `json:"clientKey,omitempty"`
	SessionToken   string `json:"sessionToken,omitempty"`
	InstallationID string `json:"installationId,omitempty"`
}

// Query identifies the records a subscription watches: a class name, a filter
// expression opaque to this package, and an optional field projection.
type Query struct {
	ClassName string          `json:"className"`
	Where     json.RawMessage `json:"where"`
	Fields    []string        `json:"fields,omitempty"`
}

// Fingerprint returns the canonical serialized form of the query, used for
// equality checks without interpreting query semantics.
func (q Query) Fingerprint() []byte {
	return must.OK1(json.Marshal(q))
}

// ConnectCommand is the handshake message. It must be the first message sent
// after the socket opens; no subscription traffic is valid until the server
// answers with Connected.
type ConnectCommand struct {
	Op Op `json:"op"`
	Credentials
}

// SubscribeCommand registers interest in a query (Op == OpSubscribe) or
// replaces the query of an existing subscription (Op == OpUpdate, with the
// RequestID of the original subscription).
type SubscribeCommand struct {
	Op        Op        `json:"op"`
	RequestID RequestID `json:"requestId"`
	Query     Query     `json:"query"`
	Credentials
}

// UnsubscribeCommand cancels the subscription with the given RequestID. The
// subscription stays live until the server acknowledges with an
// OpUnsubscribed event.
type UnsubscribeCommand struct {
	Op        Op        `json:"op"`
	RequestID RequestID `json:"requestId"`
	Credentials
}

// Connected is the server's answer to ConnectCommand
type Connected struct {
	Op       Op     `json:"op"`
	ClientID string `json:"clientId"`
}

// Redirect tells the client to reconnect to another URL. The URL is trusted
// as-is; no scheme rewriting is applied to it.
type Redirect struct {
	Op  Op     `json:"op"`
	URL string `json:"url"`
}

// EventEnvelope is the preliminary shape of all subscription traffic: just
// enough to route the message to the right subscription. The full
// event-specific payload is decoded by the subscriber from the raw frame.
type EventEnvelope struct {
	Op             Op        `json:"op"`
	RequestID      RequestID `json:"requestId"`
	ClientID       string    `json:"clientId,omitempty"`
	InstallationID string    `json:"installationId,omitempty"`
}
