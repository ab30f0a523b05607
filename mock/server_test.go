package mock

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ridge/livequery/client"
	"github.com/ridge/livequery/retry"
	"github.com/ridge/livequery/test"
	"github.com/ridge/livequery/tlog"
	"github.com/ridge/livequery/wire"
	"github.com/ridge/parallel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	events       chan []byte
	subscribed   chan bool
	unsubscribed chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		events:       make(chan []byte, 16),
		subscribed:   make(chan bool, 16),
		unsubscribed: make(chan struct{}, 16),
	}
}

func (h *recordingHandler) OnEvent(data []byte)     { h.events <- data }
func (h *recordingHandler) OnSubscribed(isNew bool) { h.subscribed <- isNew }
func (h *recordingHandler) OnUnsubscribed()         { h.unsubscribed <- struct{}{} }

func startClient(t *testing.T, group *parallel.Group, server *Server) (*client.Connection, *recordingHandler) {
	t.Helper()
	group.Spawn("server", parallel.Fail, server.Run)

	c, err := client.New(server.URL(),
		client.WithLogger(tlog.NewForTesting(t)),
		client.WithCredentials(client.StaticCredentials{ApplicationID: "app"}),
		client.WithBackoff(retry.ExpConfig{Min: 10 * time.Millisecond, Max: 10 * time.Millisecond, Scale: 1.0}))
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)

	handler := newRecordingHandler()
	require.NoError(t, c.Subscribe(wire.Query{ClassName: "Message"}, handler))
	require.NoError(t, c.Open())
	return c, handler
}

func TestEndToEnd(t *testing.T) {
	group := test.Group(t)
	server := NewServer(WithAutoConnect("c1"))
	c, handler := startClient(t, group, server)

	sess := test.Receive(t, server.Sessions())

	var cmd wire.SubscribeCommand
	require.NoError(t, json.Unmarshal(test.Receive(t, sess.Frames), &cmd))
	assert.Equal(t, wire.OpSubscribe, cmd.Op)
	assert.Equal(t, "Message", cmd.Query.ClassName)
	assert.Equal(t, "app", cmd.ApplicationID)

	sess.Send(wire.EventEnvelope{Op: wire.OpSubscribed, RequestID: cmd.RequestID})
	assert.True(t, test.Receive(t, handler.subscribed))

	sess.SendRaw([]byte(`{"op":"create","requestId":1,"object":{"body":"hi"}}`))
	assert.Contains(t, string(test.Receive(t, handler.events)), `"body":"hi"`)

	assert.Equal(t, "c1", c.ClientID())
	assert.True(t, c.Connected())
}

func TestEndToEndReconnect(t *testing.T) {
	group := test.Group(t)
	server := NewServer(WithAutoConnect("c1"))
	_, handler := startClient(t, group, server)

	sess := test.Receive(t, server.Sessions())
	var cmd wire.SubscribeCommand
	require.NoError(t, json.Unmarshal(test.Receive(t, sess.Frames), &cmd))
	sess.Send(wire.EventEnvelope{Op: wire.OpSubscribed, RequestID: cmd.RequestID})
	assert.True(t, test.Receive(t, handler.subscribed))

	sess.Close()

	// the client comes back by itself and replays the subscription
	sess = test.Receive(t, server.Sessions())
	require.NoError(t, json.Unmarshal(test.Receive(t, sess.Frames), &cmd))
	assert.Equal(t, wire.OpSubscribe, cmd.Op)
	sess.Send(wire.EventEnvelope{Op: wire.OpSubscribed, RequestID: cmd.RequestID})
	assert.False(t, test.Receive(t, handler.subscribed), "the subscription is not new after a reconnect")
}

func TestEndToEndUnsubscribe(t *testing.T) {
	group := test.Group(t)
	server := NewServer(WithAutoConnect("c1"))
	c, handler := startClient(t, group, server)

	sess := test.Receive(t, server.Sessions())
	var cmd wire.SubscribeCommand
	require.NoError(t, json.Unmarshal(test.Receive(t, sess.Frames), &cmd))
	sess.Send(wire.EventEnvelope{Op: wire.OpSubscribed, RequestID: cmd.RequestID})
	test.Receive(t, handler.subscribed)

	require.NoError(t, c.Unsubscribe(wire.Query{ClassName: "Message"}))
	var uncmd wire.UnsubscribeCommand
	require.NoError(t, json.Unmarshal(test.Receive(t, sess.Frames), &uncmd))
	assert.Equal(t, wire.OpUnsubscribe, uncmd.Op)
	assert.Equal(t, cmd.RequestID, uncmd.RequestID)

	sess.Send(wire.EventEnvelope{Op: wire.OpUnsubscribed, RequestID: uncmd.RequestID})
	test.Receive(t, handler.unsubscribed)

	// with no subscriptions left the client closes the connection
	_, ok := <-sess.Frames
	assert.False(t, ok)
}

func TestManualHandshake(t *testing.T) {
	group := test.Group(t)
	server := NewServer()
	_, _ = startClient(t, group, server)

	sess := test.Receive(t, server.Sessions())
	var cmd wire.ConnectCommand
	require.NoError(t, json.Unmarshal(test.Receive(t, sess.Frames), &cmd))
	assert.Equal(t, wire.OpConnect, cmd.Op)
	assert.Equal(t, "app", cmd.ApplicationID)

	sess.Send(wire.Connected{Op: wire.OpConnected, ClientID: "c9"})

	var sub wire.SubscribeCommand
	require.NoError(t, json.Unmarshal(test.Receive(t, sess.Frames), &sub))
	assert.Equal(t, wire.OpSubscribe, sub.Op)
}
