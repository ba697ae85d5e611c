package ws

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	P "github.com/cfoust/spheres/pkg/protocol"
	"github.com/cfoust/spheres/pkg/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

// await drains host until an event of the given kind shows up.
func await(t *testing.T, host transport.Host, kind transport.EventType) transport.Event {
	t.Helper()

	var found transport.Event
	require.Eventually(t, func() bool {
		for event := range host.Events() {
			if event.Type == kind {
				found = event
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond, "no %s event", kind)
	return found
}

func TestCloseEvent(t *testing.T) {
	event := closeEvent("a", websocket.CloseError{Code: closeCode(transport.ReasonFull)})
	assert.Equal(t, transport.EventDisconnected, event.Type)
	assert.Equal(t, transport.ReasonFull, event.Reason)

	event = closeEvent("a", websocket.CloseError{Code: websocket.StatusNormalClosure})
	assert.Equal(t, transport.EventDisconnected, event.Type)
	assert.Equal(t, transport.ReasonQuit, event.Reason)

	event = closeEvent("a", errors.New("EOF"))
	assert.Equal(t, transport.EventLostConnection, event.Type)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()

	server, err := Listen(ctx, 0, 1)
	require.NoError(t, err)
	defer server.Close()

	client := Dial(ctx)
	defer client.Close()

	require.Equal(t, transport.ConnectStarted, client.Connect("127.0.0.1", server.Port()))
	assert.Equal(t, transport.ConnectAlreadyConnected, client.Connect("127.0.0.1", server.Port()))

	connected := await(t, client, transport.EventConnected)
	assert.Equal(t, transport.JoinAddress("127.0.0.1", server.Port()), connected.Address)
	incoming := await(t, server, transport.EventConnecting)

	client.Send([]byte{1, 2, 3}, transport.ReliableOrdered, transport.PriorityHigh, transport.Everyone())
	received := await(t, server, transport.EventReceive)
	assert.Equal(t, []byte{1, 2, 3}, received.Data)
	assert.Equal(t, incoming.Address, received.Address)

	server.Send([]byte{4}, transport.ReliableOrdered, transport.PriorityHigh, transport.To(incoming.Address))
	received = await(t, client, transport.EventReceive)
	assert.Equal(t, []byte{4}, received.Data)

	client.Disconnect(connected.Address, transport.ReasonQuit)
	left := await(t, server, transport.EventDisconnected)
	assert.Equal(t, transport.ReasonQuit, left.Reason)
	assert.Empty(t, client.Peers())
}

func TestLongestTextMessage(t *testing.T) {
	ctx := context.Background()

	server, err := Listen(ctx, 0, 1)
	require.NoError(t, err)
	defer server.Close()

	client := Dial(ctx)
	defer client.Close()

	require.True(t, client.Connect("127.0.0.1", server.Port()).Started())
	await(t, client, transport.EventConnected)
	incoming := await(t, server, transport.EventConnecting)

	data := P.Encode(P.TextMessage{Text: strings.Repeat("a", P.MaxTextLength)})
	require.Len(t, data, ReadLimit)

	server.Send(data, transport.ReliableOrdered, transport.PriorityHigh, transport.To(incoming.Address))
	received := await(t, client, transport.EventReceive)
	assert.Equal(t, data, received.Data)

	client.Send(data, transport.ReliableOrdered, transport.PriorityHigh, transport.Everyone())
	received = await(t, server, transport.EventReceive)
	assert.Equal(t, data, received.Data)

	assert.Len(t, client.Peers(), 1)
}

func TestFull(t *testing.T) {
	ctx := context.Background()

	server, err := Listen(ctx, 0, 1)
	require.NoError(t, err)
	defer server.Close()

	first := Dial(ctx)
	defer first.Close()
	require.True(t, first.Connect("127.0.0.1", server.Port()).Started())
	await(t, server, transport.EventConnecting)

	second := Dial(ctx)
	defer second.Close()
	require.True(t, second.Connect("127.0.0.1", server.Port()).Started())

	rejected := await(t, second, transport.EventDisconnected)
	assert.Equal(t, transport.ReasonFull, rejected.Reason)
}

func TestConnectionFailed(t *testing.T) {
	client := Dial(context.Background())
	defer client.Close()

	assert.Equal(t, transport.ConnectInvalidAddress, client.Connect("", 1))

	// nothing should be listening on the discard port
	require.True(t, client.Connect("127.0.0.1", 9).Started())
	await(t, client, transport.EventConnectionFailed)
}
