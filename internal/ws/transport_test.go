package ws_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/serroba/online-docs/internal/collab"
	"github.com/serroba/online-docs/internal/ot"
	"github.com/serroba/online-docs/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relayMessage(t *testing.T, typ ws.MessageType, payload any) ws.Message {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	return ws.Message{Type: typ, Payload: json.RawMessage(data)}
}

func newEditor(t *testing.T, conn *mockConn) (*collab.Controller, *ws.Transport) {
	t.Helper()

	transport := ws.NewTransport(ws.NewClient("c1", "alice", conn), testDocID, 0)
	ctrl := collab.New(collab.Config{
		DocumentID: testDocID,
		AuthorID:   "alice",
		Transport:  transport,
	})
	t.Cleanup(ctrl.Close)
	transport.Attach(ctrl)

	return ctrl, transport
}

func TestTransport_OneOperationInFlight(t *testing.T) {
	t.Parallel()

	conn := newMockConn()
	ctrl, transport := newEditor(t, conn)

	first, err := ctrl.ApplyLocal("a")
	require.NoError(t, err)

	second, err := ctrl.ApplyLocal("ab")
	require.NoError(t, err)

	messages := conn.Messages()
	require.Len(t, messages, 1, "second op waits for the first ack")
	assert.Equal(t, ws.MessageTypeOperation, messages[0].Type)

	// bob's insert was sequenced first by the relay.
	other := ot.NewInsert("X", 0, "bob")
	other.Timestamp = time.Now().Add(-time.Hour)

	require.NoError(t, transport.Dispatch(relayMessage(t, ws.MessageTypeBroadcast, ws.BroadcastPayload{
		OperationPayload: ws.NewOperationPayload(testDocID, other, 0),
		Revision:         1,
	})))
	assert.Equal(t, "abX", ctrl.Content())
	assert.Equal(t, 1, transport.Revision())

	require.NoError(t, transport.Dispatch(relayMessage(t, ws.MessageTypeAck, ws.AckPayload{
		OperationID: first[0].ID,
		Revision:    2,
	})))

	messages = conn.Messages()
	require.Len(t, messages, 2)

	payload, ok := messages[1].Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, second[0].ID, payload["id"])
	assert.InDelta(t, 2, payload["baseRevision"], 0)
	assert.Len(t, ctrl.Pending(), 1)

	require.NoError(t, transport.Dispatch(relayMessage(t, ws.MessageTypeAck, ws.AckPayload{
		OperationID: second[0].ID,
		Revision:    3,
	})))
	assert.Equal(t, collab.StateClean, ctrl.State())
	assert.Len(t, conn.Messages(), 2)
}

func TestTransport_StaleAckKeepsInFlight(t *testing.T) {
	t.Parallel()

	conn := newMockConn()
	ctrl, transport := newEditor(t, conn)

	_, err := ctrl.ApplyLocal("a")
	require.NoError(t, err)

	_, err = ctrl.ApplyLocal("ab")
	require.NoError(t, err)

	require.NoError(t, transport.Dispatch(relayMessage(t, ws.MessageTypeAck, ws.AckPayload{
		OperationID: "unknown",
		Revision:    1,
	})))

	assert.Len(t, conn.Messages(), 1)
	assert.Equal(t, collab.StateSyncing, ctrl.State())
}

func TestTransport_DispatchIgnoresOtherMessages(t *testing.T) {
	t.Parallel()

	conn := newMockConn()
	ctrl, transport := newEditor(t, conn)

	require.NoError(t, transport.Dispatch(relayMessage(t, ws.MessageTypeState, ws.StatePayload{
		DocID:   testDocID,
		Content: "ignored",
	})))
	require.NoError(t, transport.Dispatch(ws.Message{Type: ws.MessageTypeBroadcast, Payload: "not raw"}))

	assert.Empty(t, ctrl.Content())
}

func TestTransport_DispatchRejectsBadBroadcast(t *testing.T) {
	t.Parallel()

	conn := newMockConn()
	_, transport := newEditor(t, conn)

	err := transport.Dispatch(relayMessage(t, ws.MessageTypeBroadcast, ws.BroadcastPayload{
		OperationPayload: ws.OperationPayload{OpType: "replace"},
	}))
	require.ErrorIs(t, err, ot.ErrUnknownOperation)
}
