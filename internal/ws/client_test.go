package ws_test

import (
	"testing"
	"time"

	"github.com/serroba/online-docs/internal/ot"
	"github.com/serroba/online-docs/internal/ws"
	"github.com/stretchr/testify/require"
)

func TestClient_SendAndClose(t *testing.T) {
	t.Parallel()

	conn := newMockConn()
	client := ws.NewClient("c1", "user1", conn)

	require.NoError(t, client.Send(ws.Message{
		Type:    ws.MessageTypeAck,
		Payload: ws.AckPayload{OperationID: "op1", Revision: 5},
	}))
	require.NoError(t, client.SendError(ws.ErrorCodeRevisionTooOld, "history unavailable"))

	messages := conn.Messages()
	require.Len(t, messages, 2)

	ack, ok := messages[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "op1", ack["operationId"])

	failure, ok := messages[1].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, ws.MessageTypeError, messages[1].Type)
	require.Equal(t, ws.ErrorCodeRevisionTooOld, failure["code"])

	require.NoError(t, client.Close())

	if !conn.IsClosed() {
		t.Error("expected connection to be closed")
	}
}

func TestClient_Receive_Sync(t *testing.T) {
	t.Parallel()

	conn := newMockConn()
	client := ws.NewClient("c1", "user1", conn)

	conn.incoming <- ws.Message{Type: ws.MessageTypeSync, Payload: ws.SyncPayload{DocID: "doc1"}}
	conn.incoming <- ws.Message{Type: ws.MessageTypeSync}

	msg, err := client.Receive()
	require.NoError(t, err)
	require.Equal(t, ws.SyncPayload{DocID: "doc1"}, msg.Payload)

	msg, err = client.Receive()
	require.NoError(t, err)
	require.Equal(t, ws.SyncPayload{}, msg.Payload, "a missing payload decodes to the zero value")
}

func TestClient_Receive_Operation(t *testing.T) {
	t.Parallel()

	conn := newMockConn()
	client := ws.NewClient("c1", "user1", conn)

	op := ot.NewDelete(3, 2, "user1")
	op.Timestamp = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	op.DocumentVersion = 7

	conn.incoming <- ws.Message{
		Type:    ws.MessageTypeOperation,
		Payload: ws.NewOperationPayload("doc1", op, 4),
	}

	msg, err := client.Receive()
	require.NoError(t, err)

	payload, ok := msg.Payload.(ws.OperationPayload)
	require.True(t, ok, "payload type %T", msg.Payload)
	require.Equal(t, 4, payload.BaseRevision)

	got, err := payload.Operation()
	require.NoError(t, err)
	require.True(t, op.Timestamp.Equal(got.Timestamp))

	got.Timestamp = op.Timestamp
	require.Equal(t, op, got)
}

func TestClient_Receive_Resolve(t *testing.T) {
	t.Parallel()

	conn := newMockConn()
	client := ws.NewClient("c1", "user1", conn)

	conn.incoming <- ws.Message{
		Type: ws.MessageTypeResolve,
		Payload: ws.ResolvePayload{
			DocID:         "doc1",
			ConflictID:    "c-1",
			StrategyIndex: 2,
			Consent:       true,
		},
	}

	msg, err := client.Receive()
	require.NoError(t, err)

	payload, ok := msg.Payload.(ws.ResolvePayload)
	require.True(t, ok)
	require.Equal(t, "c-1", payload.ConflictID)
	require.Equal(t, 2, payload.StrategyIndex)
	require.True(t, payload.Consent)
}

func TestClient_Receive_UnknownType(t *testing.T) {
	t.Parallel()

	conn := newMockConn()
	client := ws.NewClient("c1", "user1", conn)

	conn.incoming <- ws.Message{Type: "shout"}

	_, err := client.Receive()
	require.ErrorIs(t, err, ws.ErrUnknownMessage)
}

func TestOperationPayload_RejectsUnknownType(t *testing.T) {
	t.Parallel()

	_, err := ws.OperationPayload{OpType: "replace"}.Operation()
	require.ErrorIs(t, err, ot.ErrUnknownOperation)
}
