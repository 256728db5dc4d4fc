package ws

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/serroba/online-docs/internal/ot"
)

// Editor is the participant side a Transport feeds: the document controller.
type Editor interface {
	ApplyRemote(op ot.Operation) error
	Acknowledge(opID string) bool
	Pending() []ot.Operation
}

// Transport carries a participant's operations to the relay over a client
// connection. One operation is in flight at a time; the rest wait and are
// sent in their rebased form once the previous one is acknowledged.
type Transport struct {
	client *Client
	docID  string

	mu       sync.Mutex
	editor   Editor
	revision int      // Latest relay revision seen
	inFlight string   // Operation awaiting ack
	queued   []string // Operation IDs waiting to be sent, oldest first
}

// NewTransport creates a transport for docID starting at revision.
func NewTransport(client *Client, docID string, revision int) *Transport {
	return &Transport{
		client:   client,
		docID:    docID,
		revision: revision,
	}
}

// Attach sets the editor whose pending operations are sent and which receives
// relayed operations.
func (t *Transport) Attach(editor Editor) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.editor = editor
}

// Send hands a committed operation to the relay, or queues it behind the
// operation in flight.
func (t *Transport) Send(op ot.Operation) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inFlight != "" {
		t.queued = append(t.queued, op.ID)

		return nil
	}

	return t.sendLocked(op)
}

func (t *Transport) sendLocked(op ot.Operation) error {
	t.inFlight = op.ID

	return t.client.Send(Message{
		Type:    MessageTypeOperation,
		Payload: NewOperationPayload(t.docID, op, t.revision),
	})
}

// Revision returns the latest relay revision seen.
func (t *Transport) Revision() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.revision
}

// Dispatch routes a relay message to the editor. Messages other than acks
// and broadcasts are ignored.
func (t *Transport) Dispatch(msg Message) error {
	raw, ok := msg.Payload.(json.RawMessage)
	if !ok {
		return nil
	}

	switch msg.Type {
	case MessageTypeBroadcast:
		var payload BroadcastPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("decode broadcast: %w", err)
		}

		return t.relayed(payload)
	case MessageTypeAck:
		var payload AckPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("decode ack: %w", err)
		}

		return t.acknowledged(payload)
	default:
		return nil
	}
}

func (t *Transport) relayed(payload BroadcastPayload) error {
	op, err := payload.Operation()
	if err != nil {
		return err
	}

	editor := t.currentEditor()
	if editor != nil {
		if err := editor.ApplyRemote(op); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.revision = max(t.revision, payload.Revision)

	return nil
}

func (t *Transport) acknowledged(payload AckPayload) error {
	editor := t.currentEditor()
	if editor == nil {
		return nil
	}

	editor.Acknowledge(payload.OperationID)

	// Read before locking: the editor calls Send with its own lock held.
	pending := editor.Pending()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.revision = max(t.revision, payload.Revision)

	if payload.OperationID != t.inFlight {
		return nil
	}

	t.inFlight = ""

	for len(t.queued) > 0 {
		id := t.queued[0]
		t.queued = t.queued[1:]

		i := slices.IndexFunc(pending, func(op ot.Operation) bool { return op.ID == id })
		if i < 0 {
			continue
		}

		return t.sendLocked(pending[i])
	}

	return nil
}

func (t *Transport) currentEditor() Editor {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.editor
}
