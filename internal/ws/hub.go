package ws

import (
	"errors"
	"sync"

	"github.com/serroba/online-docs/internal/conflict"
	"github.com/serroba/online-docs/internal/merge"
	"github.com/serroba/online-docs/internal/ot"
)

// ErrClientNotFound is returned when sending to an unregistered client.
var ErrClientNotFound = errors.New("client not registered")

// Hub tracks connected clients and the document each one follows. A client
// follows at most one document.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]*Client
	subscribers map[string]map[string]*Client // document ID -> client ID -> client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		subscribers: make(map[string]map[string]*Client),
	}
}

// Register makes a client reachable through Send.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
}

// Unregister forgets a client and its subscription.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leave(client)
	delete(h.clients, client.ID)
}

// Subscribe moves a client to docID's broadcasts.
func (h *Hub) Subscribe(client *Client, docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leave(client)

	if h.subscribers[docID] == nil {
		h.subscribers[docID] = make(map[string]*Client)
	}

	h.subscribers[docID][client.ID] = client
	client.SetDocID(docID)
}

// Unsubscribe stops docID's broadcasts to the client.
func (h *Hub) Unsubscribe(client *Client, docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.DocID() == docID {
		h.leave(client)
	}
}

// leave drops the client's current subscription. Callers hold mu.
func (h *Hub) leave(client *Client) {
	docID := client.DocID()
	if docID == "" {
		return
	}

	delete(h.subscribers[docID], client.ID)

	if len(h.subscribers[docID]) == 0 {
		delete(h.subscribers, docID)
	}

	client.SetDocID("")
}

// Broadcast sends msg to every subscriber of docID except excludeClientID.
// Messages reach each client in the order Broadcast is called; a failed
// write to one client does not stop the others.
func (h *Hub) Broadcast(docID string, msg Message, excludeClientID string) {
	for _, client := range h.snapshot(docID, excludeClientID) {
		_ = client.Send(msg)
	}
}

// Send delivers msg to a single client.
func (h *Hub) Send(clientID string, msg Message) error {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()

	if !ok {
		return ErrClientNotFound
	}

	return client.Send(msg)
}

// snapshot copies the subscriber list so writes happen outside the lock.
func (h *Hub) snapshot(docID, excludeClientID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.subscribers[docID]))

	for id, client := range h.subscribers[docID] {
		if id != excludeClientID {
			out = append(out, client)
		}
	}

	return out
}

// BroadcastOperation pushes a sequenced operation to every subscriber of
// docID except excludeClientID.
func (h *Hub) BroadcastOperation(docID string, seq ot.SequencedOperation, excludeClientID string) {
	h.Broadcast(docID, Message{
		Type: MessageTypeBroadcast,
		Payload: BroadcastPayload{
			OperationPayload: NewOperationPayload(docID, seq.Operation, seq.Revision-1),
			Revision:         seq.Revision,
		},
	}, excludeClientID)
}

// BroadcastConflict tells every subscriber of a document about a conflict.
func (h *Hub) BroadcastConflict(info conflict.Info, strategies []merge.Strategy) {
	h.Broadcast(info.DocumentID, Message{
		Type:    MessageTypeConflict,
		Payload: NewConflictPayload(info, strategies),
	}, "")
}

// BroadcastResolution tells every subscriber of a document a conflict closed.
func (h *Hub) BroadcastResolution(res merge.Resolution) {
	h.Broadcast(res.DocumentID, Message{
		Type:    MessageTypeResolved,
		Payload: NewResolvedPayload(res),
	}, "")
}

// ClientCount returns the number of clients following a document.
func (h *Hub) ClientCount(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers[docID])
}
