package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownMessage is returned by Receive for an unrecognized message type.
var ErrUnknownMessage = errors.New("unknown message type")

// Conn is the part of a websocket connection a client needs.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Client is one connected editor. Writes are serialized; reads belong to the
// goroutine serving the connection.
type Client struct {
	ID     string
	UserID string
	conn   Conn

	mu    sync.Mutex
	docID string
}

// NewClient wraps conn for the given client and user.
func NewClient(id, userID string, conn Conn) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		conn:   conn,
	}
}

// Send writes a message to the client.
func (c *Client) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.WriteJSON(msg)
}

// SendError reports an error to the client.
func (c *Client) SendError(code, message string) error {
	return c.Send(Message{
		Type:    MessageTypeError,
		Payload: ErrorPayload{Code: code, Message: message},
	})
}

// Receive reads the next message. Payloads of client messages are decoded
// into their typed form; server messages keep the raw JSON.
func (c *Client) Receive() (Message, error) {
	var envelope struct {
		Type    MessageType     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := c.conn.ReadJSON(&envelope); err != nil {
		return Message{}, err
	}

	payload, err := decodePayload(envelope.Type, envelope.Payload)
	if err != nil {
		return Message{}, err
	}

	return Message{Type: envelope.Type, Payload: payload}, nil
}

func decodePayload(typ MessageType, raw json.RawMessage) (any, error) {
	switch typ {
	case MessageTypeOperation:
		return decode[OperationPayload](raw)
	case MessageTypeSync:
		return decode[SyncPayload](raw)
	case MessageTypeResolve:
		return decode[ResolvePayload](raw)
	case MessageTypeAck, MessageTypeBroadcast, MessageTypeState,
		MessageTypeConflict, MessageTypeResolved, MessageTypeError:
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, typ)
	}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T

	if len(raw) == 0 {
		return v, nil
	}

	err := json.Unmarshal(raw, &v)

	return v, err
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// DocID returns the document the client follows.
func (c *Client) DocID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.docID
}

// SetDocID records the document the client follows.
func (c *Client) SetDocID(docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docID = docID
}
