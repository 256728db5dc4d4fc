package ws_test

import (
	"encoding/json"
	"sync"

	"github.com/serroba/online-docs/internal/ws"
)

// mockConn records writes and serves reads from incoming.
type mockConn struct {
	mu       sync.Mutex
	messages []ws.Message
	closed   bool
	incoming chan ws.Message
}

func newMockConn() *mockConn {
	return &mockConn{incoming: make(chan ws.Message, 10)}
}

// WriteJSON round-trips v so tests see what a peer would decode.
func (m *mockConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	var msg ws.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, msg)

	return nil
}

func (m *mockConn) ReadJSON(v any) error {
	data, err := json.Marshal(<-m.incoming)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	return nil
}

func (m *mockConn) Messages() []ws.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]ws.Message(nil), m.messages...)
}

func (m *mockConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}
