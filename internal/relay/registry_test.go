package relay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/serroba/online-docs/internal/ot"
	"github.com/serroba/online-docs/internal/relay"
	"github.com/serroba/online-docs/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, capacity int) *relay.Registry {
	t.Helper()

	registry, err := relay.NewRegistry(relay.RegistryConfig{Capacity: capacity})
	require.NoError(t, err)
	t.Cleanup(registry.CloseAll)

	return registry
}

func TestRegistry_GetOrCreateSession(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t, 4)

	session := registry.GetOrCreateSession("doc1")
	if session == nil {
		t.Fatal("expected session, got nil")
	}

	if session.DocID() != "doc1" {
		t.Errorf("expected docID doc1, got %s", session.DocID())
	}

	// Getting again should return the same session
	if session != registry.GetOrCreateSession("doc1") {
		t.Error("expected same session instance")
	}
}

func TestRegistry_GetSession(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t, 4)

	if registry.GetSession("doc1") != nil {
		t.Error("expected nil before creating")
	}

	registry.GetOrCreateSession("doc1")

	if registry.GetSession("doc1") == nil {
		t.Error("expected session after creating")
	}
}

func TestRegistry_CloseSession(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t, 4)
	session := registry.GetOrCreateSession("doc1")

	if registry.SessionCount() != 1 {
		t.Errorf("expected 1 session, got %d", registry.SessionCount())
	}

	registry.CloseSession("doc1")

	if registry.SessionCount() != 0 {
		t.Errorf("expected 0 sessions after close, got %d", registry.SessionCount())
	}

	_, err := session.Submit("c1", ot.NewInsert("x", 0, "u1"), 0)
	if !errors.Is(err, relay.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}

	// Closing non-existent is a no-op
	registry.CloseSession("doc1")
}

func TestRegistry_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t, 2)

	first := registry.GetOrCreateSession("doc1")
	registry.GetOrCreateSession("doc2")
	registry.GetOrCreateSession("doc1") // doc2 is now least recently used
	registry.GetOrCreateSession("doc3")

	require.Equal(t, 2, registry.SessionCount())
	require.Nil(t, registry.GetSession("doc2"))
	require.Same(t, first, registry.GetSession("doc1"))

	_, err := first.State()
	require.NoError(t, err, "recently used session stays open")
}

func TestRegistry_KeepsSessionsWithConnectedClients(t *testing.T) {
	t.Parallel()

	hub := ws.NewHub()

	registry, err := relay.NewRegistry(relay.RegistryConfig{Hub: hub, Capacity: 1})
	require.NoError(t, err)
	t.Cleanup(registry.CloseAll)

	client := ws.NewClient("c1", "alice", &mockConn{})
	hub.Register(client)
	hub.Subscribe(client, "doc1")

	busy := registry.GetOrCreateSession("doc1")
	_, err = busy.Submit("c1", ot.NewInsert("hello", 0, "alice"), 0)
	require.NoError(t, err)

	idle := registry.GetOrCreateSession("doc2")
	require.Equal(t, 2, registry.SessionCount(), "grows past capacity while doc1 has clients")

	state, err := busy.State()
	require.NoError(t, err)
	assert.Equal(t, "hello", state.Content)

	// doc2 has no clients, so the next document replaces it.
	registry.GetOrCreateSession("doc3")
	require.Equal(t, 2, registry.SessionCount())

	_, err = idle.State()
	require.ErrorIs(t, err, relay.ErrSessionClosed)
	require.Same(t, busy, registry.GetSession("doc1"))

	// Back within capacity once cleanup finds idle sessions.
	hub.Unregister(client)
	registry.Cleanup(time.Now())

	require.Equal(t, 1, registry.SessionCount())
	assert.Nil(t, registry.GetSession("doc3"))

	_, err = busy.State()
	require.NoError(t, err)

	registry.GetOrCreateSession("doc4")
	require.Equal(t, 1, registry.SessionCount())

	_, err = busy.State()
	require.ErrorIs(t, err, relay.ErrSessionClosed)
}

func TestRegistry_CloseAll(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t, 4)

	sessions := []*relay.Session{
		registry.GetOrCreateSession("doc1"),
		registry.GetOrCreateSession("doc2"),
		registry.GetOrCreateSession("doc3"),
	}

	if registry.SessionCount() != 3 {
		t.Errorf("expected 3 sessions, got %d", registry.SessionCount())
	}

	registry.CloseAll()

	if registry.SessionCount() != 0 {
		t.Errorf("expected 0 sessions, got %d", registry.SessionCount())
	}

	for _, s := range sessions {
		if _, err := s.State(); !errors.Is(err, relay.ErrSessionClosed) {
			t.Errorf("expected %s closed, got %v", s.DocID(), err)
		}
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t, 16)

	var wg sync.WaitGroup

	results := make([]*relay.Session, 10)

	for i := range 10 {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			results[n] = registry.GetOrCreateSession("doc1")
		}(i)
	}

	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Error("expected all goroutines to get same session")
		}
	}
}

func TestRegistry_SharedAudit(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t, 4)
	session := registry.GetOrCreateSession("doc1")

	now := time.Now()

	_, err := session.Submit("c1", stamped(ot.NewInsert("abcdef", 0, "alice"), now.Add(-time.Minute)), 0)
	require.NoError(t, err)

	_, err = session.Submit("c1", stamped(ot.NewDelete(1, 2, "alice"), now), 1)
	require.NoError(t, err)

	_, err = session.Submit("c2", stamped(ot.NewInsert("Z", 2, "bob"), now), 1)
	require.NoError(t, err)

	conflicts, err := registry.Audit().Conflicts("doc1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
}

func TestRegistry_RunCleansUpAndClosesOnCancel(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t, 4)
	session := registry.GetOrCreateSession("doc1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- registry.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, err := session.State()
	require.ErrorIs(t, err, relay.ErrSessionClosed)
}
