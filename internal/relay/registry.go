package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/serroba/online-docs/internal/config"
	"github.com/serroba/online-docs/internal/storage"
	"github.com/serroba/online-docs/internal/ws"
)

// Registry manages the sessions of every open document. The least recently
// used idle sessions beyond capacity are closed. A session with connected
// clients is never evicted; while every session has clients the cache grows
// past capacity and shrinks back on cleanup.
type Registry struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]
	capacity int
	size     int // Current cache size, above capacity only while sessions are busy

	// Shared dependencies
	hub         *ws.Hub
	audit       storage.AuditStore
	engine      config.EngineConfig
	historySize int
	logger      *slog.Logger
	clock       func() time.Time
}

// RegistryConfig holds configuration for creating a registry.
type RegistryConfig struct {
	Hub         *ws.Hub
	Audit       storage.AuditStore
	Engine      config.EngineConfig
	HistorySize int
	Capacity    int
	Logger      *slog.Logger
	Clock       func() time.Time
}

// NewRegistry creates a new session registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = config.Default().Relay.Capacity
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	audit := cfg.Audit
	if audit == nil {
		audit = storage.NewMemoryStore()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	r := &Registry{
		capacity:    capacity,
		size:        capacity,
		hub:         cfg.Hub,
		audit:       audit,
		engine:      cfg.Engine,
		historySize: cfg.HistorySize,
		logger:      logger,
		clock:       clock,
	}

	sessions, err := lru.NewWithEvict[string, *Session](capacity, r.evicted)
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}

	r.sessions = sessions

	return r, nil
}

func (r *Registry) evicted(docID string, session *Session) {
	r.logger.Info("closing session", "document", docID)

	_ = session.Close()
}

// GetOrCreateSession returns an existing session or creates a new one.
func (r *Registry) GetOrCreateSession(docID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions.Get(docID); ok {
		return session
	}

	r.makeRoom()

	session := NewSession(SessionConfig{
		DocID:       docID,
		Hub:         r.hub,
		Audit:       r.audit,
		Engine:      r.engine,
		HistorySize: r.historySize,
		Logger:      r.logger,
		Clock:       r.clock,
	})

	r.sessions.Add(docID, session)

	return session
}

// makeRoom closes the least recently used idle session when the cache is full,
// or grows the cache when every session has connected clients.
func (r *Registry) makeRoom() {
	if r.sessions.Len() < r.size {
		return
	}

	if r.evictIdle() {
		return
	}

	r.size++
	r.sessions.Resize(r.size)
	r.logger.Warn("every session has connected clients, exceeding capacity",
		"capacity", r.capacity,
		"sessions", r.size,
	)
}

// evictIdle closes the least recently used session without clients.
func (r *Registry) evictIdle() bool {
	for _, docID := range r.sessions.Keys() {
		if r.connected(docID) {
			continue
		}

		r.sessions.Remove(docID)

		return true
	}

	return false
}

func (r *Registry) connected(docID string) bool {
	return r.hub != nil && r.hub.ClientCount(docID) > 0
}

// shrink closes idle sessions beyond capacity and returns the cache to its
// configured size once they are gone.
func (r *Registry) shrink() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == r.capacity {
		return
	}

	for r.sessions.Len() > r.capacity {
		if !r.evictIdle() {
			break
		}
	}

	r.size = max(r.capacity, r.sessions.Len())
	r.sessions.Resize(r.size)
}

// GetSession returns an existing session or nil if not found.
func (r *Registry) GetSession(docID string) *Session {
	session, _ := r.sessions.Get(docID)

	return session
}

// Audit returns the store shared by every session.
func (r *Registry) Audit() storage.AuditStore {
	return r.audit
}

// CloseSession closes and removes a session.
func (r *Registry) CloseSession(docID string) {
	r.sessions.Remove(docID)
}

// CloseAll closes all sessions.
func (r *Registry) CloseAll() {
	r.sessions.Purge()
}

// SessionCount returns the number of open sessions.
func (r *Registry) SessionCount() int {
	return r.sessions.Len()
}

// Cleanup prunes expired operations in every session and closes idle
// sessions kept beyond capacity.
func (r *Registry) Cleanup(now time.Time) int {
	r.shrink()

	pruned := 0

	for _, docID := range r.sessions.Keys() {
		if session, ok := r.sessions.Peek(docID); ok {
			pruned += session.Cleanup(now)
		}
	}

	return pruned
}

// Run cleans up every session on the engine's cleanup interval until ctx is
// done, then closes all sessions.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.engine.CleanupInterval
	if interval <= 0 {
		interval = config.Default().Engine.CleanupInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.CloseAll()

			return nil
		case <-ticker.C:
			if pruned := r.Cleanup(r.clock()); pruned > 0 {
				r.logger.Debug("pruned active operations", "count", pruned)
			}
		}
	}
}
