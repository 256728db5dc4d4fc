package storage

import (
	"slices"
	"sync"

	"github.com/serroba/online-docs/internal/conflict"
	"github.com/serroba/online-docs/internal/merge"
)

// documentAudit holds all audit records for a single document.
type documentAudit struct {
	conflictIDs []string
	resolutions []merge.Resolution
}

// MemoryStore is an in-memory implementation of the AuditStore interface.
// Useful for testing and development.
type MemoryStore struct {
	mu        sync.RWMutex
	conflicts map[string]conflict.Info
	resolved  map[string]struct{}
	docs      map[string]*documentAudit
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conflicts: make(map[string]conflict.Info),
		resolved:  make(map[string]struct{}),
		docs:      make(map[string]*documentAudit),
	}
}

// doc returns the audit bucket for docID, creating it on first use.
func (m *MemoryStore) doc(docID string) *documentAudit {
	doc, ok := m.docs[docID]
	if !ok {
		doc = &documentAudit{}
		m.docs[docID] = doc
	}

	return doc
}

// SaveConflict inserts or replaces a conflict record by ID.
func (m *MemoryStore) SaveConflict(info conflict.Info) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conflicts[info.ID]; !exists {
		doc := m.doc(info.DocumentID)
		doc.conflictIDs = append(doc.conflictIDs, info.ID)
	}

	info.Operations = slices.Clone(info.Operations)
	m.conflicts[info.ID] = info

	return nil
}

// Conflict retrieves a conflict by ID.
func (m *MemoryStore) Conflict(conflictID string) (conflict.Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, exists := m.conflicts[conflictID]
	if !exists {
		return conflict.Info{}, ErrConflictNotFound
	}

	return info, nil
}

// Conflicts returns a document's conflicts in detection order.
func (m *MemoryStore) Conflicts(docID string) ([]conflict.Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, exists := m.docs[docID]
	if !exists {
		return nil, nil
	}

	result := make([]conflict.Info, 0, len(doc.conflictIDs))

	for _, id := range doc.conflictIDs {
		result = append(result, m.conflicts[id])
	}

	return result, nil
}

// SaveResolution records the outcome of a conflict.
func (m *MemoryStore) SaveResolution(res merge.Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conflicts[res.ConflictID]; !exists {
		return ErrConflictNotFound
	}

	if _, done := m.resolved[res.ConflictID]; done {
		return ErrResolutionExists
	}

	m.resolved[res.ConflictID] = struct{}{}

	doc := m.doc(res.DocumentID)
	doc.resolutions = append(doc.resolutions, res)

	return nil
}

// Resolutions returns a document's resolutions in commit order.
func (m *MemoryStore) Resolutions(docID string) ([]merge.Resolution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, exists := m.docs[docID]
	if !exists {
		return nil, nil
	}

	return slices.Clone(doc.resolutions), nil
}

// Ensure MemoryStore implements AuditStore.
var _ AuditStore = (*MemoryStore)(nil)
