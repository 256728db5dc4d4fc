package storage

import (
	"errors"

	"github.com/serroba/online-docs/internal/conflict"
	"github.com/serroba/online-docs/internal/merge"
)

// Common errors.
var (
	ErrConflictNotFound = errors.New("conflict not found")
	ErrResolutionExists = errors.New("conflict already has a resolution")
)

// AuditStore keeps every conflict record and committed resolution.
// Records are never deleted. Implementations can use in-memory storage,
// databases, or other backends.
type AuditStore interface {
	// SaveConflict inserts or replaces a conflict record by ID.
	SaveConflict(info conflict.Info) error

	// Conflict retrieves a conflict by ID.
	// Returns ErrConflictNotFound if no record exists.
	Conflict(conflictID string) (conflict.Info, error)

	// Conflicts returns a document's conflicts in detection order.
	Conflicts(docID string) ([]conflict.Info, error)

	// SaveResolution records the outcome of a conflict.
	// Returns ErrConflictNotFound if the conflict was never saved and
	// ErrResolutionExists if it already has one.
	SaveResolution(res merge.Resolution) error

	// Resolutions returns a document's resolutions in commit order.
	Resolutions(docID string) ([]merge.Resolution, error)
}
