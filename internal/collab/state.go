package collab

import (
	"time"

	"github.com/serroba/online-docs/internal/ot"
)

// State is where a document sits in the sync/conflict lifecycle.
type State string

const (
	// StateClean has no pending local operations and no open conflicts.
	StateClean State = "clean"
	// StateSyncing has local operations waiting for acknowledgment.
	StateSyncing State = "syncing"
	// StateConflict has at least one unresolved conflict.
	StateConflict State = "conflict"
	// StateResolved is held only while a resolution is being committed.
	StateResolved State = "resolved"
)

// DocumentState is a snapshot of a controller's document.
type DocumentState struct {
	Content          string
	Version          int
	LastModified     time.Time
	ActiveOperations []ot.Operation // Most recent first
}

// activeEntry is one slot of the conflict-detection window. before holds the
// content the operation was applied to so merges can start from it.
type activeEntry struct {
	op     ot.Operation
	before string
}

// ContentChange is emitted after every successful apply.
type ContentChange struct {
	DocumentID string
	Content    string
	Version    int
	Operation  ot.Operation
}

// Choice selects how a conflict is resolved: a computed strategy by index or
// hand-written content.
type Choice struct {
	StrategyIndex int
	Content       string
	Custom        bool
	ResolvedBy    string
	// Consent allows committing a strategy below the minimum confidence on a
	// high-severity conflict.
	Consent bool
}

// ChooseStrategy picks the strategy at index from the ranked list.
func ChooseStrategy(index int, resolvedBy string) Choice {
	return Choice{StrategyIndex: index, ResolvedBy: resolvedBy}
}

// ChooseContent resolves with hand-written content.
func ChooseContent(content, resolvedBy string) Choice {
	return Choice{Content: content, Custom: true, ResolvedBy: resolvedBy}
}
