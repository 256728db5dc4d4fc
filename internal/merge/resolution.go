package merge

import (
	"time"

	"github.com/google/uuid"
	"github.com/serroba/online-docs/internal/ot"
)

// Resolution is the committed outcome of a conflict. It is created once and
// never modified.
type Resolution struct {
	ID                  string
	ConflictID          string
	DocumentID          string
	Strategy            Kind
	MergedContent       string
	Confidence          float64
	PreservedOperations []ot.Operation
	DiscardedOperations []ot.Operation
	Timestamp           time.Time
	ResolvedBy          string
}

// NewResolution commits strategy s for the given conflict.
func NewResolution(docID, conflictID string, s Strategy, resolvedBy string, at time.Time) Resolution {
	return Resolution{
		ID:                  uuid.NewString(),
		ConflictID:          conflictID,
		DocumentID:          docID,
		Strategy:            s.Kind,
		MergedContent:       s.PreviewContent,
		Confidence:          s.Confidence,
		PreservedOperations: s.Preserved,
		DiscardedOperations: s.Discarded,
		Timestamp:           at,
		ResolvedBy:          resolvedBy,
	}
}

// Manual builds the strategy for hand-written content. Every operation of the
// conflict counts as discarded since none was applied as-is.
func Manual(content string, ops []ot.Operation) Strategy {
	return newStrategy("manual_edit", KindManual, 1, content, nil, ops)
}
