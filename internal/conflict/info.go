package conflict

import (
	"time"

	"github.com/google/uuid"
	"github.com/serroba/online-docs/internal/ot"
)

// Kind categorizes why operations conflict.
type Kind string

const (
	KindConcurrentEdit  Kind = "concurrent_edit"
	KindVersionMismatch Kind = "version_mismatch"
	KindUserConflict    Kind = "user_conflict"
)

// Severity ranks how much damage an automatic merge could do.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ResolutionKind records how a conflict was closed.
type ResolutionKind string

const (
	ResolutionManual     ResolutionKind = "manual"
	ResolutionAutoMerge  ResolutionKind = "auto_merge"
	ResolutionUserChoice ResolutionKind = "user_choice"
)

// Info describes a set of operations that could not be reconciled by transform.
// Records are kept after resolution for audit.
type Info struct {
	ID          string
	DocumentID  string
	Operations  []ot.Operation // Applied chain in order, each relative to the previous result, then the incoming op
	Kind        Kind
	Severity    Severity
	BaseContent string // Content the operations are merged onto
	DetectedAt  time.Time
	Resolved    bool
	Resolution  ResolutionKind
	ResolvedAt  time.Time
}

// NewInfo builds an open conflict record for incoming and the active
// operations it collides with.
func NewInfo(docID string, incoming ot.Operation, conflicting []ot.Operation, base string, now time.Time) Info {
	ops := make([]ot.Operation, 0, len(conflicting)+1)
	ops = append(ops, conflicting...)
	ops = append(ops, incoming)

	kind, severity := Classify(incoming, conflicting)

	return Info{
		ID:          uuid.NewString(),
		DocumentID:  docID,
		Operations:  ops,
		Kind:        kind,
		Severity:    severity,
		BaseContent: base,
		DetectedAt:  now,
	}
}

// Authors returns the distinct authors involved, in first-seen order.
func (c Info) Authors() []string {
	seen := make(map[string]struct{}, len(c.Operations))

	var authors []string

	for _, op := range c.Operations {
		if _, ok := seen[op.AuthorID]; ok {
			continue
		}

		seen[op.AuthorID] = struct{}{}
		authors = append(authors, op.AuthorID)
	}

	return authors
}

// MarkResolved returns a copy closed with the given resolution.
func (c Info) MarkResolved(kind ResolutionKind, at time.Time) Info {
	c.Resolved = true
	c.Resolution = kind
	c.ResolvedAt = at

	return c
}
