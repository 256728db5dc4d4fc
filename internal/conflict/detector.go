// Package conflict decides when concurrent operations overlap in a way that
// transform alone should not silently reconcile.
package conflict

import (
	"time"

	"github.com/serroba/online-docs/internal/ot"
)

// DefaultWindow is how close in time two edits must be to count as concurrent.
const DefaultWindow = 5 * time.Second

// Detector flags overlapping edits from different authors.
type Detector struct {
	window time.Duration
}

// NewDetector creates a detector. A non-positive window uses DefaultWindow.
func NewDetector(window time.Duration) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}

	return &Detector{window: window}
}

// Window returns the conflict window.
func (d *Detector) Window() time.Duration {
	return d.window
}

// Detect reports whether incoming conflicts with any active operation.
func (d *Detector) Detect(incoming ot.Operation, active []ot.Operation) bool {
	for _, op := range active {
		if d.Conflicts(incoming, op) {
			return true
		}
	}

	return false
}

// Conflicting returns the active operations incoming conflicts with,
// preserving their order.
func (d *Detector) Conflicting(incoming ot.Operation, active []ot.Operation) []ot.Operation {
	var out []ot.Operation

	for _, op := range active {
		if d.Conflicts(incoming, op) {
			out = append(out, op)
		}
	}

	return out
}

// Conflicts reports whether a and b conflict: different authors, timestamps
// within the window, and intersecting affected ranges. Ranges that only touch
// do not conflict.
func (d *Detector) Conflicts(a, b ot.Operation) bool {
	if a.AuthorID == b.AuthorID {
		return false
	}

	if a.IsRetain() || b.IsRetain() {
		return false
	}

	gap := a.Timestamp.Sub(b.Timestamp)
	if gap < 0 {
		gap = -gap
	}

	if gap > d.window {
		return false
	}

	return Overlaps(a, b)
}

// Overlaps reports whether the half-open affected ranges
// [Position, Position+Span) of a and b intersect.
func Overlaps(a, b ot.Operation) bool {
	return a.Position < b.End() && b.Position < a.End()
}

// Classify picks the kind and severity for incoming against the active
// operations it conflicts with.
func Classify(incoming ot.Operation, conflicting []ot.Operation) (Kind, Severity) {
	authors := map[string]struct{}{incoming.AuthorID: {}}
	kind := KindConcurrentEdit

	for _, op := range conflicting {
		authors[op.AuthorID] = struct{}{}

		if op.DocumentVersion != incoming.DocumentVersion {
			kind = KindVersionMismatch
		}
	}

	if len(authors) > 2 {
		kind = KindUserConflict
	}

	return kind, severity(incoming, conflicting)
}

func severity(incoming ot.Operation, conflicting []ot.Operation) Severity {
	if len(conflicting) >= 2 {
		return SeverityHigh
	}

	result := SeverityLow

	for _, op := range conflicting {
		switch {
		case op.IsDelete() && incoming.IsDelete():
			return SeverityHigh
		case op.IsDelete() || incoming.IsDelete():
			result = SeverityMedium
		}
	}

	return result
}
