// Package merge computes ranked candidate resolutions for a conflict.
package merge

import (
	"cmp"
	"math"
	"slices"

	"github.com/serroba/online-docs/internal/conflict"
	"github.com/serroba/online-docs/internal/ot"
)

// Kind is the resolution strategy a candidate commits as.
type Kind string

const (
	KindManual             Kind = "manual"
	KindAutoMerge          Kind = "auto_merge"
	KindLastWriterWins     Kind = "last_writer_wins"
	KindFirstWriterWins    Kind = "first_writer_wins"
	KindCollaborativeMerge Kind = "collaborative_merge"
)

// Strategy names.
const (
	NameIntelligent = "intelligent_merge"
	NameLastWriter  = "last_writer_wins"
	NameFirstWriter = "first_writer_wins"
	NameSideBySide  = "side_by_side"
)

// Confidence scores.
const (
	intelligentBase      = 0.9
	failedApplyPenalty   = 0.2
	positionRiskPenalty  = 0.1
	duplicationPenalty   = 0.3
	lastWriterScore      = 0.7
	firstWriterScore     = 0.6
	sideBySideScore      = 0.8
	sideBySideEmptyScore = 0.5
)

// Strategy is one candidate merge. It is recomputed every time a conflict is
// presented and never stored.
type Strategy struct {
	Name                  string
	Kind                  Kind
	Confidence            float64
	PreviewContent        string
	Preserved             []ot.Operation
	Discarded             []ot.Operation
	PreservedDescriptions []string
	DiscardedDescriptions []string
}

// Evaluate computes every strategy for c merged onto base, sorted by
// descending confidence. Equal scores keep the order listed above. The
// intelligent merge follows the order the operations were applied in; the
// others order them by timestamp.
func Evaluate(c conflict.Info, base string) []Strategy {
	ops := byTimestamp(c.Operations)

	strategies := []Strategy{
		IntelligentMerge(c.Operations, base),
		LastWriterWins(ops, base),
		FirstWriterWins(ops, base),
		SideBySide(ops, base),
	}

	slices.SortStableFunc(strategies, func(a, b Strategy) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})

	return strategies
}

// Best returns the highest ranked strategy scoring at least minConfidence.
func Best(strategies []Strategy, minConfidence float64) (Strategy, bool) {
	for _, s := range strategies {
		if s.Confidence >= minConfidence {
			return s, true
		}
	}

	return Strategy{}, false
}

// byTimestamp returns a copy ordered oldest first. Equal timestamps fall back
// to the insert tie-break so every participant agrees on the order.
func byTimestamp(ops []ot.Operation) []ot.Operation {
	sorted := slices.Clone(ops)

	slices.SortStableFunc(sorted, func(a, b ot.Operation) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}

		if a.ID == b.ID && a.AuthorID == b.AuthorID {
			return 0
		}

		if ot.Wins(a, b) {
			return -1
		}

		return 1
	})

	return sorted
}

// newStrategy fills the description lists from the operation lists.
func newStrategy(name string, kind Kind, confidence float64, preview string, preserved, discarded []ot.Operation) Strategy {
	return Strategy{
		Name:                  name,
		Kind:                  kind,
		Confidence:            clampConfidence(confidence),
		PreviewContent:        preview,
		Preserved:             preserved,
		Discarded:             discarded,
		PreservedDescriptions: describe(preserved),
		DiscardedDescriptions: describe(discarded),
	}
}

func describe(ops []ot.Operation) []string {
	out := make([]string, 0, len(ops))

	for _, op := range ops {
		out = append(out, op.Describe())
	}

	return out
}

// clampConfidence keeps scores in [0,1] and drops float noise from repeated
// penalties.
func clampConfidence(c float64) float64 {
	c = math.Round(c*100) / 100

	return math.Max(0, math.Min(1, c))
}
