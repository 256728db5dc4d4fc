package merge

import (
	"strings"
	"unicode/utf8"

	"github.com/serroba/online-docs/internal/ot"
)

// Sentinel markers framing a side-by-side block.
const (
	MarkerStart     = "<<<<<<<"
	MarkerSeparator = "======="
	MarkerEnd       = ">>>>>>>"
)

// IntelligentMerge replays the chain ops[:len(ops)-1] onto base in order,
// each relative to the content the previous one produced, then moves the
// incoming op ops[len(ops)-1], authored against base, past the chain. A
// position that falls inside text the chain removed is clamped and costs
// positionRiskPenalty; an op that does not fit costs failedApplyPenalty and is
// discarded. Lines duplicated by the merge cost duplicationPenalty and are
// removed.
func IntelligentMerge(ops []ot.Operation, base string) Strategy {
	if len(ops) == 0 {
		return newStrategy(NameIntelligent, KindAutoMerge, intelligentBase, base, nil, nil)
	}

	confidence := intelligentBase
	content := base
	chain, incoming := ops[:len(ops)-1], ops[len(ops)-1]

	var applied, preserved, discarded []ot.Operation

	for _, op := range chain {
		next, err := ot.Apply(content, op)
		if err != nil {
			confidence -= failedApplyPenalty
			discarded = append(discarded, op)

			continue
		}

		content = next
		applied = append(applied, op)
		preserved = append(preserved, op)
	}

	mapped, risky := mapThrough(incoming, applied)
	if risky {
		confidence -= positionRiskPenalty
	}

	if next, err := ot.Apply(content, mapped); err != nil {
		confidence -= failedApplyPenalty
		discarded = append(discarded, incoming)
	} else {
		content = next
		preserved = append(preserved, incoming)
	}

	if deduped, removed := RemoveDuplication(content, base); removed > 0 {
		confidence -= duplicationPenalty
		content = deduped
	}

	return newStrategy(NameIntelligent, KindAutoMerge, confidence, content, preserved, discarded)
}

// mapThrough re-expresses op, authored against the common base, against the
// content applied produced in sequence. It reports whether any index had to be
// clamped.
func mapThrough(op ot.Operation, applied []ot.Operation) (ot.Operation, bool) {
	start := op.Position
	end := op.Position + op.Length
	risky := false

	for _, prev := range applied {
		switch prev.Type {
		case ot.Insert:
			k := utf8.RuneCountInString(prev.Content)

			if op.IsDelete() && start < prev.Position && prev.Position < end {
				// The delete now spans text another author just wrote.
				risky = true
			}

			if start >= prev.Position {
				start += k
			}

			if end > prev.Position {
				end += k
			}
		case ot.Delete:
			var clamped bool

			start, clamped = mapIndex(start, prev)
			risky = risky || clamped

			end, clamped = mapIndex(end, prev)
			risky = risky || clamped
		case ot.Retain:
		}
	}

	op.Position = start

	if op.IsDelete() {
		op.Length = max(0, end-start)
	}

	return op, risky
}

// mapIndex moves i past the range removed by del.
func mapIndex(i int, del ot.Operation) (int, bool) {
	switch {
	case i >= del.Position+del.Length:
		return i - del.Length, false
	case i > del.Position:
		return del.Position, true
	default:
		return i, false
	}
}

// LastWriterWins keeps only the most recent operation.
func LastWriterWins(ops []ot.Operation, base string) Strategy {
	if len(ops) == 0 {
		return newStrategy(NameLastWriter, KindLastWriterWins, lastWriterScore, base, nil, nil)
	}

	return single(NameLastWriter, KindLastWriterWins, lastWriterScore, ops, len(ops)-1, base)
}

// FirstWriterWins keeps only the oldest operation.
func FirstWriterWins(ops []ot.Operation, base string) Strategy {
	if len(ops) == 0 {
		return newStrategy(NameFirstWriter, KindFirstWriterWins, firstWriterScore, base, nil, nil)
	}

	return single(NameFirstWriter, KindFirstWriterWins, firstWriterScore, ops, 0, base)
}

// single applies ops[keep] alone and discards the rest.
func single(name string, kind Kind, score float64, ops []ot.Operation, keep int, base string) Strategy {
	discarded := make([]ot.Operation, 0, len(ops)-1)
	discarded = append(discarded, ops[:keep]...)
	discarded = append(discarded, ops[keep+1:]...)

	preview, err := ot.Apply(base, ops[keep])
	if err != nil {
		return newStrategy(name, kind, score-failedApplyPenalty, base, nil, ops)
	}

	return newStrategy(name, kind, score, preview, []ot.Operation{ops[keep]}, discarded)
}

// SideBySide keeps every author's inserted text in a labeled block at the
// earliest conflicting position, leaving the choice to a reader. Deletes are
// discarded. Without inserts it returns base unchanged.
func SideBySide(ops []ot.Operation, base string) Strategy {
	var (
		authors   []string
		texts     = make(map[string]*strings.Builder)
		preserved []ot.Operation
		discarded []ot.Operation
	)

	position := -1

	for _, op := range ops {
		if position < 0 || op.Position < position {
			position = op.Position
		}

		if !op.IsInsert() {
			discarded = append(discarded, op)

			continue
		}

		b, ok := texts[op.AuthorID]
		if !ok {
			b = &strings.Builder{}
			texts[op.AuthorID] = b
			authors = append(authors, op.AuthorID)
		}

		b.WriteString(op.Content)

		preserved = append(preserved, op)
	}

	if len(authors) == 0 {
		return newStrategy(NameSideBySide, KindCollaborativeMerge, sideBySideEmptyScore, base, nil, discarded)
	}

	var block strings.Builder

	block.WriteString("\n")

	for i, author := range authors {
		if i == 0 {
			block.WriteString(MarkerStart + " " + author + "\n")
		} else {
			block.WriteString(MarkerSeparator + " " + author + "\n")
		}

		block.WriteString(texts[author].String())
		block.WriteString("\n")
	}

	block.WriteString(MarkerEnd + "\n")

	runes := []rune(base)
	position = min(max(position, 0), len(runes))
	preview := string(runes[:position]) + block.String() + string(runes[position:])

	return newStrategy(NameSideBySide, KindCollaborativeMerge, sideBySideScore, preview, preserved, discarded)
}

// RemoveDuplication drops repeated non-blank lines from merged that base did
// not already repeat, keeping the first occurrences in order. It returns the
// cleaned content and how many lines were removed.
func RemoveDuplication(merged, base string) (string, int) {
	allowed := make(map[string]int)

	for _, line := range strings.Split(base, "\n") {
		if key := strings.TrimSpace(line); key != "" {
			allowed[key]++
		}
	}

	seen := make(map[string]int)
	lines := strings.Split(merged, "\n")
	kept := make([]string, 0, len(lines))
	removed := 0

	for _, line := range lines {
		key := strings.TrimSpace(line)
		if key == "" {
			kept = append(kept, line)

			continue
		}

		seen[key]++

		if seen[key] > max(1, allowed[key]) {
			removed++

			continue
		}

		kept = append(kept, line)
	}

	if removed == 0 {
		return merged, 0
	}

	return strings.Join(kept, "\n"), removed
}
