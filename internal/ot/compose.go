package ot

import "time"

// Compose merges adjacent operations from the same author when they are
// contiguous. Applying the composed list yields the same content as applying
// the original list; it only shrinks operation logs.
func Compose(ops []Operation) []Operation {
	if len(ops) == 0 {
		return nil
	}

	composed := make([]Operation, 0, len(ops))
	composed = append(composed, ops[0])

	for _, next := range ops[1:] {
		last := &composed[len(composed)-1]

		if merged, ok := composePair(*last, next); ok {
			*last = merged

			continue
		}

		composed = append(composed, next)
	}

	return composed
}

// composePair merges b into a when b directly continues a.
func composePair(a, b Operation) (Operation, bool) {
	if a.AuthorID != b.AuthorID || a.Type != b.Type {
		return a, false
	}

	switch a.Type {
	case Insert:
		// Typing forward: the second insert lands right after the first.
		if b.Position == a.Position+runeLen(a.Content) {
			a.Content += b.Content
			a.Timestamp = later(a, b)

			return a, true
		}
	case Delete:
		switch {
		case b.Position == a.Position:
			// Forward delete: the range closed up, the next delete starts at the same spot.
			a.Length += b.Length
			a.Timestamp = later(a, b)

			return a, true
		case b.Position+b.Length == a.Position:
			// Backspace: the next delete ends where the previous one started.
			a.Position = b.Position
			a.Length += b.Length
			a.Timestamp = later(a, b)

			return a, true
		}
	case Retain:
	}

	return a, false
}

// Invert returns the operation that undoes op. Only inserts can be inverted
// without knowing the removed text.
func Invert(op Operation) (Operation, bool) {
	switch op.Type {
	case Insert:
		inv := op
		inv.Type = Delete
		inv.Content = ""
		inv.Length = runeLen(op.Content)

		return inv, true
	case Retain:
		return op, true
	default:
		return Operation{}, false
	}
}

func later(a, b Operation) time.Time {
	if b.Timestamp.After(a.Timestamp) {
		return b.Timestamp
	}

	return a.Timestamp
}
