package ot

// Derive extracts the operations that turn oldContent into newContent.
//
// The edit is located by trimming the longest common prefix and suffix.
// A pure removal yields one Delete, a pure addition one Insert, and a
// replacement an explicit Delete followed by an Insert at the same position
// so transforms see the real affected range. Identical inputs yield nil.
// Returned operations carry no ID or timestamp; the caller stamps them.
func Derive(oldContent, newContent, authorID string, version int) []Operation {
	oldRunes := []rune(oldContent)
	newRunes := []rune(newContent)

	prefix := commonPrefix(oldRunes, newRunes)
	suffix := commonSuffix(oldRunes[prefix:], newRunes[prefix:])

	removed := len(oldRunes) - prefix - suffix
	inserted := string(newRunes[prefix : len(newRunes)-suffix])

	var ops []Operation

	if removed > 0 {
		ops = append(ops, Operation{
			Type:            Delete,
			Position:        prefix,
			Length:          removed,
			AuthorID:        authorID,
			DocumentVersion: version,
		})
	}

	if inserted != "" {
		ops = append(ops, Operation{
			Type:            Insert,
			Position:        prefix,
			Content:         inserted,
			AuthorID:        authorID,
			DocumentVersion: version,
		})
	}

	return ops
}

// DeriveOperation returns the primary operation of an edit: the insert of a
// replacement, or the single insert/delete otherwise. The bool is false for
// a no-op edit.
func DeriveOperation(oldContent, newContent, authorID string, version int) (Operation, bool) {
	ops := Derive(oldContent, newContent, authorID, version)
	if len(ops) == 0 {
		return Operation{}, false
	}

	return ops[len(ops)-1], true
}

func commonPrefix(a, b []rune) int {
	n := min(len(a), len(b))

	for i := range n {
		if a[i] != b[i] {
			return i
		}
	}

	return n
}

// commonSuffix is called on the remainders after the prefix, which keeps
// prefix+suffix within both lengths.
func commonSuffix(a, b []rune) int {
	n := min(len(a), len(b))

	for i := range n {
		if a[len(a)-1-i] != b[len(b)-1-i] {
			return i
		}
	}

	return n
}
