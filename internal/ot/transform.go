package ot

import "unicode/utf8"

// Transform takes two concurrent operations and returns transformed versions
// that can be applied in either order to achieve the same final state.
//
// Given: op1 and op2 were created against the same document state.
// Returns: op1' (op1 transformed against op2), op2' (op2 transformed against op1),
// so that Apply(Apply(C, op1), op2') == Apply(Apply(C, op2), op1').
func Transform(op1, op2 Operation) (Operation, Operation) {
	switch {
	case op1.IsRetain() || op2.IsRetain():
		return transformRetain(op1, op2), transformRetain(op2, op1)
	case op1.IsInsert() && op2.IsInsert():
		return transformInsertInsert(op1, op2)
	case op1.IsDelete() && op2.IsDelete():
		return transformDelete(op1, op2), transformDelete(op2, op1)
	case op1.IsInsert() && op2.IsDelete():
		return transformInsertDelete(op1, op2)
	default:
		// op1 is Delete, op2 is Insert
		op2Prime, op1Prime := transformInsertDelete(op2, op1)

		return op1Prime, op2Prime
	}
}

// Wins reports whether a keeps its place when a and b insert at the same
// position. Lower AuthorID wins, then lower ID, so both sides agree.
func Wins(a, b Operation) bool {
	if a.AuthorID != b.AuthorID {
		return a.AuthorID < b.AuthorID
	}

	return a.ID <= b.ID
}

// transformInsertInsert handles two concurrent inserts.
func transformInsertInsert(op1, op2 Operation) (Operation, Operation) {
	op1Prime := op1
	op2Prime := op2

	switch {
	case op1.Position < op2.Position:
		// op1 is before op2, so op2 needs to shift right
		op2Prime.Position += runeLen(op1.Content)
	case op1.Position > op2.Position:
		// op2 is before op1, so op1 needs to shift right
		op1Prime.Position += runeLen(op2.Content)
	case Wins(op1, op2):
		op2Prime.Position += runeLen(op1.Content)
	default:
		op1Prime.Position += runeLen(op2.Content)
	}

	return op1Prime, op2Prime
}

// transformDelete rewrites del so it applies after other has removed its range.
// Overlapping ranges clamp the position to max(other.Position,
// del.Position-other.Length) and drop the shared runes from the length.
func transformDelete(del, other Operation) Operation {
	delEnd := del.Position + del.Length
	otherEnd := other.Position + other.Length

	switch {
	case delEnd <= other.Position:
		return del
	case del.Position >= otherEnd:
		del.Position -= other.Length

		return del
	}

	overlap := min(delEnd, otherEnd) - max(del.Position, other.Position)
	position := del.Position

	if del.Position >= other.Position {
		position = max(other.Position, del.Position-other.Length)
	}

	if del.Length-overlap <= 0 {
		// Everything this delete targeted is already gone.
		return retainAt(del, position)
	}

	del.Position = position
	del.Length -= overlap

	return del
}

// transformInsertDelete handles insert (op1) vs delete (op2). An insert
// strictly inside the deleted range is dropped: it becomes a Retain at the
// delete start and the delete widens over the inserted text, so both sides
// converge without it.
func transformInsertDelete(ins, del Operation) (Operation, Operation) {
	insPrime := ins
	delPrime := del

	switch {
	case ins.Position <= del.Position:
		// Insert is at or before delete position
		// Delete position shifts right because of the insert
		delPrime.Position += runeLen(ins.Content)
	case ins.Position >= del.Position+del.Length:
		// Insert is after the deleted range
		insPrime.Position -= del.Length
	default:
		// Insert lands inside the deleted range. The delete widens to take
		// the inserted text with it and the insert collapses onto the
		// delete start.
		insPrime = retainAt(ins, del.Position)
		delPrime.Length += runeLen(ins.Content)
	}

	return insPrime, delPrime
}

// transformRetain moves a cursor mark across other. Non-retain operations are
// never moved by a retain.
func transformRetain(op, other Operation) Operation {
	if !op.IsRetain() {
		return op
	}

	switch other.Type {
	case Insert:
		if other.Position <= op.Position {
			op.Position += runeLen(other.Content)
		}
	case Delete:
		switch {
		case op.Position >= other.Position+other.Length:
			op.Position -= other.Length
		case op.Position > other.Position:
			op.Position = other.Position
		}
	case Retain:
	}

	return op
}

// TransformAgainst rebases op over a sequence of operations applied after the
// state op was created against.
func TransformAgainst(op Operation, applied []Operation) Operation {
	for _, other := range applied {
		op, _ = Transform(op, other)
	}

	return op
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
