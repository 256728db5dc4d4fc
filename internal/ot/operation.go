package ot

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// OpType represents the type of operation.
type OpType int

const (
	Insert OpType = iota
	Delete
	Retain
)

// String returns the wire name of the operation type.
func (t OpType) String() string {
	switch t {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Retain:
		return "retain"
	default:
		return fmt.Sprintf("optype(%d)", int(t))
	}
}

// ParseOpType maps a wire name back to its OpType.
func ParseOpType(name string) (OpType, error) {
	switch name {
	case "insert":
		return Insert, nil
	case "delete":
		return Delete, nil
	case "retain":
		return Retain, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
}

// Operation represents a single edit operation in the document.
// Operations are values: transforming one returns a modified copy.
type Operation struct {
	ID              string
	Type            OpType
	Position        int    // Rune offset in the content the op was created against
	Content         string // Inserted text (insert only)
	Length          int    // Deleted rune count (delete only)
	AuthorID        string // Used for tie-breaking concurrent inserts at same position
	Timestamp       time.Time
	DocumentVersion int
}

// NewInsert creates an insert operation.
func NewInsert(content string, position int, authorID string) Operation {
	return Operation{
		ID:       uuid.NewString(),
		Type:     Insert,
		Position: position,
		Content:  content,
		AuthorID: authorID,
	}
}

// NewDelete creates a delete operation removing length runes.
func NewDelete(position, length int, authorID string) Operation {
	return Operation{
		ID:       uuid.NewString(),
		Type:     Delete,
		Position: position,
		Length:   length,
		AuthorID: authorID,
	}
}

// NewRetain creates a retain operation marking a cursor position.
func NewRetain(position int, authorID string) Operation {
	return Operation{
		ID:       uuid.NewString(),
		Type:     Retain,
		Position: position,
		AuthorID: authorID,
	}
}

// IsInsert returns true if this is an insert operation.
func (o Operation) IsInsert() bool {
	return o.Type == Insert
}

// IsDelete returns true if this is a delete operation.
func (o Operation) IsDelete() bool {
	return o.Type == Delete
}

// IsRetain returns true if this is a retain operation.
func (o Operation) IsRetain() bool {
	return o.Type == Retain
}

// IsNoop returns true if applying the operation leaves content unchanged.
func (o Operation) IsNoop() bool {
	switch o.Type {
	case Insert:
		return o.Content == ""
	case Delete:
		return o.Length == 0
	default:
		return true
	}
}

// Span returns the number of runes the operation affects.
func (o Operation) Span() int {
	if n := utf8.RuneCountInString(o.Content); n > o.Length {
		return n
	}

	return o.Length
}

// End returns the exclusive end of the affected range.
func (o Operation) End() int {
	return o.Position + o.Span()
}

// WithStamp returns a copy carrying the given identity metadata.
func (o Operation) WithStamp(id string, ts time.Time, version int) Operation {
	o.ID = id
	o.Timestamp = ts
	o.DocumentVersion = version

	return o
}

// Describe renders a short human readable summary used in merge previews.
func (o Operation) Describe() string {
	switch o.Type {
	case Insert:
		return fmt.Sprintf("%s inserted %q at %d", o.AuthorID, o.Content, o.Position)
	case Delete:
		return fmt.Sprintf("%s deleted %d chars at %d", o.AuthorID, o.Length, o.Position)
	default:
		return fmt.Sprintf("%s retained at %d", o.AuthorID, o.Position)
	}
}

// retainAt turns op into a no-op cursor mark at position.
func retainAt(op Operation, position int) Operation {
	op.Type = Retain
	op.Position = position
	op.Content = ""
	op.Length = 0

	return op
}
