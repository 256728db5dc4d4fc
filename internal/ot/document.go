package ot

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when an operation targets a position or span
// outside the content it is applied to.
var ErrOutOfRange = errors.New("operation out of range")

// ErrUnknownOperation is returned for operation types the engine cannot apply.
var ErrUnknownOperation = errors.New("unknown operation type")

// Apply executes an operation against content and returns the result.
// Retain operations leave content unchanged.
func Apply(content string, op Operation) (string, error) {
	runes, err := applyRunes([]rune(content), op)
	if err != nil {
		return content, err
	}

	return string(runes), nil
}

// ApplyAll applies ops in order, stopping at the first failure.
func ApplyAll(content string, ops ...Operation) (string, error) {
	runes := []rune(content)

	for i, op := range ops {
		next, err := applyRunes(runes, op)
		if err != nil {
			return content, fmt.Errorf("apply op %d (%s): %w", i, op.Type, err)
		}

		runes = next
	}

	return string(runes), nil
}

func applyRunes(content []rune, op Operation) ([]rune, error) {
	switch op.Type {
	case Insert:
		return applyInsert(content, op)
	case Delete:
		return applyDelete(content, op)
	case Retain:
		if op.Position < 0 || op.Position > len(content) {
			return nil, ErrOutOfRange
		}

		return content, nil
	default:
		return nil, ErrUnknownOperation
	}
}

// applyInsert splices op.Content at the specified position.
func applyInsert(content []rune, op Operation) ([]rune, error) {
	if op.Position < 0 || op.Position > len(content) {
		return nil, ErrOutOfRange
	}

	chars := []rune(op.Content)

	newContent := make([]rune, 0, len(content)+len(chars))
	newContent = append(newContent, content[:op.Position]...)
	newContent = append(newContent, chars...)
	newContent = append(newContent, content[op.Position:]...)

	return newContent, nil
}

// applyDelete removes op.Length runes starting at the specified position.
func applyDelete(content []rune, op Operation) ([]rune, error) {
	if op.Position < 0 || op.Length < 0 || op.Position+op.Length > len(content) {
		return nil, ErrOutOfRange
	}

	newContent := make([]rune, 0, len(content)-op.Length)
	newContent = append(newContent, content[:op.Position]...)
	newContent = append(newContent, content[op.Position+op.Length:]...)

	return newContent, nil
}
