package ot

import (
	"errors"
	"sync"
)

// Queue errors.
var (
	// ErrRevisionTooOld is returned when the operations since the base revision
	// have already left the history.
	ErrRevisionTooOld = errors.New("base revision too old, history unavailable")
	// ErrFutureRevision is returned when the client claims a revision the queue has not reached.
	ErrFutureRevision = errors.New("base revision is in the future")
)

// SequencedOperation is an operation with the revision it produced.
type SequencedOperation struct {
	Operation
	Revision int
}

// Queue gives a document's operations a total order. An operation written
// against an older revision is rebased over everything sequenced since, as
// long as those operations are still in the bounded history.
type Queue struct {
	mu       sync.RWMutex
	revision int
	history  []SequencedOperation // oldest first
	limit    int
}

// NewQueue creates a queue retaining the last limit operations for rebasing.
func NewQueue(limit int) *Queue {
	return &Queue{
		history: make([]SequencedOperation, 0, limit),
		limit:   limit,
	}
}

// Revision returns the number of operations sequenced so far.
func (q *Queue) Revision() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.revision
}

// Apply rebases op from baseRevision and sequences the result.
func (q *Queue) Apply(op Operation, baseRevision int) (SequencedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rebased, err := q.rebase(op, baseRevision)
	if err != nil {
		return SequencedOperation{}, err
	}

	return q.sequence(rebased), nil
}

// Rebase transforms op from baseRevision to the current revision without
// sequencing it, so callers can validate the result first.
func (q *Queue) Rebase(op Operation, baseRevision int) (Operation, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.rebase(op, baseRevision)
}

// Sequence assigns the next revision to an operation already expressed
// against the current revision.
func (q *Queue) Sequence(op Operation) SequencedOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.sequence(op)
}

func (q *Queue) rebase(op Operation, baseRevision int) (Operation, error) {
	if baseRevision > q.revision {
		return Operation{}, ErrFutureRevision
	}

	missed, ok := q.since(baseRevision)
	if !ok {
		return Operation{}, ErrRevisionTooOld
	}

	applied := make([]Operation, len(missed))
	for i, seq := range missed {
		applied[i] = seq.Operation
	}

	return TransformAgainst(op, applied), nil
}

// since returns the history after revision, reporting false when part of it
// was already dropped.
func (q *Queue) since(revision int) ([]SequencedOperation, bool) {
	if revision >= q.revision {
		return nil, true
	}

	if len(q.history) == 0 {
		return nil, false
	}

	// Revisions are contiguous, so the offset is direct.
	first := q.history[0].Revision
	if revision < first-1 {
		return q.history, false
	}

	return q.history[revision-first+1:], true
}

func (q *Queue) sequence(op Operation) SequencedOperation {
	q.revision++

	seq := SequencedOperation{Operation: op, Revision: q.revision}

	q.history = append(q.history, seq)
	if len(q.history) > q.limit {
		q.history = q.history[1:]
	}

	return seq
}
