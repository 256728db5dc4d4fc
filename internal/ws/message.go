package ws

import (
	"time"

	"github.com/serroba/online-docs/internal/conflict"
	"github.com/serroba/online-docs/internal/merge"
	"github.com/serroba/online-docs/internal/ot"
)

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	// Client to Server messages.
	MessageTypeOperation MessageType = "operation" // Client submits an edit
	MessageTypeSync      MessageType = "sync"      // Client requests current state
	MessageTypeResolve   MessageType = "resolve"   // Client picks a conflict resolution

	// Server to Client messages.
	MessageTypeAck       MessageType = "ack"       // Server confirms operation applied
	MessageTypeBroadcast MessageType = "broadcast" // Server pushes operation to clients
	MessageTypeState     MessageType = "state"     // Server sends full document state
	MessageTypeConflict  MessageType = "conflict"  // Server reports a detected conflict
	MessageTypeResolved  MessageType = "resolved"  // Server reports a committed resolution
	MessageTypeError     MessageType = "error"     // Server reports an error
)

// Message is the envelope for all WebSocket communication.
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

// OperationPayload carries every field of an operation so nothing is lost
// crossing the wire.
type OperationPayload struct {
	DocID           string    `json:"docId"`
	BaseRevision    int       `json:"baseRevision"`
	ID              string    `json:"id"`
	OpType          string    `json:"opType"` // "insert", "delete" or "retain"
	Position        int       `json:"position"`
	Content         string    `json:"content,omitempty"`
	Length          int       `json:"length,omitempty"`
	AuthorID        string    `json:"authorId"`
	Timestamp       time.Time `json:"timestamp"`
	DocumentVersion int       `json:"documentVersion"`
}

// NewOperationPayload wraps op for the wire.
func NewOperationPayload(docID string, op ot.Operation, baseRevision int) OperationPayload {
	return OperationPayload{
		DocID:           docID,
		BaseRevision:    baseRevision,
		ID:              op.ID,
		OpType:          op.Type.String(),
		Position:        op.Position,
		Content:         op.Content,
		Length:          op.Length,
		AuthorID:        op.AuthorID,
		Timestamp:       op.Timestamp,
		DocumentVersion: op.DocumentVersion,
	}
}

// Operation converts the payload back into an operation.
func (p OperationPayload) Operation() (ot.Operation, error) {
	typ, err := ot.ParseOpType(p.OpType)
	if err != nil {
		return ot.Operation{}, err
	}

	return ot.Operation{
		ID:              p.ID,
		Type:            typ,
		Position:        p.Position,
		Content:         p.Content,
		Length:          p.Length,
		AuthorID:        p.AuthorID,
		Timestamp:       p.Timestamp,
		DocumentVersion: p.DocumentVersion,
	}, nil
}

// AckPayload confirms an operation was applied.
type AckPayload struct {
	OperationID string `json:"operationId"`
	Revision    int    `json:"revision"` // The assigned revision number
}

// BroadcastPayload pushes a sequenced operation to other clients.
type BroadcastPayload struct {
	OperationPayload

	Revision int `json:"revision"`
}

// SyncPayload requests the state of a document.
type SyncPayload struct {
	DocID string `json:"docId"`
}

// StatePayload sends the full document state.
type StatePayload struct {
	DocID         string `json:"docId"`
	Content       string `json:"content"`
	Revision      int    `json:"revision"`
	State         string `json:"state"`
	OpenConflicts int    `json:"openConflicts"`
}

// StrategyPayload is one ranked merge candidate.
type StrategyPayload struct {
	Index      int      `json:"index"`
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Confidence float64  `json:"confidence"`
	Preview    string   `json:"preview"`
	Preserved  []string `json:"preserved"`
	Discarded  []string `json:"discarded"`
}

// ConflictPayload surfaces a conflict and its candidates for resolution.
type ConflictPayload struct {
	DocID      string            `json:"docId"`
	ConflictID string            `json:"conflictId"`
	Kind       string            `json:"kind"`
	Severity   string            `json:"severity"`
	Authors    []string          `json:"authors"`
	DetectedAt time.Time         `json:"detectedAt"`
	Strategies []StrategyPayload `json:"strategies"`
}

// NewConflictPayload describes info with its ranked strategies.
func NewConflictPayload(info conflict.Info, strategies []merge.Strategy) ConflictPayload {
	out := make([]StrategyPayload, 0, len(strategies))

	for i, s := range strategies {
		out = append(out, StrategyPayload{
			Index:      i,
			Name:       s.Name,
			Kind:       string(s.Kind),
			Confidence: s.Confidence,
			Preview:    s.PreviewContent,
			Preserved:  s.PreservedDescriptions,
			Discarded:  s.DiscardedDescriptions,
		})
	}

	return ConflictPayload{
		DocID:      info.DocumentID,
		ConflictID: info.ID,
		Kind:       string(info.Kind),
		Severity:   string(info.Severity),
		Authors:    info.Authors(),
		DetectedAt: info.DetectedAt,
		Strategies: out,
	}
}

// ResolvePayload is a client's resolution choice: a strategy index, or
// custom content when Custom is set.
type ResolvePayload struct {
	DocID         string `json:"docId"`
	ConflictID    string `json:"conflictId"`
	StrategyIndex int    `json:"strategyIndex"`
	Content       string `json:"content,omitempty"`
	Custom        bool   `json:"custom,omitempty"`
	Consent       bool   `json:"consent,omitempty"`
}

// ResolvedPayload announces a committed resolution.
type ResolvedPayload struct {
	DocID         string  `json:"docId"`
	ConflictID    string  `json:"conflictId"`
	ResolutionID  string  `json:"resolutionId"`
	Strategy      string  `json:"strategy"`
	MergedContent string  `json:"mergedContent"`
	Confidence    float64 `json:"confidence"`
	ResolvedBy    string  `json:"resolvedBy"`
}

// NewResolvedPayload describes res for the wire.
func NewResolvedPayload(res merge.Resolution) ResolvedPayload {
	return ResolvedPayload{
		DocID:         res.DocumentID,
		ConflictID:    res.ConflictID,
		ResolutionID:  res.ID,
		Strategy:      string(res.Strategy),
		MergedContent: res.MergedContent,
		Confidence:    res.Confidence,
		ResolvedBy:    res.ResolvedBy,
	}
}

// ErrorPayload reports an error to the client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrorCodeInvalidMessage   = "invalid_message"
	ErrorCodeRevisionTooOld   = "revision_too_old"
	ErrorCodeConflictNotFound = "conflict_not_found"
	ErrorCodeConsentRequired  = "consent_required"
	ErrorCodeInternalError    = "internal_error"
	ErrorCodeSessionClosed    = "session_closed"
)
