// Package relay sequences every participant's operations for a document and
// surfaces conflicts to all of them.
package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/serroba/online-docs/internal/collab"
	"github.com/serroba/online-docs/internal/config"
	"github.com/serroba/online-docs/internal/conflict"
	"github.com/serroba/online-docs/internal/merge"
	"github.com/serroba/online-docs/internal/ot"
	"github.com/serroba/online-docs/internal/storage"
	"github.com/serroba/online-docs/internal/ws"
)

// AuthorID authors the operations a relay commits for resolutions.
const AuthorID = "relay"

// Common errors.
var (
	ErrSessionClosed = errors.New("session is closed")
)

// Session coordinates collaborative editing for a single document.
// The queue orders operations; the controller holds the canonical content
// and the conflict lifecycle.
type Session struct {
	docID string

	mu     sync.Mutex
	queue  *ot.Queue
	ctrl   *collab.Controller
	closed bool
	done   chan struct{}

	hub    *ws.Hub
	logger *slog.Logger
}

// SessionConfig holds configuration for creating a session.
type SessionConfig struct {
	DocID       string
	Hub         *ws.Hub
	Audit       storage.AuditStore
	Engine      config.EngineConfig
	HistorySize int
	Logger      *slog.Logger
	Clock       func() time.Time
}

// NewSession creates a session for an empty document and starts forwarding
// its notifications to the hub.
func NewSession(cfg SessionConfig) *Session {
	historySize := cfg.HistorySize
	if historySize == 0 {
		historySize = 100
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		docID:  cfg.DocID,
		queue:  ot.NewQueue(historySize),
		done:   make(chan struct{}),
		hub:    cfg.Hub,
		logger: logger.With("document", cfg.DocID),
	}

	s.ctrl = collab.New(collab.Config{
		DocumentID: cfg.DocID,
		AuthorID:   AuthorID,
		Transport:  sequencer{s},
		Audit:      cfg.Audit,
		Logger:     logger,
		Engine:     cfg.Engine,
		Clock:      cfg.Clock,
	})

	go s.forward()

	return s
}

// sequencer is the controller's transport: resolution operations are
// sequenced like any client edit and broadcast to every participant.
type sequencer struct {
	s *Session
}

func (q sequencer) Send(op ot.Operation) error {
	seq := q.s.queue.Sequence(op)
	q.s.broadcast("", seq)

	return nil
}

// Submit processes an operation from a client based on baseRevision. It is
// rebased onto the current revision and sequenced; the sender is acked and
// the other clients receive it before anything the apply triggers, such as
// an automatic resolution.
func (s *Session) Submit(clientID string, op ot.Operation, baseRevision int) (ot.SequencedOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ot.SequencedOperation{}, ErrSessionClosed
	}

	rebased, err := s.queue.Rebase(op, baseRevision)
	if err != nil {
		return ot.SequencedOperation{}, err
	}

	if _, err := ot.Apply(s.ctrl.Content(), rebased); err != nil {
		return ot.SequencedOperation{}, fmt.Errorf("rebased %s: %w", rebased.Describe(), err)
	}

	seq := s.queue.Sequence(rebased)

	s.ack(clientID, seq)
	s.broadcast(clientID, seq)

	if err := s.ctrl.ApplySequenced(op, seq.Operation); err != nil {
		return ot.SequencedOperation{}, err
	}

	s.settle()

	return seq, nil
}

// Resolve commits a resolution choice for an open conflict. The content
// change reaches every client as relay operations.
func (s *Session) Resolve(conflictID string, choice collab.Choice) (merge.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return merge.Resolution{}, ErrSessionClosed
	}

	res, err := s.ctrl.ResolveConflict(conflictID, choice)
	if err != nil {
		return merge.Resolution{}, err
	}

	s.settle()

	return res, nil
}

// settle acknowledges relay-authored operations; sequencing delivered them.
func (s *Session) settle() {
	for _, op := range s.ctrl.Pending() {
		s.ctrl.Acknowledge(op.ID)
	}
}

// Strategies returns the ranked candidates for an open conflict.
func (s *Session) Strategies(conflictID string) ([]merge.Strategy, error) {
	return s.ctrl.Strategies(conflictID)
}

// Conflicts returns every conflict recorded for the document, resolved or not.
func (s *Session) Conflicts() ([]conflict.Info, error) {
	return s.ctrl.Audit().Conflicts(s.docID)
}

// Resolutions returns every committed resolution for the document.
func (s *Session) Resolutions() ([]merge.Resolution, error) {
	return s.ctrl.Audit().Resolutions(s.docID)
}

// Snapshot is the relay's view of a document.
type Snapshot struct {
	DocID         string
	Content       string
	Revision      int
	State         collab.State
	OpenConflicts []conflict.Info
}

// State returns the current document state.
func (s *Session) State() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}

	return Snapshot{
		DocID:         s.docID,
		Content:       s.ctrl.Content(),
		Revision:      s.queue.Revision(),
		State:         s.ctrl.State(),
		OpenConflicts: s.ctrl.OpenConflicts(),
	}, nil
}

// Cleanup prunes expired operations from conflict detection.
func (s *Session) Cleanup(now time.Time) int {
	return s.ctrl.Cleanup(now)
}

// DocID returns the document ID for this session.
func (s *Session) DocID() string {
	return s.docID
}

// Revision returns the current revision number.
func (s *Session) Revision() int {
	return s.queue.Revision()
}

// Close stops the session and waits for pending notifications to drain.
func (s *Session) Close() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true
	s.ctrl.Close()
	s.mu.Unlock()

	<-s.done

	return nil
}

// broadcast sends the operation to every connected client except clientID.
func (s *Session) broadcast(clientID string, seq ot.SequencedOperation) {
	if s.hub == nil {
		return
	}

	s.hub.BroadcastOperation(s.docID, seq, clientID)
}

func (s *Session) ack(clientID string, seq ot.SequencedOperation) {
	if s.hub == nil || clientID == "" {
		return
	}

	err := s.hub.Send(clientID, ws.Message{
		Type: ws.MessageTypeAck,
		Payload: ws.AckPayload{
			OperationID: seq.ID,
			Revision:    seq.Revision,
		},
	})
	if err != nil {
		s.logger.Warn("ack operation", "client", clientID, "op", seq.ID, "error", err)
	}
}

// forward relays controller notifications until the controller is closed.
func (s *Session) forward() {
	defer close(s.done)

	changes := s.ctrl.ContentChanges()
	detected := s.ctrl.ConflictsDetected()
	resolved := s.ctrl.ConflictsResolved()
	errs := s.ctrl.Errors()

	for changes != nil || detected != nil || resolved != nil || errs != nil {
		select {
		case _, ok := <-changes:
			if !ok {
				changes = nil
			}
		case info, ok := <-detected:
			if !ok {
				detected = nil

				continue
			}

			s.announceConflict(info)
		case res, ok := <-resolved:
			if !ok {
				resolved = nil

				continue
			}

			if s.hub != nil {
				s.hub.BroadcastResolution(res)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil

				continue
			}

			s.logger.Warn("relay dropped operation", "error", err)
		}
	}
}

func (s *Session) announceConflict(info conflict.Info) {
	if s.hub == nil {
		return
	}

	strategies, err := s.ctrl.Strategies(info.ID)
	if err != nil {
		// Already resolved by the auto policy.
		strategies = merge.Evaluate(info, info.BaseContent)
	}

	s.hub.BroadcastConflict(info, strategies)
}
