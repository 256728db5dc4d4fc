package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/serroba/online-docs/internal/collab"
	"github.com/serroba/online-docs/internal/ot"
	"github.com/serroba/online-docs/internal/relay"
	"github.com/serroba/online-docs/internal/ws"
)

// handleWebSocket handles GET /ws?docId={id}.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "docId query parameter is required", http.StatusBadRequest)

		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "error", err)

		return
	}

	s.serveClient(ws.NewClient(uuid.NewString(), AuthorIDFromContext(r.Context()), conn), docID)
}

// serveClient subscribes client to the document, sends the current state and
// processes its messages until the connection fails.
func (s *Server) serveClient(client *ws.Client, docID string) {
	logger := s.logger.With("client", client.ID, "author", client.UserID, "document", docID)

	s.hub.Register(client)
	s.hub.Subscribe(client, docID)
	logger.Info("client joined", "clients", s.hub.ClientCount(docID))

	defer func() {
		s.hub.Unregister(client)
		_ = client.Close()
		logger.Info("client left", "clients", s.hub.ClientCount(docID))
	}()

	if !s.sendState(client, s.registry.GetOrCreateSession(docID)) {
		return
	}

	for {
		msg, err := client.Receive()
		if err != nil {
			if malformed(err) {
				_ = client.SendError(ws.ErrorCodeInvalidMessage, err.Error())

				continue
			}

			logger.Debug("client disconnected", "error", err)

			return
		}

		// Looked up per message so an active document stays recently used.
		session := s.registry.GetOrCreateSession(docID)

		switch msg.Type {
		case ws.MessageTypeOperation:
			s.handleOperation(client, session, msg)
		case ws.MessageTypeResolve:
			s.handleResolve(client, session, msg)
		case ws.MessageTypeSync:
			s.sendState(client, session)
		case ws.MessageTypeAck, ws.MessageTypeBroadcast, ws.MessageTypeState,
			ws.MessageTypeConflict, ws.MessageTypeResolved, ws.MessageTypeError:
			_ = client.SendError(ws.ErrorCodeInvalidMessage, "unexpected message type")
		}
	}
}

func malformed(err error) bool {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)

	return errors.Is(err, ws.ErrUnknownMessage) || errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// handleOperation submits an edit. The relay acks the sender itself.
func (s *Server) handleOperation(client *ws.Client, session *relay.Session, msg ws.Message) {
	payload, ok := msg.Payload.(ws.OperationPayload)
	if !ok {
		_ = client.SendError(ws.ErrorCodeInvalidMessage, "invalid operation payload")

		return
	}

	op, err := payload.Operation()
	if err != nil {
		_ = client.SendError(ws.ErrorCodeInvalidMessage, err.Error())

		return
	}

	op.AuthorID = client.UserID

	if op.ID == "" {
		op.ID = uuid.NewString()
	}

	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}

	if _, err := session.Submit(client.ID, op, payload.BaseRevision); err != nil {
		switch {
		case errors.Is(err, ot.ErrRevisionTooOld):
			_ = client.SendError(ws.ErrorCodeRevisionTooOld, err.Error())
		case errors.Is(err, ot.ErrFutureRevision), errors.Is(err, ot.ErrOutOfRange):
			_ = client.SendError(ws.ErrorCodeInvalidMessage, err.Error())
		case errors.Is(err, relay.ErrSessionClosed):
			s.resync(client, session.DocID())
		default:
			s.logger.Error("submit operation", "client", client.ID, "error", err)
			_ = client.SendError(ws.ErrorCodeInternalError, "failed to apply operation")
		}
	}
}

// handleResolve commits a client's resolution choice. Every subscriber is
// notified through the relay.
func (s *Server) handleResolve(client *ws.Client, session *relay.Session, msg ws.Message) {
	payload, ok := msg.Payload.(ws.ResolvePayload)
	if !ok {
		_ = client.SendError(ws.ErrorCodeInvalidMessage, "invalid resolve payload")

		return
	}

	choice := collab.Choice{
		StrategyIndex: payload.StrategyIndex,
		Content:       payload.Content,
		Custom:        payload.Custom,
		ResolvedBy:    client.UserID,
		Consent:       payload.Consent,
	}

	if _, err := session.Resolve(payload.ConflictID, choice); err != nil {
		switch {
		case errors.Is(err, collab.ErrConflictNotFound), errors.Is(err, collab.ErrAlreadyResolved):
			_ = client.SendError(ws.ErrorCodeConflictNotFound, err.Error())
		case errors.Is(err, collab.ErrConsentRequired):
			_ = client.SendError(ws.ErrorCodeConsentRequired, err.Error())
		case errors.Is(err, collab.ErrInvalidChoice):
			_ = client.SendError(ws.ErrorCodeInvalidMessage, err.Error())
		case errors.Is(err, relay.ErrSessionClosed):
			s.resync(client, session.DocID())
		default:
			s.logger.Error("resolve conflict", "client", client.ID, "error", err)
			_ = client.SendError(ws.ErrorCodeInternalError, "failed to resolve conflict")
		}
	}
}

// resync sends the state of a freshly acquired session after the one a client
// was using closed. The rejected edit is not replayed.
func (s *Server) resync(client *ws.Client, docID string) {
	s.logger.Warn("session closed under client, resyncing", "client", client.ID, "document", docID)

	_ = client.SendError(ws.ErrorCodeSessionClosed, "document session closed, resyncing")
	s.sendState(client, s.registry.GetOrCreateSession(docID))
}

// sendState sends the document state to the client and reports whether the
// client is still reachable.
func (s *Server) sendState(client *ws.Client, session *relay.Session) bool {
	snapshot, err := session.State()
	if err != nil {
		_ = client.SendError(ws.ErrorCodeInternalError, "failed to get document state")

		return false
	}

	err = client.Send(ws.Message{
		Type: ws.MessageTypeState,
		Payload: ws.StatePayload{
			DocID:         snapshot.DocID,
			Content:       snapshot.Content,
			Revision:      snapshot.Revision,
			State:         string(snapshot.State),
			OpenConflicts: len(snapshot.OpenConflicts),
		},
	})

	return err == nil
}
