package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/serroba/online-docs/internal/collab"
	"github.com/serroba/online-docs/internal/relay"
	"github.com/serroba/online-docs/internal/ws"
)

// DocumentResponse is the response body for getting a document.
type DocumentResponse struct {
	ID            string `json:"id"`
	Content       string `json:"content"`
	Revision      int    `json:"revision"`
	State         string `json:"state"`
	OpenConflicts int    `json:"openConflicts"`
}

// ConflictResponse is one entry of a document's conflict log. Strategies are
// only listed while the conflict is open.
type ConflictResponse struct {
	ws.ConflictPayload

	Resolved   bool       `json:"resolved"`
	Resolution string     `json:"resolution,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// ResolveRequest is the request body for resolving a conflict.
type ResolveRequest struct {
	StrategyIndex int    `json:"strategyIndex"`
	Content       string `json:"content,omitempty"`
	Custom        bool   `json:"custom,omitempty"`
	Consent       bool   `json:"consent,omitempty"`
}

// handleGetDocument handles GET /documents/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")

	snapshot, err := s.registry.GetOrCreateSession(docID).State()
	if err != nil {
		s.internalError(w, "get document state", err)

		return
	}

	s.writeJSON(w, http.StatusOK, DocumentResponse{
		ID:            docID,
		Content:       snapshot.Content,
		Revision:      snapshot.Revision,
		State:         string(snapshot.State),
		OpenConflicts: len(snapshot.OpenConflicts),
	})
}

// handleListConflicts handles GET /documents/{id}/conflicts.
func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")

	conflicts, err := s.registry.Audit().Conflicts(docID)
	if err != nil {
		s.internalError(w, "list conflicts", err)

		return
	}

	session := s.registry.GetSession(docID)
	out := make([]ConflictResponse, 0, len(conflicts))

	for _, info := range conflicts {
		entry := ConflictResponse{
			ConflictPayload: ws.NewConflictPayload(info, nil),
			Resolved:        info.Resolved,
			Resolution:      string(info.Resolution),
		}

		if info.Resolved {
			resolvedAt := info.ResolvedAt
			entry.ResolvedAt = &resolvedAt
		} else if session != nil {
			if strategies, err := session.Strategies(info.ID); err == nil {
				entry.ConflictPayload = ws.NewConflictPayload(info, strategies)
			}
		}

		out = append(out, entry)
	}

	s.writeJSON(w, http.StatusOK, out)
}

// handleResolveConflict handles POST /documents/{id}/conflicts/{conflictId}/resolve.
func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	session := s.registry.GetSession(r.PathValue("id"))
	if session == nil {
		http.Error(w, "document not found", http.StatusNotFound)

		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	choice := collab.Choice{
		StrategyIndex: req.StrategyIndex,
		Content:       req.Content,
		Custom:        req.Custom,
		ResolvedBy:    AuthorIDFromContext(r.Context()),
		Consent:       req.Consent,
	}

	res, err := session.Resolve(r.PathValue("conflictId"), choice)
	if err != nil {
		switch {
		case errors.Is(err, collab.ErrConflictNotFound):
			http.Error(w, "conflict not found", http.StatusNotFound)
		case errors.Is(err, collab.ErrAlreadyResolved):
			http.Error(w, "conflict already resolved", http.StatusConflict)
		case errors.Is(err, collab.ErrInvalidChoice):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, collab.ErrConsentRequired):
			http.Error(w, err.Error(), http.StatusPreconditionRequired)
		case errors.Is(err, relay.ErrSessionClosed):
			http.Error(w, "document closed", http.StatusServiceUnavailable)
		default:
			s.internalError(w, "resolve conflict", err)
		}

		return
	}

	s.writeJSON(w, http.StatusOK, ws.NewResolvedPayload(res))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "error", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	s.logger.Error(action, "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
