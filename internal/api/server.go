// Package api exposes the relay over HTTP: a websocket endpoint for editors
// and JSON endpoints for document state and conflict resolution.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/serroba/online-docs/internal/relay"
	"github.com/serroba/online-docs/internal/ws"
)

// Server handles HTTP requests for the collaboration API.
type Server struct {
	registry *relay.Registry
	hub      *ws.Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// ServerConfig holds configuration for creating a server.
type ServerConfig struct {
	Registry *relay.Registry
	Hub      *ws.Hub
	Logger   *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		registry: cfg.Registry,
		hub:      cfg.Hub,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	documents := func(h http.HandlerFunc) http.Handler {
		return s.logRequests(s.identify(h))
	}

	mux.Handle("GET /documents/{id}", documents(s.handleGetDocument))
	mux.Handle("GET /documents/{id}/conflicts", documents(s.handleListConflicts))
	mux.Handle("POST /documents/{id}/conflicts/{conflictId}/resolve", documents(s.handleResolveConflict))

	// The upgrade needs the raw writer, so the socket is not wrapped by logRequests.
	mux.Handle("GET /ws", s.identify(http.HandlerFunc(s.handleWebSocket)))

	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}
