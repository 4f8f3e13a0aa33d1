package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tourism-cache/internal/client"
	"tourism-cache/internal/errclass"
	"tourism-cache/internal/manage"
)

// Server exposes the cache layer over HTTP: query and detail reads for
// callers, plus the operator endpoints for invalidation and diagnostics.
type Server struct {
	client  *client.Client
	manager *manage.Manager
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a new cache HTTP server.
func NewServer(c *client.Client, m *manage.Manager, logger *zap.Logger) *Server {
	return &Server{
		client:  c,
		manager: m,
		logger:  logger,
	}
}

// Start starts the HTTP server on a TCP address.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.createRouter(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting cache HTTP server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// StartUnixSocket starts the HTTP server on a Unix socket.
func (s *Server) StartUnixSocket(socketPath string) error {
	if err := os.RemoveAll(socketPath); err != nil {
		s.logger.Warn("Failed to remove existing socket file", zap.String("path", socketPath), zap.Error(err))
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}

	if err := os.Chmod(socketPath, 0660); err != nil {
		s.logger.Warn("Failed to set socket permissions", zap.String("path", socketPath), zap.Error(err))
	}

	s.server = &http.Server{
		Handler:      s.createRouter(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting cache HTTP server on Unix socket", zap.String("socket_path", socketPath))
	return s.server.Serve(listener)
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping cache HTTP server")
	return s.server.Shutdown(ctx)
}

// createRouter creates and configures the HTTP router.
func (s *Server) createRouter() *mux.Router {
	router := mux.NewRouter()

	// Read endpoints
	router.HandleFunc("/query", s.handleQuery).Methods("POST")
	router.HandleFunc("/detail/{domain}/{id}", s.handleDetail).Methods("GET")

	// Mutation endpoints
	router.HandleFunc("/entities/{domain}", s.handleCreate).Methods("POST")
	router.HandleFunc("/entities/{domain}/{id}", s.handleUpdate).Methods("PATCH")
	router.HandleFunc("/entities/{domain}/{id}", s.handleDelete).Methods("DELETE")

	// Operator endpoints
	router.HandleFunc("/cache/stats", s.handleStats).Methods("GET")
	router.HandleFunc("/cache/stale", s.handleStale).Methods("GET")
	router.HandleFunc("/cache/duplicates", s.handleDuplicates).Methods("GET")
	router.HandleFunc("/cache/memory", s.handleMemory).Methods("GET")
	router.HandleFunc("/cache/prefetch", s.handlePrefetch).Methods("POST")
	router.HandleFunc("/cache/invalidate/{domain}", s.handleInvalidate).Methods("POST")
	router.HandleFunc("/cache/clear", s.handleClear).Methods("POST")

	// Health check
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// parseRequest parses a JSON request body.
func (s *Server) parseRequest(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	defer r.Body.Close()

	return json.Unmarshal(body, v)
}

// writeResponse writes a JSON response.
func (s *Server) writeResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeErrorResponse writes an error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeClassifiedError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeClassifiedError(w http.ResponseWriter, err error) {
	var status int
	switch errclass.KindOf(err) {
	case errclass.Validation:
		status = http.StatusBadRequest
	case errclass.NotFoundOrDenied:
		status = http.StatusNotFound
	case errclass.PermissionDenied:
		status = http.StatusForbidden
	case errclass.Conflict, errclass.ReferentialViolation:
		status = http.StatusConflict
	case errclass.TransientNetwork:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	s.writeErrorResponse(w, err.Error(), status)
}
