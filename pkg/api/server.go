// Package api serves the feature registry over HTTP.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rmax-ai/gfs/pkg/feature"
	"github.com/rmax-ai/gfs/pkg/logging"
	"github.com/rmax-ai/gfs/pkg/registry"
	"github.com/rmax-ai/gfs/pkg/store"
	"github.com/rmax-ai/gfs/pkg/transform"
)

// DefaultAddr is used when NewServer is given an empty address.
const DefaultAddr = ":8090"

const maxBodyBytes = 1 << 20

// Registry is the subset of *registry.Registry the server needs.
type Registry interface {
	Get(ctx context.Context, id feature.ResourceID) (feature.Resource, error)
	Register(ctx context.Context, res feature.Resource) error
	ListEntities(ctx context.Context) ([]feature.Entity, error)
	GetFieldsOf(ctx context.Context, entityName string) ([]feature.Field, error)
	GetTransformation(ctx context.Context, id feature.ResourceID) (feature.Transformation, error)
	ListIDs(ctx context.Context, kind feature.Kind) ([]feature.ResourceID, error)
}

// Server encapsulates the HTTP API server.
type Server struct {
	registry Registry
	server   *http.Server
	log      *zap.Logger
	version  string
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = logging.OrNop(l) }
}

// WithVersion sets the version reported by /v1/health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server for reg listening on addr.
func NewServer(reg Registry, addr string, opts ...Option) *Server {
	s := &Server{registry: reg, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/resources", s.handleResources)
	mux.HandleFunc("/v1/entities", s.handleEntities)
	mux.HandleFunc("/v1/entities/{name}/fields", s.handleEntityFields)
	mux.HandleFunc("/v1/transformations/lineage", s.handleLineage)

	if addr == "" {
		addr = DefaultAddr
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withLogging(s.withRecovery(mux)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start runs the HTTP server (blocking).
func (s *Server) Start() error {
	s.log.Info("server_starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	s.writeJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

// handleResources fetches one resource by id or lists the ids of a kind
// (GET), or registers one resource (POST).
func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !r.URL.Query().Has("id") && r.URL.Query().Has("kind") {
			s.listResources(w, r)
			return
		}
		s.getResource(w, r)
	case http.MethodPost:
		s.registerResource(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	}
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	id := feature.ResourceID(r.URL.Query().Get("id"))
	if _, err := feature.ParseID(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	res, err := s.registry.Get(r.Context(), id)
	if err != nil {
		s.writeRegistryError(w, r, "get_resource_failed", err)
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		s.writeRegistryError(w, r, "encode_resource_failed", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, ResourceResponse{ID: id, Kind: res.Kind(), Resource: raw})
}

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	kind := feature.Kind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_kind", fmt.Sprintf("unknown resource kind %q", kind))
		return
	}
	ids, err := s.registry.ListIDs(r.Context(), kind)
	if err != nil {
		s.writeRegistryError(w, r, "list_resources_failed", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, ResourceListResponse{Kind: kind, IDs: ids})
}

func (s *Server) registerResource(w http.ResponseWriter, r *http.Request) {
	kind := feature.Kind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_kind", fmt.Sprintf("unknown resource kind %q", kind))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "")
		return
	}

	res, err := registry.DecodeResource(kind, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_resource", err.Error())
		return
	}
	if err := s.registry.Register(r.Context(), res); err != nil {
		s.writeRegistryError(w, r, "register_failed", err)
		return
	}
	logging.FromContext(r.Context()).Info("resource_registered", zap.String("resource_id", string(res.ResourceID())))
	s.writeJSON(w, r, http.StatusCreated, RegisterResponse{ID: res.ResourceID(), Status: "registered"})
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	entities, err := s.registry.ListEntities(r.Context())
	if err != nil {
		s.writeRegistryError(w, r, "list_entities_failed", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, entities)
}

func (s *Server) handleEntityFields(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	fields, err := s.registry.GetFieldsOf(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeRegistryError(w, r, "get_fields_failed", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, fields)
}

// handleLineage restores a registered transformation's plan and returns it
// in topological order.
func (s *Server) handleLineage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	id := feature.ResourceID(r.URL.Query().Get("id"))
	if p, err := feature.ParseID(id); err != nil || p.Kind != feature.KindTransformation {
		writeError(w, http.StatusBadRequest, "invalid_id", "expected a Transformation id")
		return
	}

	tr, err := s.registry.GetTransformation(r.Context(), id)
	if err != nil {
		s.writeRegistryError(w, r, "get_transformation_failed", err)
		return
	}
	nodes, err := transform.LineageOf(tr.Body)
	if err != nil {
		s.writeRegistryError(w, r, "lineage_failed", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, LineageResponse{TransformationID: id, Nodes: nodes})
}

// writeRegistryError maps registry and plan errors onto status codes.
// Backend failures are logged; their details are not returned.
func (s *Server) writeRegistryError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	// Invalid references wrap the lookup's ErrNotFound, so they go first.
	switch {
	case errors.Is(err, registry.ErrInvalidReference):
		writeError(w, http.StatusUnprocessableEntity, "invalid_reference", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, transform.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "invalid_plan", err.Error())
	case errors.Is(err, registry.ErrDecode):
		logging.FromContext(r.Context()).Error(msg, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "corrupt_resource", "")
	default:
		logging.FromContext(r.Context()).Error(msg, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_server_error", "")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("failed_to_encode_response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Reason: reason})
}

// Middleware: Panic Recovery
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logging.FromContext(r.Context()).Error("panic_recovered", zap.Any("error", err), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal_server_error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}
		reqLog := s.log.With(zap.String("trace_id", traceID))
		r = r.WithContext(logging.WithLogger(r.Context(), reqLog))

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		reqLog.Info("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
