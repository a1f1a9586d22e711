package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lotusflow/studiosync/internal/logging"
	"lotusflow/studiosync/internal/middleware"
	"lotusflow/studiosync/internal/models/dtos"
	"lotusflow/studiosync/internal/models/entities"
)

func withDeviceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deviceIDKey, id)
}

func deviceIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(deviceIDKey).(string); ok {
		return id
	}
	return ""
}

// Server is the reference sync backend: the push/pull endpoints the device
// core's HTTP provider talks to.
type Server struct {
	store *Store
	cache *PullCache
}

// NewServer creates the backend handler set
func NewServer(store *Store, cache *PullCache) *Server {
	return &Server{store: store, cache: cache}
}

// Router builds the backend's chi router
func (s *Server) Router(jwtSecret string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RateLimitMiddleware)

	r.Get("/healthCheck", s.handleHealth)

	r.Route("/v1/sync/{entityType}", func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))
		r.Post("/push", s.handlePush)
		r.Get("/pull", s.handlePull)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		http.Error(w, "store unreachable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	if _, err := entities.Prototype(entityType); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "UNKNOWN_ENTITY_TYPE", "unknown entity type: "+entityType)
		return
	}

	var req dtos.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_BODY", "push body is not valid JSON")
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = deviceIDFrom(r.Context())
	}

	resp, conflict, err := s.store.Apply(r.Context(), entityType, req)
	switch {
	case errors.Is(err, errBadPayload):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_PAYLOAD", err.Error())
		return
	case err != nil:
		logging.Error("Push failed", "entityType", entityType, "entityID", req.ID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to apply push")
		return
	}

	if conflict != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(dtos.ConflictSignal{Remote: *conflict})
		return
	}

	s.cache.Invalidate(r.Context(), entityType)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	if _, err := entities.Prototype(entityType); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "UNKNOWN_ENTITY_TYPE", "unknown entity type: "+entityType)
		return
	}

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "INVALID_CURSOR", "since must be RFC3339")
			return
		}
		since = &t
	}

	if since == nil {
		if body := s.cache.Get(r.Context(), entityType); body != nil {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(body)
			return
		}
	}

	records, err := s.store.PullSince(r.Context(), entityType, since)
	if err != nil {
		logging.Error("Pull failed", "entityType", entityType, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to read records")
		return
	}

	body, err := json.Marshal(dtos.PullResponse{Records: records})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to encode records")
		return
	}

	if since == nil {
		s.cache.Set(r.Context(), entityType, body)
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dtos.ErrorResponse{Code: code, Message: message})
}
