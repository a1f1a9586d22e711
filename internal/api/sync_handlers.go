package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lotusflow/studiosync/internal/common"
	"lotusflow/studiosync/internal/constants"
	"lotusflow/studiosync/internal/db/repositories"
	"lotusflow/studiosync/internal/logging"
	"lotusflow/studiosync/internal/models/dtos"
	"lotusflow/studiosync/internal/services"
)

// SyncHandlers exposes the engine's status, the manual trigger, and the
// conflict queue
type SyncHandlers struct {
	engine    *services.SyncEngine
	conflicts *repositories.ConflictRepo
}

// NewSyncHandlers creates the sync handler set
func NewSyncHandlers(engine *services.SyncEngine, conflicts *repositories.ConflictRepo) *SyncHandlers {
	return &SyncHandlers{engine: engine, conflicts: conflicts}
}

// Status handles GET /api/v1/sync/status
func (h *SyncHandlers) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.Status(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, constants.MsgStoreUnavailable)
		return
	}
	respondWithSuccess(w, http.StatusOK, status)
}

// Run handles POST /api/v1/sync/run: a manual, forced cycle in the
// background. The response only confirms the trigger.
func (h *SyncHandlers) Run(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := h.engine.RunOnce(context.Background(), true); err != nil {
			logging.Warn("Manual sync cycle failed", "error", err.Error())
		}
	}()

	msg := constants.StatusSyncTriggered
	respondWithSuccess(w, http.StatusAccepted, &msg)
}

// ListConflicts handles GET /api/v1/sync/conflicts
func (h *SyncHandlers) ListConflicts(w http.ResponseWriter, r *http.Request) {
	recs, err := h.conflicts.ListOpen(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, constants.MsgStoreUnavailable)
		return
	}

	out := make([]dtos.ConflictResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, dtos.ConflictResponse{
			ID:            rec.ID,
			EntityType:    rec.EntityType,
			EntityID:      rec.EntityID,
			LocalVersion:  rec.LocalVersion,
			RemoteVersion: rec.RemoteVersion,
			CreatedAt:     rec.CreatedAt,
		})
	}
	respondWithSuccess(w, http.StatusOK, &out)
}

// ResolveConflict handles POST /api/v1/sync/conflicts/{id}/resolve
func (h *SyncHandlers) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dtos.ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, constants.StatusInvalidBody)
		return
	}

	err := h.engine.ResolveManual(r.Context(), id, req.Choice)
	if err != nil {
		var ve *common.ValidationError
		switch {
		case errors.Is(err, common.ErrNotFound):
			respondWithError(w, http.StatusNotFound, constants.MsgConflictGone)
		case errors.As(err, &ve):
			respondWithError(w, http.StatusBadRequest, ve.Message)
		default:
			respondWithError(w, http.StatusInternalServerError, constants.MsgStoreUnavailable)
		}
		return
	}

	msg := constants.StatusConflictResolved
	respondWithSuccess(w, http.StatusOK, &msg)
}
