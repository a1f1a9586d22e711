package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lotusflow/studiosync/internal/common"
	"lotusflow/studiosync/internal/constants"
	"lotusflow/studiosync/internal/models/dtos"
	"lotusflow/studiosync/internal/models/entities"
	"lotusflow/studiosync/internal/store"
)

// EntityHandlers serves generic CRUD over the type registry. The UI layer
// only ever sees entities through these endpoints; every write goes through
// the store so the change tracker observes it.
type EntityHandlers struct {
	store *store.EntityStore
}

// NewEntityHandlers creates the CRUD handler set
func NewEntityHandlers(st *store.EntityStore) *EntityHandlers {
	return &EntityHandlers{store: st}
}

// CreateEntity handles POST /api/v1/{entityType}
func (h *EntityHandlers) CreateEntity(w http.ResponseWriter, r *http.Request) {
	proto, ok := h.prototype(w, r)
	if !ok {
		return
	}

	if err := json.NewDecoder(r.Body).Decode(proto); err != nil {
		respondWithError(w, http.StatusBadRequest, constants.StatusInvalidBody)
		return
	}

	if err := h.store.Create(r.Context(), proto); err != nil {
		respondWithError(w, http.StatusInternalServerError, constants.MsgStoreUnavailable)
		return
	}

	respondWithSuccess(w, http.StatusCreated, &proto)
}

// GetEntity handles GET /api/v1/{entityType}/{id}
func (h *EntityHandlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	id := chi.URLParam(r, "id")

	e, err := h.store.Get(r.Context(), entityType, id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondWithSuccess(w, http.StatusOK, &e)
}

// ListEntities handles GET /api/v1/{entityType}
func (h *EntityHandlers) ListEntities(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")

	items, err := h.store.List(r.Context(), entityType)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	resp := dtos.EntityListResponse{
		EntityType: entityType,
		Count:      len(items),
		Items:      items,
	}
	respondWithSuccess(w, http.StatusOK, &resp)
}

// UpdateEntity handles PUT /api/v1/{entityType}/{id}. The body must carry
// the sync_version the client read; a stale version is rejected with 409.
func (h *EntityHandlers) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	proto, ok := h.prototype(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	if err := json.NewDecoder(r.Body).Decode(proto); err != nil {
		respondWithError(w, http.StatusBadRequest, constants.StatusInvalidBody)
		return
	}
	proto.Meta().ID = id

	if err := h.store.Update(r.Context(), proto); err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondWithSuccess(w, http.StatusOK, &proto)
}

// DeleteEntity handles DELETE /api/v1/{entityType}/{id}
func (h *EntityHandlers) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	proto, ok := h.prototype(w, r)
	if !ok {
		return
	}
	proto.Meta().ID = chi.URLParam(r, "id")

	if err := h.store.Delete(r.Context(), proto); err != nil {
		h.respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EntityHandlers) prototype(w http.ResponseWriter, r *http.Request) (entities.Entity, bool) {
	entityType := chi.URLParam(r, "entityType")
	proto, err := entities.Prototype(entityType)
	if err != nil {
		respondWithError(w, http.StatusNotFound, constants.StatusUnknownType)
		return nil, false
	}
	return proto, true
}

func (h *EntityHandlers) respondStoreError(w http.ResponseWriter, err error) {
	var cme *common.ConcurrentModificationError
	switch {
	case errors.Is(err, common.ErrNotFound):
		respondWithError(w, http.StatusNotFound, constants.StatusNotFound)
	case errors.As(err, &cme):
		respondWithError(w, http.StatusConflict, constants.StatusStaleVersion)
	default:
		respondWithError(w, http.StatusInternalServerError, constants.MsgStoreUnavailable)
	}
}
