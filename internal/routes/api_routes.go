package routes

import (
	"github.com/go-chi/chi/v5"

	"lotusflow/studiosync/internal/api"
)

// RegisterAPIRoutes mounts the CRUD and sync endpoints under /api/v1
func RegisterAPIRoutes(r chi.Router, entityHandlers *api.EntityHandlers, syncHandlers *api.SyncHandlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Sync control plane. Registered before the generic entity routes so
		// "sync" is never treated as an entity type.
		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", syncHandlers.Status)
			r.Post("/run", syncHandlers.Run)
			r.Get("/conflicts", syncHandlers.ListConflicts)
			r.Post("/conflicts/{id}/resolve", syncHandlers.ResolveConflict)
		})

		// Generic entity CRUD over the type registry
		r.Route("/{entityType}", func(r chi.Router) {
			r.Post("/", entityHandlers.CreateEntity)
			r.Get("/", entityHandlers.ListEntities)
			r.Get("/{id}", entityHandlers.GetEntity)
			r.Put("/{id}", entityHandlers.UpdateEntity)
			r.Delete("/{id}", entityHandlers.DeleteEntity)
		})
	})
}
