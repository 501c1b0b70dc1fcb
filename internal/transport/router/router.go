package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/dinver-app/dinver-media/internal/transport/handler"
)

func NewRouter(h *handler.Handler) chi.Router {
	r := chi.NewRouter()

	r.Route("/api/media", func(r chi.Router) {
		r.Post("/", h.UploadMedia)
		r.Get("/jobs/{jobID}", h.JobStatus)
		r.Get("/stats", h.QueueStats)
		r.Get("/url", h.ResolveURL)
		r.Get("/keys", h.ListKeys)
	})

	return r
}
