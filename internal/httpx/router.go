package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/careops/staff-provisioning/internal/httpx/middlewares"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middlewares.RequireTenant)

		r.Post("/events/staff-created", handler.StaffCreated)

		r.Get("/setups", handler.ListSetups)
		r.Get("/setups/statistics", handler.GetStatistics)
		r.Get("/setups/pending", handler.ListPendingSetups)
		r.Get("/setups/failed", handler.ListFailedSetups)
		r.Get("/setups/{id}", handler.GetSetup)
	})

	return r
}
