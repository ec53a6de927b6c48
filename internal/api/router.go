package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/querysmith/querysmith/internal/api/webstatic"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Session routes
		r.Post("/sessions", apiHandler.CreateSessionHandler)
		r.Get("/sessions/{sessionID}", apiHandler.GetSessionHandler)
		r.Put("/sessions/{sessionID}/schema", apiHandler.SetSchemaHandler)
		r.Post("/sessions/{sessionID}/analyze", apiHandler.AnalyzeSchemaHandler)
		r.Post("/sessions/{sessionID}/queries", apiHandler.GenerateSQLHandler)
		r.Get("/sessions/{sessionID}/history", apiHandler.HistoryHandler)
	})

	// Everything else is the embedded web form.
	r.Handle("/*", webstatic.Handler())

	return r
}
