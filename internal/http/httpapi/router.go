package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

// NewRouter assembles the public HTTP surface. The identity middleware runs on
// every route; history routes additionally require an authenticated user.
func NewRouter(app *handlers.App, lookup middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(app.Logger),
		middleware.CORS(app.Config.AllowedOrigins),
		middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute),
		middleware.I18N("en", lookup),
		middleware.Identity(app.Config.JWTSecret),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tryon", func(r chi.Router) {
			r.Post("/", app.TryOnSubmit)
			r.Get("/ratelimit", app.TryOnRateLimit)
			r.Get("/{record_id}", app.TryOnStatus)
		})
		r.Route("/history", func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Get("/", app.HistoryList)
			r.Get("/stats", app.HistoryStats)
			r.Get("/export", app.HistoryExport)
			r.Get("/{record_id}", app.HistoryGet)
			r.Delete("/{record_id}", app.HistoryDelete)
		})
	})

	// Generated result images are served straight off the file store.
	if app.Config.StoragePath != "" {
		fileServer := http.StripPrefix("/assets/", http.FileServer(http.Dir(app.Config.StoragePath)))
		r.Get("/assets/*", fileServer.ServeHTTP)
	}

	return r
}
