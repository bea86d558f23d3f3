package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"server/internal/domain"
	"server/internal/history"
	"server/internal/infra"
	"server/internal/quota"
	"server/internal/storage"
)

type App struct {
	Records domain.TryOnRepository
	Quota   *quota.Tracker
	History *history.Service
	Assets  *storage.FileStore
	Config  *infra.Config
	Logger  infra.Logger
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, errorResponse{Error: slug, Message: message})
}

// domainError translates domain sentinels to HTTP responses. Anything not in
// the taxonomy is a server error; the internal detail stays in the log.
func (a *App) domainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "record not found")
	case errors.Is(err, domain.ErrForbidden):
		a.error(w, http.StatusForbidden, "forbidden", "not allowed for this identity")
	case errors.Is(err, domain.ErrQuotaExceeded):
		a.error(w, http.StatusTooManyRequests, "quota_exceeded", "daily try-on limit reached")
	case errors.Is(err, domain.ErrDependencyUnavailable):
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("dependency unavailable")
		a.error(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable, retry later")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
