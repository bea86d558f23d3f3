package handlers

import (
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/history"
	"server/internal/middleware"
	"server/pkg/zip"
)

type historyListResponse struct {
	Records []tryOnRecordResponse `json:"records"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
	HasMore bool                  `json:"has_more"`
}

type historyStatsResponse struct {
	Total           int      `json:"total"`
	Successful      int      `json:"successful"`
	Failed          int      `json:"failed"`
	InFlight        int      `json:"pending_or_processing"`
	SuccessRate     float64  `json:"success_rate"`
	AvgProcessingMS *float64 `json:"avg_processing_ms,omitempty"`
}

func (a *App) HistoryList(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)
	status := domain.Status(r.URL.Query().Get("status"))

	page, err := a.History.List(r.Context(), identity, limit, offset, status)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	records := make([]tryOnRecordResponse, len(page.Records))
	for i := range page.Records {
		records[i] = recordDTO(&page.Records[i])
	}
	a.json(w, http.StatusOK, historyListResponse{
		Records: records,
		Total:   page.Total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: page.HasMore,
	})
}

func (a *App) HistoryGet(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	recordID := chi.URLParam(r, "record_id")
	rec, err := a.History.Get(r.Context(), recordID, identity)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, recordDTO(rec))
}

func (a *App) HistoryDelete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	recordID := chi.URLParam(r, "record_id")
	if err := a.History.Delete(r.Context(), recordID, identity); err != nil {
		a.domainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) HistoryStats(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	stats, err := a.History.Stats(r.Context(), identity)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, historyStatsResponse{
		Total:           stats.Total,
		Successful:      stats.Successful,
		Failed:          stats.Failed,
		InFlight:        stats.InFlight,
		SuccessRate:     stats.SuccessRate,
		AvgProcessingMS: stats.AvgProcessingMS,
	})
}

// HistoryExport bundles the caller's successful result images into a zip
// archive. Results whose bytes are no longer on disk are skipped.
func (a *App) HistoryExport(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	page, err := a.History.List(r.Context(), identity, history.MaxLimit, 0, domain.StatusSuccess)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	var assets []zip.Asset
	for _, rec := range page.Records {
		key := a.storageKeyFor(rec.ResultImageURL)
		if key == "" {
			continue
		}
		data, err := a.Assets.Read(r.Context(), key)
		if err != nil {
			a.Logger.Warn().Err(err).Str("record_id", rec.ID).Msg("export: result bytes unavailable")
			continue
		}
		assets = append(assets, zip.Asset{Filename: rec.ID + path.Ext(key), Data: data})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no downloadable results")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="tryon-results.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(zip.ArchiveAssets(assets))
}

// storageKeyFor maps a public result URL back onto a file-store key.
func (a *App) storageKeyFor(resultURL string) string {
	base := strings.TrimRight(a.Config.StorageBaseURL, "/")
	if base == "" || !strings.HasPrefix(resultURL, base+"/") {
		return ""
	}
	return strings.TrimPrefix(resultURL, base+"/")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
