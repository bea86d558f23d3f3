package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/middleware"
	"server/internal/quota"
)

type tryOnSubmitRequest struct {
	BodyImageURL     string            `json:"body_image_url"`
	GarmentImageURLs []string          `json:"garment_image_urls"`
	Metadata         map[string]string `json:"metadata"`
}

type tryOnSubmitResponse struct {
	RecordID             string `json:"record_id"`
	Status               string `json:"status"`
	QuotaRemaining       int    `json:"quota_remaining"`
	EstimatedWaitSeconds int    `json:"estimated_wait_seconds"`
}

type tryOnRecordResponse struct {
	RecordID         string            `json:"record_id"`
	Status           string            `json:"status"`
	BodyImageURL     string            `json:"body_image_url"`
	GarmentImageURLs []string          `json:"garment_image_urls"`
	ResultImageURL   string            `json:"result_image_url,omitempty"`
	FailureReason    string            `json:"failure_reason,omitempty"`
	AuditScore       *float64          `json:"audit_score,omitempty"`
	Audit            *auditReportDTO   `json:"audit,omitempty"`
	AttemptCount     int               `json:"attempt_count"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	ProcessingMS     *int64            `json:"processing_ms,omitempty"`
}

type auditReportDTO struct {
	ClothingChanged      bool     `json:"clothing_changed"`
	MatchesInputGarments bool     `json:"matches_input_garments"`
	VisualQualityScore   float64  `json:"visual_quality_score"`
	Issues               []string `json:"issues,omitempty"`
	Summary              string   `json:"summary,omitempty"`
}

type rateLimitResponse struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Message   string    `json:"message"`
}

// TryOnSubmit validates the request, checks quota, and queues a pending
// record for the worker. The response is a 202; callers poll TryOnStatus.
func (a *App) TryOnSubmit(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	var req tryOnSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := validateSubmit(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	decision, err := a.Quota.Admit(r.Context(), identity)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	writeQuotaHeaders(w, decision)
	if !decision.Allowed {
		a.error(w, http.StatusTooManyRequests, "quota_exceeded", quotaMessage(r, decision))
		return
	}

	rec := &domain.TryOnRecord{
		ID:               uuid.NewString(),
		UserID:           identity.UserID,
		IPAddress:        identity.IPAddress,
		ClientSignature:  identity.ClientSignature,
		BodyImageURL:     req.BodyImageURL,
		GarmentImageURLs: req.GarmentImageURLs,
		Status:           domain.StatusPending,
		Metadata:         submitMetadata(r, req.Metadata),
	}
	if err := a.Records.Create(r.Context(), rec); err != nil {
		a.domainError(w, r, err)
		return
	}

	a.Logger.Info().
		Str("record_id", rec.ID).
		Str("identity_class", string(identity.Class)).
		Int("garments", len(rec.GarmentImageURLs)).
		Msg("try-on queued")

	a.json(w, http.StatusAccepted, tryOnSubmitResponse{
		RecordID:             rec.ID,
		Status:               string(rec.Status),
		QuotaRemaining:       decision.Remaining - 1,
		EstimatedWaitSeconds: int(a.Config.AttemptTimeout.Seconds()),
	})
}

// TryOnStatus returns the record as seen by its owner. Guests may poll
// guest-created records.
func (a *App) TryOnStatus(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	recordID := chi.URLParam(r, "record_id")
	if recordID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "record_id required")
		return
	}
	rec, err := a.Records.Get(r.Context(), recordID, identity)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, recordDTO(rec))
}

// TryOnRateLimit reports the caller's current quota window without consuming
// anything from it.
func (a *App) TryOnRateLimit(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	decision, err := a.Quota.Admit(r.Context(), identity)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	writeQuotaHeaders(w, decision)
	a.json(w, http.StatusOK, rateLimitResponse{
		Allowed:   decision.Allowed,
		Limit:     decision.Limit,
		Used:      decision.Used,
		Remaining: decision.Remaining,
		ResetAt:   decision.ResetAt,
		Message:   quotaMessage(r, decision),
	})
}

func validateSubmit(req tryOnSubmitRequest) error {
	if !validImageURL(req.BodyImageURL) {
		return fmt.Errorf("body_image_url must be a valid http(s) URL")
	}
	if len(req.GarmentImageURLs) < domain.MinGarmentImages || len(req.GarmentImageURLs) > domain.MaxGarmentImages {
		return fmt.Errorf("garment_image_urls must contain between %d and %d entries", domain.MinGarmentImages, domain.MaxGarmentImages)
	}
	for i, u := range req.GarmentImageURLs {
		if !validImageURL(u) {
			return fmt.Errorf("garment_image_urls[%d] must be a valid http(s) URL", i)
		}
	}
	return nil
}

func validImageURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// submitMetadata merges caller metadata with request-derived context such as
// the resolved country and locale.
func submitMetadata(r *http.Request, meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta)+2)
	for k, v := range meta {
		out[k] = v
	}
	if locale := middleware.LocaleFromContext(r.Context()); locale != "" {
		out["locale"] = locale
	}
	if country := middleware.CountryFromContext(r.Context()); country != "" {
		out["country"] = country
	}
	return out
}

func writeQuotaHeaders(w http.ResponseWriter, d quota.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func quotaMessage(r *http.Request, d quota.Decision) string {
	locale := middleware.LocaleFromContext(r.Context())
	if d.Allowed {
		if locale == "id" {
			return fmt.Sprintf("Sisa %d percobaan dalam 24 jam.", d.Remaining)
		}
		return fmt.Sprintf("%d try-ons remaining in the current 24h window.", d.Remaining)
	}
	if locale == "id" {
		return fmt.Sprintf("Batas harian tercapai. Coba lagi setelah %s.", d.ResetAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("Daily limit reached. Try again after %s.", d.ResetAt.Format(time.RFC3339))
}

func recordDTO(rec *domain.TryOnRecord) tryOnRecordResponse {
	resp := tryOnRecordResponse{
		RecordID:         rec.ID,
		Status:           string(rec.Status),
		BodyImageURL:     rec.BodyImageURL,
		GarmentImageURLs: rec.GarmentImageURLs,
		ResultImageURL:   rec.ResultImageURL,
		FailureReason:    rec.FailureReason,
		AuditScore:       rec.AuditScore,
		AttemptCount:     rec.AttemptCount,
		Metadata:         rec.Metadata,
		CreatedAt:        rec.CreatedAt,
		CompletedAt:      rec.CompletedAt,
		ProcessingMS:     rec.ProcessingMS,
	}
	if rec.Audit != nil {
		resp.Audit = &auditReportDTO{
			ClothingChanged:      rec.Audit.ClothingChanged,
			MatchesInputGarments: rec.Audit.MatchesInputGarments,
			VisualQualityScore:   rec.Audit.VisualQualityScore,
			Issues:               rec.Audit.Issues,
			Summary:              rec.Audit.Summary,
		}
	}
	return resp
}
