package domain

import "time"

// Status enumerates try-on record lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Garment image bounds enforced at submission time.
const (
	MinGarmentImages = 1
	MaxGarmentImages = 5
)

// IdentityClass distinguishes authenticated users from guest callers.
type IdentityClass string

const (
	IdentityUser  IdentityClass = "user"
	IdentityGuest IdentityClass = "guest"
)

// Identity scopes a record and its quota window to the caller. Exactly one
// variant is populated: an authenticated user reference, or a guest keyed by
// network address plus client signature.
type Identity struct {
	Class           IdentityClass
	UserID          string
	IPAddress       string
	ClientSignature string
}

// UserIdentity builds an authenticated identity.
func UserIdentity(userID string) Identity {
	return Identity{Class: IdentityUser, UserID: userID}
}

// GuestIdentity builds a guest identity from the request network address and
// client signature (user agent).
func GuestIdentity(ipAddress, clientSignature string) Identity {
	return Identity{Class: IdentityGuest, IPAddress: ipAddress, ClientSignature: clientSignature}
}

// Authenticated reports whether the identity refers to a known user.
func (i Identity) Authenticated() bool {
	return i.Class == IdentityUser && i.UserID != ""
}

// Owns reports whether the identity may read or delete the record. Records
// created by a user require an exact user match; guest records are visible
// to guest callers only.
func (i Identity) Owns(rec *TryOnRecord) bool {
	if rec == nil {
		return false
	}
	if rec.UserID != "" {
		return i.Authenticated() && i.UserID == rec.UserID
	}
	return i.Class == IdentityGuest
}

// AuditReport is the structured verdict returned by the quality auditor.
type AuditReport struct {
	ClothingChanged      bool     `json:"clothing_changed"`
	MatchesInputGarments bool     `json:"matches_input_garments"`
	VisualQualityScore   float64  `json:"visual_quality_score"`
	Issues               []string `json:"issues"`
	Summary              string   `json:"summary"`
}

// Passed reports whether the verdict accepts the candidate outright: the
// garments must have been applied and the score must reach the threshold.
func (a *AuditReport) Passed(threshold float64) bool {
	if a == nil {
		return false
	}
	return a.ClothingChanged && a.MatchesInputGarments && a.VisualQualityScore >= threshold
}

// TryOnRecord is the durable lifecycle record of one virtual try-on job.
type TryOnRecord struct {
	ID               string
	UserID           string // empty for guest submissions
	IPAddress        string
	ClientSignature  string
	BodyImageURL     string
	GarmentImageURLs []string
	ResultImageURL   string // populated only on success
	Status           Status
	FailureReason    string // populated only on failure
	AuditScore       *float64
	Audit            *AuditReport
	AttemptCount     int
	Metadata         map[string]string
	CreatedAt        time.Time
	CompletedAt      *time.Time
	ProcessingMS     *int64
}

// Owner reconstructs the identity variant a record belongs to.
func (r *TryOnRecord) Owner() Identity {
	if r.UserID != "" {
		return UserIdentity(r.UserID)
	}
	return GuestIdentity(r.IPAddress, r.ClientSignature)
}

// QuotaUsage summarizes submissions counted inside a quota window.
type QuotaUsage struct {
	Count  int
	Oldest time.Time // zero when Count == 0
}

// UsageStats aggregates an identity's recorded jobs.
type UsageStats struct {
	Total           int
	Successful      int
	Failed          int
	InFlight        int // pending or processing
	AvgProcessingMS *float64
}

// ListOptions controls history pagination and filtering.
type ListOptions struct {
	Limit  int
	Offset int
	Status Status // empty means all
}
