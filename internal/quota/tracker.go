package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Window is the sliding period submissions are counted over. It trails the
// current instant rather than aligning to calendar days, so the reset time
// moves as old submissions age out.
const Window = 24 * time.Hour

// Limits holds the per-class submission caps for one window.
type Limits struct {
	Guest int
	User  int
}

// Decision is the outcome of an admission check. Admission has no side
// effects: quota is consumed by the record the caller subsequently creates.
type Decision struct {
	Allowed   bool
	Limit     int
	Used      int
	Remaining int
	ResetAt   time.Time
}

// UsageCounter is the slice of the record store the tracker needs.
type UsageCounter interface {
	CountSince(ctx context.Context, identity domain.Identity, since time.Time) (domain.QuotaUsage, error)
}

// Tracker admits or rejects new try-on submissions by counting an identity's
// records inside the trailing window.
type Tracker struct {
	repo   UsageCounter
	limits Limits
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a quota tracker over the given record store.
func NewTracker(repo UsageCounter, limits Limits, logger zerolog.Logger) *Tracker {
	return &Tracker{
		repo:   repo,
		limits: limits,
		logger: logger.With().Str("component", "quota").Logger(),
		now:    time.Now,
	}
}

// Admit checks whether the identity may submit a new job. A store failure is
// returned as ErrDependencyUnavailable; callers must treat that as a denial
// so an outage cannot bypass the limit.
func (t *Tracker) Admit(ctx context.Context, identity domain.Identity) (Decision, error) {
	limit := t.limits.Guest
	if identity.Authenticated() {
		limit = t.limits.User
	}

	now := t.now()
	usage, err := t.repo.CountSince(ctx, identity, now.Add(-Window))
	if err != nil {
		if !errors.Is(err, domain.ErrDependencyUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
		}
		return Decision{}, err
	}

	resetAt := now
	if usage.Count > 0 {
		resetAt = usage.Oldest.Add(Window)
	}
	remaining := limit - usage.Count
	if remaining < 0 {
		remaining = 0
	}

	decision := Decision{
		Allowed:   usage.Count < limit,
		Limit:     limit,
		Used:      usage.Count,
		Remaining: remaining,
		ResetAt:   resetAt,
	}

	t.logger.Info().
		Str("class", string(identity.Class)).
		Int("used", decision.Used).
		Int("limit", decision.Limit).
		Bool("allowed", decision.Allowed).
		Msg("admission check")

	return decision, nil
}
