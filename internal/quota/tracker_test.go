package quota

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

type stubCounter struct {
	usage domain.QuotaUsage
	err   error
	since time.Time
}

func (s *stubCounter) CountSince(_ context.Context, _ domain.Identity, since time.Time) (domain.QuotaUsage, error) {
	s.since = since
	return s.usage, s.err
}

func newTestTracker(counter UsageCounter, at time.Time) *Tracker {
	tracker := NewTracker(counter, Limits{Guest: 5, User: 20}, zerolog.New(io.Discard))
	tracker.now = func() time.Time { return at }
	return tracker
}

func TestAdmitGuestUnderLimit(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	oldest := now.Add(-3 * time.Hour)
	counter := &stubCounter{usage: domain.QuotaUsage{Count: 4, Oldest: oldest}}
	tracker := newTestTracker(counter, now)

	decision, err := tracker.Admit(context.Background(), domain.GuestIdentity("203.0.113.9", "agent"))
	if err != nil {
		t.Fatalf("Admit error: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected admission under the limit")
	}
	if decision.Remaining != 1 {
		t.Fatalf("Remaining = %d, want 1", decision.Remaining)
	}
	if want := oldest.Add(Window); !decision.ResetAt.Equal(want) {
		t.Fatalf("ResetAt = %v, want %v", decision.ResetAt, want)
	}
	if want := now.Add(-Window); !counter.since.Equal(want) {
		t.Fatalf("counted since %v, want sliding window start %v", counter.since, want)
	}
}

func TestAdmitGuestAtLimit(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	counter := &stubCounter{usage: domain.QuotaUsage{Count: 5, Oldest: now.Add(-time.Hour)}}
	tracker := newTestTracker(counter, now)

	decision, err := tracker.Admit(context.Background(), domain.GuestIdentity("203.0.113.9", "agent"))
	if err != nil {
		t.Fatalf("Admit error: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected denial at the limit")
	}
	if decision.Remaining != 0 {
		t.Fatalf("Remaining = %d, want 0", decision.Remaining)
	}
}

func TestAdmitUserLimit(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	counter := &stubCounter{usage: domain.QuotaUsage{Count: 19, Oldest: now.Add(-23 * time.Hour)}}
	tracker := newTestTracker(counter, now)

	decision, err := tracker.Admit(context.Background(), domain.UserIdentity("7f2d1e04-1111-4a6e-9d7a-000000000001"))
	if err != nil {
		t.Fatalf("Admit error: %v", err)
	}
	if !decision.Allowed || decision.Limit != 20 || decision.Remaining != 1 {
		t.Fatalf("decision = %+v, want allowed with limit 20 remaining 1", decision)
	}
}

func TestAdmitFreshIdentityResetsNow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(&stubCounter{}, now)

	decision, err := tracker.Admit(context.Background(), domain.GuestIdentity("203.0.113.9", "agent"))
	if err != nil {
		t.Fatalf("Admit error: %v", err)
	}
	if !decision.Allowed || decision.Remaining != 5 {
		t.Fatalf("decision = %+v, want full allowance", decision)
	}
	if !decision.ResetAt.Equal(now) {
		t.Fatalf("ResetAt = %v, want now for empty window", decision.ResetAt)
	}
}

func TestAdmitFailsClosedOnStoreError(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	counter := &stubCounter{err: errors.New("connection refused")}
	tracker := newTestTracker(counter, now)

	_, err := tracker.Admit(context.Background(), domain.GuestIdentity("203.0.113.9", "agent"))
	if !errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
}
