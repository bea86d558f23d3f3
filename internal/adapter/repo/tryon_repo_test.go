package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"server/internal/domain"
)

type scriptRow struct {
	scan func(dest ...any) error
}

func (r scriptRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type execResult struct {
	tag pgconn.CommandTag
	err error
}

type stubSQL struct {
	execs   []execResult
	rows    []scriptRow
	queries []string
}

func (s *stubSQL) Exec(_ context.Context, query string, _ ...any) (pgconn.CommandTag, error) {
	s.queries = append(s.queries, query)
	if len(s.execs) == 0 {
		return pgconn.CommandTag{}, errors.New("unexpected exec")
	}
	next := s.execs[0]
	s.execs = s.execs[1:]
	return next.tag, next.err
}

func (s *stubSQL) QueryRow(_ context.Context, query string, _ ...any) pgx.Row {
	s.queries = append(s.queries, query)
	if len(s.rows) == 0 {
		return scriptRow{}
	}
	next := s.rows[0]
	s.rows = s.rows[1:]
	return next
}

func (s *stubSQL) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func updated(n int) pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", n))
}

func statusRow(status string) scriptRow {
	return scriptRow{scan: func(dest ...any) error {
		*(dest[0].(*string)) = status
		return nil
	}}
}

// recordRow fills the full record column set used by scanRecordInto.
func recordRow(userID string, status domain.Status) scriptRow {
	return scriptRow{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "rec-1"
		if userID != "" {
			u := userID
			*(dest[1].(**string)) = &u
		}
		*(dest[2].(*string)) = "203.0.113.1"
		*(dest[3].(*string)) = "sig"
		*(dest[4].(*string)) = "https://img.test/body.jpg"
		*(dest[5].(*[]string)) = []string{"https://img.test/garment.jpg"}
		*(dest[7].(*domain.Status)) = status
		*(dest[11].(*int)) = 1
		*(dest[13].(*time.Time)) = time.Now()
		return nil
	}}
}

func TestCreateForcesPending(t *testing.T) {
	sql := &stubSQL{rows: []scriptRow{{scan: func(dest ...any) error {
		*(dest[0].(*time.Time)) = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		return nil
	}}}}
	r := NewTryOnRepository(sql)

	rec := &domain.TryOnRecord{
		ID:               "rec-1",
		Status:           domain.StatusSuccess,
		BodyImageURL:     "https://img.test/body.jpg",
		GarmentImageURLs: []string{"https://img.test/garment.jpg"},
	}
	if err := r.Create(context.Background(), rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Status != domain.StatusPending {
		t.Fatalf("status = %q, want pending", rec.Status)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("created_at not stamped")
	}
}

func TestBeginProcessingClaims(t *testing.T) {
	sql := &stubSQL{execs: []execResult{{tag: updated(1)}}}
	r := NewTryOnRepository(sql)
	if err := r.BeginProcessing(context.Background(), "rec-1"); err != nil {
		t.Fatalf("begin processing: %v", err)
	}
}

func TestBeginProcessingLostClaim(t *testing.T) {
	sql := &stubSQL{
		execs: []execResult{{tag: updated(0)}},
		rows:  []scriptRow{statusRow("processing")},
	}
	r := NewTryOnRepository(sql)
	err := r.BeginProcessing(context.Background(), "rec-1")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if !strings.Contains(err.Error(), "processing") {
		t.Fatalf("error should name the blocking status: %v", err)
	}
}

func TestBeginProcessingMissingRecord(t *testing.T) {
	sql := &stubSQL{execs: []execResult{{tag: updated(0)}}}
	r := NewTryOnRepository(sql)
	if err := r.BeginProcessing(context.Background(), "rec-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTerminalStatesAbsorbCompletion(t *testing.T) {
	for _, terminal := range []string{"success", "failed"} {
		t.Run(terminal, func(t *testing.T) {
			sql := &stubSQL{
				execs: []execResult{{tag: updated(0)}},
				rows:  []scriptRow{statusRow(terminal)},
			}
			r := NewTryOnRepository(sql)
			err := r.CompleteSuccess(context.Background(), "rec-1", "https://img.test/out.png", 80, nil, 2)
			if !errors.Is(err, domain.ErrInvalidTransition) {
				t.Fatalf("expected invalid transition, got %v", err)
			}
		})
	}
}

func TestCompleteFailureConflict(t *testing.T) {
	sql := &stubSQL{
		execs: []execResult{{tag: updated(0)}},
		rows:  []scriptRow{statusRow("success")},
	}
	r := NewTryOnRepository(sql)
	err := r.CompleteFailure(context.Background(), "rec-1", "image synthesis failed after 3 attempts", 3)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	cases := []struct {
		name      string
		owner     string
		requester domain.Identity
		wantErr   error
	}{
		{"owner reads own record", "user-a", domain.UserIdentity("user-a"), nil},
		{"stranger denied", "user-a", domain.UserIdentity("user-b"), domain.ErrForbidden},
		{"guest denied user record", "user-a", domain.GuestIdentity("203.0.113.1", "sig"), domain.ErrForbidden},
		{"guest reads guest record", "", domain.GuestIdentity("203.0.113.1", "sig"), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sql := &stubSQL{rows: []scriptRow{recordRow(tc.owner, domain.StatusSuccess)}}
			r := NewTryOnRepository(sql)
			rec, err := r.Get(context.Background(), "rec-1", tc.requester)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if rec.ID != "rec-1" {
				t.Fatalf("record = %+v", rec)
			}
		})
	}
}

func TestGetMissingRecord(t *testing.T) {
	sql := &stubSQL{}
	r := NewTryOnRepository(sql)
	if _, err := r.Get(context.Background(), "rec-1", domain.UserIdentity("user-a")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCountSince(t *testing.T) {
	oldest := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	sql := &stubSQL{rows: []scriptRow{{scan: func(dest ...any) error {
		*(dest[0].(*int)) = 3
		*(dest[1].(**time.Time)) = &oldest
		return nil
	}}}}
	r := NewTryOnRepository(sql)

	usage, err := r.CountSince(context.Background(), domain.UserIdentity("user-a"), oldest.Add(-time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if usage.Count != 3 || !usage.Oldest.Equal(oldest) {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestStoreErrorsWrapDependencyUnavailable(t *testing.T) {
	sql := &stubSQL{execs: []execResult{{err: errors.New("connection refused")}}}
	r := NewTryOnRepository(sql)
	err := r.BeginProcessing(context.Background(), "rec-1")
	if !errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}
