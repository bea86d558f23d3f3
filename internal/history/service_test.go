package history

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

type stubStore struct {
	records  []domain.TryOnRecord
	total    int
	gotOpts  domain.ListOptions
	stats    *domain.UsageStats
	deleted  string
	listErr  error
	statsErr error
}

func (s *stubStore) Get(_ context.Context, id string, _ domain.Identity) (*domain.TryOnRecord, error) {
	for i := range s.records {
		if s.records[i].ID == id {
			return &s.records[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubStore) Delete(_ context.Context, id string, _ domain.Identity) error {
	s.deleted = id
	return nil
}

func (s *stubStore) List(_ context.Context, _ domain.Identity, opts domain.ListOptions) ([]domain.TryOnRecord, int, error) {
	s.gotOpts = opts
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	return s.records, s.total, nil
}

func (s *stubStore) Stats(_ context.Context, _ domain.Identity) (*domain.UsageStats, error) {
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	return s.stats, nil
}

func authed() domain.Identity { return domain.UserIdentity("8d4f9550-7e2d-4bb9-9a43-3f11c1c0d9aa") }

func TestListClampsPagination(t *testing.T) {
	store := &stubStore{total: 0}
	svc := NewService(store, zerolog.Nop())

	cases := []struct {
		name       string
		limit      int
		offset     int
		wantLimit  int
		wantOffset int
	}{
		{"defaults", 0, 0, DefaultLimit, 0},
		{"negative", -5, -3, DefaultLimit, 0},
		{"capped", 500, 10, MaxLimit, 10},
		{"in range", 40, 20, 40, 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.List(context.Background(), authed(), tc.limit, tc.offset, ""); err != nil {
				t.Fatalf("list: %v", err)
			}
			if store.gotOpts.Limit != tc.wantLimit || store.gotOpts.Offset != tc.wantOffset {
				t.Fatalf("got limit=%d offset=%d, want %d/%d", store.gotOpts.Limit, store.gotOpts.Offset, tc.wantLimit, tc.wantOffset)
			}
		})
	}
}

func TestListHasMore(t *testing.T) {
	store := &stubStore{
		records: []domain.TryOnRecord{{ID: "a"}, {ID: "b"}},
		total:   5,
	}
	svc := NewService(store, zerolog.Nop())

	page, err := svc.List(context.Background(), authed(), 2, 0, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !page.HasMore {
		t.Fatal("expected more pages with offset 0, 2 of 5 returned")
	}

	store.records = []domain.TryOnRecord{{ID: "e"}}
	page, err = svc.List(context.Background(), authed(), 2, 4, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.HasMore {
		t.Fatal("expected last page at offset 4 of 5")
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc := NewService(&stubStore{}, zerolog.Nop())
	_, err := svc.List(context.Background(), authed(), 10, 0, domain.Status("queued"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestHistoryRequiresAuthentication(t *testing.T) {
	store := &stubStore{stats: &domain.UsageStats{}}
	svc := NewService(store, zerolog.Nop())
	guest := domain.GuestIdentity("203.0.113.7", "sig")

	if _, err := svc.List(context.Background(), guest, 10, 0, ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("list: expected forbidden, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "a", guest); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("get: expected forbidden, got %v", err)
	}
	if err := svc.Delete(context.Background(), "a", guest); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("delete: expected forbidden, got %v", err)
	}
	if _, err := svc.Stats(context.Background(), guest); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stats: expected forbidden, got %v", err)
	}
	if store.deleted != "" {
		t.Fatal("delete must not reach the store for guests")
	}
}

func TestStatsRate(t *testing.T) {
	avg := 4210.0
	store := &stubStore{stats: &domain.UsageStats{
		Total:           10,
		Successful:      8,
		Failed:          1,
		InFlight:        1,
		AvgProcessingMS: &avg,
	}}
	svc := NewService(store, zerolog.Nop())

	stats, err := svc.Stats(context.Background(), authed())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.SuccessRate != 0.8 {
		t.Fatalf("expected rate 0.8, got %v", stats.SuccessRate)
	}
	if stats.AvgProcessingMS == nil || *stats.AvgProcessingMS != avg {
		t.Fatalf("average not carried through: %v", stats.AvgProcessingMS)
	}
}

func TestStatsEmptyIdentity(t *testing.T) {
	store := &stubStore{stats: &domain.UsageStats{}}
	svc := NewService(store, zerolog.Nop())

	stats, err := svc.Stats(context.Background(), authed())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.SuccessRate != 0 {
		t.Fatalf("expected zero rate for empty history, got %v", stats.SuccessRate)
	}
}
