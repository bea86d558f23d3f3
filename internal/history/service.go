package history

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Pagination bounds for history listings.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Store is the read side of the record repository the service consumes.
type Store interface {
	Get(ctx context.Context, id string, requester domain.Identity) (*domain.TryOnRecord, error)
	Delete(ctx context.Context, id string, requester domain.Identity) error
	List(ctx context.Context, identity domain.Identity, opts domain.ListOptions) ([]domain.TryOnRecord, int, error)
	Stats(ctx context.Context, identity domain.Identity) (*domain.UsageStats, error)
}

// Page is one slice of an identity's history, newest first.
type Page struct {
	Records []domain.TryOnRecord
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}

// Stats summarizes an identity's recorded jobs.
type Stats struct {
	Total           int
	Successful      int
	Failed          int
	InFlight        int
	SuccessRate     float64
	AvgProcessingMS *float64
}

// Service exposes retrospective queries over try-on records. History is
// scoped to authenticated identities: guests have no stable identity across
// sessions, so they can only poll individual records.
type Service struct {
	store  Store
	logger zerolog.Logger
}

// NewService creates a history service over the given store.
func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger.With().Str("component", "history").Logger()}
}

// List returns a page of the identity's records ordered created_at descending.
func (s *Service) List(ctx context.Context, identity domain.Identity, limit, offset int, status domain.Status) (*Page, error) {
	if !identity.Authenticated() {
		return nil, domain.ErrForbidden
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, status)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	records, total, err := s.store.List(ctx, identity, domain.ListOptions{Limit: limit, Offset: offset, Status: status})
	if err != nil {
		return nil, err
	}
	return &Page{
		Records: records,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(records) < total,
	}, nil
}

// Get fetches a single owned record.
func (s *Service) Get(ctx context.Context, id string, identity domain.Identity) (*domain.TryOnRecord, error) {
	if !identity.Authenticated() {
		return nil, domain.ErrForbidden
	}
	return s.store.Get(ctx, id, identity)
}

// Delete removes a single owned record.
func (s *Service) Delete(ctx context.Context, id string, identity domain.Identity) error {
	if !identity.Authenticated() {
		return domain.ErrForbidden
	}
	if err := s.store.Delete(ctx, id, identity); err != nil {
		return err
	}
	s.logger.Info().Str("record_id", id).Str("user_id", identity.UserID).Msg("record deleted")
	return nil
}

// Stats aggregates the identity's jobs. The success rate is 0 when no jobs
// exist; the average duration covers only completed records that recorded one.
func (s *Service) Stats(ctx context.Context, identity domain.Identity) (*Stats, error) {
	if !identity.Authenticated() {
		return nil, domain.ErrForbidden
	}
	usage, err := s.store.Stats(ctx, identity)
	if err != nil {
		return nil, err
	}
	rate := 0.0
	if usage.Total > 0 {
		rate = float64(usage.Successful) / float64(usage.Total)
	}
	return &Stats{
		Total:           usage.Total,
		Successful:      usage.Successful,
		Failed:          usage.Failed,
		InFlight:        usage.InFlight,
		SuccessRate:     rate,
		AvgProcessingMS: usage.AvgProcessingMS,
	}, nil
}
