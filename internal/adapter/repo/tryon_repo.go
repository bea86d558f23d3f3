package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// TryOnRepositoryPG implements domain.TryOnRepository on PostgreSQL. Lifecycle
// transitions are enforced with conditional single-row updates, so a stale or
// concurrent mutation cannot move a record out of a terminal state.
type TryOnRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewTryOnRepository creates a try-on record repository.
func NewTryOnRepository(sql infra.SQLExecutor) *TryOnRepositoryPG {
	return &TryOnRepositoryPG{sql: sql}
}

// Create inserts a new record. The store forces status to pending and stamps
// created_at; the caller-provided record is updated in place.
func (r *TryOnRepositoryPG) Create(ctx context.Context, rec *domain.TryOnRecord) error {
	metadata, err := json.Marshal(nonNilMetadata(rec.Metadata))
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertTryOnRecord,
		rec.ID,
		nullableString(rec.UserID),
		rec.IPAddress,
		rec.ClientSignature,
		rec.BodyImageURL,
		rec.GarmentImageURLs,
		metadata,
	)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return wrapStoreErr("create try-on record", err)
	}
	rec.Status = domain.StatusPending
	rec.AttemptCount = 0
	return nil
}

// BeginProcessing moves pending -> processing.
func (r *TryOnRepositoryPG) BeginProcessing(ctx context.Context, id string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QBeginProcessing, id)
	if err != nil {
		return wrapStoreErr("begin processing", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionConflict(ctx, id)
	}
	return nil
}

// CompleteSuccess moves processing -> success and records the accepted result.
func (r *TryOnRepositoryPG) CompleteSuccess(ctx context.Context, id, resultURL string, score float64, report *domain.AuditReport, attempts int) error {
	var details []byte
	if report != nil {
		encoded, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = encoded
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QCompleteSuccess, id, resultURL, score, details, attempts)
	if err != nil {
		return wrapStoreErr("complete success", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionConflict(ctx, id)
	}
	return nil
}

// CompleteFailure moves processing -> failed.
func (r *TryOnRepositoryPG) CompleteFailure(ctx context.Context, id, reason string, attempts int) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QCompleteFailure, id, reason, attempts)
	if err != nil {
		return wrapStoreErr("complete failure", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionConflict(ctx, id)
	}
	return nil
}

// transitionConflict distinguishes a missing record from a state-machine
// violation after a conditional update matched no rows.
func (r *TryOnRepositoryPG) transitionConflict(ctx context.Context, id string) error {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectStatus, id)
	var status string
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return wrapStoreErr("load status", err)
	}
	return fmt.Errorf("%w: record %s is %s", domain.ErrInvalidTransition, id, status)
}

// Get fetches a record and enforces the ownership rule.
func (r *TryOnRepositoryPG) Get(ctx context.Context, id string, requester domain.Identity) (*domain.TryOnRecord, error) {
	rec, err := r.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !requester.Owns(rec) {
		return nil, domain.ErrForbidden
	}
	return rec, nil
}

// Delete removes an owned record under the same rule as Get.
func (r *TryOnRepositoryPG) Delete(ctx context.Context, id string, requester domain.Identity) error {
	rec, err := r.getByID(ctx, id)
	if err != nil {
		return err
	}
	if !requester.Owns(rec) {
		return domain.ErrForbidden
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteTryOnRecord, id)
	if err != nil {
		return wrapStoreErr("delete try-on record", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// NextPending returns the oldest pending record.
func (r *TryOnRepositoryPG) NextPending(ctx context.Context) (*domain.TryOnRecord, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QNextPending)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, wrapStoreErr("next pending record", err)
	}
	return rec, nil
}

// CountSince counts an identity's records created inside the quota window.
func (r *TryOnRepositoryPG) CountSince(ctx context.Context, identity domain.Identity, since time.Time) (domain.QuotaUsage, error) {
	userID, ip, sig := identityArgs(identity)
	row := r.sql.QueryRow(ctx, sqlinline.QCountWindow, userID, ip, sig, since)
	var usage domain.QuotaUsage
	var oldest *time.Time
	if err := row.Scan(&usage.Count, &oldest); err != nil {
		return domain.QuotaUsage{}, wrapStoreErr("count quota window", err)
	}
	if oldest != nil {
		usage.Oldest = *oldest
	}
	return usage, nil
}

// List returns an identity's records newest first plus the total count.
func (r *TryOnRepositoryPG) List(ctx context.Context, identity domain.Identity, opts domain.ListOptions) ([]domain.TryOnRecord, int, error) {
	userID, ip, sig := identityArgs(identity)
	rows, err := r.sql.Query(ctx, sqlinline.QListHistory, userID, ip, sig, string(opts.Status), opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, wrapStoreErr("list history", err)
	}
	defer rows.Close()

	var records []domain.TryOnRecord
	total := 0
	for rows.Next() {
		rec, rowTotal, err := scanRecordWithTotal(rows)
		if err != nil {
			return nil, 0, wrapStoreErr("scan history row", err)
		}
		records = append(records, *rec)
		total = rowTotal
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapStoreErr("list history", err)
	}
	if len(records) == 0 {
		// The windowed total is unavailable when the page is empty.
		row := r.sql.QueryRow(ctx, sqlinline.QCountHistory, userID, ip, sig, string(opts.Status))
		if err := row.Scan(&total); err != nil {
			return nil, 0, wrapStoreErr("count history", err)
		}
	}
	return records, total, nil
}

// Stats aggregates an identity's recorded jobs.
func (r *TryOnRepositoryPG) Stats(ctx context.Context, identity domain.Identity) (*domain.UsageStats, error) {
	userID, ip, sig := identityArgs(identity)
	row := r.sql.QueryRow(ctx, sqlinline.QUsageStats, userID, ip, sig)
	var stats domain.UsageStats
	if err := row.Scan(&stats.Total, &stats.Successful, &stats.Failed, &stats.InFlight, &stats.AvgProcessingMS); err != nil {
		return nil, wrapStoreErr("load usage stats", err)
	}
	return &stats, nil
}

func (r *TryOnRepositoryPG) getByID(ctx context.Context, id string) (*domain.TryOnRecord, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectTryOnRecord, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, wrapStoreErr("load try-on record", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.TryOnRecord, error) {
	return scanRecordInto(row, nil)
}

func scanRecordWithTotal(row rowScanner) (*domain.TryOnRecord, int, error) {
	var total int
	rec, err := scanRecordInto(row, &total)
	return rec, total, err
}

func scanRecordInto(row rowScanner, total *int) (*domain.TryOnRecord, error) {
	var (
		rec      domain.TryOnRecord
		userID   *string
		result   *string
		reason   *string
		details  []byte
		metadata []byte
	)
	dest := []any{
		&rec.ID,
		&userID,
		&rec.IPAddress,
		&rec.ClientSignature,
		&rec.BodyImageURL,
		&rec.GarmentImageURLs,
		&result,
		&rec.Status,
		&reason,
		&rec.AuditScore,
		&details,
		&rec.AttemptCount,
		&metadata,
		&rec.CreatedAt,
		&rec.CompletedAt,
		&rec.ProcessingMS,
	}
	if total != nil {
		dest = append(dest, total)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if userID != nil {
		rec.UserID = *userID
	}
	if result != nil {
		rec.ResultImageURL = *result
	}
	if reason != nil {
		rec.FailureReason = *reason
	}
	if len(details) > 0 {
		var report domain.AuditReport
		if err := json.Unmarshal(details, &report); err == nil {
			rec.Audit = &report
		}
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &rec.Metadata)
	}
	return &rec, nil
}

func identityArgs(identity domain.Identity) (userID *string, ip, sig string) {
	if identity.Authenticated() {
		id := identity.UserID
		return &id, "", ""
	}
	return nil, identity.IPAddress, identity.ClientSignature
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNilMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// wrapStoreErr folds store failures into the dependency error so callers can
// fail closed without inspecting pgx internals.
func wrapStoreErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrDependencyUnavailable, err)
}

var _ domain.TryOnRepository = (*TryOnRepositoryPG)(nil)
