package domain

import (
	"context"
	"time"
)

// TryOnRepository defines persistence for try-on records. Lifecycle mutations
// are conditional on the current status so the state machine cannot be
// bypassed: a mutation against the wrong state fails with
// ErrInvalidTransition, an unknown id with ErrNotFound.
type TryOnRepository interface {
	// Create inserts a new record. The record always starts pending.
	Create(ctx context.Context, rec *TryOnRecord) error

	// BeginProcessing moves pending -> processing.
	BeginProcessing(ctx context.Context, id string) error

	// CompleteSuccess moves processing -> success, recording the accepted
	// candidate, its audit verdict and the attempts consumed. completed_at
	// and the processing duration are set by the store.
	CompleteSuccess(ctx context.Context, id, resultURL string, score float64, report *AuditReport, attempts int) error

	// CompleteFailure moves processing -> failed with a human-readable reason.
	CompleteFailure(ctx context.Context, id, reason string, attempts int) error

	// Get returns the record when the requester owns it, ErrForbidden when it
	// exists but belongs to someone else, ErrNotFound otherwise.
	Get(ctx context.Context, id string, requester Identity) (*TryOnRecord, error)

	// Delete removes an owned record under the same ownership rule as Get.
	Delete(ctx context.Context, id string, requester Identity) error

	// NextPending returns the oldest pending record, or ErrNotFound when the
	// queue is empty. Claiming is done by the caller via BeginProcessing.
	NextPending(ctx context.Context) (*TryOnRecord, error)

	// CountSince counts an identity's records created at or after the given
	// instant, along with the oldest counted creation time.
	CountSince(ctx context.Context, identity Identity, since time.Time) (QuotaUsage, error)

	// List returns an identity's records ordered by created_at descending,
	// plus the total matching count.
	List(ctx context.Context, identity Identity, opts ListOptions) ([]TryOnRecord, int, error)

	// Stats aggregates an identity's recorded jobs.
	Stats(ctx context.Context, identity Identity) (*UsageStats, error)
}
