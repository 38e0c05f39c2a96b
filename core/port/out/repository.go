package out

import (
	"context"
	"errors"
	"time"

	"voiceout_server/core/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("record not found")

// ConnectionRepository stores mail-account connections. Implementations
// encrypt token fields before every write and decrypt them on read.
type ConnectionRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Connection, error)
	ListByTent(ctx context.Context, tentID uuid.UUID) ([]*domain.Connection, error)
	// ListActive returns connections eligible for scheduled sync.
	ListActive(ctx context.Context) ([]*domain.Connection, error)

	// UpdateTokens persists a refreshed credential set.
	UpdateTokens(ctx context.Context, id int64, tokens TokenPair) error
	// MarkSynced records a successful sync: last_sync_at set, sync_status
	// active, error_message cleared.
	MarkSynced(ctx context.Context, id int64, at time.Time) error
	// MarkError records a failed sync: sync_status error, error_message set.
	MarkError(ctx context.Context, id int64, message string) error
	Disconnect(ctx context.Context, id int64) error
}

// InquiryRepository stores classified inquiries.
type InquiryRepository interface {
	// Upsert inserts or updates by (connection_id, email_id). Returns true
	// only when a new row was inserted, so re-syncs over an overlapping
	// window report zero created inquiries for already-seen messages.
	Upsert(ctx context.Context, inquiry *domain.Inquiry) (created bool, err error)
	ListByConnection(ctx context.Context, connectionID int64, limit int) ([]*domain.Inquiry, error)
}

// SyncLogRepository stores per-invocation sync audit records.
type SyncLogRepository interface {
	// Create inserts a running log and sets its ID.
	Create(ctx context.Context, log *domain.SyncLog) error
	// Complete finalizes the log as completed with counts.
	Complete(ctx context.Context, id int64, emailsFetched, inquiriesCreated int) error
	// Fail finalizes the log as failed with counts and error details.
	Fail(ctx context.Context, id int64, emailsFetched, inquiriesCreated int, errorDetails string) error
	ListByConnection(ctx context.Context, connectionID int64, limit int) ([]*domain.SyncLog, error)
}

// SyncLocker guards against concurrent syncs of the same connection. Best
// effort only: the inquiry upsert key remains the real duplicate guard.
type SyncLocker interface {
	// Acquire returns false when another sync holds the lock.
	Acquire(ctx context.Context, connectionID int64, ttl time.Duration) (bool, error)
	Release(ctx context.Context, connectionID int64) error
}
