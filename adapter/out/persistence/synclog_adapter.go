package persistence

import (
	"context"
	"database/sql"
	"time"

	"voiceout_server/core/domain"
	"voiceout_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// syncLogEntity mirrors the sync_logs table.
type syncLogEntity struct {
	ID               int64          `db:"id"`
	ConnectionID     int64          `db:"connection_id"`
	StartedAt        time.Time      `db:"started_at"`
	CompletedAt      sql.NullTime   `db:"completed_at"`
	Status           string         `db:"status"`
	EmailsFetched    int            `db:"emails_fetched"`
	InquiriesCreated int            `db:"inquiries_created"`
	ErrorDetails     sql.NullString `db:"error_details"`
}

func (e *syncLogEntity) toDomain() *domain.SyncLog {
	log := &domain.SyncLog{
		ID:               e.ID,
		ConnectionID:     e.ConnectionID,
		StartedAt:        e.StartedAt,
		Status:           domain.SyncLogStatus(e.Status),
		EmailsFetched:    e.EmailsFetched,
		InquiriesCreated: e.InquiriesCreated,
	}
	if e.CompletedAt.Valid {
		t := e.CompletedAt.Time
		log.CompletedAt = &t
	}
	if e.ErrorDetails.Valid {
		details := e.ErrorDetails.String
		log.ErrorDetails = &details
	}
	return log
}

// SyncLogAdapter implements out.SyncLogRepository using PostgreSQL.
type SyncLogAdapter struct {
	db *sqlx.DB
}

func NewSyncLogAdapter(db *sqlx.DB) *SyncLogAdapter {
	return &SyncLogAdapter{db: db}
}

// Create inserts a running log and sets its ID.
func (a *SyncLogAdapter) Create(ctx context.Context, log *domain.SyncLog) error {
	query := `
		INSERT INTO sync_logs (connection_id, started_at, status, emails_fetched, inquiries_created)
		VALUES ($1, $2, 'running', 0, 0)
		RETURNING id`

	startedAt := log.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	if err := a.db.QueryRowContext(ctx, query, log.ConnectionID, startedAt).Scan(&log.ID); err != nil {
		return err
	}
	log.StartedAt = startedAt
	log.Status = domain.SyncLogStatusRunning
	return nil
}

// Complete finalizes a running log as completed. A log that is already final
// is left untouched and reported as ErrNotFound.
func (a *SyncLogAdapter) Complete(ctx context.Context, id int64, emailsFetched, inquiriesCreated int) error {
	query := `
		UPDATE sync_logs
		SET status = 'completed',
		    completed_at = NOW(),
		    emails_fetched = $2,
		    inquiries_created = $3
		WHERE id = $1 AND status = 'running'`

	result, err := a.db.ExecContext(ctx, query, id, emailsFetched, inquiriesCreated)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Fail finalizes a running log as failed with whatever partial counts were
// reached.
func (a *SyncLogAdapter) Fail(ctx context.Context, id int64, emailsFetched, inquiriesCreated int, errorDetails string) error {
	query := `
		UPDATE sync_logs
		SET status = 'failed',
		    completed_at = NOW(),
		    emails_fetched = $2,
		    inquiries_created = $3,
		    error_details = $4
		WHERE id = $1 AND status = 'running'`

	result, err := a.db.ExecContext(ctx, query, id, emailsFetched, inquiriesCreated, errorDetails)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ListByConnection returns the most recent sync logs for a connection.
func (a *SyncLogAdapter) ListByConnection(ctx context.Context, connectionID int64, limit int) ([]*domain.SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}

	var entities []*syncLogEntity
	query := `
		SELECT id, connection_id, started_at, completed_at, status,
		       emails_fetched, inquiries_created, error_details
		FROM sync_logs
		WHERE connection_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	if err := a.db.SelectContext(ctx, &entities, query, connectionID, limit); err != nil {
		return nil, err
	}

	logs := make([]*domain.SyncLog, 0, len(entities))
	for _, entity := range entities {
		logs = append(logs, entity.toDomain())
	}
	return logs, nil
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.SyncLogRepository = (*SyncLogAdapter)(nil)
