// Package persistence provides the PostgreSQL repository adapters. Token
// columns are encrypted before every write and decrypted on read; plaintext
// credentials never reach the database.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voiceout_server/core/domain"
	"voiceout_server/core/port/out"
	"voiceout_server/pkg/crypto"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// connectionEntity mirrors the email_connections table.
type connectionEntity struct {
	ID           int64          `db:"id"`
	TentID       uuid.UUID      `db:"tent_id"`
	Provider     string         `db:"provider"`
	Email        string         `db:"email"`
	AccessToken  string         `db:"access_token"`
	RefreshToken sql.NullString `db:"refresh_token"`
	LastSyncAt   sql.NullTime   `db:"last_sync_at"`
	SyncStatus   string         `db:"sync_status"`
	ErrorMessage sql.NullString `db:"error_message"`
	IsActive     bool           `db:"is_active"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (e *connectionEntity) toDomain() *domain.Connection {
	conn := &domain.Connection{
		ID:          e.ID,
		TentID:      e.TentID,
		Provider:    domain.Provider(e.Provider),
		Email:       e.Email,
		AccessToken: e.AccessToken,
		SyncStatus:  domain.SyncStatus(e.SyncStatus),
		IsActive:    e.IsActive,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.RefreshToken.Valid {
		conn.RefreshToken = e.RefreshToken.String
	}
	if e.LastSyncAt.Valid {
		t := e.LastSyncAt.Time
		conn.LastSyncAt = &t
	}
	if e.ErrorMessage.Valid {
		msg := e.ErrorMessage.String
		conn.ErrorMessage = &msg
	}
	return conn
}

const connectionColumns = `id, tent_id, provider, email, access_token, refresh_token,
	       last_sync_at, sync_status, error_message, is_active, created_at, updated_at`

// ConnectionAdapter implements out.ConnectionRepository using PostgreSQL.
type ConnectionAdapter struct {
	db     *sqlx.DB
	cipher *crypto.Cipher
}

func NewConnectionAdapter(db *sqlx.DB, cipher *crypto.Cipher) *ConnectionAdapter {
	return &ConnectionAdapter{db: db, cipher: cipher}
}

// encryptToken encrypts a token for storage. A failed encryption aborts the
// write rather than letting plaintext through.
func (a *ConnectionAdapter) encryptToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	return a.cipher.Encrypt(token)
}

// decryptToken decrypts a stored token. Values written before encryption was
// introduced are returned as-is.
func (a *ConnectionAdapter) decryptToken(token string) string {
	if token == "" || !a.cipher.IsEncrypted(token) {
		return token
	}
	decrypted, err := a.cipher.Decrypt(token)
	if err != nil {
		return token
	}
	return decrypted
}

func (a *ConnectionAdapter) decryptEntity(entity *connectionEntity) {
	entity.AccessToken = a.decryptToken(entity.AccessToken)
	if entity.RefreshToken.Valid {
		entity.RefreshToken.String = a.decryptToken(entity.RefreshToken.String)
	}
}

// GetByID returns a connection by ID.
func (a *ConnectionAdapter) GetByID(ctx context.Context, id int64) (*domain.Connection, error) {
	var entity connectionEntity
	query := `
		SELECT ` + connectionColumns + `
		FROM email_connections
		WHERE id = $1`

	if err := a.db.GetContext(ctx, &entity, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out.ErrNotFound
		}
		return nil, err
	}

	a.decryptEntity(&entity)
	return entity.toDomain(), nil
}

// ListByTent returns all connections for a tent.
func (a *ConnectionAdapter) ListByTent(ctx context.Context, tentID uuid.UUID) ([]*domain.Connection, error) {
	var entities []*connectionEntity
	query := `
		SELECT ` + connectionColumns + `
		FROM email_connections
		WHERE tent_id = $1
		ORDER BY created_at DESC`

	if err := a.db.SelectContext(ctx, &entities, query, tentID); err != nil {
		return nil, err
	}

	connections := make([]*domain.Connection, 0, len(entities))
	for _, entity := range entities {
		a.decryptEntity(entity)
		connections = append(connections, entity.toDomain())
	}
	return connections, nil
}

// ListActive returns connections eligible for scheduled sync.
func (a *ConnectionAdapter) ListActive(ctx context.Context) ([]*domain.Connection, error) {
	var entities []*connectionEntity
	query := `
		SELECT ` + connectionColumns + `
		FROM email_connections
		WHERE is_active = true AND sync_status <> 'paused'
		ORDER BY created_at`

	if err := a.db.SelectContext(ctx, &entities, query); err != nil {
		return nil, err
	}

	connections := make([]*domain.Connection, 0, len(entities))
	for _, entity := range entities {
		a.decryptEntity(entity)
		connections = append(connections, entity.toDomain())
	}
	return connections, nil
}

// UpdateTokens persists a refreshed credential set.
func (a *ConnectionAdapter) UpdateTokens(ctx context.Context, id int64, tokens out.TokenPair) error {
	accessToken, err := a.encryptToken(tokens.AccessToken)
	if err != nil {
		return err
	}
	refreshToken, err := a.encryptToken(tokens.RefreshToken)
	if err != nil {
		return err
	}

	query := `
		UPDATE email_connections
		SET access_token = $2,
		    refresh_token = NULLIF($3, ''),
		    token_expires_at = $4,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query, id, accessToken, refreshToken, nullableTime(tokens.ExpiresAt))
	if err != nil {
		return err
	}
	return requireRow(result)
}

// MarkSynced records a successful sync.
func (a *ConnectionAdapter) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE email_connections
		SET last_sync_at = $2,
		    sync_status = 'active',
		    error_message = NULL,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// MarkError records a failed sync.
func (a *ConnectionAdapter) MarkError(ctx context.Context, id int64, message string) error {
	query := `
		UPDATE email_connections
		SET sync_status = 'error',
		    error_message = $2,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query, id, message)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Disconnect deactivates a connection and discards its credentials.
func (a *ConnectionAdapter) Disconnect(ctx context.Context, id int64) error {
	query := `
		UPDATE email_connections
		SET is_active = false,
		    sync_status = 'paused',
		    access_token = '',
		    refresh_token = NULL,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// requireRow maps a zero-row update to ErrNotFound.
func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return out.ErrNotFound
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.ConnectionRepository = (*ConnectionAdapter)(nil)
