package in

import (
	"context"

	"voiceout_server/core/domain"

	"github.com/google/uuid"
)

// ConnectionUseCase exposes connection management and audit reads to the
// HTTP layer.
type ConnectionUseCase interface {
	ListConnections(ctx context.Context, tentID uuid.UUID) ([]*domain.Connection, error)
	GetConnection(ctx context.Context, id int64) (*domain.Connection, error)
	// Disconnect deactivates the connection and discards its credentials.
	Disconnect(ctx context.Context, id int64) error
	ListSyncLogs(ctx context.Context, connectionID int64, limit int) ([]*domain.SyncLog, error)
	ListInquiries(ctx context.Context, connectionID int64, limit int) ([]*domain.Inquiry, error)
}
