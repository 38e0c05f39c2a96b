// Package connection implements connection management reads and disconnect.
package connection

import (
	"context"
	"errors"

	"voiceout_server/core/domain"
	"voiceout_server/core/port/in"
	"voiceout_server/core/port/out"
	"voiceout_server/pkg/apperr"

	"github.com/google/uuid"
)

// Service implements in.ConnectionUseCase.
type Service struct {
	connections out.ConnectionRepository
	syncLogs    out.SyncLogRepository
	inquiries   out.InquiryRepository
}

func NewService(
	connections out.ConnectionRepository,
	syncLogs out.SyncLogRepository,
	inquiries out.InquiryRepository,
) *Service {
	return &Service{
		connections: connections,
		syncLogs:    syncLogs,
		inquiries:   inquiries,
	}
}

func (s *Service) ListConnections(ctx context.Context, tentID uuid.UUID) ([]*domain.Connection, error) {
	connections, err := s.connections.ListByTent(ctx, tentID)
	if err != nil {
		return nil, apperr.DatabaseError("list connections", err)
	}
	return connections, nil
}

func (s *Service) GetConnection(ctx context.Context, id int64) (*domain.Connection, error) {
	conn, err := s.connections.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotFound("email connection")
		}
		return nil, apperr.DatabaseError("get connection", err)
	}
	return conn, nil
}

func (s *Service) Disconnect(ctx context.Context, id int64) error {
	if err := s.connections.Disconnect(ctx, id); err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return apperr.NotFound("email connection")
		}
		return apperr.DatabaseError("disconnect connection", err)
	}
	return nil
}

func (s *Service) ListSyncLogs(ctx context.Context, connectionID int64, limit int) ([]*domain.SyncLog, error) {
	// Resolve first so an unknown connection is a 404, not an empty list.
	if _, err := s.GetConnection(ctx, connectionID); err != nil {
		return nil, err
	}
	logs, err := s.syncLogs.ListByConnection(ctx, connectionID, limit)
	if err != nil {
		return nil, apperr.DatabaseError("list sync logs", err)
	}
	return logs, nil
}

func (s *Service) ListInquiries(ctx context.Context, connectionID int64, limit int) ([]*domain.Inquiry, error) {
	if _, err := s.GetConnection(ctx, connectionID); err != nil {
		return nil, err
	}
	inquiries, err := s.inquiries.ListByConnection(ctx, connectionID, limit)
	if err != nil {
		return nil, apperr.DatabaseError("list inquiries", err)
	}
	return inquiries, nil
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ in.ConnectionUseCase = (*Service)(nil)
