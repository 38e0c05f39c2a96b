// Package sync orchestrates the fetch-classify-persist pipeline for one
// connection: resolve, audit log, provider fetch, classification, inquiry
// upsert, bookkeeping. Progress is never rolled back; a failure finalizes
// the audit log with whatever counts were reached.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voiceout_server/core/domain"
	"voiceout_server/core/port/in"
	"voiceout_server/core/port/out"
	"voiceout_server/core/service/classification"
	"voiceout_server/pkg/apperr"
	"voiceout_server/pkg/logger"
)

const (
	// defaultLookback bounds the first sync (and any sync after a long gap)
	// to the last seven days.
	defaultLookback = 7 * 24 * time.Hour

	// maxEmailsPerSync caps candidate messages per invocation.
	maxEmailsPerSync = 50

	lockTTL = 10 * time.Minute
)

// Service implements in.SyncUseCase.
type Service struct {
	connections out.ConnectionRepository
	inquiries   out.InquiryRepository
	syncLogs    out.SyncLogRepository
	providers   map[domain.Provider]out.EmailProviderPort
	classifier  classification.Classifier
	locker      out.SyncLocker

	lookback time.Duration
	now      func() time.Time
}

func NewService(
	connections out.ConnectionRepository,
	inquiries out.InquiryRepository,
	syncLogs out.SyncLogRepository,
	providers []out.EmailProviderPort,
	classifier classification.Classifier,
	locker out.SyncLocker,
) *Service {
	providerMap := make(map[domain.Provider]out.EmailProviderPort, len(providers))
	for _, p := range providers {
		providerMap[p.Provider()] = p
	}
	return &Service{
		connections: connections,
		inquiries:   inquiries,
		syncLogs:    syncLogs,
		providers:   providerMap,
		classifier:  classifier,
		locker:      locker,
		lookback:    defaultLookback,
		now:         time.Now,
	}
}

// SyncConnection runs one sync for the connection.
func (s *Service) SyncConnection(ctx context.Context, connectionID int64) (*in.SyncResult, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotFound("email connection")
		}
		return nil, apperr.DatabaseError("get connection", err)
	}

	if !conn.IsActive {
		return nil, apperr.Validation("connection is disconnected")
	}
	if !conn.Provider.IsSupported() {
		return nil, apperr.Validation(fmt.Sprintf("unsupported provider: %s", conn.Provider))
	}
	provider, ok := s.providers[conn.Provider]
	if !ok {
		return nil, apperr.Internal(fmt.Sprintf("no adapter registered for provider %s", conn.Provider))
	}

	if s.locker != nil {
		acquired, lockErr := s.locker.Acquire(ctx, connectionID, lockTTL)
		if lockErr != nil {
			// Lock is best effort; a broken Redis must not stop syncing.
			logger.WithError(lockErr).WithField("connection_id", connectionID).Warn("Sync lock unavailable, proceeding")
		} else if !acquired {
			return nil, apperr.Validation("sync already in progress")
		} else {
			defer func() {
				if releaseErr := s.locker.Release(context.WithoutCancel(ctx), connectionID); releaseErr != nil {
					logger.WithError(releaseErr).WithField("connection_id", connectionID).Warn("Failed to release sync lock")
				}
			}()
		}
	}

	syncLog := &domain.SyncLog{ConnectionID: connectionID, StartedAt: s.now()}
	if err := s.syncLogs.Create(ctx, syncLog); err != nil {
		return nil, apperr.DatabaseError("create sync log", err)
	}

	log := logger.WithFields(map[string]any{
		"connection_id": connectionID,
		"provider":      string(conn.Provider),
		"sync_log_id":   syncLog.ID,
	})
	log.Info("Sync started")

	opts := out.FetchOptions{
		MaxResults: maxEmailsPerSync,
		Since:      conn.SyncWindowStart(s.now(), s.lookback),
	}
	emails, err := provider.FetchSince(ctx, conn, opts)
	if err != nil {
		mapped := s.mapProviderError(string(conn.Provider), err)
		s.failSync(ctx, conn, syncLog.ID, 0, 0, mapped)
		return nil, mapped
	}

	fetched := len(emails)
	created := 0
	for _, email := range emails {
		wasCreated, err := s.processEmail(ctx, conn, email)
		if err != nil {
			mapped := apperr.SyncFailure(err)
			s.failSync(ctx, conn, syncLog.ID, fetched, created, mapped)
			return nil, mapped
		}
		if wasCreated {
			created++
		}
	}

	if err := s.syncLogs.Complete(ctx, syncLog.ID, fetched, created); err != nil {
		log.WithError(err).Warn("Failed to finalize sync log")
	}
	if err := s.connections.MarkSynced(ctx, connectionID, s.now()); err != nil {
		log.WithError(err).Warn("Failed to update connection after sync")
	}

	log.WithFields(map[string]any{
		"emails_fetched":    fetched,
		"inquiries_created": created,
	}).Info("Sync completed")

	return &in.SyncResult{EmailsFetched: fetched, InquiriesCreated: created}, nil
}

// processEmail classifies one message and upserts it when qualified. Returns
// whether a new inquiry row was created. Classification never fails the
// sync; only a persistence failure propagates.
func (s *Service) processEmail(ctx context.Context, conn *domain.Connection, email *domain.RawEmail) (bool, error) {
	verdict, err := s.classifier.Classify(ctx, classification.NewInput(email))
	if err != nil {
		logger.WithError(err).WithField("email_id", email.ID).Warn("Classification failed, skipping message")
		return false, nil
	}
	if !verdict.IsQualified {
		return false, nil
	}

	inquiry := buildInquiry(conn, email, verdict)
	return s.inquiries.Upsert(ctx, inquiry)
}

// failSync finalizes the audit trail after a pipeline failure. Partial counts
// are kept; the finalization itself is best effort.
func (s *Service) failSync(ctx context.Context, conn *domain.Connection, syncLogID int64, fetched, created int, cause error) {
	ctx = context.WithoutCancel(ctx)

	if err := s.syncLogs.Fail(ctx, syncLogID, fetched, created, cause.Error()); err != nil {
		logger.WithError(err).WithField("sync_log_id", syncLogID).Warn("Failed to finalize sync log")
	}
	if err := s.connections.MarkError(ctx, conn.ID, cause.Error()); err != nil {
		logger.WithError(err).WithField("connection_id", conn.ID).Warn("Failed to record connection error")
	}

	logger.WithError(cause).WithFields(map[string]any{
		"connection_id": conn.ID,
		"provider":      string(conn.Provider),
	}).Error("Sync failed")
}

func (s *Service) mapProviderError(providerName string, err error) error {
	var pe *out.ProviderError
	if errors.As(err, &pe) {
		switch pe.Code {
		case out.ProviderErrTokenExpired, out.ProviderErrAuth:
			// Credential recovery is exhausted by the time the error reaches
			// here; it surfaces as a sync failure with the auth cause kept in
			// the chain for error_details.
			return apperr.SyncFailure(apperr.AuthExpired(providerName, err))
		}
		return apperr.Provider(providerName, err)
	}
	return apperr.SyncFailure(err)
}

// SyncAll runs one sync for every eligible connection, sequentially. Used by
// the scheduled worker; per-connection failures are logged and do not stop
// the batch.
func (s *Service) SyncAll(ctx context.Context) {
	connections, err := s.connections.ListActive(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to list connections for scheduled sync")
		return
	}

	for _, conn := range connections {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.SyncConnection(ctx, conn.ID); err != nil {
			logger.WithError(err).WithField("connection_id", conn.ID).Warn("Scheduled sync failed")
		}
	}
}

func buildInquiry(conn *domain.Connection, email *domain.RawEmail, verdict *classification.Verdict) *domain.Inquiry {
	return &domain.Inquiry{
		TentID:            conn.TentID,
		ConnectionID:      conn.ID,
		EmailID:           email.ID,
		ThreadID:          email.ThreadID,
		SenderName:        email.From.Name,
		SenderEmail:       email.From.Email,
		Subject:           email.Subject,
		BodyText:          email.BodyText,
		BodyHTML:          email.BodyHTML,
		ReceivedAt:        email.ReceivedAt,
		InquiryType:       verdict.InquiryType,
		Extracted:         verdict.Extracted,
		Score:             verdict.Score,
		SentimentScore:    verdict.SentimentScore,
		IsBusinessInquiry: verdict.IsQualified,
		AISummary:         verdict.Summary,
		Keywords:          verdict.Keywords,
		Status:            domain.InquiryStatusPending,
	}
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ in.SyncUseCase = (*Service)(nil)
