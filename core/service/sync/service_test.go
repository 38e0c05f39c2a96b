package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"voiceout_server/core/domain"
	"voiceout_server/core/port/out"
	"voiceout_server/core/service/classification"
	"voiceout_server/pkg/apperr"

	"github.com/google/uuid"
)

// ===== Fakes =====

type fakeConnRepo struct {
	conns      map[int64]*domain.Connection
	syncedAt   []time.Time
	markErrors []string
}

func (r *fakeConnRepo) GetByID(_ context.Context, id int64) (*domain.Connection, error) {
	conn, ok := r.conns[id]
	if !ok {
		return nil, out.ErrNotFound
	}
	copied := *conn
	return &copied, nil
}

func (r *fakeConnRepo) ListByTent(context.Context, uuid.UUID) ([]*domain.Connection, error) {
	return nil, nil
}

func (r *fakeConnRepo) ListActive(context.Context) ([]*domain.Connection, error) {
	var active []*domain.Connection
	for _, conn := range r.conns {
		if conn.IsActive {
			active = append(active, conn)
		}
	}
	return active, nil
}

func (r *fakeConnRepo) UpdateTokens(context.Context, int64, out.TokenPair) error { return nil }

func (r *fakeConnRepo) MarkSynced(_ context.Context, id int64, at time.Time) error {
	r.syncedAt = append(r.syncedAt, at)
	if conn, ok := r.conns[id]; ok {
		conn.LastSyncAt = &at
		conn.SyncStatus = domain.SyncStatusActive
		conn.ErrorMessage = nil
	}
	return nil
}

func (r *fakeConnRepo) MarkError(_ context.Context, id int64, message string) error {
	r.markErrors = append(r.markErrors, message)
	if conn, ok := r.conns[id]; ok {
		conn.SyncStatus = domain.SyncStatusError
		conn.ErrorMessage = &message
	}
	return nil
}

func (r *fakeConnRepo) Disconnect(context.Context, int64) error { return nil }

type fakeInquiryRepo struct {
	rows      map[string]*domain.Inquiry
	upserts   int
	failAfter int // fail the (failAfter+1)th successful upsert; 0 disables
}

func (r *fakeInquiryRepo) Upsert(_ context.Context, inquiry *domain.Inquiry) (bool, error) {
	if r.failAfter > 0 && r.upserts >= r.failAfter {
		return false, errors.New("connection refused")
	}
	r.upserts++
	if r.rows == nil {
		r.rows = make(map[string]*domain.Inquiry)
	}
	key := fmt.Sprintf("%d:%s", inquiry.ConnectionID, inquiry.EmailID)
	_, exists := r.rows[key]
	r.rows[key] = inquiry
	return !exists, nil
}

func (r *fakeInquiryRepo) ListByConnection(context.Context, int64, int) ([]*domain.Inquiry, error) {
	return nil, nil
}

type fakeSyncLogRepo struct {
	logs   map[int64]*domain.SyncLog
	nextID int64
}

func (r *fakeSyncLogRepo) Create(_ context.Context, log *domain.SyncLog) error {
	if r.logs == nil {
		r.logs = make(map[int64]*domain.SyncLog)
	}
	r.nextID++
	log.ID = r.nextID
	log.Status = domain.SyncLogStatusRunning
	copied := *log
	r.logs[log.ID] = &copied
	return nil
}

func (r *fakeSyncLogRepo) Complete(_ context.Context, id int64, fetched, created int) error {
	log, ok := r.logs[id]
	if !ok || log.IsFinal() {
		return out.ErrNotFound
	}
	now := time.Now()
	log.Status = domain.SyncLogStatusCompleted
	log.CompletedAt = &now
	log.EmailsFetched = fetched
	log.InquiriesCreated = created
	return nil
}

func (r *fakeSyncLogRepo) Fail(_ context.Context, id int64, fetched, created int, details string) error {
	log, ok := r.logs[id]
	if !ok || log.IsFinal() {
		return out.ErrNotFound
	}
	now := time.Now()
	log.Status = domain.SyncLogStatusFailed
	log.CompletedAt = &now
	log.EmailsFetched = fetched
	log.InquiriesCreated = created
	log.ErrorDetails = &details
	return nil
}

func (r *fakeSyncLogRepo) ListByConnection(context.Context, int64, int) ([]*domain.SyncLog, error) {
	return nil, nil
}

type fakeProvider struct {
	provider domain.Provider
	emails   []*domain.RawEmail
	err      error
	lastOpts out.FetchOptions
}

func (p *fakeProvider) Provider() domain.Provider { return p.provider }

func (p *fakeProvider) FetchSince(_ context.Context, _ *domain.Connection, opts out.FetchOptions) ([]*domain.RawEmail, error) {
	p.lastOpts = opts
	if p.err != nil {
		return nil, p.err
	}
	return p.emails, nil
}

type fakeLocker struct {
	held     bool
	err      error
	releases int
}

func (l *fakeLocker) Acquire(context.Context, int64, time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	return !l.held, nil
}

func (l *fakeLocker) Release(context.Context, int64) error {
	l.releases++
	return nil
}

// ===== Fixtures =====

func sponsorshipEmail(id string) *domain.RawEmail {
	return &domain.RawEmail{
		ID:      id,
		From:    domain.EmailAddress{Name: "Jamie", Email: "jamie@brand.example"},
		Subject: "Sponsorship opportunity",
		BodyText: "Hi Alex, our brand would love to sponsor your next video. " +
			"Our budget is $2000. Best regards, Jamie",
		ReceivedAt: time.Now().Add(-time.Hour),
	}
}

func personalEmail(id string) *domain.RawEmail {
	return &domain.RawEmail{
		ID:         id,
		From:       domain.EmailAddress{Name: "Sam", Email: "sam@friend.example"},
		Subject:    "Lunch tomorrow?",
		BodyText:   "See you at noon.",
		ReceivedAt: time.Now().Add(-time.Hour),
	}
}

type harness struct {
	service   *Service
	conns     *fakeConnRepo
	inquiries *fakeInquiryRepo
	syncLogs  *fakeSyncLogRepo
	provider  *fakeProvider
	locker    *fakeLocker
}

func newHarness(emails []*domain.RawEmail) *harness {
	conns := &fakeConnRepo{conns: map[int64]*domain.Connection{
		1: {
			ID:         1,
			TentID:     uuid.New(),
			Provider:   domain.ProviderGmail,
			Email:      "creator@gmail.example",
			IsActive:   true,
			SyncStatus: domain.SyncStatusActive,
		},
	}}
	inquiries := &fakeInquiryRepo{}
	syncLogs := &fakeSyncLogRepo{}
	provider := &fakeProvider{provider: domain.ProviderGmail, emails: emails}
	locker := &fakeLocker{}

	service := NewService(conns, inquiries, syncLogs,
		[]out.EmailProviderPort{provider},
		classification.NewHeuristicClassifier(), locker)

	return &harness{service, conns, inquiries, syncLogs, provider, locker}
}

// ===== Tests =====

func TestSyncConnectionHappyPath(t *testing.T) {
	h := newHarness([]*domain.RawEmail{
		sponsorshipEmail("e1"),
		personalEmail("e2"),
		sponsorshipEmail("e3"),
	})

	result, err := h.service.SyncConnection(context.Background(), 1)
	if err != nil {
		t.Fatalf("SyncConnection() error = %v", err)
	}

	if result.EmailsFetched != 3 {
		t.Errorf("EmailsFetched = %d, want 3", result.EmailsFetched)
	}
	if result.InquiriesCreated != 2 {
		t.Errorf("InquiriesCreated = %d, want 2", result.InquiriesCreated)
	}

	log := h.syncLogs.logs[1]
	if log.Status != domain.SyncLogStatusCompleted {
		t.Errorf("sync log status = %q, want completed", log.Status)
	}
	if log.EmailsFetched != 3 || log.InquiriesCreated != 2 {
		t.Errorf("sync log counts = %d/%d, want 3/2", log.EmailsFetched, log.InquiriesCreated)
	}
	if len(h.conns.syncedAt) != 1 {
		t.Errorf("MarkSynced calls = %d, want 1", len(h.conns.syncedAt))
	}
	if h.locker.releases != 1 {
		t.Errorf("lock releases = %d, want 1", h.locker.releases)
	}
	if h.provider.lastOpts.MaxResults != 50 {
		t.Errorf("MaxResults = %d, want 50", h.provider.lastOpts.MaxResults)
	}
}

func TestSyncConnectionIdempotentRerun(t *testing.T) {
	h := newHarness([]*domain.RawEmail{sponsorshipEmail("e1"), sponsorshipEmail("e3")})

	first, err := h.service.SyncConnection(context.Background(), 1)
	if err != nil {
		t.Fatalf("first sync error = %v", err)
	}
	if first.InquiriesCreated != 2 {
		t.Fatalf("first InquiriesCreated = %d, want 2", first.InquiriesCreated)
	}

	second, err := h.service.SyncConnection(context.Background(), 1)
	if err != nil {
		t.Fatalf("second sync error = %v", err)
	}
	if second.EmailsFetched != 2 {
		t.Errorf("second EmailsFetched = %d, want 2", second.EmailsFetched)
	}
	if second.InquiriesCreated != 0 {
		t.Errorf("second InquiriesCreated = %d, want 0 (already seen)", second.InquiriesCreated)
	}
}

func TestSyncConnectionNotFound(t *testing.T) {
	h := newHarness(nil)

	_, err := h.service.SyncConnection(context.Background(), 999)
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
	if len(h.syncLogs.logs) != 0 {
		t.Errorf("sync logs created = %d, want 0", len(h.syncLogs.logs))
	}
}

func TestSyncConnectionUnsupportedProvider(t *testing.T) {
	h := newHarness(nil)
	h.conns.conns[1].Provider = domain.ProviderOther

	_, err := h.service.SyncConnection(context.Background(), 1)
	if !apperr.IsCode(err, apperr.CodeValidation) {
		t.Errorf("error = %v, want VALIDATION_ERROR", err)
	}
}

func TestSyncConnectionInactive(t *testing.T) {
	h := newHarness(nil)
	h.conns.conns[1].IsActive = false

	_, err := h.service.SyncConnection(context.Background(), 1)
	if !apperr.IsCode(err, apperr.CodeValidation) {
		t.Errorf("error = %v, want VALIDATION_ERROR", err)
	}
}

func TestSyncConnectionLockContention(t *testing.T) {
	h := newHarness(nil)
	h.locker.held = true

	_, err := h.service.SyncConnection(context.Background(), 1)
	if !apperr.IsCode(err, apperr.CodeValidation) {
		t.Errorf("error = %v, want VALIDATION_ERROR", err)
	}
	if len(h.syncLogs.logs) != 0 {
		t.Errorf("sync logs created = %d, want 0", len(h.syncLogs.logs))
	}
}

func TestSyncConnectionLockerOutageDoesNotBlock(t *testing.T) {
	h := newHarness([]*domain.RawEmail{sponsorshipEmail("e1")})
	h.locker.err = errors.New("redis down")

	result, err := h.service.SyncConnection(context.Background(), 1)
	if err != nil {
		t.Fatalf("SyncConnection() error = %v", err)
	}
	if result.InquiriesCreated != 1 {
		t.Errorf("InquiriesCreated = %d, want 1", result.InquiriesCreated)
	}
}

func TestSyncConnectionProviderFailure(t *testing.T) {
	h := newHarness(nil)
	h.provider.err = out.NewProviderError("gmail", out.ProviderErrServer, "upstream down", nil)

	_, err := h.service.SyncConnection(context.Background(), 1)
	if !apperr.IsCode(err, apperr.CodeProvider) {
		t.Errorf("error = %v, want PROVIDER_ERROR", err)
	}

	log := h.syncLogs.logs[1]
	if log.Status != domain.SyncLogStatusFailed {
		t.Errorf("sync log status = %q, want failed", log.Status)
	}
	if log.ErrorDetails == nil {
		t.Error("sync log error details missing")
	}
	if len(h.conns.markErrors) != 1 {
		t.Errorf("MarkError calls = %d, want 1", len(h.conns.markErrors))
	}
	if h.conns.conns[1].SyncStatus != domain.SyncStatusError {
		t.Errorf("connection status = %q, want error", h.conns.conns[1].SyncStatus)
	}
}

func TestSyncConnectionAuthExpiry(t *testing.T) {
	h := newHarness(nil)
	h.provider.err = out.NewProviderError("gmail", out.ProviderErrTokenExpired, "token expired", nil)

	_, err := h.service.SyncConnection(context.Background(), 1)
	// An expiry the refresh flow could not recover is a pipeline failure,
	// not a caller authentication error.
	if !apperr.IsCode(err, apperr.CodeSyncFailure) {
		t.Errorf("error = %v, want SYNC_FAILURE", err)
	}
	var appErr *apperr.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error %v is not an AppError", err)
	}
	var cause *apperr.AppError
	if !errors.As(appErr.Err, &cause) || cause.Code != apperr.CodeAuthExpired {
		t.Errorf("cause = %v, want AUTH_EXPIRED in the chain", appErr.Err)
	}
	if h.syncLogs.logs[1].Status != domain.SyncLogStatusFailed {
		t.Errorf("sync log status = %q, want failed", h.syncLogs.logs[1].Status)
	}
	details := h.syncLogs.logs[1].ErrorDetails
	if details == nil || !strings.Contains(*details, "authentication expired") {
		t.Errorf("error details = %v, want the auth cause recorded", details)
	}
}

func TestSyncConnectionKeepsPartialProgressOnUpsertFailure(t *testing.T) {
	h := newHarness([]*domain.RawEmail{
		sponsorshipEmail("e1"),
		personalEmail("e2"),
		sponsorshipEmail("e3"),
	})
	h.inquiries.failAfter = 1

	_, err := h.service.SyncConnection(context.Background(), 1)
	if !apperr.IsCode(err, apperr.CodeSyncFailure) {
		t.Fatalf("error = %v, want SYNC_FAILURE", err)
	}

	appErr := apperr.AsAppError(err)
	if appErr.Message != "Failed to sync emails" {
		t.Errorf("message = %q, want %q", appErr.Message, "Failed to sync emails")
	}

	// The first inquiry survives the failure.
	log := h.syncLogs.logs[1]
	if log.Status != domain.SyncLogStatusFailed {
		t.Errorf("sync log status = %q, want failed", log.Status)
	}
	if log.EmailsFetched != 3 || log.InquiriesCreated != 1 {
		t.Errorf("sync log counts = %d/%d, want 3/1", log.EmailsFetched, log.InquiriesCreated)
	}
	if len(h.inquiries.rows) != 1 {
		t.Errorf("persisted inquiries = %d, want 1", len(h.inquiries.rows))
	}
}

func TestSyncConnectionWindowStart(t *testing.T) {
	h := newHarness(nil)

	lastSync := time.Now().Add(-2 * time.Hour)
	h.conns.conns[1].LastSyncAt = &lastSync

	if _, err := h.service.SyncConnection(context.Background(), 1); err != nil {
		t.Fatalf("SyncConnection() error = %v", err)
	}
	if !h.provider.lastOpts.Since.Equal(lastSync) {
		t.Errorf("Since = %v, want last sync %v", h.provider.lastOpts.Since, lastSync)
	}

	// Without a previous sync the window falls back to the lookback cutoff.
	h.conns.conns[1].LastSyncAt = nil
	if _, err := h.service.SyncConnection(context.Background(), 1); err != nil {
		t.Fatalf("SyncConnection() error = %v", err)
	}
	wantCutoff := time.Now().Add(-defaultLookback)
	if diff := h.provider.lastOpts.Since.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("Since = %v, want about %v", h.provider.lastOpts.Since, wantCutoff)
	}
}
