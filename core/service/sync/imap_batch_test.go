package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"voiceout_server/core/domain"
	"voiceout_server/core/port/out"

	"github.com/google/uuid"
)

type fakeMailbox struct {
	emails []*domain.RawEmail
	err    error
	creds  []out.IMAPCredentials
	opts   []out.IMAPFetchOptions
}

func (f *fakeMailbox) FetchUnseen(_ context.Context, creds out.IMAPCredentials, opts out.IMAPFetchOptions) ([]*domain.RawEmail, error) {
	f.creds = append(f.creds, creds)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.emails, nil
}

func yahooAppPasswordConnection(id int64) *domain.Connection {
	return &domain.Connection{
		ID:          id,
		TentID:      uuid.New(),
		Provider:    domain.ProviderYahoo,
		Email:       "creator@yahoo.example",
		AccessToken: "app-password",
		IsActive:    true,
		SyncStatus:  domain.SyncStatusActive,
	}
}

func TestIMAPBatchEligibility(t *testing.T) {
	oauthYahoo := yahooAppPasswordConnection(2)
	oauthYahoo.RefreshToken = "rt-1"
	gmail := yahooAppPasswordConnection(3)
	gmail.Provider = domain.ProviderGmail
	empty := yahooAppPasswordConnection(4)
	empty.AccessToken = ""

	conns := &fakeConnRepo{conns: map[int64]*domain.Connection{
		1: yahooAppPasswordConnection(1),
		2: oauthYahoo,
		3: gmail,
		4: empty,
	}}
	mailbox := &fakeMailbox{}
	batch := NewIMAPBatch(conns, &fakeInquiryRepo{}, mailbox, "imap.mail.yahoo.example:993")

	batch.Run(context.Background())

	// Only the app-password Yahoo account is synced over IMAP.
	if len(mailbox.creds) != 1 {
		t.Fatalf("mailbox fetches = %d, want 1", len(mailbox.creds))
	}
	creds := mailbox.creds[0]
	if creds.Server != "imap.mail.yahoo.example:993" {
		t.Errorf("server = %q, want the configured IMAP server", creds.Server)
	}
	if creds.Username != "creator@yahoo.example" || creds.Password != "app-password" {
		t.Errorf("credentials = {%q, %q}, want the connection email and app password", creds.Username, creds.Password)
	}
}

func TestIMAPBatchFetchWindow(t *testing.T) {
	conns := &fakeConnRepo{conns: map[int64]*domain.Connection{
		1: yahooAppPasswordConnection(1),
	}}
	mailbox := &fakeMailbox{}
	batch := NewIMAPBatch(conns, &fakeInquiryRepo{}, mailbox, "imap.mail.yahoo.example:993")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	batch.now = func() time.Time { return now }

	batch.Run(context.Background())

	if len(mailbox.opts) != 1 {
		t.Fatalf("mailbox fetches = %d, want 1", len(mailbox.opts))
	}
	opts := mailbox.opts[0]
	if want := now.Add(-48 * time.Hour); !opts.Since.Equal(want) {
		t.Errorf("Since = %v, want %v", opts.Since, want)
	}
	if opts.Limit != 20 {
		t.Errorf("Limit = %d, want 20", opts.Limit)
	}
}

func TestIMAPBatchUpsertsQualifiedOnly(t *testing.T) {
	conns := &fakeConnRepo{conns: map[int64]*domain.Connection{
		1: yahooAppPasswordConnection(1),
	}}
	inquiries := &fakeInquiryRepo{}
	mailbox := &fakeMailbox{emails: []*domain.RawEmail{
		sponsorshipEmail("m1"),
		personalEmail("m2"),
		sponsorshipEmail("m3"),
	}}
	batch := NewIMAPBatch(conns, inquiries, mailbox, "imap.mail.yahoo.example:993")

	batch.Run(context.Background())

	if len(inquiries.rows) != 2 {
		t.Fatalf("persisted inquiries = %d, want 2", len(inquiries.rows))
	}
	for key, inquiry := range inquiries.rows {
		if !inquiry.IsBusinessInquiry {
			t.Errorf("inquiry %s persisted without qualifying", key)
		}
		if inquiry.ConnectionID != 1 {
			t.Errorf("inquiry %s connection = %d, want 1", key, inquiry.ConnectionID)
		}
	}
}

func TestIMAPBatchRerunIsIdempotent(t *testing.T) {
	conns := &fakeConnRepo{conns: map[int64]*domain.Connection{
		1: yahooAppPasswordConnection(1),
	}}
	inquiries := &fakeInquiryRepo{}
	mailbox := &fakeMailbox{emails: []*domain.RawEmail{sponsorshipEmail("m1")}}
	batch := NewIMAPBatch(conns, inquiries, mailbox, "imap.mail.yahoo.example:993")

	batch.Run(context.Background())
	batch.Run(context.Background())

	if len(inquiries.rows) != 1 {
		t.Fatalf("persisted inquiries = %d, want 1 after rerun", len(inquiries.rows))
	}
}

func TestIMAPBatchMailboxFailureDoesNotPanic(t *testing.T) {
	conns := &fakeConnRepo{conns: map[int64]*domain.Connection{
		1: yahooAppPasswordConnection(1),
	}}
	inquiries := &fakeInquiryRepo{}
	mailbox := &fakeMailbox{err: errors.New("login failed")}
	batch := NewIMAPBatch(conns, inquiries, mailbox, "imap.mail.yahoo.example:993")

	batch.Run(context.Background())

	if len(inquiries.rows) != 0 {
		t.Errorf("persisted inquiries = %d, want 0", len(inquiries.rows))
	}
}
