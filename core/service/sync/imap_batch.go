package sync

import (
	"context"
	"time"

	"voiceout_server/core/domain"
	"voiceout_server/core/port/out"
	"voiceout_server/core/service/classification"
	"voiceout_server/pkg/logger"
)

const (
	// imapLookback restricts the IMAP search window.
	imapLookback = 48 * time.Hour

	// imapBatchLimit keeps only the newest matches per run.
	imapBatchLimit = 20
)

// IMAPBatch syncs Yahoo accounts linked with an app password instead of
// OAuth. It fetches recent unseen mail over IMAP, scores it with the keyword
// heuristic only, and upserts qualified inquiries keyed by message ID.
type IMAPBatch struct {
	connections out.ConnectionRepository
	inquiries   out.InquiryRepository
	mailbox     out.IMAPPort
	classifier  *classification.HeuristicClassifier
	server      string
	now         func() time.Time
}

func NewIMAPBatch(
	connections out.ConnectionRepository,
	inquiries out.InquiryRepository,
	mailbox out.IMAPPort,
	server string,
) *IMAPBatch {
	return &IMAPBatch{
		connections: connections,
		inquiries:   inquiries,
		mailbox:     mailbox,
		classifier:  classification.NewHeuristicClassifier(),
		server:      server,
		now:         time.Now,
	}
}

// Run processes every app-password Yahoo connection once. Per-connection
// failures are logged and do not stop the batch.
func (b *IMAPBatch) Run(ctx context.Context) {
	connections, err := b.connections.ListActive(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to list connections for IMAP batch")
		return
	}

	for _, conn := range connections {
		if ctx.Err() != nil {
			return
		}
		if !b.eligible(conn) {
			continue
		}
		if err := b.syncMailbox(ctx, conn); err != nil {
			logger.WithError(err).WithField("connection_id", conn.ID).Warn("IMAP batch sync failed")
		}
	}
}

// eligible selects Yahoo connections without a refresh token: those hold an
// app password instead of OAuth credentials.
func (b *IMAPBatch) eligible(conn *domain.Connection) bool {
	return conn.Provider == domain.ProviderYahoo && !conn.HasRefreshToken() && conn.AccessToken != ""
}

func (b *IMAPBatch) syncMailbox(ctx context.Context, conn *domain.Connection) error {
	creds := out.IMAPCredentials{
		Server:   b.server,
		Username: conn.Email,
		Password: conn.AccessToken,
	}
	opts := out.IMAPFetchOptions{
		Since: b.now().Add(-imapLookback),
		Limit: imapBatchLimit,
	}

	emails, err := b.mailbox.FetchUnseen(ctx, creds, opts)
	if err != nil {
		return err
	}

	created := 0
	for _, email := range emails {
		verdict, err := b.classifier.Classify(ctx, classification.NewInput(email))
		if err != nil || !verdict.IsQualified {
			continue
		}
		wasCreated, err := b.inquiries.Upsert(ctx, buildInquiry(conn, email, verdict))
		if err != nil {
			return err
		}
		if wasCreated {
			created++
		}
	}

	logger.WithFields(map[string]any{
		"connection_id":     conn.ID,
		"emails_fetched":    len(emails),
		"inquiries_created": created,
	}).Info("IMAP batch completed")
	return nil
}
