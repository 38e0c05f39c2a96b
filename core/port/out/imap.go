package out

import (
	"context"
	"time"

	"voiceout_server/core/domain"
)

// IMAPCredentials authenticates one mailbox over IMAP. Password is an app
// password, decrypted at the point of use and never logged.
type IMAPCredentials struct {
	Server   string
	Username string
	Password string
}

// IMAPFetchOptions bounds an IMAP batch fetch.
type IMAPFetchOptions struct {
	// Since restricts the search to messages received after it.
	Since time.Time
	// Limit keeps only the newest N matches.
	Limit int
}

// IMAPPort fetches unseen messages from a mailbox over IMAP.
type IMAPPort interface {
	FetchUnseen(ctx context.Context, creds IMAPCredentials, opts IMAPFetchOptions) ([]*domain.RawEmail, error)
}
