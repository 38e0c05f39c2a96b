package provider

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"time"

	"voiceout_server/core/domain"
	"voiceout_server/core/port/out"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	gomail "github.com/emersion/go-message/mail"
)

// =============================================================================
// IMAP Client
// =============================================================================

// IMAPClient fetches unseen messages over IMAP with an app password. Used
// for Yahoo accounts linked without OAuth.
type IMAPClient struct {
	dialTimeout time.Duration
}

func NewIMAPClient() *IMAPClient {
	return &IMAPClient{dialTimeout: 5 * time.Second}
}

func (c *IMAPClient) FetchUnseen(ctx context.Context, creds out.IMAPCredentials, opts out.IMAPFetchOptions) ([]*domain.RawEmail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: c.dialTimeout}
	conn, err := client.DialWithDialerTLS(dialer, creds.Server, nil)
	if err != nil {
		return nil, out.NewProviderError("imap", out.ProviderErrNetwork, "failed to connect", err)
	}
	defer conn.Logout()

	if err := conn.Login(creds.Username, creds.Password); err != nil {
		return nil, out.NewProviderError("imap", out.ProviderErrAuth, "login rejected", err)
	}

	if _, err := conn.Select("INBOX", true); err != nil {
		return nil, out.NewProviderError("imap", out.ProviderErrServer, "failed to select inbox", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if !opts.Since.IsZero() {
		criteria.Since = opts.Since
	}

	uids, err := conn.UidSearch(criteria)
	if err != nil {
		return nil, out.NewProviderError("imap", out.ProviderErrServer, "search failed", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	// UIDs ascend with arrival, so the tail of the sorted list is the newest.
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if opts.Limit > 0 && len(uids) > opts.Limit {
		uids = uids[len(uids)-opts.Limit:]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- conn.UidFetch(seqSet, items, messages)
	}()

	var emails []*domain.RawEmail
	for msg := range messages {
		if email := convertIMAPMessage(msg, section); email != nil {
			emails = append(emails, email)
		}
	}
	if err := <-done; err != nil {
		return nil, out.NewProviderError("imap", out.ProviderErrServer, "fetch failed", err)
	}
	return emails, nil
}

func convertIMAPMessage(msg *imap.Message, section *imap.BodySectionName) *domain.RawEmail {
	if msg == nil || msg.Envelope == nil {
		return nil
	}

	email := &domain.RawEmail{
		ID:         msg.Envelope.MessageId,
		Subject:    msg.Envelope.Subject,
		ReceivedAt: msg.Envelope.Date,
	}
	if email.ID == "" {
		email.ID = fmt.Sprintf("imap-%d", msg.Uid)
	}
	if len(msg.Envelope.From) > 0 {
		from := msg.Envelope.From[0]
		email.From = domain.EmailAddress{
			Name:  from.PersonalName,
			Email: from.Address(),
		}
	}

	body := msg.GetBody(section)
	if body == nil {
		return email
	}
	mr, err := gomail.CreateReader(body)
	if err != nil {
		return email
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		header, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := header.ContentType()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch contentType {
		case "text/plain":
			if email.BodyText == "" {
				email.BodyText = string(data)
			}
		case "text/html":
			if email.BodyHTML == "" {
				email.BodyHTML = string(data)
			}
		}
	}
	return email
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.IMAPPort = (*IMAPClient)(nil)
