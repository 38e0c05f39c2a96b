package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"time"

	"voiceout_server/core/domain"
	"voiceout_server/core/port/out"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// =============================================================================
// Gmail Adapter
// =============================================================================

// GmailAdapter fetches unread messages through the Gmail API. Token refresh
// is delegated to the oauth2 token source, so there is no explicit retry
// path here; a failed refresh surfaces as an auth error on the first call.
type GmailAdapter struct {
	config  *oauth2.Config
	breaker *gobreaker.CircuitBreaker
}

// GmailConfig holds the OAuth client credentials.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
}

func NewGmailAdapter(cfg GmailConfig) *GmailAdapter {
	return &GmailAdapter{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{gmail.GmailReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		breaker: newBreaker("gmail"),
	}
}

func (a *GmailAdapter) Provider() domain.Provider {
	return domain.ProviderGmail
}

func (a *GmailAdapter) FetchSince(ctx context.Context, conn *domain.Connection, opts out.FetchOptions) ([]*domain.RawEmail, error) {
	svc, err := a.getService(ctx, conn)
	if err != nil {
		return nil, err
	}

	max := capResults(opts.MaxResults)
	query := buildGmailQuery(opts.Since)

	listResult, err := executeWithBreaker(a.breaker, "gmail", func() (interface{}, error) {
		resp, err := svc.Users.Messages.List("me").
			Q(query).
			MaxResults(int64(max)).
			Context(ctx).
			Do()
		if err != nil {
			return nil, a.wrapError(err, "failed to list messages")
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	resp := listResult.(*gmail.ListMessagesResponse)

	emails := make([]*domain.RawEmail, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		id := ref.Id
		msgResult, err := executeWithBreaker(a.breaker, "gmail", func() (interface{}, error) {
			msg, err := svc.Users.Messages.Get("me", id).
				Format("full").
				Context(ctx).
				Do()
			if err != nil {
				return nil, a.wrapError(err, "failed to get message")
			}
			return msg, nil
		})
		if err != nil {
			return nil, err
		}
		emails = append(emails, a.convertMessage(msgResult.(*gmail.Message)))
	}
	return emails, nil
}

func (a *GmailAdapter) getService(ctx context.Context, conn *domain.Connection) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		TokenType:    "Bearer",
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(a.config.TokenSource(ctx, token)))
	if err != nil {
		return nil, out.NewProviderError("gmail", out.ProviderErrAuth, "failed to create gmail client", err)
	}
	return svc, nil
}

// buildGmailQuery restricts the listing to unread primary-inbox mail in the
// sync window.
func buildGmailQuery(since time.Time) string {
	return fmt.Sprintf("is:unread after:%d -category:promotions -category:social -category:forums", since.Unix())
}

func (a *GmailAdapter) convertMessage(msg *gmail.Message) *domain.RawEmail {
	email := &domain.RawEmail{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
	}
	if msg.InternalDate > 0 {
		email.ReceivedAt = time.UnixMilli(msg.InternalDate)
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				email.From = parseEmailAddress(h.Value)
			case "Subject":
				email.Subject = h.Value
			case "Date":
				if t, err := mail.ParseDate(h.Value); err == nil {
					email.ReceivedAt = t
				}
			}
		}

		var body messageBody
		extractBody(msg.Payload, &body)
		email.BodyText = body.Text
		email.BodyHTML = body.HTML
	}
	return email
}

type messageBody struct {
	Text string
	HTML string
}

// extractBody walks the MIME tree and keeps the first text/plain and first
// text/html parts.
func extractBody(part *gmail.MessagePart, body *messageBody) {
	if part == nil {
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if body.Text == "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					body.Text = string(data)
				}
			}
		case "text/html":
			if body.HTML == "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					body.HTML = string(data)
				}
			}
		}
	}

	for _, p := range part.Parts {
		extractBody(p, body)
	}
}

func (a *GmailAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 401:
			return out.NewProviderError("gmail", out.ProviderErrTokenExpired, "token expired", err)
		case 403:
			return out.NewProviderError("gmail", out.ProviderErrAuth, "access denied", err)
		case 404:
			return out.NewProviderError("gmail", out.ProviderErrNotFound, "not found", err)
		case 429:
			return out.NewProviderError("gmail", out.ProviderErrRateLimit, "too many requests", err)
		case 500, 502, 503:
			return out.NewProviderError("gmail", out.ProviderErrServer, "server error", err)
		}
	}

	return out.NewProviderError("gmail", out.ProviderErrServer, defaultMsg, err)
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.EmailProviderPort = (*GmailAdapter)(nil)
