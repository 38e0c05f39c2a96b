package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"voiceout_server/core/domain"
	"voiceout_server/core/port/out"
	"voiceout_server/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
)

const (
	yahooBaseURL  = "https://mail.yahooapis.com"
	yahooAuthURL  = "https://api.login.yahoo.com/oauth2/request_auth"
	yahooTokenURL = "https://api.login.yahoo.com/oauth2/get_token"
)

// =============================================================================
// Yahoo Adapter
// =============================================================================

// YahooAdapter fetches unread messages through the Yahoo Mail JSON API. Like
// Outlook, an expired access token is refreshed, persisted, and the fetch is
// retried exactly once.
type YahooAdapter struct {
	oauth   *oauth2.Config
	tokens  tokenStore
	breaker *gobreaker.CircuitBreaker
	rest    *restClient
	baseURL string
	refresh func(ctx context.Context, refreshToken string) (*out.TokenPair, error)
}

// YahooConfig holds the Yahoo OAuth app credentials.
type YahooConfig struct {
	ClientID     string
	ClientSecret string
}

func NewYahooAdapter(cfg YahooConfig, tokens tokenStore) *YahooAdapter {
	a := &YahooAdapter{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{"mail-r"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  yahooAuthURL,
				TokenURL: yahooTokenURL,
			},
		},
		tokens:  tokens,
		breaker: newBreaker("yahoo"),
		rest:    newRESTClient("yahoo"),
		baseURL: yahooBaseURL,
	}
	a.refresh = func(ctx context.Context, refreshToken string) (*out.TokenPair, error) {
		return refreshViaOAuth(ctx, a.oauth, refreshToken, "yahoo")
	}
	return a
}

func (a *YahooAdapter) Provider() domain.Provider {
	return domain.ProviderYahoo
}

func (a *YahooAdapter) FetchSince(ctx context.Context, conn *domain.Connection, opts out.FetchOptions) ([]*domain.RawEmail, error) {
	return fetchWithRefresh(ctx, conn, a.tokens, a.refresh, func(accessToken string) ([]*domain.RawEmail, error) {
		return a.fetchMessages(ctx, accessToken, opts)
	})
}

func (a *YahooAdapter) fetchMessages(ctx context.Context, accessToken string, opts out.FetchOptions) ([]*domain.RawEmail, error) {
	mailboxID, err := a.primaryMailbox(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	max := capResults(opts.MaxResults)
	query := fmt.Sprintf("folderType:(INBOX) afterDate:%d count:%d", opts.Since.Unix(), max)
	listURL := fmt.Sprintf("%s/ws/v3/mailboxes/%s/messages/@.select==q?q=%s",
		a.baseURL, mailboxID, url.QueryEscape(query))

	result, err := executeWithBreaker(a.breaker, "yahoo", func() (interface{}, error) {
		var resp yahooMessageList
		if err := a.rest.getJSON(ctx, accessToken, listURL, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, err
	}
	list := result.(*yahooMessageList)

	emails := make([]*domain.RawEmail, 0, len(list.Result.Messages))
	for i := range list.Result.Messages {
		msg := &list.Result.Messages[i]
		if skipYahooMessage(msg) {
			continue
		}
		email := convertYahooMessage(msg)

		body, err := a.fetchBody(ctx, accessToken, mailboxID, msg.ID)
		if err != nil {
			if out.IsTokenExpired(err) {
				return nil, err
			}
			logger.WithError(err).WithField("message_id", msg.ID).Warn("Yahoo body fetch failed, using snippet")
			email.BodyText = msg.Snippet
		} else {
			email.BodyText = body.Text
			email.BodyHTML = body.HTML
		}
		emails = append(emails, email)
	}
	return emails, nil
}

func (a *YahooAdapter) primaryMailbox(ctx context.Context, accessToken string) (string, error) {
	var resp yahooMailboxList
	if err := a.rest.getJSON(ctx, accessToken, a.baseURL+"/ws/v3/mailboxes", &resp); err != nil {
		return "", err
	}
	for _, mb := range resp.Result.Mailboxes {
		if mb.IsPrimary {
			return mb.ID, nil
		}
	}
	if len(resp.Result.Mailboxes) > 0 {
		return resp.Result.Mailboxes[0].ID, nil
	}
	return "", out.NewProviderError("yahoo", out.ProviderErrNotFound, "no mailbox found", nil)
}

// fetchBody retrieves message content, preferring simpleBody and falling back
// to a walk over the MIME parts.
func (a *YahooAdapter) fetchBody(ctx context.Context, accessToken, mailboxID, messageID string) (*messageBody, error) {
	contentURL := fmt.Sprintf("%s/ws/v3/mailboxes/%s/messages/%s", a.baseURL, mailboxID, messageID)

	result, err := executeWithBreaker(a.breaker, "yahoo", func() (interface{}, error) {
		var resp yahooMessageContent
		if err := a.rest.getJSON(ctx, accessToken, contentURL, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, err
	}
	content := result.(*yahooMessageContent)

	body := &messageBody{
		Text: content.Result.Message.SimpleBody.Text,
		HTML: content.Result.Message.SimpleBody.HTML,
	}
	if body.Text == "" && body.HTML == "" {
		for _, part := range content.Result.Message.Parts {
			switch part.Type {
			case "text/plain":
				if body.Text == "" {
					body.Text = part.Text
				}
			case "text/html":
				if body.HTML == "" {
					body.HTML = part.Text
				}
			}
		}
	}
	return body, nil
}

// skipYahooMessage drops already-read mail and anything filed in Trash or
// Spam.
func skipYahooMessage(msg *yahooMessage) bool {
	if msg.Flags.Read {
		return true
	}
	for _, t := range msg.Folder.Types {
		if t == "TRASH" || t == "SPAM" {
			return true
		}
	}
	return false
}

func convertYahooMessage(msg *yahooMessage) *domain.RawEmail {
	email := &domain.RawEmail{
		ID:       msg.ID,
		ThreadID: msg.ConversationID,
		Subject:  msg.Headers.Subject,
	}
	if msg.Headers.InternalDate > 0 {
		email.ReceivedAt = time.Unix(msg.Headers.InternalDate, 0)
	}
	if len(msg.Headers.From) > 0 {
		from := msg.Headers.From[0]
		email.From = domain.EmailAddress{Name: from.Name, Email: from.Email}
	}
	return email
}

// =============================================================================
// Yahoo API Types
// =============================================================================

type yahooMailboxList struct {
	Result struct {
		Mailboxes []struct {
			ID        string `json:"id"`
			IsPrimary bool   `json:"isPrimary"`
		} `json:"mailboxes"`
	} `json:"result"`
}

type yahooMessageList struct {
	Result struct {
		Messages []yahooMessage `json:"messages"`
	} `json:"result"`
}

type yahooMessage struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"csid"`
	Headers        yahooHeaders `json:"headers"`
	Flags          yahooFlags   `json:"flags"`
	Folder         yahooFolder  `json:"folder"`
	Snippet        string       `json:"snippet"`
}

type yahooHeaders struct {
	From         []yahooAddress `json:"from"`
	Subject      string         `json:"subject"`
	InternalDate int64          `json:"internalDate"`
}

type yahooAddress struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type yahooFlags struct {
	Read bool `json:"read"`
}

type yahooFolder struct {
	Types []string `json:"types"`
}

type yahooMessageContent struct {
	Result struct {
		Message struct {
			SimpleBody struct {
				Text string `json:"text"`
				HTML string `json:"html"`
			} `json:"simpleBody"`
			Parts []yahooPart `json:"parts"`
		} `json:"message"`
	} `json:"result"`
}

type yahooPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.EmailProviderPort = (*YahooAdapter)(nil)
