package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"voiceout_server/core/domain"
	"voiceout_server/core/port/out"
	"voiceout_server/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// =============================================================================
// Outlook Adapter
// =============================================================================

// OutlookAdapter fetches unread messages through the Microsoft Graph API. An
// expired access token is refreshed through the tenant token endpoint, the
// new credentials are persisted, and the fetch is retried exactly once.
type OutlookAdapter struct {
	oauth   *oauth2.Config
	tokens  tokenStore
	breaker *gobreaker.CircuitBreaker
	rest    *restClient
	baseURL string
	refresh func(ctx context.Context, refreshToken string) (*out.TokenPair, error)
}

// OutlookConfig holds the Azure AD app credentials.
type OutlookConfig struct {
	ClientID     string
	ClientSecret string
	TenantID     string
}

func NewOutlookAdapter(cfg OutlookConfig, tokens tokenStore) *OutlookAdapter {
	tenantID := cfg.TenantID
	if tenantID == "" {
		tenantID = "common"
	}

	a := &OutlookAdapter{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes: []string{
				"https://graph.microsoft.com/Mail.Read",
				"offline_access",
			},
			Endpoint: microsoft.AzureADEndpoint(tenantID),
		},
		tokens:  tokens,
		breaker: newBreaker("outlook"),
		rest:    newRESTClient("outlook"),
		baseURL: graphBaseURL,
	}
	a.refresh = func(ctx context.Context, refreshToken string) (*out.TokenPair, error) {
		return refreshViaOAuth(ctx, a.oauth, refreshToken, "outlook")
	}
	return a
}

func (a *OutlookAdapter) Provider() domain.Provider {
	return domain.ProviderOutlook
}

func (a *OutlookAdapter) FetchSince(ctx context.Context, conn *domain.Connection, opts out.FetchOptions) ([]*domain.RawEmail, error) {
	return fetchWithRefresh(ctx, conn, a.tokens, a.refresh, func(accessToken string) ([]*domain.RawEmail, error) {
		return a.fetchMessages(ctx, accessToken, opts)
	})
}

func (a *OutlookAdapter) fetchMessages(ctx context.Context, accessToken string, opts out.FetchOptions) ([]*domain.RawEmail, error) {
	max := capResults(opts.MaxResults)

	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", max))
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$select", "id,conversationId,subject,body,from,isRead,parentFolderId,receivedDateTime")
	params.Set("$filter", fmt.Sprintf(
		"receivedDateTime ge %s and isRead eq false",
		opts.Since.UTC().Format(time.RFC3339)))

	result, err := executeWithBreaker(a.breaker, "outlook", func() (interface{}, error) {
		var resp graphMessageList
		if err := a.rest.getJSON(ctx, accessToken, a.baseURL+"/me/messages?"+params.Encode(), &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, err
	}
	list := result.(*graphMessageList)

	excluded := a.excludedFolders(ctx, accessToken)

	emails := make([]*domain.RawEmail, 0, len(list.Value))
	for i := range list.Value {
		msg := &list.Value[i]
		if excluded[msg.ParentFolderID] {
			continue
		}
		emails = append(emails, convertGraphMessage(msg))
	}
	return emails, nil
}

// excludedFolders resolves the Junk and Deleted Items folder IDs so their
// messages can be dropped from the batch. Lookup failures just disable the
// filter.
func (a *OutlookAdapter) excludedFolders(ctx context.Context, accessToken string) map[string]bool {
	excluded := make(map[string]bool)
	for _, wellKnown := range []string{"junkemail", "deleteditems"} {
		var folder graphFolder
		if err := a.rest.getJSON(ctx, accessToken, a.baseURL+"/me/mailFolders/"+wellKnown, &folder); err != nil {
			logger.WithError(err).WithField("folder", wellKnown).Debug("Outlook folder lookup failed")
			continue
		}
		if folder.ID != "" {
			excluded[folder.ID] = true
		}
	}
	return excluded
}

func convertGraphMessage(msg *graphMessage) *domain.RawEmail {
	email := &domain.RawEmail{
		ID:       msg.ID,
		ThreadID: msg.ConversationID,
		Subject:  msg.Subject,
		From: domain.EmailAddress{
			Name:  msg.From.EmailAddress.Name,
			Email: msg.From.EmailAddress.Address,
		},
	}
	if t, err := time.Parse(time.RFC3339, msg.ReceivedDateTime); err == nil {
		email.ReceivedAt = t
	}
	if strings.EqualFold(msg.Body.ContentType, "html") {
		email.BodyHTML = msg.Body.Content
	} else {
		email.BodyText = msg.Body.Content
	}
	return email
}

// =============================================================================
// Graph API Types
// =============================================================================

type graphMessageList struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type graphMessage struct {
	ID               string         `json:"id"`
	ConversationID   string         `json:"conversationId"`
	Subject          string         `json:"subject"`
	Body             graphBody      `json:"body"`
	From             graphRecipient `json:"from"`
	IsRead           bool           `json:"isRead"`
	ParentFolderID   string         `json:"parentFolderId"`
	ReceivedDateTime string         `json:"receivedDateTime"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type graphFolder struct {
	ID string `json:"id"`
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.EmailProviderPort = (*OutlookAdapter)(nil)
