package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"voiceout_server/core/domain"
	"voiceout_server/core/port/out"
)

type fakeTokenStore struct {
	updates []out.TokenPair
	err     error
}

func (s *fakeTokenStore) UpdateTokens(_ context.Context, _ int64, tokens out.TokenPair) error {
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, tokens)
	return nil
}

const outlookListBody = `{
	"value": [
		{
			"id": "msg-1",
			"conversationId": "conv-1",
			"subject": "Sponsorship inquiry",
			"body": {"contentType": "html", "content": "<p>We want to sponsor you</p>"},
			"from": {"emailAddress": {"name": "Jamie", "address": "jamie@brand.example"}},
			"isRead": false,
			"parentFolderId": "inbox-1",
			"receivedDateTime": "2024-03-01T10:00:00Z"
		},
		{
			"id": "msg-2",
			"conversationId": "conv-2",
			"subject": "Junk",
			"body": {"contentType": "text", "content": "junk"},
			"from": {"emailAddress": {"name": "", "address": "spam@spam.example"}},
			"isRead": false,
			"parentFolderId": "junk-1",
			"receivedDateTime": "2024-03-01T09:00:00Z"
		},
		{
			"id": "msg-3",
			"conversationId": "conv-3",
			"subject": "Question",
			"body": {"contentType": "text", "content": "plain question"},
			"from": {"emailAddress": {"name": "Pat", "address": "pat@example.com"}},
			"isRead": false,
			"parentFolderId": "inbox-1",
			"receivedDateTime": "2024-03-01T08:00:00Z"
		}
	]
}`

// outlookTestServer serves the Graph endpoints the adapter touches and lets
// tests fail the message listing a configurable number of times (401 unless
// rejectStatus overrides it).
type outlookTestServer struct {
	*httptest.Server
	rejections   int
	rejectStatus int
	messageCalls int
	authHeaders  []string
	lastQuery    string
}

func newOutlookTestServer(rejections int) *outlookTestServer {
	ts := &outlookTestServer{rejections: rejections, rejectStatus: http.StatusUnauthorized}
	mux := http.NewServeMux()
	mux.HandleFunc("/me/mailFolders/junkemail", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"id": "junk-1"}`))
	})
	mux.HandleFunc("/me/mailFolders/deleteditems", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"id": "deleted-1"}`))
	})
	mux.HandleFunc("/me/messages", func(w http.ResponseWriter, r *http.Request) {
		ts.messageCalls++
		ts.authHeaders = append(ts.authHeaders, r.Header.Get("Authorization"))
		ts.lastQuery = r.URL.RawQuery
		if ts.messageCalls <= ts.rejections {
			w.WriteHeader(ts.rejectStatus)
			return
		}
		w.Write([]byte(outlookListBody))
	})
	ts.Server = httptest.NewServer(mux)
	return ts
}

func newTestOutlookAdapter(serverURL string, store *fakeTokenStore, refreshCalls *int) *OutlookAdapter {
	adapter := NewOutlookAdapter(OutlookConfig{ClientID: "cid", ClientSecret: "secret"}, store)
	adapter.baseURL = serverURL
	adapter.refresh = func(_ context.Context, _ string) (*out.TokenPair, error) {
		*refreshCalls++
		return &out.TokenPair{AccessToken: "fresh-token", RefreshToken: "fresh-rt"}, nil
	}
	return adapter
}

func outlookTestConnection() *domain.Connection {
	return &domain.Connection{
		ID:           7,
		Provider:     domain.ProviderOutlook,
		Email:        "user@outlook.example",
		AccessToken:  "stale-token",
		RefreshToken: "rt-1",
	}
}

func TestOutlookFetchRetriesOnceAfterRefresh(t *testing.T) {
	server := newOutlookTestServer(1)
	defer server.Close()

	store := &fakeTokenStore{}
	refreshCalls := 0
	adapter := newTestOutlookAdapter(server.URL, store, &refreshCalls)

	emails, err := adapter.FetchSince(context.Background(), outlookTestConnection(), out.FetchOptions{
		MaxResults: 50,
		Since:      time.Date(2024, 2, 23, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("FetchSince() error = %v", err)
	}

	if refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", refreshCalls)
	}
	if server.messageCalls != 2 {
		t.Errorf("message listing calls = %d, want 2", server.messageCalls)
	}
	if want := []string{"Bearer stale-token", "Bearer fresh-token"}; len(server.authHeaders) != 2 ||
		server.authHeaders[0] != want[0] || server.authHeaders[1] != want[1] {
		t.Errorf("auth headers = %v, want %v", server.authHeaders, want)
	}

	if len(store.updates) != 1 {
		t.Fatalf("token updates = %d, want 1", len(store.updates))
	}
	if store.updates[0].AccessToken != "fresh-token" || store.updates[0].RefreshToken != "fresh-rt" {
		t.Errorf("persisted tokens = %+v", store.updates[0])
	}

	// Junk folder message is dropped.
	if len(emails) != 2 {
		t.Fatalf("emails = %d, want 2", len(emails))
	}
	if emails[0].ID != "msg-1" || emails[1].ID != "msg-3" {
		t.Errorf("email IDs = %q, %q, want msg-1, msg-3", emails[0].ID, emails[1].ID)
	}
	if emails[0].BodyHTML == "" || emails[0].BodyText != "" {
		t.Errorf("html message body = text %q, html %q", emails[0].BodyText, emails[0].BodyHTML)
	}
	if emails[1].BodyText != "plain question" {
		t.Errorf("text message body = %q, want %q", emails[1].BodyText, "plain question")
	}
}

func TestOutlookFetchFailsAfterSingleRetry(t *testing.T) {
	server := newOutlookTestServer(100)
	defer server.Close()

	store := &fakeTokenStore{}
	refreshCalls := 0
	adapter := newTestOutlookAdapter(server.URL, store, &refreshCalls)

	_, err := adapter.FetchSince(context.Background(), outlookTestConnection(), out.FetchOptions{Since: time.Now().Add(-time.Hour)})
	if err == nil {
		t.Fatal("FetchSince() error = nil, want token expiry")
	}
	if !out.IsTokenExpired(err) {
		t.Errorf("error %v is not a token expiry", err)
	}
	if server.messageCalls != 2 {
		t.Errorf("message listing calls = %d, want exactly 2 (one retry)", server.messageCalls)
	}
	if refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", refreshCalls)
	}
}

func TestOutlookFetchForbiddenDoesNotRefresh(t *testing.T) {
	server := newOutlookTestServer(100)
	server.rejectStatus = http.StatusForbidden
	defer server.Close()

	store := &fakeTokenStore{}
	refreshCalls := 0
	adapter := newTestOutlookAdapter(server.URL, store, &refreshCalls)

	_, err := adapter.FetchSince(context.Background(), outlookTestConnection(), out.FetchOptions{Since: time.Now().Add(-time.Hour)})
	if err == nil {
		t.Fatal("FetchSince() error = nil, want auth error")
	}
	// 403 is not an expired token; the refresh flow stays out of it.
	if out.IsTokenExpired(err) {
		t.Errorf("error %v reported as token expiry", err)
	}
	var pe *out.ProviderError
	if !errors.As(err, &pe) || pe.Code != out.ProviderErrAuth {
		t.Errorf("error = %v, want code %q", err, out.ProviderErrAuth)
	}
	if server.messageCalls != 1 {
		t.Errorf("message listing calls = %d, want 1 (no retry)", server.messageCalls)
	}
	if refreshCalls != 0 {
		t.Errorf("refresh calls = %d, want 0", refreshCalls)
	}
}

func TestOutlookFetchWithoutRefreshTokenPropagates(t *testing.T) {
	server := newOutlookTestServer(100)
	defer server.Close()

	store := &fakeTokenStore{}
	refreshCalls := 0
	adapter := newTestOutlookAdapter(server.URL, store, &refreshCalls)

	conn := outlookTestConnection()
	conn.RefreshToken = ""

	_, err := adapter.FetchSince(context.Background(), conn, out.FetchOptions{Since: time.Now().Add(-time.Hour)})
	if err == nil {
		t.Fatal("FetchSince() error = nil, want token expiry")
	}
	if server.messageCalls != 1 {
		t.Errorf("message listing calls = %d, want 1 (no retry possible)", server.messageCalls)
	}
	if refreshCalls != 0 {
		t.Errorf("refresh calls = %d, want 0", refreshCalls)
	}
	if len(store.updates) != 0 {
		t.Errorf("token updates = %d, want 0", len(store.updates))
	}
}

func TestOutlookFetchFilter(t *testing.T) {
	server := newOutlookTestServer(0)
	defer server.Close()

	store := &fakeTokenStore{}
	refreshCalls := 0
	adapter := newTestOutlookAdapter(server.URL, store, &refreshCalls)

	since := time.Date(2024, 2, 23, 12, 30, 0, 0, time.UTC)
	if _, err := adapter.FetchSince(context.Background(), outlookTestConnection(), out.FetchOptions{MaxResults: 50, Since: since}); err != nil {
		t.Fatalf("FetchSince() error = %v", err)
	}

	query, err := url.QueryUnescape(server.lastQuery)
	if err != nil {
		t.Fatalf("unescape query: %v", err)
	}
	if !strings.Contains(query, "isRead eq false") {
		t.Errorf("filter missing unread clause: %q", query)
	}
	if !strings.Contains(query, "receivedDateTime ge 2024-02-23T12:30:00Z") {
		t.Errorf("filter missing window clause: %q", query)
	}
	if !strings.Contains(query, "$top=50") {
		t.Errorf("query missing result cap: %q", query)
	}
}
