// Package provider implements the outbound mail provider adapters. Each
// adapter normalizes its provider's wire format into domain.RawEmail and maps
// failures into out.ProviderError so the sync orchestrator stays
// provider-agnostic.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"time"

	"voiceout_server/core/domain"
	"voiceout_server/core/port/out"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
)

const (
	// maxFetchResults caps candidate messages per sync regardless of what
	// the caller requests.
	maxFetchResults = 50

	defaultHTTPTimeout = 30 * time.Second
)

// tokenStore persists refreshed credentials. Satisfied by
// out.ConnectionRepository; the store encrypts before writing.
type tokenStore interface {
	UpdateTokens(ctx context.Context, id int64, tokens out.TokenPair) error
}

// =============================================================================
// Circuit Breaker
// =============================================================================

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
	})
}

// nonCircuitError carries a client-class failure through the breaker as a
// success so auth and validation rejections never open the circuit.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string { return e.err.Error() }
func (e *nonCircuitError) Unwrap() error { return e.err }

func executeWithBreaker(cb *gobreaker.CircuitBreaker, providerName string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := cb.Execute(func() (interface{}, error) {
		res, err := fn()
		if err != nil && !isCircuitFailure(err) {
			return &nonCircuitError{err: err}, nil
		}
		return res, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, out.NewProviderError(providerName, out.ProviderErrServer, "circuit breaker open", err)
		}
		return nil, err
	}
	if nce, ok := result.(*nonCircuitError); ok {
		return nil, nce.err
	}
	return result, nil
}

// isCircuitFailure reports whether err should count against the breaker.
// Non-retryable provider errors (expired token, access denied, bad input)
// are the caller's problem, not the provider's health.
func isCircuitFailure(err error) bool {
	var pe *out.ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}

// =============================================================================
// Token Refresh
// =============================================================================

// fetchWithRefresh runs fetch with the connection's current access token. On
// a token-expiry rejection it refreshes once, persists the new credentials,
// and retries exactly once. A second rejection propagates.
func fetchWithRefresh(
	ctx context.Context,
	conn *domain.Connection,
	store tokenStore,
	refresh func(ctx context.Context, refreshToken string) (*out.TokenPair, error),
	fetch func(accessToken string) ([]*domain.RawEmail, error),
) ([]*domain.RawEmail, error) {
	emails, err := fetch(conn.AccessToken)
	if err == nil || !out.IsTokenExpired(err) || !conn.HasRefreshToken() {
		return emails, err
	}

	pair, refreshErr := refresh(ctx, conn.RefreshToken)
	if refreshErr != nil {
		return nil, refreshErr
	}
	// Providers may omit the refresh token when it is still valid.
	if pair.RefreshToken == "" {
		pair.RefreshToken = conn.RefreshToken
	}
	if storeErr := store.UpdateTokens(ctx, conn.ID, *pair); storeErr != nil {
		return nil, storeErr
	}

	return fetch(pair.AccessToken)
}

// refreshViaOAuth performs a refresh_token grant against the provider's
// token endpoint.
func refreshViaOAuth(ctx context.Context, config *oauth2.Config, refreshToken, providerName string) (*out.TokenPair, error) {
	src := config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, out.NewProviderError(providerName, out.ProviderErrAuth, "token refresh failed", err)
	}
	return &out.TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}, nil
}

// =============================================================================
// REST Helpers
// =============================================================================

// restClient is a thin JSON-over-HTTP helper shared by the Graph and Yahoo
// adapters.
type restClient struct {
	providerName string
	client       *http.Client
}

func newRESTClient(providerName string) *restClient {
	return &restClient{
		providerName: providerName,
		client:       &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (c *restClient) getJSON(ctx context.Context, accessToken, rawURL string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return out.NewProviderError(c.providerName, out.ProviderErrInvalidInput, "invalid request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return out.NewProviderError(c.providerName, out.ProviderErrNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return wrapHTTPError(c.providerName, resp.StatusCode, string(body))
	}
	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return out.NewProviderError(c.providerName, out.ProviderErrServer, "failed to decode response", err)
		}
	}
	return nil
}

func wrapHTTPError(providerName string, statusCode int, body string) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return out.NewProviderError(providerName, out.ProviderErrTokenExpired, "token expired", nil)
	case http.StatusForbidden:
		return out.NewProviderError(providerName, out.ProviderErrAuth, "access denied", nil)
	case http.StatusNotFound:
		return out.NewProviderError(providerName, out.ProviderErrNotFound, "not found", nil)
	case http.StatusTooManyRequests:
		return out.NewProviderError(providerName, out.ProviderErrRateLimit, "too many requests", nil)
	default:
		return out.NewProviderError(providerName, out.ProviderErrServer, fmt.Sprintf("HTTP %d: %s", statusCode, body), nil)
	}
}

// =============================================================================
// Shared Helpers
// =============================================================================

// parseEmailAddress parses an RFC 5322 From header. Unparseable input is
// kept verbatim as both name and email so nothing about the sender is lost,
// and a bare address without a display name uses the address as the name.
func parseEmailAddress(s string) domain.EmailAddress {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return domain.EmailAddress{Name: s, Email: s}
	}
	name := addr.Name
	if name == "" {
		name = addr.Address
	}
	return domain.EmailAddress{Name: name, Email: addr.Address}
}

func capResults(requested int) int {
	if requested <= 0 || requested > maxFetchResults {
		return maxFetchResults
	}
	return requested
}
