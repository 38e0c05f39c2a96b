// Package out defines outbound ports for providers and persistence.
package out

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voiceout_server/core/domain"
)

// ===== Provider Port =====

// FetchOptions bounds a provider fetch.
type FetchOptions struct {
	// MaxResults caps the number of candidate messages per sync.
	MaxResults int
	// Since is the window start; only messages received after it are listed.
	Since time.Time
}

// TokenPair is a refreshed credential set, returned in plaintext and
// encrypted by the repository before it is written.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// EmailProviderPort fetches normalized messages from one mail provider.
// Implementations own provider-specific auth, query syntax, and body
// decoding; nothing provider-shaped crosses this boundary.
type EmailProviderPort interface {
	// Provider identifies which connections this adapter serves.
	Provider() domain.Provider

	// FetchSince lists candidate messages for the connection, bounded by
	// opts, and normalizes each into a RawEmail. Adapters with a refresh
	// flow (Yahoo, Outlook) recover from one expired-token rejection
	// internally; any other failure propagates to the caller.
	FetchSince(ctx context.Context, conn *domain.Connection, opts FetchOptions) ([]*domain.RawEmail, error)
}

// ===== Provider Errors =====

const (
	ProviderErrAuth         = "auth_error"
	ProviderErrTokenExpired = "token_expired"
	ProviderErrRateLimit    = "rate_limit"
	ProviderErrNotFound     = "not_found"
	ProviderErrNetwork      = "network_error"
	ProviderErrServer       = "server_error"
	ProviderErrInvalidInput = "invalid_input"
)

// ProviderError wraps a failure from a provider call with enough context for
// the orchestrator to decide whether it is an auth problem or a plain outage.
type ProviderError struct {
	Provider  string
	Code      string
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s provider error [%s]: %s: %v", e.Provider, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s provider error [%s]: %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider, code, message string, err error) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: code == ProviderErrRateLimit || code == ProviderErrNetwork || code == ProviderErrServer,
	}
}

// IsTokenExpired reports whether err is a provider token-expiry rejection
// (HTTP 401). Other auth failures such as 403 do not qualify: only an
// expired token is recoverable by the refresh flow.
func IsTokenExpired(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code == ProviderErrTokenExpired
	}
	return false
}
