package domain

import (
	"time"

	"github.com/google/uuid"
)

type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderYahoo   Provider = "yahoo"
	ProviderOutlook Provider = "outlook"
	ProviderOther   Provider = "other"
)

// IsSupported reports whether a sync adapter exists for the provider.
func (p Provider) IsSupported() bool {
	switch p {
	case ProviderGmail, ProviderYahoo, ProviderOutlook:
		return true
	}
	return false
}

type SyncStatus string

const (
	SyncStatusActive  SyncStatus = "active"
	SyncStatusPaused  SyncStatus = "paused"
	SyncStatusError   SyncStatus = "error"
	SyncStatusPending SyncStatus = "pending"
)

// Connection is one mail account linked to a tent. Tokens are encrypted at
// rest; the in-memory value holds plaintext only between the repository read
// and the provider call, and is never serialized.
type Connection struct {
	ID           int64      `json:"id"`
	TentID       uuid.UUID  `json:"tent_id"`
	Provider     Provider   `json:"provider"`
	Email        string     `json:"email"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	SyncStatus   SyncStatus `json:"sync_status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasRefreshToken reports whether a refresh flow is possible.
func (c *Connection) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// SyncWindowStart returns the fetch cutoff: the later of the last sync and
// now minus the lookback.
func (c *Connection) SyncWindowStart(now time.Time, lookback time.Duration) time.Time {
	cutoff := now.Add(-lookback)
	if c.LastSyncAt != nil && c.LastSyncAt.After(cutoff) {
		return *c.LastSyncAt
	}
	return cutoff
}
