// Package in defines inbound use-case ports.
package in

import "context"

// SyncResult is the outcome of one sync invocation.
type SyncResult struct {
	EmailsFetched    int `json:"emailsFetched"`
	InquiriesCreated int `json:"inquiriesCreated"`
}

// SyncUseCase triggers the fetch-classify-persist pipeline for one
// connection.
type SyncUseCase interface {
	SyncConnection(ctx context.Context, connectionID int64) (*SyncResult, error)
}
