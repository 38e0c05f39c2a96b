package domain

import "time"

type SyncLogStatus string

const (
	SyncLogStatusRunning   SyncLogStatus = "running"
	SyncLogStatusCompleted SyncLogStatus = "completed"
	SyncLogStatusFailed    SyncLogStatus = "failed"
)

// SyncLog is the audit record of one sync invocation. Created as running at
// sync start, finalized to exactly one of completed/failed, and never mutated
// afterward.
type SyncLog struct {
	ID               int64         `json:"id"`
	ConnectionID     int64         `json:"connection_id"`
	StartedAt        time.Time     `json:"started_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	Status           SyncLogStatus `json:"status"`
	EmailsFetched    int           `json:"emails_fetched"`
	InquiriesCreated int           `json:"inquiries_created"`
	ErrorDetails     *string       `json:"error_details,omitempty"`
}

// IsFinal reports whether the log reached a terminal state.
func (s *SyncLog) IsFinal() bool {
	return s.Status == SyncLogStatusCompleted || s.Status == SyncLogStatusFailed
}
