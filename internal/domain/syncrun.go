package domain

import "time"

// SyncTrigger records what started a sync.
type SyncTrigger string

const (
	TriggerAdHoc     SyncTrigger = "adhoc"
	TriggerScheduled SyncTrigger = "scheduled"
)

// Sync run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// SyncRun is the summary of one course processed by a sync.
type SyncRun struct {
	ID          string      `json:"id" db:"id"`
	Course      string      `json:"course" db:"course"`
	TeamName    string      `json:"team_name" db:"team_name"`
	Trigger     SyncTrigger `json:"trigger" db:"trigger_kind"`
	Principal   string      `json:"principal" db:"principal"`
	Status      string      `json:"status" db:"status"`
	Added       int         `json:"added" db:"added"`
	FailedUsers int         `json:"failed_users" db:"failed_users"`
	Error       string      `json:"error,omitempty" db:"error"`
	StartedAt   time.Time   `json:"started_at" db:"started_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty" db:"finished_at"`
}

// SyncRequest is the request body for an ad-hoc sync.
type SyncRequest struct {
	Course string `json:"course"`
	Once   bool   `json:"once"`
}
