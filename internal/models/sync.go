package models

import "time"

// SyncRun is the audit record of one channel-manager synchronization.
type SyncRun struct {
	ID         string    `json:"id"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Fetched    int       `json:"fetched"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Cancelled  int       `json:"cancelled"`
	Conflicts  int       `json:"conflicts"`
	Error      string    `json:"error,omitempty"`
}
