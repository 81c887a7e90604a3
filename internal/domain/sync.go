package domain

import "time"

// SyncStats holds statistics about a full-collection pass.
type SyncStats struct {
	ContentType string
	Pages       int
	Fetched     int
	Created     int
	Updated     int
	Deleted     int
	Errors      int
	// Truncated is set when the page cap stopped the pass before an
	// empty page was seen.
	Truncated bool
	Duration  time.Duration
}

type SyncState struct {
	ID           int64     `db:"id"`
	ContentType  string    `db:"content_type"`
	LastSyncedAt time.Time `db:"last_synced_at"`
	LastSeen     int64     `db:"last_seen"`
	TotalSynced  int64     `db:"total_synced"`
}
