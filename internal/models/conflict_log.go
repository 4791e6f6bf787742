package models

import "time"

// ConflictLog records a concurrent-edit conflict resolved during replay, for
// operator awareness. Resolution is always last-writer-wins; the log exists so
// an overwrite is never silent.
type ConflictLog struct {
	ID              string `db:"id" json:"id"`
	EntityType      string `db:"entity_type" json:"entity_type"`
	EntityID        string `db:"entity_id" json:"entity_id"`
	LocalTimestamp  int64  `db:"local_timestamp" json:"local_timestamp"`
	RemoteTimestamp int64  `db:"remote_timestamp" json:"remote_timestamp"`
	Resolution      string `db:"resolution" json:"resolution"` // local_wins, remote_wins
	DetectedAt      int64  `db:"detected_at" json:"detected_at"`
}

// Collection returns the cache collection for ConflictLog.
func (ConflictLog) Collection() string {
	return CollectionConflicts
}

// DetectedAtTime returns the DetectedAt as time.Time.
func (c *ConflictLog) DetectedAtTime() time.Time {
	return time.Unix(c.DetectedAt, 0)
}
