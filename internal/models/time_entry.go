package models

import (
	"fmt"
	"time"
)

// TimeEntry represents technician time logged against a job.
type TimeEntry struct {
	ID         string `db:"id" json:"id"`
	JobID      string `db:"job_id" json:"job_id"`
	Technician string `db:"technician" json:"technician"`
	StartedAt  int64  `db:"started_at" json:"started_at"`
	EndedAt    int64  `db:"ended_at" json:"ended_at,omitempty"`
	Notes      string `db:"notes" json:"notes,omitempty"`
	CreatedAt  int64  `db:"created_at" json:"created_at"`
	UpdatedAt  int64  `db:"updated_at" json:"updated_at"`
}

// Collection returns the cache collection for TimeEntry.
func (TimeEntry) Collection() string {
	return CollectionTimeEntries
}

// GetID returns the entity id.
func (t *TimeEntry) GetID() string { return t.ID }

// SetID sets the entity id.
func (t *TimeEntry) SetID(id string) { t.ID = id }

// Stamp initializes creation timestamps for a new record.
func (t *TimeEntry) Stamp(now int64) {
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.StartedAt == 0 {
		t.StartedAt = now
	}
}

// Touch updates the UpdatedAt timestamp.
func (t *TimeEntry) Touch() {
	t.UpdatedAt = time.Now().Unix()
}

// Validate checks that a record read back from the cache is well formed.
func (t *TimeEntry) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("time entry: missing id")
	}
	if t.JobID == "" {
		return fmt.Errorf("time entry %s: missing job id", t.ID)
	}
	if t.StartedAt <= 0 {
		return fmt.Errorf("time entry %s: missing start time", t.ID)
	}
	if t.EndedAt != 0 && t.EndedAt < t.StartedAt {
		return fmt.Errorf("time entry %s: ends before it starts", t.ID)
	}
	if t.CreatedAt <= 0 || t.UpdatedAt <= 0 {
		return fmt.Errorf("time entry %s: missing timestamps", t.ID)
	}
	return nil
}

// Duration returns the logged duration, or zero for a running entry.
func (t *TimeEntry) Duration() time.Duration {
	if t.EndedAt == 0 {
		return 0
	}
	return time.Duration(t.EndedAt-t.StartedAt) * time.Second
}
