package models

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a field job.
type JobStatus string

const (
	JobStatusScheduled  JobStatus = "scheduled"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job represents a scheduled unit of field work for a customer.
type Job struct {
	ID          string    `db:"id" json:"id"`
	CustomerID  string    `db:"customer_id" json:"customer_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description,omitempty"`
	Status      JobStatus `db:"status" json:"status"`
	ScheduledAt int64     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt   int64     `db:"created_at" json:"created_at"`
	UpdatedAt   int64     `db:"updated_at" json:"updated_at"`
}

// Collection returns the cache collection for Job.
func (Job) Collection() string {
	return CollectionJobs
}

// GetID returns the entity id.
func (j *Job) GetID() string { return j.ID }

// SetID sets the entity id.
func (j *Job) SetID(id string) { j.ID = id }

// Stamp initializes creation timestamps for a new record.
func (j *Job) Stamp(now int64) {
	j.CreatedAt = now
	j.UpdatedAt = now
	if j.Status == "" {
		j.Status = JobStatusScheduled
	}
}

// Touch updates the UpdatedAt timestamp.
func (j *Job) Touch() {
	j.UpdatedAt = time.Now().Unix()
}

// Validate checks that a record read back from the cache is well formed.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job: missing id")
	}
	if j.CustomerID == "" {
		return fmt.Errorf("job %s: missing customer id", j.ID)
	}
	if j.Title == "" {
		return fmt.Errorf("job %s: missing title", j.ID)
	}
	switch j.Status {
	case JobStatusScheduled, JobStatusInProgress, JobStatusCompleted, JobStatusCancelled:
	default:
		return fmt.Errorf("job %s: unknown status %q", j.ID, j.Status)
	}
	if j.CreatedAt <= 0 || j.UpdatedAt <= 0 {
		return fmt.Errorf("job %s: missing timestamps", j.ID)
	}
	return nil
}
