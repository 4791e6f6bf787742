package models

import (
	"fmt"
	"time"
)

// ChecklistItem is a single line on a job checklist.
type ChecklistItem struct {
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// Checklist represents a task checklist attached to a job.
type Checklist struct {
	ID        string          `db:"id" json:"id"`
	JobID     string          `db:"job_id" json:"job_id"`
	Name      string          `db:"name" json:"name"`
	Items     []ChecklistItem `db:"items" json:"items"`
	CreatedAt int64           `db:"created_at" json:"created_at"`
	UpdatedAt int64           `db:"updated_at" json:"updated_at"`
}

// Collection returns the cache collection for Checklist.
func (Checklist) Collection() string {
	return CollectionChecklists
}

// GetID returns the entity id.
func (c *Checklist) GetID() string { return c.ID }

// SetID sets the entity id.
func (c *Checklist) SetID(id string) { c.ID = id }

// Stamp initializes creation timestamps for a new record.
func (c *Checklist) Stamp(now int64) {
	c.CreatedAt = now
	c.UpdatedAt = now
}

// Touch updates the UpdatedAt timestamp.
func (c *Checklist) Touch() {
	c.UpdatedAt = time.Now().Unix()
}

// Validate checks that a record read back from the cache is well formed.
func (c *Checklist) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("checklist: missing id")
	}
	if c.JobID == "" {
		return fmt.Errorf("checklist %s: missing job id", c.ID)
	}
	if c.Name == "" {
		return fmt.Errorf("checklist %s: missing name", c.ID)
	}
	for i, item := range c.Items {
		if item.Label == "" {
			return fmt.Errorf("checklist %s: item %d has no label", c.ID, i)
		}
	}
	if c.CreatedAt <= 0 || c.UpdatedAt <= 0 {
		return fmt.Errorf("checklist %s: missing timestamps", c.ID)
	}
	return nil
}

// Progress returns completed and total item counts.
func (c *Checklist) Progress() (done, total int) {
	for _, item := range c.Items {
		if item.Done {
			done++
		}
	}
	return done, len(c.Items)
}
