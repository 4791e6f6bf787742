package repo

import (
	"context"

	"github.com/fieldworks/fieldsync/internal/models"
	"github.com/fieldworks/fieldsync/internal/remote"
	"github.com/fieldworks/fieldsync/internal/store"
	"github.com/fieldworks/fieldsync/internal/syncer/queue"
)

// TimeEntryFilter narrows time entry listings.
type TimeEntryFilter struct {
	JobID      string
	Technician string
}

// TimeEntries is the time entry repository.
type TimeEntries struct {
	c *Collection[*models.TimeEntry]
}

// NewTimeEntries creates the time entry repository.
func NewTimeEntries(st *store.Store, rs remote.Service, q *queue.Queue) *TimeEntries {
	return &TimeEntries{
		c: NewCollection(models.CollectionTimeEntries, st, rs, q, func() *models.TimeEntry {
			return &models.TimeEntry{}
		}),
	}
}

// List returns time entries matching the filter, oldest first.
func (r *TimeEntries) List(ctx context.Context, f TimeEntryFilter) ([]*models.TimeEntry, bool, error) {
	filter := make(map[string]string)
	if f.JobID != "" {
		filter["job_id"] = f.JobID
	}
	if f.Technician != "" {
		filter["technician"] = f.Technician
	}

	match := func(e *models.TimeEntry) bool {
		if f.JobID != "" && e.JobID != f.JobID {
			return false
		}
		if f.Technician != "" && e.Technician != f.Technician {
			return false
		}
		return true
	}
	less := func(a, b *models.TimeEntry) bool { return a.StartedAt < b.StartedAt }
	return r.c.FetchAll(ctx, filter, match, less)
}

// Get returns one time entry.
func (r *TimeEntries) Get(ctx context.Context, id string) (*models.TimeEntry, bool, error) {
	return r.c.Get(ctx, id)
}

// Create adds a time entry, optimistically when offline.
func (r *TimeEntries) Create(ctx context.Context, entry *models.TimeEntry) (*models.TimeEntry, error) {
	return r.c.Create(ctx, entry)
}

// Stop closes an open time entry.
func (r *TimeEntries) Stop(ctx context.Context, id string, endedAt int64) (*models.TimeEntry, error) {
	return r.c.Update(ctx, id, map[string]interface{}{"ended_at": endedAt})
}

// Update applies a partial change to a time entry.
func (r *TimeEntries) Update(ctx context.Context, id string, patch map[string]interface{}) (*models.TimeEntry, error) {
	return r.c.Update(ctx, id, patch)
}

// Delete removes a time entry.
func (r *TimeEntries) Delete(ctx context.Context, id string) error {
	return r.c.Delete(ctx, id)
}

// Resync rebuilds the cached collection from the remote service.
func (r *TimeEntries) Resync(ctx context.Context) (int, error) {
	return r.c.Resync(ctx)
}
