package repo

import (
	"context"

	"github.com/fieldworks/fieldsync/internal/models"
	"github.com/fieldworks/fieldsync/internal/remote"
	"github.com/fieldworks/fieldsync/internal/store"
	"github.com/fieldworks/fieldsync/internal/syncer/queue"
)

// JobFilter narrows job listings.
type JobFilter struct {
	CustomerID string
	Status     models.JobStatus
}

// Jobs is the job repository.
type Jobs struct {
	c *Collection[*models.Job]
}

// NewJobs creates the job repository.
func NewJobs(st *store.Store, rs remote.Service, q *queue.Queue) *Jobs {
	return &Jobs{
		c: NewCollection(models.CollectionJobs, st, rs, q, func() *models.Job {
			return &models.Job{}
		}),
	}
}

// List returns jobs matching the filter, soonest scheduled first.
func (r *Jobs) List(ctx context.Context, f JobFilter) ([]*models.Job, bool, error) {
	filter := make(map[string]string)
	if f.CustomerID != "" {
		filter["customer_id"] = f.CustomerID
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}

	match := func(j *models.Job) bool {
		if f.CustomerID != "" && j.CustomerID != f.CustomerID {
			return false
		}
		if f.Status != "" && j.Status != f.Status {
			return false
		}
		return true
	}
	less := func(a, b *models.Job) bool { return a.ScheduledAt < b.ScheduledAt }
	return r.c.FetchAll(ctx, filter, match, less)
}

// Get returns one job.
func (r *Jobs) Get(ctx context.Context, id string) (*models.Job, bool, error) {
	return r.c.Get(ctx, id)
}

// Create adds a job, optimistically when offline.
func (r *Jobs) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	return r.c.Create(ctx, job)
}

// Update applies a partial change to a job.
func (r *Jobs) Update(ctx context.Context, id string, patch map[string]interface{}) (*models.Job, error) {
	return r.c.Update(ctx, id, patch)
}

// SetStatus moves a job through its workflow.
func (r *Jobs) SetStatus(ctx context.Context, id string, status models.JobStatus) (*models.Job, error) {
	return r.c.Update(ctx, id, map[string]interface{}{"status": string(status)})
}

// Delete removes a job.
func (r *Jobs) Delete(ctx context.Context, id string) error {
	return r.c.Delete(ctx, id)
}

// Resync rebuilds the cached collection from the remote service.
func (r *Jobs) Resync(ctx context.Context) (int, error) {
	return r.c.Resync(ctx)
}
