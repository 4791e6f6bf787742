package repo

import (
	"context"

	"github.com/fieldworks/fieldsync/internal/models"
	"github.com/fieldworks/fieldsync/internal/remote"
	"github.com/fieldworks/fieldsync/internal/store"
	"github.com/fieldworks/fieldsync/internal/syncer/queue"
)

// Checklists is the checklist repository.
type Checklists struct {
	c *Collection[*models.Checklist]
}

// NewChecklists creates the checklist repository.
func NewChecklists(st *store.Store, rs remote.Service, q *queue.Queue) *Checklists {
	return &Checklists{
		c: NewCollection(models.CollectionChecklists, st, rs, q, func() *models.Checklist {
			return &models.Checklist{}
		}),
	}
}

// ListForJob returns the checklists attached to a job.
func (r *Checklists) ListForJob(ctx context.Context, jobID string) ([]*models.Checklist, bool, error) {
	filter := map[string]string{"job_id": jobID}
	match := func(c *models.Checklist) bool { return c.JobID == jobID }
	less := func(a, b *models.Checklist) bool { return a.CreatedAt < b.CreatedAt }
	return r.c.FetchAll(ctx, filter, match, less)
}

// Get returns one checklist.
func (r *Checklists) Get(ctx context.Context, id string) (*models.Checklist, bool, error) {
	return r.c.Get(ctx, id)
}

// Create adds a checklist, optimistically when offline.
func (r *Checklists) Create(ctx context.Context, checklist *models.Checklist) (*models.Checklist, error) {
	return r.c.Create(ctx, checklist)
}

// SetItems replaces the checklist's items, typically after a technician ticks
// one off in the field.
func (r *Checklists) SetItems(ctx context.Context, id string, items []models.ChecklistItem) (*models.Checklist, error) {
	return r.c.Update(ctx, id, map[string]interface{}{"items": items})
}

// Update applies a partial change to a checklist.
func (r *Checklists) Update(ctx context.Context, id string, patch map[string]interface{}) (*models.Checklist, error) {
	return r.c.Update(ctx, id, patch)
}

// Delete removes a checklist.
func (r *Checklists) Delete(ctx context.Context, id string) error {
	return r.c.Delete(ctx, id)
}

// Resync rebuilds the cached collection from the remote service.
func (r *Checklists) Resync(ctx context.Context) (int, error) {
	return r.c.Resync(ctx)
}
