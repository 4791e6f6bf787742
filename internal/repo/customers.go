package repo

import (
	"context"
	"strings"

	"github.com/fieldworks/fieldsync/internal/models"
	"github.com/fieldworks/fieldsync/internal/remote"
	"github.com/fieldworks/fieldsync/internal/store"
	"github.com/fieldworks/fieldsync/internal/syncer/queue"
)

// CustomerFilter narrows customer listings.
type CustomerFilter struct {
	// Search matches name or email, case-insensitive substring.
	Search string
	// ActiveOnly hides deactivated customers.
	ActiveOnly bool
}

// Customers is the customer repository. Customers are never hard-deleted
// through normal flows; Deactivate retires them while preserving history on
// jobs that reference them.
type Customers struct {
	c *Collection[*models.Customer]
}

// NewCustomers creates the customer repository.
func NewCustomers(st *store.Store, rs remote.Service, q *queue.Queue) *Customers {
	return &Customers{
		c: NewCollection(models.CollectionCustomers, st, rs, q, func() *models.Customer {
			return &models.Customer{}
		}),
	}
}

// List returns customers matching the filter, newest first. fromCache is true
// when the remote service was unreachable and the cache served the read.
func (r *Customers) List(ctx context.Context, f CustomerFilter) ([]*models.Customer, bool, error) {
	match := func(c *models.Customer) bool {
		if f.ActiveOnly && !c.Active {
			return false
		}
		if f.Search == "" {
			return true
		}
		needle := strings.ToLower(f.Search)
		return strings.Contains(strings.ToLower(c.Name), needle) ||
			strings.Contains(strings.ToLower(c.Email), needle)
	}
	less := func(a, b *models.Customer) bool { return a.CreatedAt > b.CreatedAt }
	return r.c.FetchAll(ctx, nil, match, less)
}

// Get returns one customer.
func (r *Customers) Get(ctx context.Context, id string) (*models.Customer, bool, error) {
	return r.c.Get(ctx, id)
}

// Create adds a customer, optimistically when offline.
func (r *Customers) Create(ctx context.Context, customer *models.Customer) (*models.Customer, error) {
	return r.c.Create(ctx, customer)
}

// Update applies a partial change to a customer.
func (r *Customers) Update(ctx context.Context, id string, patch map[string]interface{}) (*models.Customer, error) {
	return r.c.Update(ctx, id, patch)
}

// Deactivate retires a customer without removing its record.
func (r *Customers) Deactivate(ctx context.Context, id string) (*models.Customer, error) {
	return r.c.Update(ctx, id, map[string]interface{}{"active": false})
}

// Delete removes a customer record outright. Reserved for records created by
// mistake; Deactivate is the normal retirement path.
func (r *Customers) Delete(ctx context.Context, id string) error {
	return r.c.Delete(ctx, id)
}

// Resync rebuilds the cached collection from the remote service.
func (r *Customers) Resync(ctx context.Context) (int, error) {
	return r.c.Resync(ctx)
}
