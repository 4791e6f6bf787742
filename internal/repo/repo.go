// Package repo implements the entity repositories: network-first reads with
// cache fallback, and optimistic writes that survive offline periods through
// the pending action queue.
package repo

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/fieldworks/fieldsync/internal/apperr"
	"github.com/fieldworks/fieldsync/internal/ident"
	"github.com/fieldworks/fieldsync/internal/logging"
	"github.com/fieldworks/fieldsync/internal/models"
	"github.com/fieldworks/fieldsync/internal/remote"
	"github.com/fieldworks/fieldsync/internal/store"
	"github.com/fieldworks/fieldsync/internal/syncer/queue"
)

// Model is the contract every synced entity satisfies.
type Model interface {
	Collection() string
	GetID() string
	SetID(id string)
	Stamp(now int64)
	Touch()
	Validate() error
}

// Collection is the generic repository over one entity type. Entity-specific
// repositories wrap it with typed filters.
type Collection[T Model] struct {
	name   string
	store  *store.Store
	remote remote.Service
	queue  *queue.Queue
	newFn  func() T
}

// NewCollection creates a repository for one collection.
func NewCollection[T Model](name string, st *store.Store, rs remote.Service, q *queue.Queue, newFn func() T) *Collection[T] {
	return &Collection[T]{
		name:   name,
		store:  st,
		remote: rs,
		queue:  q,
		newFn:  newFn,
	}
}

// FetchAll lists records network-first. filter is passed to the remote
// service; match narrows results in memory (cache fallback included); less,
// when set, orders the result. fromCache reports whether the cache served the
// read because the remote was unreachable.
//
// On a successful remote read the cache is refreshed, and records created
// offline (still carrying temporary ids) are merged in so optimistic writes
// stay visible.
func (c *Collection[T]) FetchAll(ctx context.Context, filter map[string]string, match func(T) bool, less func(a, b T) bool) ([]T, bool, error) {
	docs, err := c.remote.List(ctx, c.name, filter)
	if err != nil {
		if !remote.IsUnavailable(err) {
			return nil, false, err
		}
		records, cerr := c.cachedAll(match)
		if cerr != nil {
			return nil, false, cerr
		}
		c.order(records, less)
		return records, true, nil
	}

	records := make([]T, 0, len(docs))
	for _, doc := range docs {
		record, derr := c.decode(doc)
		if derr != nil {
			logging.Warn("Skipping undecodable remote document", map[string]interface{}{
				"collection": c.name, "error": derr.Error(),
			})
			continue
		}
		if err := c.store.Put(c.name, record.GetID(), doc); err != nil {
			return nil, false, err
		}
		if match == nil || match(record) {
			records = append(records, record)
		}
	}

	pending, err := c.pendingLocal(match)
	if err != nil {
		return nil, false, err
	}
	records = append(records, pending...)

	c.order(records, less)
	return records, false, nil
}

// Get reads one record network-first. Temporary ids are only ever local, so
// they are served from the cache directly.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T

	if ident.Parse(id).IsTemporary() {
		record, err := c.cached(id)
		return record, true, err
	}

	doc, err := c.remote.Get(ctx, c.name, id)
	if err != nil {
		if !remote.IsUnavailable(err) {
			return zero, false, err
		}
		record, cerr := c.cached(id)
		return record, true, cerr
	}

	record, err := c.decode(doc)
	if err != nil {
		return zero, false, apperr.Wrap(apperr.ErrInternal, "undecodable remote document", err)
	}
	if err := c.store.Put(c.name, id, doc); err != nil {
		return zero, false, err
	}
	return record, false, nil
}

// Create writes a new record. Online, the remote service assigns the identity
// and its canonical document is cached. Offline, the record gets a temporary
// id, is cached immediately, and a create action is queued for replay.
func (c *Collection[T]) Create(ctx context.Context, record T) (T, error) {
	var zero T

	now := models.Now()
	record.Stamp(now)

	payload, err := c.encodeWithoutID(record)
	if err != nil {
		return zero, err
	}

	doc, err := c.remote.Create(ctx, c.name, payload)
	if err == nil {
		created, derr := c.decode(doc)
		if derr != nil {
			return zero, apperr.Wrap(apperr.ErrInternal, "undecodable remote document", derr)
		}
		if err := c.store.Put(c.name, created.GetID(), doc); err != nil {
			return zero, err
		}
		return created, nil
	}
	if !remote.IsUnavailable(err) {
		return zero, err
	}

	// Offline: record optimistically under a temporary id.
	tempID := ident.NewTemporary().String()
	record.SetID(tempID)
	if verr := record.Validate(); verr != nil {
		return zero, apperr.Wrap(apperr.ErrValidation, "invalid record", verr)
	}

	body, merr := json.Marshal(record)
	if merr != nil {
		return zero, apperr.Wrap(apperr.ErrInternal, "failed to encode record", merr)
	}
	if err := c.store.Put(c.name, tempID, body); err != nil {
		return zero, err
	}
	if _, err := c.queue.Enqueue(models.ActionCreate, c.name, tempID, payload); err != nil {
		return zero, err
	}

	logging.Info("Record created offline", map[string]interface{}{
		"collection": c.name, "temp_id": tempID,
	})
	return record, nil
}

// Update applies a partial change. Online, the patch goes straight to the
// remote service. Offline, it is merged into the cached record and queued.
func (c *Collection[T]) Update(ctx context.Context, id string, patch map[string]interface{}) (T, error) {
	var zero T

	delete(patch, "id")

	if !ident.Parse(id).IsTemporary() {
		body, merr := json.Marshal(patch)
		if merr != nil {
			return zero, apperr.Wrap(apperr.ErrInternal, "failed to encode patch", merr)
		}
		doc, err := c.remote.Update(ctx, c.name, id, body)
		if err == nil {
			updated, derr := c.decode(doc)
			if derr != nil {
				return zero, apperr.Wrap(apperr.ErrInternal, "undecodable remote document", derr)
			}
			if err := c.store.Put(c.name, id, doc); err != nil {
				return zero, err
			}
			return updated, nil
		}
		if !remote.IsUnavailable(err) {
			return zero, err
		}
	}

	// Offline (or a record whose create has not synced yet): merge into the
	// cached copy and queue the patch for replay.
	patch["updated_at"] = models.Now()

	merged, err := c.mergeCached(id, patch)
	if err != nil {
		return zero, err
	}

	body, merr := json.Marshal(patch)
	if merr != nil {
		return zero, apperr.Wrap(apperr.ErrInternal, "failed to encode patch", merr)
	}
	if _, err := c.queue.Enqueue(models.ActionUpdate, c.name, id, body); err != nil {
		return zero, err
	}

	return merged, nil
}

// Delete removes a record. Deleting a record whose create never synced
// cancels the whole queued chain without any remote traffic.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if ident.Parse(id).IsTemporary() {
		if _, err := c.queue.DropEntity(c.name, id); err != nil {
			return err
		}
		return c.store.Delete(c.name, id)
	}

	err := c.remote.Delete(ctx, c.name, id)
	if err == nil {
		return c.store.Delete(c.name, id)
	}
	if !remote.IsUnavailable(err) {
		return err
	}

	if err := c.store.Delete(c.name, id); err != nil {
		return err
	}
	_, qerr := c.queue.Enqueue(models.ActionDelete, c.name, id, nil)
	return qerr
}

// Resync discards the cached collection and rehydrates it from the remote
// service. Records created offline and still awaiting replay are preserved.
// Fails without touching the cache when the remote is unreachable.
func (c *Collection[T]) Resync(ctx context.Context) (int, error) {
	docs, err := c.remote.List(ctx, c.name, nil)
	if err != nil {
		return 0, err
	}

	pending, err := c.pendingLocal(nil)
	if err != nil {
		return 0, err
	}

	if err := c.store.Clear(c.name); err != nil {
		return 0, err
	}

	count := 0
	for _, doc := range docs {
		record, derr := c.decode(doc)
		if derr != nil {
			continue
		}
		if err := c.store.Put(c.name, record.GetID(), doc); err != nil {
			return count, err
		}
		count++
	}

	for _, record := range pending {
		body, merr := json.Marshal(record)
		if merr != nil {
			continue
		}
		if err := c.store.Put(c.name, record.GetID(), body); err != nil {
			return count, err
		}
	}

	logging.Info("Collection resynced", map[string]interface{}{
		"collection": c.name, "records": count, "preserved_local": len(pending),
	})
	return count, nil
}

// cachedAll loads, validates, and filters the cached collection. Records that
// fail validation are purged so corruption cannot resurface on later reads.
func (c *Collection[T]) cachedAll(match func(T) bool) ([]T, error) {
	bodies, err := c.store.GetAll(c.name)
	if err != nil {
		return nil, err
	}

	records := make([]T, 0, len(bodies))
	for _, body := range bodies {
		record, derr := c.decode(body)
		if derr != nil {
			c.purgeCorrupt(body, derr)
			continue
		}
		if verr := record.Validate(); verr != nil {
			logging.Warn("Purging invalid cached record", map[string]interface{}{
				"collection": c.name, "id": record.GetID(), "error": verr.Error(),
			})
			if record.GetID() != "" {
				_ = c.store.Delete(c.name, record.GetID())
			}
			continue
		}
		if match == nil || match(record) {
			records = append(records, record)
		}
	}
	return records, nil
}

// cached loads and validates a single cached record.
func (c *Collection[T]) cached(id string) (T, error) {
	var zero T

	body, err := c.store.Get(c.name, id)
	if err != nil {
		return zero, err
	}

	record, derr := c.decode(body)
	if derr != nil {
		_ = c.store.Delete(c.name, id)
		return zero, apperr.Wrap(apperr.ErrCacheCorrupt, "cached record undecodable", derr)
	}
	if verr := record.Validate(); verr != nil {
		_ = c.store.Delete(c.name, id)
		return zero, apperr.Wrap(apperr.ErrCacheCorrupt, "cached record invalid", verr)
	}
	return record, nil
}

// pendingLocal returns valid cached records still carrying temporary ids.
func (c *Collection[T]) pendingLocal(match func(T) bool) ([]T, error) {
	records, err := c.cachedAll(func(r T) bool {
		if !ident.Parse(r.GetID()).IsTemporary() {
			return false
		}
		return match == nil || match(r)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// mergeCached applies a shallow patch to the cached record and writes it back.
func (c *Collection[T]) mergeCached(id string, patch map[string]interface{}) (T, error) {
	var zero T

	body, err := c.store.Get(c.name, id)
	if err != nil {
		return zero, err
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return zero, apperr.Wrap(apperr.ErrCacheCorrupt, "cached record undecodable", err)
	}
	for k, v := range patch {
		fields[k] = v
	}
	fields["id"] = id

	merged, err := json.Marshal(fields)
	if err != nil {
		return zero, apperr.Wrap(apperr.ErrInternal, "failed to encode record", err)
	}

	record, derr := c.decode(merged)
	if derr != nil {
		return zero, apperr.Wrap(apperr.ErrValidation, "patch produced undecodable record", derr)
	}
	if verr := record.Validate(); verr != nil {
		return zero, apperr.Wrap(apperr.ErrValidation, "patch produced invalid record", verr)
	}

	if err := c.store.Put(c.name, id, merged); err != nil {
		return zero, err
	}
	return record, nil
}

func (c *Collection[T]) decode(doc json.RawMessage) (T, error) {
	record := c.newFn()
	if err := json.Unmarshal(doc, record); err != nil {
		var zero T
		return zero, err
	}
	return record, nil
}

// encodeWithoutID marshals a record with the id field stripped, the shape the
// remote create endpoint expects.
func (c *Collection[T]) encodeWithoutID(record T) (json.RawMessage, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "failed to encode record", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "failed to encode record", err)
	}
	delete(fields, "id")
	stripped, err := json.Marshal(fields)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "failed to encode record", err)
	}
	return stripped, nil
}

// purgeCorrupt removes a cached record that cannot be decoded at all.
func (c *Collection[T]) purgeCorrupt(body json.RawMessage, cause error) {
	var probe struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &probe)
	logging.ErrorWithCode("Purging corrupt cached record", string(apperr.ErrCacheCorrupt), cause,
		map[string]interface{}{"collection": c.name, "id": probe.ID})
	if probe.ID != "" {
		_ = c.store.Delete(c.name, probe.ID)
	}
}

func (c *Collection[T]) order(records []T, less func(a, b T) bool) {
	if less == nil {
		return
	}
	sort.Slice(records, func(i, j int) bool { return less(records[i], records[j]) })
}
