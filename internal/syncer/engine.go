// Package syncer replays the pending action queue against the remote service
// once connectivity returns, resolving temporary identities and publishing a
// completion event after every run.
package syncer

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/fieldworks/fieldsync/internal/apperr"
	"github.com/fieldworks/fieldsync/internal/events"
	"github.com/fieldworks/fieldsync/internal/ident"
	"github.com/fieldworks/fieldsync/internal/logging"
	"github.com/fieldworks/fieldsync/internal/models"
	"github.com/fieldworks/fieldsync/internal/remote"
	"github.com/fieldworks/fieldsync/internal/store"
	"github.com/fieldworks/fieldsync/internal/syncer/queue"
)

// ErrSyncInProgress is returned when Sync is invoked while a run is already
// in flight. The new invocation is a no-op, not queued.
var ErrSyncInProgress = apperr.New(apperr.ErrSyncInProgress, "sync already in progress")

// Result summarizes one sync run.
type Result struct {
	Success   bool
	Applied   int
	Rejected  int
	Remaining int
	Stuck     int
	Error     string
	Duration  time.Duration
}

// Engine drains the pending action queue in order. At most one run is active
// at a time; re-entrant invocations are rejected.
type Engine struct {
	store  *store.Store
	remote remote.Service
	queue  *queue.Queue
	bus    *events.Bus

	// online, when set, lets the engine abort cleanly on total connectivity
	// loss mid-run instead of burning a retry on every queued action.
	online func() bool

	running atomic.Bool
}

// New creates a sync engine.
func New(st *store.Store, rs remote.Service, q *queue.Queue, bus *events.Bus) *Engine {
	return &Engine{
		store:  st,
		remote: rs,
		queue:  q,
		bus:    bus,
	}
}

// SetOnlineCheck wires the network monitor's status signal into the engine.
func (e *Engine) SetOnlineCheck(fn func() bool) {
	e.online = fn
}

// Running reports whether a sync run is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Sync replays the queue. Individual action failures are recoverable and do
// not fail the run; only a structural failure (unreadable queue, connectivity
// lost mid-run, cancellation) clears Success. A completion event is published
// on the bus in every case.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer e.running.Store(false)

	start := time.Now()
	res := &Result{Success: true}

	defer func() {
		res.Duration = time.Since(start)
		if pending, stuck, err := e.queue.Stats(); err == nil {
			res.Remaining = pending
			res.Stuck = stuck
		}
		e.publish(res)
	}()

	actions, err := e.queue.List()
	if err != nil {
		res.Success = false
		res.Error = err.Error()
		return res, apperr.Wrap(apperr.ErrSyncFailed, "failed to read pending action queue", err)
	}

	if len(actions) == 0 {
		return res, nil
	}

	logging.Info("Sync run started", map[string]interface{}{"queued": len(actions)})

	// tempToReal maps chain keys of temporary ids resolved during this pass.
	// blocked marks entity chains whose earlier action failed; later actions
	// in a blocked chain are skipped to preserve per-entity ordering.
	// dropped marks chains removed wholesale after a rejected create.
	tempToReal := make(map[string]string)
	blocked := make(map[string]bool)
	dropped := make(map[string]bool)

	for _, action := range actions {
		select {
		case <-ctx.Done():
			res.Success = false
			res.Error = "sync run cancelled"
			return res, nil
		default:
		}

		if e.online != nil && !e.online() {
			res.Success = false
			res.Error = "connectivity lost mid-run"
			logging.Warn("Sync run aborted, connectivity lost", map[string]interface{}{
				"applied": res.Applied,
			})
			return res, nil
		}

		if action.IsStuck() {
			continue
		}

		chain := chainKey(action.EntityType, action.EntityID)
		if dropped[chain] {
			continue
		}
		if real, ok := tempToReal[chain]; ok {
			action.EntityID = real
			chain = chainKey(action.EntityType, real)
		}
		if blocked[chain] {
			continue
		}

		var applyErr error
		switch action.Kind {
		case models.ActionCreate:
			applyErr = e.applyCreate(ctx, action, tempToReal, dropped)
		case models.ActionUpdate:
			applyErr = e.applyUpdate(ctx, action)
		case models.ActionDelete:
			applyErr = e.applyDelete(ctx, action)
		default:
			// Unknown kinds never succeed; drop them instead of retrying
			// forever.
			applyErr = apperr.New(apperr.ErrInvalid, "unknown action kind "+string(action.Kind))
		}

		switch {
		case applyErr == nil:
			res.Applied++

		case remote.IsUnavailable(applyErr):
			if err := e.queue.MarkFailed(action.ID, applyErr); err != nil {
				logging.Error("Failed to record action failure", err,
					map[string]interface{}{"action_id": action.ID})
			}
			blocked[chain] = true

		default:
			// Remote rejection or an unreplayable action: remove instead of
			// retrying forever, and surface through logs and counters.
			res.Rejected++
			blocked[chain] = true
			if err := e.queue.Remove(action.ID); err != nil {
				logging.Error("Failed to remove rejected action", err,
					map[string]interface{}{"action_id": action.ID})
			}
			logging.ErrorWithCode("Pending action rejected by remote", string(apperr.CodeOf(applyErr)), applyErr,
				map[string]interface{}{
					"action_id":   action.ID,
					"kind":        string(action.Kind),
					"entity_type": action.EntityType,
					"entity_id":   action.EntityID,
				})
		}
	}

	logging.Info("Sync run finished", map[string]interface{}{
		"applied":  res.Applied,
		"rejected": res.Rejected,
	})

	return res, nil
}

// applyCreate replays a create. On success the remote-assigned id replaces
// the temporary id in the cache and in every queued action referencing it.
func (e *Engine) applyCreate(ctx context.Context, action *models.PendingAction, tempToReal map[string]string, dropped map[string]bool) error {
	doc, err := e.remote.Create(ctx, action.EntityType, action.Payload)
	if err != nil {
		if remote.IsRejection(err) {
			// The record can never exist remotely. Drop the optimistic cache
			// entry and everything queued behind it.
			e.discardEntity(action.EntityType, action.EntityID)
			dropped[chainKey(action.EntityType, action.EntityID)] = true
		}
		return err
	}

	realID, err := remote.DocumentID(doc)
	if err != nil {
		return apperr.Wrap(apperr.ErrSyncFailed, "create response missing id", err)
	}

	tempID := action.EntityID
	if _, err := e.queue.RewriteEntityID(action.EntityType, tempID, realID); err != nil {
		return err
	}
	if err := e.rewriteCache(action.EntityType, tempID, realID, doc); err != nil {
		return err
	}
	tempToReal[chainKey(action.EntityType, tempID)] = realID

	if err := e.queue.Remove(action.ID); err != nil {
		return err
	}

	logging.Info("Offline create confirmed", map[string]interface{}{
		"entity_type": action.EntityType,
		"temp_id":     tempID,
		"real_id":     realID,
	})
	return nil
}

// applyUpdate replays an update with last-writer-wins semantics, logging a
// conflict whenever the replay overwrites a remote edit made after the
// offline change was recorded.
func (e *Engine) applyUpdate(ctx context.Context, action *models.PendingAction) error {
	if ident.Parse(action.EntityID).IsTemporary() {
		// The originating create has not replayed yet; ordering puts it
		// earlier in the queue, so reaching here means it failed this pass.
		return remote.Unavailable(apperr.New(apperr.ErrSyncFailed, "create for temporary id not yet confirmed"))
	}

	current, err := e.remote.Get(ctx, action.EntityType, action.EntityID)
	if err != nil {
		if remote.IsRejection(err) {
			// Deleted remotely while we were offline; the remote deletion
			// wins over the queued update.
			e.discardEntity(action.EntityType, action.EntityID)
			e.logConflict(action, 0, "remote_wins")
		}
		return err
	}

	remoteUpdated := remote.DocumentUpdatedAt(current)
	if remoteUpdated > action.CreatedAtTime().Unix() {
		e.logConflict(action, remoteUpdated, "local_wins")
	}

	doc, err := e.remote.Update(ctx, action.EntityType, action.EntityID, action.Payload)
	if err != nil {
		return err
	}

	if err := e.store.Put(action.EntityType, action.EntityID, doc); err != nil {
		logging.Error("Failed to refresh cache after replay", err,
			map[string]interface{}{"entity_type": action.EntityType, "entity_id": action.EntityID})
	}

	return e.queue.Remove(action.ID)
}

// applyDelete replays a delete.
func (e *Engine) applyDelete(ctx context.Context, action *models.PendingAction) error {
	if ident.Parse(action.EntityID).IsTemporary() {
		return remote.Unavailable(apperr.New(apperr.ErrSyncFailed, "create for temporary id not yet confirmed"))
	}

	if err := e.remote.Delete(ctx, action.EntityType, action.EntityID); err != nil {
		return err
	}

	if err := e.store.Delete(action.EntityType, action.EntityID); err != nil {
		logging.Error("Failed to drop cache entry after replayed delete", err,
			map[string]interface{}{"entity_type": action.EntityType, "entity_id": action.EntityID})
	}

	return e.queue.Remove(action.ID)
}

// rewriteCache replaces the temporary cache record with the canonical remote
// document under its real id.
func (e *Engine) rewriteCache(entityType, tempID, realID string, doc json.RawMessage) error {
	if err := e.store.Put(entityType, realID, doc); err != nil {
		return err
	}
	if err := e.store.Delete(entityType, tempID); err != nil {
		return err
	}
	return nil
}

// discardEntity removes the optimistic cache record and any remaining queued
// actions for an entity that will never exist remotely.
func (e *Engine) discardEntity(entityType, entityID string) {
	if err := e.store.Delete(entityType, entityID); err != nil {
		logging.Error("Failed to discard cache entry", err,
			map[string]interface{}{"entity_type": entityType, "entity_id": entityID})
	}
	if _, err := e.queue.DropEntity(entityType, entityID); err != nil {
		logging.Error("Failed to drop dependent actions", err,
			map[string]interface{}{"entity_type": entityType, "entity_id": entityID})
	}
}

// logConflict records a concurrent-edit conflict in the conflict log.
func (e *Engine) logConflict(action *models.PendingAction, remoteTimestamp int64, resolution string) {
	entry := &models.ConflictLog{
		ID:              ident.New(),
		EntityType:      action.EntityType,
		EntityID:        action.EntityID,
		LocalTimestamp:  action.CreatedAtTime().Unix(),
		RemoteTimestamp: remoteTimestamp,
		Resolution:      resolution,
		DetectedAt:      time.Now().Unix(),
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := e.store.Put(models.CollectionConflicts, entry.ID, body); err != nil {
		logging.Error("Failed to record conflict", err,
			map[string]interface{}{"entity_type": entry.EntityType, "entity_id": entry.EntityID})
		return
	}

	logging.Warn("Concurrent edit resolved", map[string]interface{}{
		"entity_type":      entry.EntityType,
		"entity_id":        entry.EntityID,
		"resolution":       resolution,
		"local_timestamp":  entry.LocalTimestamp,
		"remote_timestamp": entry.RemoteTimestamp,
	})
}

// publish pushes the completion event to the bus.
func (e *Engine) publish(res *Result) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.SyncCompleted{
		Success:   res.Success,
		Applied:   res.Applied,
		Rejected:  res.Rejected,
		Remaining: res.Remaining,
		Stuck:     res.Stuck,
		Error:     res.Error,
		Duration:  res.Duration,
	})
}

func chainKey(entityType, entityID string) string {
	return entityType + "/" + entityID
}
