// Package queue provides the durable pending action queue: an ordered,
// append-only log of mutations deferred while the remote service was
// unreachable. Every action is persisted to the local store before Enqueue
// returns, so a crash never silently loses work.
package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fieldworks/fieldsync/internal/apperr"
	"github.com/fieldworks/fieldsync/internal/ident"
	"github.com/fieldworks/fieldsync/internal/logging"
	"github.com/fieldworks/fieldsync/internal/models"
	"github.com/fieldworks/fieldsync/internal/store"
)

// DefaultMaxRetries is the retry ceiling before an action is flagged stuck.
const DefaultMaxRetries = 5

// Queue manages pending actions persisted in the local store. All mutation
// goes through Enqueue/Remove/MarkFailed/Retry; nothing else touches the
// backing collection.
type Queue struct {
	store      *store.Store
	maxRetries int

	mu      sync.Mutex
	nextSeq int64
	seqInit bool
}

// New creates a Queue over the given store. maxRetries <= 0 selects
// DefaultMaxRetries.
func New(st *store.Store, maxRetries int) *Queue {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Queue{store: st, maxRetries: maxRetries}
}

// MaxRetries returns the configured retry ceiling.
func (q *Queue) MaxRetries() int {
	return q.maxRetries
}

// Enqueue appends a new action with a fresh id, sequence number, and
// timestamp, persisting it before returning.
func (q *Queue) Enqueue(kind models.ActionKind, entityType, entityID string, payload json.RawMessage) (*models.PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	seq, err := q.allocSeq()
	if err != nil {
		return nil, err
	}

	action := &models.PendingAction{
		ID:         ident.New(),
		Seq:        seq,
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		Status:     models.ActionStatusPending,
		CreatedAt:  time.Now().UnixNano(),
	}

	if err := q.persist(action); err != nil {
		return nil, err
	}

	logging.Debug("Enqueued pending action", map[string]interface{}{
		"action_id":   action.ID,
		"kind":        string(kind),
		"entity_type": entityType,
		"entity_id":   entityID,
	})

	return action, nil
}

// List returns all queued actions ordered by creation (oldest first),
// including stuck ones.
func (q *Queue) List() ([]*models.PendingAction, error) {
	bodies, err := q.store.GetAll(models.CollectionPending)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrQueueFailed, "failed to read pending actions", err)
	}

	actions := make([]*models.PendingAction, 0, len(bodies))
	for _, body := range bodies {
		var action models.PendingAction
		if err := json.Unmarshal(body, &action); err != nil {
			// A corrupt queue entry is a structural problem; surface it
			// rather than replay a half-parsed mutation.
			return nil, apperr.Wrap(apperr.ErrQueueFailed, "corrupt pending action", err)
		}
		actions = append(actions, &action)
	}

	sort.Slice(actions, func(i, j int) bool {
		if actions[i].CreatedAt != actions[j].CreatedAt {
			return actions[i].CreatedAt < actions[j].CreatedAt
		}
		return actions[i].Seq < actions[j].Seq
	})

	return actions, nil
}

// Remove deletes a successfully replayed (or rejected) action.
func (q *Queue) Remove(actionID string) error {
	if err := q.store.Delete(models.CollectionPending, actionID); err != nil {
		return apperr.Wrap(apperr.ErrQueueFailed, fmt.Sprintf("failed to remove action %s", actionID), err)
	}
	return nil
}

// MarkFailed increments the retry count and records the failure reason,
// leaving the action queued. Past the retry ceiling the action is flagged
// stuck and skipped by replay until re-armed.
func (q *Queue) MarkFailed(actionID string, cause error) error {
	action, err := q.get(actionID)
	if err != nil {
		return err
	}

	action.RetryCount++
	if cause != nil {
		action.LastError = cause.Error()
	}

	if action.RetryCount >= q.maxRetries && action.Status != models.ActionStatusStuck {
		action.Status = models.ActionStatusStuck
		logging.ErrorWithCode("Pending action exceeded retry ceiling", string(apperr.ErrActionStuck), cause,
			map[string]interface{}{
				"action_id":   action.ID,
				"entity_type": action.EntityType,
				"entity_id":   action.EntityID,
				"retry_count": action.RetryCount,
			})
	}

	return q.persist(action)
}

// Retry re-arms a stuck action for the next sync run.
func (q *Queue) Retry(actionID string) error {
	action, err := q.get(actionID)
	if err != nil {
		return err
	}

	action.Status = models.ActionStatusPending
	action.RetryCount = 0
	action.LastError = ""
	return q.persist(action)
}

// RewriteEntityID repoints queued actions from a temporary id to the real id
// assigned by the remote service. Called once the originating create has
// replayed successfully.
func (q *Queue) RewriteEntityID(entityType, oldID, newID string) (int, error) {
	actions, err := q.List()
	if err != nil {
		return 0, err
	}

	rewritten := 0
	for _, action := range actions {
		if action.EntityType != entityType || action.EntityID != oldID {
			continue
		}
		action.EntityID = newID
		if err := q.persist(action); err != nil {
			return rewritten, err
		}
		rewritten++
	}
	return rewritten, nil
}

// DropEntity removes every queued action for an entity. Used when a record
// created offline is deleted before its create ever synced: the whole chain
// becomes moot and nothing is sent to the remote service.
func (q *Queue) DropEntity(entityType, entityID string) (int, error) {
	actions, err := q.List()
	if err != nil {
		return 0, err
	}

	dropped := 0
	for _, action := range actions {
		if action.EntityType != entityType || action.EntityID != entityID {
			continue
		}
		if err := q.Remove(action.ID); err != nil {
			return dropped, err
		}
		dropped++
	}
	return dropped, nil
}

// HasCreate reports whether a create action for the entity is still queued.
func (q *Queue) HasCreate(entityType, entityID string) (bool, error) {
	actions, err := q.List()
	if err != nil {
		return false, err
	}
	for _, action := range actions {
		if action.Kind == models.ActionCreate && action.EntityType == entityType && action.EntityID == entityID {
			return true, nil
		}
	}
	return false, nil
}

// Size returns the number of queued actions.
func (q *Queue) Size() (int, error) {
	return q.store.Count(models.CollectionPending)
}

// Stats returns queued action counts by status.
func (q *Queue) Stats() (pending, stuck int, err error) {
	actions, err := q.List()
	if err != nil {
		return 0, 0, err
	}
	for _, action := range actions {
		if action.IsStuck() {
			stuck++
		} else {
			pending++
		}
	}
	return pending, stuck, nil
}

// get loads a single action by id.
func (q *Queue) get(actionID string) (*models.PendingAction, error) {
	body, err := q.store.Get(models.CollectionPending, actionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrQueueFailed, fmt.Sprintf("action %s not found", actionID), err)
	}
	var action models.PendingAction
	if err := json.Unmarshal(body, &action); err != nil {
		return nil, apperr.Wrap(apperr.ErrQueueFailed, fmt.Sprintf("corrupt action %s", actionID), err)
	}
	return &action, nil
}

// persist writes an action back to the store.
func (q *Queue) persist(action *models.PendingAction) error {
	body, err := json.Marshal(action)
	if err != nil {
		return apperr.Wrap(apperr.ErrQueueFailed, "failed to encode action", err)
	}
	if err := q.store.Put(models.CollectionPending, action.ID, body); err != nil {
		return apperr.Wrap(apperr.ErrQueueFailed, "failed to persist action", err)
	}
	return nil
}

// allocSeq hands out monotonically increasing sequence numbers, seeding from
// whatever survived the last process.
func (q *Queue) allocSeq() (int64, error) {
	if !q.seqInit {
		bodies, err := q.store.GetAll(models.CollectionPending)
		if err != nil {
			return 0, apperr.Wrap(apperr.ErrQueueFailed, "failed to seed sequence", err)
		}
		var max int64
		for _, body := range bodies {
			var action models.PendingAction
			if err := json.Unmarshal(body, &action); err != nil {
				continue
			}
			if action.Seq > max {
				max = action.Seq
			}
		}
		q.nextSeq = max
		q.seqInit = true
	}
	q.nextSeq++
	return q.nextSeq, nil
}
