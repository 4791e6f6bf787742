package models

import (
	"encoding/json"
	"time"
)

// ActionKind represents the kind of deferred mutation.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

// ActionStatus represents the replay state of a pending action.
type ActionStatus string

const (
	// ActionStatusPending actions are eligible for replay.
	ActionStatusPending ActionStatus = "pending"
	// ActionStatusStuck actions exceeded the retry ceiling. They stay in the
	// queue for operator attention but are skipped by replay until re-armed.
	ActionStatusStuck ActionStatus = "stuck"
)

// PendingAction represents one deferred mutation awaiting replay against the
// remote service. Actions are persisted the moment they are enqueued and
// removed only after a confirmed successful replay.
type PendingAction struct {
	ID         string          `db:"id" json:"id"`
	Seq        int64           `db:"seq" json:"seq"`
	Kind       ActionKind      `db:"kind" json:"kind"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   string          `db:"entity_id" json:"entity_id"`
	Payload    json.RawMessage `db:"payload" json:"payload,omitempty"`
	Status     ActionStatus    `db:"status" json:"status"`
	CreatedAt  int64           `db:"created_at" json:"created_at"` // unix nanoseconds
	RetryCount int             `db:"retry_count" json:"retry_count"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
}

// Collection returns the cache collection for PendingAction.
func (PendingAction) Collection() string {
	return CollectionPending
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (a *PendingAction) CreatedAtTime() time.Time {
	return time.Unix(0, a.CreatedAt)
}

// IsStuck reports whether the action exceeded the retry ceiling.
func (a *PendingAction) IsStuck() bool {
	return a.Status == ActionStatusStuck
}
