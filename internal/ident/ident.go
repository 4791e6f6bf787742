// Package ident provides entity identity handling: UUID generation and the
// permanent/temporary id distinction for records created while offline.
package ident

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// TempPrefix marks locally allocated ids. A record carrying a prefixed id has
// never been confirmed by the remote service.
const TempPrefix = "local-"

// New generates a new UUID v4 string.
func New() string {
	return uuid.New().String()
}

// Kind distinguishes remote-assigned ids from locally allocated placeholders.
type Kind int

const (
	// KindPermanent ids were assigned by the remote service.
	KindPermanent Kind = iota
	// KindTemporary ids were allocated locally for offline-created records.
	KindTemporary
)

// EntityID is a tagged entity identifier. The zero value is an empty
// permanent id and is not valid.
type EntityID struct {
	value string
	kind  Kind
}

// Permanent wraps a remote-assigned id.
func Permanent(id string) EntityID {
	return EntityID{value: id, kind: KindPermanent}
}

// NewTemporary allocates a fresh temporary id.
func NewTemporary() EntityID {
	return EntityID{value: TempPrefix + uuid.New().String(), kind: KindTemporary}
}

// Parse recovers the tag from a serialized id string.
func Parse(s string) EntityID {
	if len(s) > len(TempPrefix) && s[:len(TempPrefix)] == TempPrefix {
		return EntityID{value: s, kind: KindTemporary}
	}
	return EntityID{value: s, kind: KindPermanent}
}

// String returns the serialized form. Temporary ids keep their prefix so the
// tag survives persistence and process restarts.
func (id EntityID) String() string {
	return id.value
}

// Kind returns the identity kind.
func (id EntityID) Kind() Kind {
	return id.kind
}

// IsTemporary reports whether the id is a local placeholder.
func (id EntityID) IsTemporary() bool {
	return id.kind == KindTemporary
}

// IsZero reports whether the id is empty.
func (id EntityID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON serializes the id as a plain string.
func (id EntityID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON restores the id and its tag from a plain string.
func (id *EntityID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid entity id: %w", err)
	}
	*id = Parse(s)
	return nil
}
