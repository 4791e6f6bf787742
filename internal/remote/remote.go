// Package remote defines the boundary to the backend system of record. The
// backend is opaque to the sync core: every call returns a success payload or
// an error, with no partial-success semantics.
//
// Errors are classified into two families the rest of the core branches on:
// unavailable (connectivity/timeout, recoverable by cache fallback or
// queueing) and rejected (validation/conflict, surfaced to the caller and
// never blindly retried).
package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldworks/fieldsync/internal/apperr"
)

// Service is the remote data service boundary. One logical operation per
// entity action; collection names match the local cache collections.
type Service interface {
	// List fetches all documents in a collection matching the filter.
	List(ctx context.Context, collection string, filter map[string]string) ([]json.RawMessage, error)

	// Get fetches a single document by id.
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)

	// Create inserts a document and returns the canonical document with the
	// remote-assigned id.
	Create(ctx context.Context, collection string, body json.RawMessage) (json.RawMessage, error)

	// Update applies a partial document patch and returns the canonical
	// updated document.
	Update(ctx context.Context, collection, id string, patch json.RawMessage) (json.RawMessage, error)

	// Delete removes a document by id.
	Delete(ctx context.Context, collection, id string) error
}

// Unavailable wraps a connectivity-class failure: the remote was unreachable,
// timed out, or answered with a retryable server error.
func Unavailable(err error) error {
	return apperr.Wrap(apperr.ErrRemoteUnavailable, "remote service unreachable", err)
}

// Rejection builds a non-retryable remote rejection (validation or conflict).
func Rejection(status int, message string) error {
	return apperr.New(apperr.ErrRemoteRejected, fmt.Sprintf("remote rejected request (%d): %s", status, message))
}

// NotFound builds a rejection for a missing remote document.
func NotFound(collection, id string) error {
	return apperr.New(apperr.ErrRemoteRejected, fmt.Sprintf("remote has no %s/%s", collection, id))
}

// IsUnavailable reports whether err is a connectivity-class failure that the
// offline layer recovers from locally.
func IsUnavailable(err error) bool {
	return apperr.Is(err, apperr.ErrRemoteUnavailable) || apperr.Is(err, apperr.ErrRemoteTimeout)
}

// IsRejection reports whether err is a remote rejection that must be surfaced
// rather than retried.
func IsRejection(err error) bool {
	return apperr.Is(err, apperr.ErrRemoteRejected)
}

// DocumentID extracts the id field from a remote document.
func DocumentID(doc json.RawMessage) (string, error) {
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(doc, &envelope); err != nil {
		return "", fmt.Errorf("document has no parsable id: %w", err)
	}
	if envelope.ID == "" {
		return "", fmt.Errorf("document has empty id")
	}
	return envelope.ID, nil
}

// DocumentUpdatedAt extracts the updated_at field from a remote document.
// Returns zero when the document carries none.
func DocumentUpdatedAt(doc json.RawMessage) int64 {
	var envelope struct {
		UpdatedAt int64 `json:"updated_at"`
	}
	if err := json.Unmarshal(doc, &envelope); err != nil {
		return 0
	}
	return envelope.UpdatedAt
}
