// Package models provides data model definitions for the fieldsync core.
//
// Every entity cached by the sync layer carries a string id. Ids assigned by
// the remote service are plain UUIDs; ids allocated for offline-created
// records carry the ident.TempPrefix marker until the corresponding create
// action has been replayed.
package models

import "time"

// Collection names used by the local persistent store.
const (
	CollectionCustomers   = "customers"
	CollectionJobs        = "jobs"
	CollectionChecklists  = "checklists"
	CollectionTimeEntries = "time_entries"
	CollectionPending     = "pending_actions"
	CollectionConflicts   = "conflict_log"
)

// Now returns the current unix timestamp in seconds. Split out so models and
// repositories stamp time the same way.
func Now() int64 {
	return time.Now().Unix()
}
