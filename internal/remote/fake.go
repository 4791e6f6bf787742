package remote

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/fieldworks/fieldsync/internal/ident"
)

// Fake is an in-memory Service used by tests and local development. It can
// simulate connectivity loss and per-collection rejections.
type Fake struct {
	mu          sync.Mutex
	collections map[string]map[string]json.RawMessage
	offline     bool
	rejectNext  map[string]string // collection -> rejection message
	calls       []string
}

// NewFake creates an empty fake remote service.
func NewFake() *Fake {
	return &Fake{
		collections: make(map[string]map[string]json.RawMessage),
		rejectNext:  make(map[string]string),
	}
}

// SetOffline toggles simulated connectivity loss. While offline every call
// fails with an unavailable-class error.
func (f *Fake) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

// RejectNext makes the next mutation against collection fail with a
// rejection-class error.
func (f *Fake) RejectNext(collection, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectNext[collection] = message
}

// Calls returns the operations seen so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Seed inserts a document directly, bypassing failure simulation.
func (f *Fake) Seed(collection, id string, doc json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coll(collection)[id] = doc
}

// Document returns the stored document, or nil.
func (f *Fake) Document(collection, id string) json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coll(collection)[id]
}

func (f *Fake) coll(name string) map[string]json.RawMessage {
	if f.collections[name] == nil {
		f.collections[name] = make(map[string]json.RawMessage)
	}
	return f.collections[name]
}

func (f *Fake) gate(collection, op string) error {
	f.calls = append(f.calls, op+" "+collection)
	if f.offline {
		return Unavailable(context.DeadlineExceeded)
	}
	if msg, ok := f.rejectNext[collection]; ok {
		delete(f.rejectNext, collection)
		return Rejection(422, msg)
	}
	return nil
}

// List implements Service.
func (f *Fake) List(ctx context.Context, collection string, filter map[string]string) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(collection, "list"); err != nil {
		return nil, err
	}

	var docs []json.RawMessage
	for _, doc := range f.coll(collection) {
		if matchesFilter(doc, filter) {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		idI, _ := DocumentID(docs[i])
		idJ, _ := DocumentID(docs[j])
		return idI < idJ
	})
	return docs, nil
}

// Get implements Service.
func (f *Fake) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(collection, "get"); err != nil {
		return nil, err
	}
	doc, ok := f.coll(collection)[id]
	if !ok {
		return nil, NotFound(collection, id)
	}
	return doc, nil
}

// Create implements Service. The fake assigns a fresh permanent id and stamps
// updated_at, mirroring what a real backend does.
func (f *Fake) Create(ctx context.Context, collection string, body json.RawMessage) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(collection, "create"); err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, Rejection(400, "malformed document")
	}
	id := ident.New()
	doc["id"] = id
	doc["updated_at"] = time.Now().Unix()

	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, Rejection(400, "unencodable document")
	}
	f.coll(collection)[id] = canonical
	return canonical, nil
}

// Update implements Service, applying the patch as a shallow JSON merge.
func (f *Fake) Update(ctx context.Context, collection, id string, patch json.RawMessage) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(collection, "update"); err != nil {
		return nil, err
	}

	existing, ok := f.coll(collection)[id]
	if !ok {
		return nil, NotFound(collection, id)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(existing, &doc); err != nil {
		return nil, Rejection(500, "stored document corrupt")
	}
	var changes map[string]interface{}
	if err := json.Unmarshal(patch, &changes); err != nil {
		return nil, Rejection(400, "malformed patch")
	}
	for k, v := range changes {
		doc[k] = v
	}
	doc["id"] = id
	doc["updated_at"] = time.Now().Unix()

	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, Rejection(400, "unencodable document")
	}
	f.coll(collection)[id] = canonical
	return canonical, nil
}

// Delete implements Service.
func (f *Fake) Delete(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(collection, "delete"); err != nil {
		return err
	}
	if _, ok := f.coll(collection)[id]; !ok {
		return NotFound(collection, id)
	}
	delete(f.coll(collection), id)
	return nil
}

// matchesFilter checks document fields against string filter values.
func matchesFilter(doc json.RawMessage, filter map[string]string) bool {
	if len(filter) == 0 {
		return true
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(doc, &fields); err != nil {
		return false
	}
	for k, want := range filter {
		got, ok := fields[k]
		if !ok {
			return false
		}
		if s, ok := got.(string); ok {
			if s != want {
				return false
			}
			continue
		}
		raw, _ := json.Marshal(got)
		if string(raw) != want {
			return false
		}
	}
	return true
}
