package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/fieldworks/fieldsync/internal/apperr"
	"github.com/fieldworks/fieldsync/internal/ident"
	"github.com/fieldworks/fieldsync/internal/models"
	"github.com/fieldworks/fieldsync/internal/remote"
	"github.com/fieldworks/fieldsync/internal/store"
	"github.com/fieldworks/fieldsync/internal/syncer/queue"
)

type env struct {
	store *store.Store
	fake  *remote.Fake
	queue *queue.Queue
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := st.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return &env{
		store: st,
		fake:  remote.NewFake(),
		queue: queue.New(st, 0),
	}
}

func (e *env) customers() *Customers {
	return NewCustomers(e.store, e.fake, e.queue)
}

func (e *env) jobs() *Jobs {
	return NewJobs(e.store, e.fake, e.queue)
}

func seedCustomer(e *env, id, name string) {
	e.fake.Seed(models.CollectionCustomers, id, json.RawMessage(fmt.Sprintf(
		`{"id":%q,"name":%q,"active":true,"created_at":100,"updated_at":100}`, id, name)))
}

func TestListNetworkFirstThenCacheFallback(t *testing.T) {
	e := newEnv(t)
	repo := e.customers()
	ctx := context.Background()

	seedCustomer(e, "c1", "Acme Plumbing")
	seedCustomer(e, "c2", "Borealis HVAC")

	customers, fromCache, err := repo.List(ctx, CustomerFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if fromCache {
		t.Error("online read reported fromCache")
	}
	if len(customers) != 2 {
		t.Fatalf("got %d customers, want 2", len(customers))
	}

	// Offline, the cached copies answer and the read is tagged.
	e.fake.SetOffline(true)
	customers, fromCache, err = repo.List(ctx, CustomerFilter{})
	if err != nil {
		t.Fatalf("offline list failed: %v", err)
	}
	if !fromCache {
		t.Error("offline read not tagged fromCache")
	}
	if len(customers) != 2 {
		t.Errorf("got %d cached customers, want 2", len(customers))
	}
}

func TestListFilterAppliesToCacheFallback(t *testing.T) {
	e := newEnv(t)
	repo := e.customers()
	ctx := context.Background()

	seedCustomer(e, "c1", "Acme Plumbing")
	seedCustomer(e, "c2", "Borealis HVAC")

	if _, _, err := repo.List(ctx, CustomerFilter{}); err != nil {
		t.Fatalf("warmup list failed: %v", err)
	}

	e.fake.SetOffline(true)
	customers, fromCache, err := repo.List(ctx, CustomerFilter{Search: "acme"})
	if err != nil {
		t.Fatalf("offline list failed: %v", err)
	}
	if !fromCache {
		t.Error("offline read not tagged fromCache")
	}
	if len(customers) != 1 || customers[0].Name != "Acme Plumbing" {
		t.Errorf("filter not applied to cache fallback: %+v", customers)
	}
}

func TestOfflineCreateIsVisibleAndQueued(t *testing.T) {
	e := newEnv(t)
	repo := e.customers()
	ctx := context.Background()

	e.fake.SetOffline(true)

	created, err := repo.Create(ctx, &models.Customer{Name: "Acme Plumbing"})
	if err != nil {
		t.Fatalf("offline create failed: %v", err)
	}
	if !ident.Parse(created.ID).IsTemporary() {
		t.Errorf("offline create got id %q, want temporary", created.ID)
	}

	// Visible in offline reads.
	customers, _, err := repo.List(ctx, CustomerFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(customers) != 1 || customers[0].ID != created.ID {
		t.Errorf("optimistic record not visible: %+v", customers)
	}

	// Queued for replay.
	actions, err := e.queue.List()
	if err != nil {
		t.Fatalf("queue list failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Kind != models.ActionCreate || actions[0].EntityID != created.ID {
		t.Errorf("create not queued correctly: %+v", actions)
	}

	// Visible in merged online reads too.
	e.fake.SetOffline(false)
	customers, fromCache, err := repo.List(ctx, CustomerFilter{})
	if err != nil {
		t.Fatalf("online list failed: %v", err)
	}
	if fromCache {
		t.Error("online read reported fromCache")
	}
	if len(customers) != 1 || customers[0].ID != created.ID {
		t.Errorf("pending local record missing from online read: %+v", customers)
	}
}

func TestOnlineCreateUsesRemoteIdentity(t *testing.T) {
	e := newEnv(t)
	repo := e.customers()
	ctx := context.Background()

	created, err := repo.Create(ctx, &models.Customer{Name: "Acme Plumbing"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if ident.Parse(created.ID).IsTemporary() {
		t.Errorf("online create kept a temporary id: %q", created.ID)
	}
	if e.fake.Document(models.CollectionCustomers, created.ID) == nil {
		t.Error("record not on the remote")
	}
	if n, _ := e.queue.Size(); n != 0 {
		t.Errorf("online create queued %d actions, want 0", n)
	}
	if _, err := e.store.Get(models.CollectionCustomers, created.ID); err != nil {
		t.Errorf("canonical record not cached: %v", err)
	}
}

func TestOnlineCreateRejectionSurfaces(t *testing.T) {
	e := newEnv(t)
	repo := e.customers()
	ctx := context.Background()

	e.fake.RejectNext(models.CollectionCustomers, "duplicate email")

	_, err := repo.Create(ctx, &models.Customer{Name: "Acme"})
	if !remote.IsRejection(err) {
		t.Errorf("got %v, want rejection surfaced", err)
	}
	if n, _ := e.queue.Size(); n != 0 {
		t.Errorf("rejected create was queued: %d actions", n)
	}
}

func TestOfflineUpdateMergesAndQueues(t *testing.T) {
	e := newEnv(t)
	repo := e.customers()
	ctx := context.Background()

	seedCustomer(e, "c1", "Acme Plumbing")
	if _, _, err := repo.List(ctx, CustomerFilter{}); err != nil {
		t.Fatalf("warmup list failed: %v", err)
	}

	e.fake.SetOffline(true)
	updated, err := repo.Update(ctx, "c1", map[string]interface{}{"name": "Acme Plumbing LLC"})
	if err != nil {
		t.Fatalf("offline update failed: %v", err)
	}
	if updated.Name != "Acme Plumbing LLC" {
		t.Errorf("got name %q, want merged value", updated.Name)
	}

	got, _, err := repo.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "Acme Plumbing LLC" {
		t.Errorf("cache not updated: %q", got.Name)
	}

	actions, _ := e.queue.List()
	if len(actions) != 1 || actions[0].Kind != models.ActionUpdate {
		t.Errorf("update not queued: %+v", actions)
	}
}

func TestOfflineUpdateMissingRecord(t *testing.T) {
	e := newEnv(t)
	repo := e.customers()
	ctx := context.Background()

	e.fake.SetOffline(true)
	_, err := repo.Update(ctx, "ghost", map[string]interface{}{"name": "x"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if n, _ := e.queue.Size(); n != 0 {
		t.Errorf("update of missing record queued: %d actions", n)
	}
}

func TestDeleteBeforeSyncCancelsChain(t *testing.T) {
	e := newEnv(t)
	repo := e.customers()
	ctx := context.Background()

	e.fake.SetOffline(true)

	created, err := repo.Create(ctx, &models.Customer{Name: "Acme"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := repo.Update(ctx, created.ID, map[string]interface{}{"notes": "call first"}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if n, _ := e.queue.Size(); n != 0 {
		t.Errorf("chain survived delete-before-sync: %d actions", n)
	}
	if _, _, err := repo.Get(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("record visible after delete: %v", err)
	}
	for _, call := range e.fake.Calls() {
		if call == "delete customers" {
			t.Error("delete-before-sync sent a delete to the remote")
		}
	}
}

func TestOfflineDeleteQueuesAction(t *testing.T) {
	e := newEnv(t)
	repo := e.jobs()
	ctx := context.Background()

	e.fake.Seed(models.CollectionJobs, "j1", json.RawMessage(
		`{"id":"j1","customer_id":"c1","title":"Fix boiler","status":"scheduled","created_at":100,"updated_at":100}`))
	if _, _, err := repo.List(ctx, JobFilter{}); err != nil {
		t.Fatalf("warmup list failed: %v", err)
	}

	e.fake.SetOffline(true)
	if err := repo.Delete(ctx, "j1"); err != nil {
		t.Fatalf("offline delete failed: %v", err)
	}

	jobs, _, err := repo.List(ctx, JobFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("deleted job still listed: %+v", jobs)
	}

	actions, _ := e.queue.List()
	if len(actions) != 1 || actions[0].Kind != models.ActionDelete || actions[0].EntityID != "j1" {
		t.Errorf("delete not queued: %+v", actions)
	}
}

func TestCacheSanitizationPurgesInvalidRecords(t *testing.T) {
	e := newEnv(t)
	repo := e.customers()
	ctx := context.Background()

	// One valid record, one failing validation, one unparsable.
	if err := e.store.Put(models.CollectionCustomers, "good", []byte(
		`{"id":"good","name":"Acme","active":true,"created_at":100,"updated_at":100}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := e.store.Put(models.CollectionCustomers, "invalid", []byte(
		`{"id":"invalid","name":"","created_at":100,"updated_at":100}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := e.store.Put(models.CollectionCustomers, "corrupt", []byte(`{"id":"corrupt","name":123}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	e.fake.SetOffline(true)
	customers, _, err := repo.List(ctx, CustomerFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(customers) != 1 || customers[0].ID != "good" {
		t.Errorf("sanitization leaked bad records: %+v", customers)
	}

	// Bad records were purged, not just hidden.
	if _, err := e.store.Get(models.CollectionCustomers, "invalid"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("invalid record still cached: %v", err)
	}
	if n, _ := e.store.Count(models.CollectionCustomers); n != 1 {
		t.Errorf("got %d cached records after sanitization, want 1", n)
	}
}

func TestGetCorruptCachedRecord(t *testing.T) {
	e := newEnv(t)
	repo := e.customers()
	ctx := context.Background()

	if err := e.store.Put(models.CollectionCustomers, "c1", []byte(`not json`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	e.fake.SetOffline(true)
	_, _, err := repo.Get(ctx, "c1")
	if !apperr.Is(err, apperr.ErrCacheCorrupt) {
		t.Errorf("got %v, want cache-corrupt error", err)
	}
	if _, err := e.store.Get(models.CollectionCustomers, "c1"); !errors.Is(err, store.ErrNotFound) {
		t.Error("corrupt record not purged")
	}
}

func TestResyncRebuildsCachePreservingPendingLocal(t *testing.T) {
	e := newEnv(t)
	repo := e.customers()
	ctx := context.Background()

	seedCustomer(e, "c1", "Acme Plumbing")

	// Stale junk in the cache that the remote no longer has.
	if err := e.store.Put(models.CollectionCustomers, "stale", []byte(
		`{"id":"stale","name":"Gone Co","active":true,"created_at":1,"updated_at":1}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	// A record created offline, still pending replay.
	e.fake.SetOffline(true)
	pending, err := repo.Create(ctx, &models.Customer{Name: "New Offline Co"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	e.fake.SetOffline(false)

	n, err := repo.Resync(ctx)
	if err != nil {
		t.Fatalf("resync failed: %v", err)
	}
	if n != 1 {
		t.Errorf("resynced %d records, want 1", n)
	}

	if _, err := e.store.Get(models.CollectionCustomers, "stale"); !errors.Is(err, store.ErrNotFound) {
		t.Error("stale record survived resync")
	}
	if _, err := e.store.Get(models.CollectionCustomers, "c1"); err != nil {
		t.Errorf("remote record missing after resync: %v", err)
	}
	if _, err := e.store.Get(models.CollectionCustomers, pending.ID); err != nil {
		t.Errorf("pending offline record lost by resync: %v", err)
	}
}

func TestResyncFailsClosedWhileOffline(t *testing.T) {
	e := newEnv(t)
	repo := e.customers()
	ctx := context.Background()

	seedCustomer(e, "c1", "Acme Plumbing")
	if _, _, err := repo.List(ctx, CustomerFilter{}); err != nil {
		t.Fatalf("warmup list failed: %v", err)
	}

	e.fake.SetOffline(true)
	if _, err := repo.Resync(ctx); !remote.IsUnavailable(err) {
		t.Fatalf("got %v, want unavailable-class", err)
	}

	// Cache untouched.
	if n, _ := e.store.Count(models.CollectionCustomers); n != 1 {
		t.Errorf("offline resync modified the cache: %d records", n)
	}
}

func TestDeactivateCustomer(t *testing.T) {
	e := newEnv(t)
	repo := e.customers()
	ctx := context.Background()

	seedCustomer(e, "c1", "Acme Plumbing")

	updated, err := repo.Deactivate(ctx, "c1")
	if err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if updated.Active {
		t.Error("customer still active after deactivation")
	}

	customers, _, err := repo.List(ctx, CustomerFilter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(customers) != 0 {
		t.Errorf("deactivated customer listed as active: %+v", customers)
	}
}

func TestJobStatusFilter(t *testing.T) {
	e := newEnv(t)
	repo := e.jobs()
	ctx := context.Background()

	e.fake.Seed(models.CollectionJobs, "j1", json.RawMessage(
		`{"id":"j1","customer_id":"c1","title":"Fix boiler","status":"scheduled","scheduled_at":200,"created_at":100,"updated_at":100}`))
	e.fake.Seed(models.CollectionJobs, "j2", json.RawMessage(
		`{"id":"j2","customer_id":"c1","title":"Install filter","status":"completed","scheduled_at":100,"created_at":100,"updated_at":100}`))

	jobs, _, err := repo.List(ctx, JobFilter{Status: models.JobStatusScheduled})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "j1" {
		t.Errorf("status filter broken: %+v", jobs)
	}
}
