// Package integration exercises the full offline cycle: work recorded while
// disconnected, replayed in order on reconnect, with identities and caches
// converging on the remote's truth.
package integration

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fieldworks/fieldsync/internal/events"
	"github.com/fieldworks/fieldsync/internal/ident"
	"github.com/fieldworks/fieldsync/internal/models"
	"github.com/fieldworks/fieldsync/internal/remote"
	"github.com/fieldworks/fieldsync/internal/repo"
	"github.com/fieldworks/fieldsync/internal/store"
	"github.com/fieldworks/fieldsync/internal/syncer"
	"github.com/fieldworks/fieldsync/internal/syncer/queue"
)

type world struct {
	dir         string
	store       *store.Store
	fake        *remote.Fake
	queue       *queue.Queue
	bus         *events.Bus
	engine      *syncer.Engine
	customers   *repo.Customers
	jobs        *repo.Jobs
	timeEntries *repo.TimeEntries
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{dir: t.TempDir(), fake: remote.NewFake()}
	w.open(t)
	return w
}

func (w *world) open(t *testing.T) {
	t.Helper()
	st, err := store.Open(w.dir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := st.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	w.store = st
	w.queue = queue.New(st, 0)
	w.bus = events.NewBus()
	w.engine = syncer.New(st, w.fake, w.queue, w.bus)
	w.customers = repo.NewCustomers(st, w.fake, w.queue)
	w.jobs = repo.NewJobs(st, w.fake, w.queue)
	w.timeEntries = repo.NewTimeEntries(st, w.fake, w.queue)
}

// reopen simulates an app restart: a fresh store handle over the same data
// directory, with fresh queue/engine/repo instances.
func (w *world) reopen(t *testing.T) {
	t.Helper()
	if err := w.store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	w.open(t)
}

func TestOfflineShiftReplaysOnReconnect(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	// Seeded state on the backend: one customer with one scheduled job.
	w.fake.Seed(models.CollectionCustomers, "c1", json.RawMessage(
		`{"id":"c1","name":"Acme Plumbing","active":true,"created_at":100,"updated_at":100}`))
	w.fake.Seed(models.CollectionJobs, "j1", json.RawMessage(
		`{"id":"j1","customer_id":"c1","title":"Fix boiler","status":"scheduled","created_at":100,"updated_at":100}`))

	// Morning, connected: the app warms its cache.
	if _, _, err := w.customers.List(ctx, repo.CustomerFilter{}); err != nil {
		t.Fatalf("warmup failed: %v", err)
	}
	if _, _, err := w.jobs.List(ctx, repo.JobFilter{}); err != nil {
		t.Fatalf("warmup failed: %v", err)
	}

	// The technician drives into a dead zone.
	w.fake.SetOffline(true)

	// They start the job, log their time, and sign up a neighbor.
	if _, err := w.jobs.SetStatus(ctx, "j1", models.JobStatusInProgress); err != nil {
		t.Fatalf("offline status change failed: %v", err)
	}
	entry, err := w.timeEntries.Create(ctx, &models.TimeEntry{
		JobID: "j1", Technician: "sam", StartedAt: 1000,
	})
	if err != nil {
		t.Fatalf("offline time entry failed: %v", err)
	}
	if !ident.Parse(entry.ID).IsTemporary() {
		t.Fatalf("offline time entry got id %q, want temporary", entry.ID)
	}
	neighbor, err := w.customers.Create(ctx, &models.Customer{Name: "Borealis HVAC"})
	if err != nil {
		t.Fatalf("offline signup failed: %v", err)
	}
	if !ident.Parse(neighbor.ID).IsTemporary() {
		t.Fatalf("offline create got id %q, want temporary", neighbor.ID)
	}

	// Everything is visible locally, tagged as cached.
	jobs, fromCache, err := w.jobs.List(ctx, repo.JobFilter{Status: models.JobStatusInProgress})
	if err != nil {
		t.Fatalf("offline list failed: %v", err)
	}
	if !fromCache || len(jobs) != 1 {
		t.Fatalf("offline read wrong: fromCache=%v jobs=%d", fromCache, len(jobs))
	}

	// Signal comes back; a sync pass drains the queue.
	w.fake.SetOffline(false)

	var completion events.SyncCompleted
	w.bus.Subscribe(func(ev events.SyncCompleted) { completion = ev })

	result, err := w.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if !result.Success || result.Applied != 3 || result.Remaining != 0 {
		t.Fatalf("replay wrong: %+v", result)
	}
	if completion.Applied != 3 {
		t.Errorf("completion event wrong: %+v", completion)
	}

	// The backend converged: job in progress, time entry and customer created
	// under permanent ids.
	var job struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.fake.Document(models.CollectionJobs, "j1"), &job); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if job.Status != "in_progress" {
		t.Errorf("job status %q did not replay", job.Status)
	}

	customers, _, err := w.customers.List(ctx, repo.CustomerFilter{Search: "borealis"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(customers) != 1 {
		t.Fatalf("signed-up customer missing after replay")
	}
	if ident.Parse(customers[0].ID).IsTemporary() {
		t.Errorf("customer kept temporary id %q after replay", customers[0].ID)
	}
	if _, err := w.store.Get(models.CollectionCustomers, neighbor.ID); err == nil {
		t.Error("temporary cache record survived replay")
	}

	entries, _, err := w.timeEntries.List(ctx, repo.TimeEntryFilter{JobID: "j1"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 || ident.Parse(entries[0].ID).IsTemporary() {
		t.Errorf("time entry not replayed cleanly: %+v", entries)
	}
}

func TestQueueSurvivesRestart(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	w.fake.Seed(models.CollectionJobs, "j1", json.RawMessage(
		`{"id":"j1","customer_id":"c1","title":"Fix boiler","status":"scheduled","created_at":100,"updated_at":100}`))
	if _, _, err := w.jobs.List(ctx, repo.JobFilter{}); err != nil {
		t.Fatalf("warmup failed: %v", err)
	}

	w.fake.SetOffline(true)
	if _, err := w.jobs.SetStatus(ctx, "j1", models.JobStatusCompleted); err != nil {
		t.Fatalf("offline update failed: %v", err)
	}
	if _, err := w.customers.Create(ctx, &models.Customer{Name: "Acme"}); err != nil {
		t.Fatalf("offline create failed: %v", err)
	}

	// The app is killed and relaunched before connectivity returns.
	w.reopen(t)

	actions, err := w.queue.List()
	if err != nil {
		t.Fatalf("queue list failed: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions after restart, want 2", len(actions))
	}
	if actions[0].Kind != models.ActionUpdate || actions[1].Kind != models.ActionCreate {
		t.Errorf("order lost across restart: %s then %s", actions[0].Kind, actions[1].Kind)
	}

	w.fake.SetOffline(false)
	result, err := w.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("sync after restart failed: %v", err)
	}
	if result.Applied != 2 {
		t.Errorf("got applied=%d, want 2", result.Applied)
	}
}

func TestRejectedWorkDoesNotPoisonTheQueue(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	w.fake.Seed(models.CollectionJobs, "j1", json.RawMessage(
		`{"id":"j1","customer_id":"c1","title":"Fix boiler","status":"scheduled","created_at":100,"updated_at":100}`))
	if _, _, err := w.jobs.List(ctx, repo.JobFilter{}); err != nil {
		t.Fatalf("warmup failed: %v", err)
	}

	w.fake.SetOffline(true)

	// A doomed signup and legitimate job work share the queue.
	doomed, err := w.customers.Create(ctx, &models.Customer{Name: "Duplicate Co"})
	if err != nil {
		t.Fatalf("offline create failed: %v", err)
	}
	if _, err := w.jobs.SetStatus(ctx, "j1", models.JobStatusInProgress); err != nil {
		t.Fatalf("offline update failed: %v", err)
	}

	w.fake.SetOffline(false)
	w.fake.RejectNext(models.CollectionCustomers, "duplicate name")

	result, err := w.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if result.Rejected != 1 || result.Applied != 1 {
		t.Errorf("got rejected=%d applied=%d, want 1/1", result.Rejected, result.Applied)
	}
	if n, _ := w.queue.Size(); n != 0 {
		t.Errorf("queue not drained: %d actions", n)
	}
	if _, err := w.store.Get(models.CollectionCustomers, doomed.ID); err == nil {
		t.Error("rejected optimistic record still cached")
	}
}
