package store

import (
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := st.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPutGet(t *testing.T) {
	st := openTestStore(t)

	body := []byte(`{"id":"c1","name":"Acme Plumbing"}`)
	if err := st.Put("customers", "c1", body); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := st.Get("customers", "c1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("got %s, want %s", got, body)
	}
}

func TestGetMissing(t *testing.T) {
	st := openTestStore(t)

	_, err := st.Get("customers", "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestPutOverwrites(t *testing.T) {
	st := openTestStore(t)

	if err := st.Put("jobs", "j1", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := st.Put("jobs", "j1", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("second put failed: %v", err)
	}

	got, err := st.Get("jobs", "j1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != `{"v":2}` {
		t.Errorf("got %s, want overwritten body", got)
	}

	n, err := st.Count("jobs")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d records, want 1", n)
	}
}

func TestCollectionsAreIsolated(t *testing.T) {
	st := openTestStore(t)

	if err := st.Put("customers", "x", []byte(`{"kind":"customer"}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := st.Put("jobs", "x", []byte(`{"kind":"job"}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := st.Get("customers", "x")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != `{"kind":"customer"}` {
		t.Errorf("collections bleed: got %s", got)
	}

	if err := st.Clear("customers"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, err := st.Get("jobs", "x"); err != nil {
		t.Errorf("clearing one collection touched another: %v", err)
	}
}

func TestDeleteAbsentIsNoError(t *testing.T) {
	st := openTestStore(t)

	if err := st.Delete("customers", "ghost"); err != nil {
		t.Errorf("deleting absent record failed: %v", err)
	}
}

func TestGetAll(t *testing.T) {
	st := openTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := st.Put("checklists", id, []byte(`{"id":"`+id+`"}`)); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}

	bodies, err := st.GetAll("checklists")
	if err != nil {
		t.Fatalf("getall failed: %v", err)
	}
	if len(bodies) != 3 {
		t.Errorf("got %d records, want 3", len(bodies))
	}
}

func TestDurabilityAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	st, err := Open(dir)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if err := st.Put("customers", "c1", []byte(`{"id":"c1"}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if err := reopened.Migrate(); err != nil {
		t.Fatalf("re-migrate failed: %v", err)
	}

	got, err := reopened.Get("customers", "c1")
	if err != nil {
		t.Fatalf("get after reopen failed: %v", err)
	}
	if string(got) != `{"id":"c1"}` {
		t.Errorf("record lost across reopen: got %s", got)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	st := openTestStore(t)

	if err := st.Migrate(); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	version, err := st.SchemaVersion()
	if err != nil {
		t.Fatalf("schema version failed: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("got schema version %d, want %d", version, len(migrations))
	}
}
