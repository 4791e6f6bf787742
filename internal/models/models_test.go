package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCustomerValidate(t *testing.T) {
	valid := &Customer{ID: "c1", Name: "Acme", CreatedAt: 100, UpdatedAt: 100}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid customer rejected: %v", err)
	}

	tests := []struct {
		name     string
		customer Customer
	}{
		{"missing id", Customer{Name: "Acme", CreatedAt: 100, UpdatedAt: 100}},
		{"missing name", Customer{ID: "c1", CreatedAt: 100, UpdatedAt: 100}},
		{"missing timestamps", Customer{ID: "c1", Name: "Acme"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.customer.Validate(); err == nil {
				t.Error("invalid customer accepted")
			}
		})
	}
}

func TestJobStampDefaultsStatus(t *testing.T) {
	job := &Job{CustomerID: "c1", Title: "Fix boiler"}
	job.Stamp(100)

	if job.Status != JobStatusScheduled {
		t.Errorf("got status %q, want scheduled", job.Status)
	}
	if job.CreatedAt != 100 || job.UpdatedAt != 100 {
		t.Errorf("timestamps not stamped: %d/%d", job.CreatedAt, job.UpdatedAt)
	}
}

func TestJobValidateRejectsUnknownStatus(t *testing.T) {
	job := &Job{ID: "j1", CustomerID: "c1", Title: "x", Status: "paused", CreatedAt: 1, UpdatedAt: 1}
	if err := job.Validate(); err == nil {
		t.Error("unknown status accepted")
	}
}

func TestChecklistProgress(t *testing.T) {
	checklist := &Checklist{
		ID:    "k1",
		JobID: "j1",
		Name:  "Install",
		Items: []ChecklistItem{
			{Label: "Shut off water", Done: true},
			{Label: "Mount unit", Done: false},
			{Label: "Pressure test", Done: true},
		},
	}

	done, total := checklist.Progress()
	if done != 2 || total != 3 {
		t.Errorf("got %d/%d, want 2/3", done, total)
	}
}

func TestTimeEntryValidateAndDuration(t *testing.T) {
	entry := &TimeEntry{
		ID: "t1", JobID: "j1", Technician: "sam",
		StartedAt: 1000, EndedAt: 1600,
		CreatedAt: 1, UpdatedAt: 1,
	}
	if err := entry.Validate(); err != nil {
		t.Fatalf("valid entry rejected: %v", err)
	}
	if entry.Duration() != 600*time.Second {
		t.Errorf("got duration %v, want 10m", entry.Duration())
	}

	entry.EndedAt = 500
	if err := entry.Validate(); err == nil {
		t.Error("entry ending before start accepted")
	}
}

func TestPendingActionTimestamps(t *testing.T) {
	now := time.Now()
	action := &PendingAction{ID: "a1", CreatedAt: now.UnixNano()}

	if got := action.CreatedAtTime(); got.Unix() != now.Unix() {
		t.Errorf("got %v, want %v", got, now)
	}
}

func TestPendingActionJSONRoundTrip(t *testing.T) {
	original := &PendingAction{
		ID:         "a1",
		Seq:        7,
		Kind:       ActionUpdate,
		EntityType: CollectionJobs,
		EntityID:   "j1",
		Payload:    json.RawMessage(`{"title":"x"}`),
		Status:     ActionStatusPending,
		CreatedAt:  123456789,
		RetryCount: 2,
		LastError:  "connection reset",
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded PendingAction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Seq != 7 || decoded.Kind != ActionUpdate || decoded.RetryCount != 2 {
		t.Errorf("round trip lost fields: %+v", decoded)
	}
	if string(decoded.Payload) != `{"title":"x"}` {
		t.Errorf("payload mangled: %s", decoded.Payload)
	}
}
