// Entity endpoints of the local API. Reads answer from the remote service
// when reachable and from the cache otherwise; the X-From-Cache header tells
// the UI which one it got. Writes are optimistic and survive offline periods
// through the pending action queue.
package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/fieldworks/fieldsync/internal/apperr"
	"github.com/fieldworks/fieldsync/internal/models"
	"github.com/fieldworks/fieldsync/internal/repo"
)

func (s *apiServer) entityRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/customers", s.handleCustomerList)
	mux.HandleFunc("GET /api/customers/{id}", s.handleCustomerGet)
	mux.HandleFunc("POST /api/customers", s.handleCustomerCreate)
	mux.HandleFunc("PATCH /api/customers/{id}", s.handleCustomerUpdate)
	mux.HandleFunc("DELETE /api/customers/{id}", s.handleCustomerDeactivate)

	mux.HandleFunc("GET /api/jobs", s.handleJobList)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJobGet)
	mux.HandleFunc("POST /api/jobs", s.handleJobCreate)
	mux.HandleFunc("PATCH /api/jobs/{id}", s.handleJobUpdate)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleJobDelete)

	mux.HandleFunc("GET /api/jobs/{id}/checklists", s.handleChecklistList)
	mux.HandleFunc("POST /api/checklists", s.handleChecklistCreate)
	mux.HandleFunc("PATCH /api/checklists/{id}", s.handleChecklistUpdate)
	mux.HandleFunc("DELETE /api/checklists/{id}", s.handleChecklistDelete)

	mux.HandleFunc("GET /api/time-entries", s.handleTimeEntryList)
	mux.HandleFunc("POST /api/time-entries", s.handleTimeEntryCreate)
	mux.HandleFunc("PATCH /api/time-entries/{id}", s.handleTimeEntryUpdate)
	mux.HandleFunc("DELETE /api/time-entries/{id}", s.handleTimeEntryDelete)

	mux.HandleFunc("POST /api/resync", s.handleResync)
}

func (s *apiServer) handleCustomerList(w http.ResponseWriter, r *http.Request) {
	filter := repo.CustomerFilter{
		Search:     r.URL.Query().Get("search"),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	customers, fromCache, err := s.repos.customers.List(r.Context(), filter)
	if err != nil {
		writeEntityError(w, err)
		return
	}
	writeList(w, fromCache, customers)
}

func (s *apiServer) handleCustomerGet(w http.ResponseWriter, r *http.Request) {
	customer, fromCache, err := s.repos.customers.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEntityError(w, err)
		return
	}
	writeRecord(w, fromCache, customer)
}

func (s *apiServer) handleCustomerCreate(w http.ResponseWriter, r *http.Request) {
	var customer models.Customer
	if err := json.NewDecoder(r.Body).Decode(&customer); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := s.repos.customers.Create(r.Context(), &customer)
	if err != nil {
		writeEntityError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *apiServer) handleCustomerUpdate(w http.ResponseWriter, r *http.Request) {
	patch, err := decodePatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updated, err := s.repos.customers.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeEntityError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *apiServer) handleCustomerDeactivate(w http.ResponseWriter, r *http.Request) {
	if _, err := s.repos.customers.Deactivate(r.Context(), r.PathValue("id")); err != nil {
		writeEntityError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleJobList(w http.ResponseWriter, r *http.Request) {
	filter := repo.JobFilter{
		CustomerID: r.URL.Query().Get("customer_id"),
		Status:     models.JobStatus(r.URL.Query().Get("status")),
	}
	jobs, fromCache, err := s.repos.jobs.List(r.Context(), filter)
	if err != nil {
		writeEntityError(w, err)
		return
	}
	writeList(w, fromCache, jobs)
}

func (s *apiServer) handleJobGet(w http.ResponseWriter, r *http.Request) {
	job, fromCache, err := s.repos.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEntityError(w, err)
		return
	}
	writeRecord(w, fromCache, job)
}

func (s *apiServer) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	var job models.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := s.repos.jobs.Create(r.Context(), &job)
	if err != nil {
		writeEntityError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *apiServer) handleJobUpdate(w http.ResponseWriter, r *http.Request) {
	patch, err := decodePatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updated, err := s.repos.jobs.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeEntityError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *apiServer) handleJobDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.repos.jobs.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeEntityError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleChecklistList(w http.ResponseWriter, r *http.Request) {
	checklists, fromCache, err := s.repos.checklists.ListForJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEntityError(w, err)
		return
	}
	writeList(w, fromCache, checklists)
}

func (s *apiServer) handleChecklistCreate(w http.ResponseWriter, r *http.Request) {
	var checklist models.Checklist
	if err := json.NewDecoder(r.Body).Decode(&checklist); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := s.repos.checklists.Create(r.Context(), &checklist)
	if err != nil {
		writeEntityError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *apiServer) handleChecklistUpdate(w http.ResponseWriter, r *http.Request) {
	patch, err := decodePatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updated, err := s.repos.checklists.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeEntityError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *apiServer) handleChecklistDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.repos.checklists.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeEntityError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleTimeEntryList(w http.ResponseWriter, r *http.Request) {
	filter := repo.TimeEntryFilter{
		JobID:      r.URL.Query().Get("job_id"),
		Technician: r.URL.Query().Get("technician"),
	}
	entries, fromCache, err := s.repos.timeEntries.List(r.Context(), filter)
	if err != nil {
		writeEntityError(w, err)
		return
	}
	writeList(w, fromCache, entries)
}

func (s *apiServer) handleTimeEntryCreate(w http.ResponseWriter, r *http.Request) {
	var entry models.TimeEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := s.repos.timeEntries.Create(r.Context(), &entry)
	if err != nil {
		writeEntityError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *apiServer) handleTimeEntryUpdate(w http.ResponseWriter, r *http.Request) {
	patch, err := decodePatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updated, err := s.repos.timeEntries.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeEntityError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *apiServer) handleTimeEntryDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.repos.timeEntries.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeEntityError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResync rebuilds every cached collection from the remote service.
// Refused while offline: a resync that cannot reach the remote would wipe the
// only copy of the data.
func (s *apiServer) handleResync(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)

	resyncs := map[string]func() (int, error){
		models.CollectionCustomers:   func() (int, error) { return s.repos.customers.Resync(r.Context()) },
		models.CollectionJobs:        func() (int, error) { return s.repos.jobs.Resync(r.Context()) },
		models.CollectionChecklists:  func() (int, error) { return s.repos.checklists.Resync(r.Context()) },
		models.CollectionTimeEntries: func() (int, error) { return s.repos.timeEntries.Resync(r.Context()) },
	}
	for name, fn := range resyncs {
		n, err := fn()
		if err != nil {
			writeEntityError(w, err)
			return
		}
		counts[name] = n
	}

	writeJSON(w, http.StatusOK, counts)
}

func decodePatch(r *http.Request) (map[string]interface{}, error) {
	var patch map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, errors.New("empty patch")
	}
	return patch, nil
}

func writeList(w http.ResponseWriter, fromCache bool, records interface{}) {
	w.Header().Set("X-From-Cache", strconv.FormatBool(fromCache))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records":    records,
		"from_cache": fromCache,
	})
}

func writeRecord(w http.ResponseWriter, fromCache bool, record interface{}) {
	w.Header().Set("X-From-Cache", strconv.FormatBool(fromCache))
	writeJSON(w, http.StatusOK, record)
}

// writeEntityError maps application error codes onto HTTP statuses.
func writeEntityError(w http.ResponseWriter, err error) {
	switch apperr.CodeOf(err) {
	case apperr.ErrNotFound:
		writeError(w, http.StatusNotFound, err)
	case apperr.ErrValidation, apperr.ErrInvalid:
		writeError(w, http.StatusUnprocessableEntity, err)
	case apperr.ErrRemoteRejected:
		writeError(w, http.StatusBadGateway, err)
	case apperr.ErrRemoteUnavailable, apperr.ErrRemoteTimeout:
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
