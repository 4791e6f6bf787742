// HTTP surface of the daemon: status, manual sync trigger, queue inspection,
// and conflict history. Entity CRUD goes through the repositories embedded in
// the host application; this API only exposes the sync core.
package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fieldworks/fieldsync/internal/logging"
	"github.com/fieldworks/fieldsync/internal/models"
	"github.com/fieldworks/fieldsync/internal/netmon"
	"github.com/fieldworks/fieldsync/internal/repo"
	"github.com/fieldworks/fieldsync/internal/store"
	"github.com/fieldworks/fieldsync/internal/syncer"
	"github.com/fieldworks/fieldsync/internal/syncer/queue"
	"github.com/fieldworks/fieldsync/internal/syncer/scheduler"
)

type repositories struct {
	customers   *repo.Customers
	jobs        *repo.Jobs
	checklists  *repo.Checklists
	timeEntries *repo.TimeEntries
}

type apiServer struct {
	store     *store.Store
	queue     *queue.Queue
	engine    *syncer.Engine
	scheduler *scheduler.Scheduler
	monitor   *netmon.Monitor
	repos     *repositories
}

func (s *apiServer) routes(hub *WSHub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/sync", s.handleSync)
	mux.HandleFunc("GET /api/queue", s.handleQueue)
	mux.HandleFunc("POST /api/queue/retry", s.handleQueueRetry)
	mux.HandleFunc("GET /api/conflicts", s.handleConflicts)
	s.entityRoutes(mux)
	mux.HandleFunc("/ws", HandleWebSocket(hub))
	return mux
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "fieldsync",
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending, stuck, err := s.queue.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	version, err := s.store.SchemaVersion()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"online":         s.monitor.Online(),
		"sync_running":   s.engine.Running(),
		"pending":        pending,
		"stuck":          stuck,
		"schema_version": version,
	})
}

func (s *apiServer) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.scheduler.SyncNow(r.Context())
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     result.Success,
		"applied":     result.Applied,
		"rejected":    result.Rejected,
		"remaining":   result.Remaining,
		"stuck":       result.Stuck,
		"error":       result.Error,
		"duration_ms": result.Duration.Milliseconds(),
	})
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	actions, err := s.queue.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"actions": actions,
		"count":   len(actions),
	})
}

func (s *apiServer) handleQueueRetry(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ActionID string `json:"action_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ActionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("action_id required"))
		return
	}
	if err := s.queue.Retry(body.ActionID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.scheduler.Trigger()
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

func (s *apiServer) handleConflicts(w http.ResponseWriter, r *http.Request) {
	bodies, err := s.store.GetAll(models.CollectionConflicts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	conflicts := make([]*models.ConflictLog, 0, len(bodies))
	for _, body := range bodies {
		var entry models.ConflictLog
		if err := json.Unmarshal(body, &entry); err != nil {
			continue
		}
		conflicts = append(conflicts, &entry)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conflicts": conflicts,
		"count":     len(conflicts),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error("Failed to encode response", err, nil)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
