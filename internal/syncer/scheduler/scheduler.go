// Package scheduler drives the sync engine: a periodic pass while online,
// an immediate pass on reconnect, and a manual trigger for the UI.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fieldworks/fieldsync/internal/logging"
	"github.com/fieldworks/fieldsync/internal/netmon"
	"github.com/fieldworks/fieldsync/internal/syncer"
)

// DefaultInterval is the periodic sync cadence when none is configured.
const DefaultInterval = 30 * time.Second

// Scheduler owns the background sync loop.
type Scheduler struct {
	engine   *syncer.Engine
	monitor  *netmon.Monitor
	interval time.Duration

	triggerCh chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New creates a scheduler. interval <= 0 selects DefaultInterval.
func New(engine *syncer.Engine, monitor *netmon.Monitor, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		engine:    engine,
		monitor:   monitor,
		interval:  interval,
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the loop and hooks reconnect notifications. Idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.monitor != nil {
		s.monitor.Subscribe(func(online bool) {
			if online {
				s.Trigger()
			}
		})
	}

	s.wg.Add(1)
	go s.loop(ctx)

	logging.Info("Sync scheduler started", map[string]interface{}{
		"interval": s.interval.String(),
	})
}

// Stop halts the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	logging.Info("Sync scheduler stopped", nil)
}

// Trigger requests a sync pass without waiting for the next tick. Collapses
// with any trigger already pending.
func (s *Scheduler) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// SyncNow runs a sync pass synchronously, regardless of the reported network
// state. Returns the run result, or ErrSyncInProgress if one is in flight.
func (s *Scheduler) SyncNow(ctx context.Context) (*syncer.Result, error) {
	return s.engine.Sync(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runPass(ctx, "periodic")
		case <-s.triggerCh:
			s.runPass(ctx, "trigger")
		}
	}
}

// runPass attempts one sync run. Skipped while offline; the reconnect
// subscription will fire a trigger the moment the signal flips back.
func (s *Scheduler) runPass(ctx context.Context, reason string) {
	if s.monitor != nil && !s.monitor.Online() {
		logging.Debug("Skipping sync pass, offline", map[string]interface{}{"reason": reason})
		return
	}

	if _, err := s.engine.Sync(ctx); err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			return
		}
		logging.Error("Sync pass failed", err, map[string]interface{}{"reason": reason})
	}
}
