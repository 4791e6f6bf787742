// Package main runs the fieldsync daemon: the local sync core that field
// technician UIs talk to over localhost REST/WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fieldworks/fieldsync/internal/config"
	"github.com/fieldworks/fieldsync/internal/events"
	"github.com/fieldworks/fieldsync/internal/logging"
	"github.com/fieldworks/fieldsync/internal/netmon"
	"github.com/fieldworks/fieldsync/internal/remote"
	"github.com/fieldworks/fieldsync/internal/repo"
	"github.com/fieldworks/fieldsync/internal/store"
	"github.com/fieldworks/fieldsync/internal/syncer"
	"github.com/fieldworks/fieldsync/internal/syncer/queue"
	"github.com/fieldworks/fieldsync/internal/syncer/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fieldsync: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logging.Init(os.Stdout, parseLevel(cfg.LogLevel))
	logging.Info("fieldsync starting", map[string]interface{}{
		"data_dir": cfg.DataDir,
		"remote":   cfg.Remote.BaseURL,
	})

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		return err
	}

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout.Std())
	q := queue.New(st, cfg.Sync.MaxRetries)
	bus := events.NewBus()
	engine := syncer.New(st, client, q, bus)

	monitor := netmon.NewMonitor(
		netmon.NewHTTPProber(cfg.HealthURL(), cfg.Remote.Timeout.Std()),
		netmon.Config{
			Interval:     cfg.Network.ProbeInterval.Std(),
			StableProbes: cfg.Network.StableProbes,
		},
	)
	engine.SetOnlineCheck(monitor.Online)

	sched := scheduler.New(engine, monitor, cfg.Sync.Interval.Std())

	hub := NewWSHub()
	bus.Subscribe(hub.BroadcastSyncResult)
	monitor.Subscribe(hub.BroadcastNetworkStatus)

	repos := &repositories{
		customers:   repo.NewCustomers(st, client, q),
		jobs:        repo.NewJobs(st, client, q),
		checklists:  repo.NewChecklists(st, client, q),
		timeEntries: repo.NewTimeEntries(st, client, q),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor.Start(ctx)
	defer monitor.Stop()
	sched.Start(ctx)
	defer sched.Stop()

	api := &apiServer{
		store:     st,
		queue:     q,
		engine:    engine,
		scheduler: sched,
		monitor:   monitor,
		repos:     repos,
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler: api.routes(hub),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("API listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("fieldsync shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func parseLevel(level string) logging.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
