// Package netmon maintains the application's single online/offline signal.
//
// The monitor probes connectivity on an interval and reports debounced
// transitions to subscribers: a flip is announced only after the new state
// holds for a configured number of consecutive probes, so a reconnect burst
// does not trigger redundant sync runs. The signal is an optimization, not a
// gate; callers can always attempt remote work regardless of the reported
// state.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/fieldworks/fieldsync/internal/logging"
)

// Prober answers whether the remote side is currently reachable.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context) bool

// Probe implements Prober.
func (f ProbeFunc) Probe(ctx context.Context) bool { return f(ctx) }

// HTTPProber reports reachability of a health endpoint.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober against the given health URL.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Probe implements Prober. Any HTTP response counts as reachable; only
// transport failures mean offline.
func (p *HTTPProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Config holds monitor tuning.
type Config struct {
	// Interval between probes (default 10s).
	Interval time.Duration
	// StableProbes is how many consecutive probes must agree before a
	// transition is reported (default 2).
	StableProbes int
}

// Monitor owns the online signal.
type Monitor struct {
	prober   Prober
	interval time.Duration
	stable   int

	mu     sync.Mutex
	online bool
	streak int
	subs   []func(online bool)

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a Monitor. The initial state is online: the first probe
// settles the truth, and an optimistic start never blocks user work.
func NewMonitor(prober Prober, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.StableProbes <= 0 {
		cfg.StableProbes = 2
	}
	return &Monitor{
		prober:   prober,
		interval: cfg.Interval,
		stable:   cfg.StableProbes,
		online:   true,
		stopCh:   make(chan struct{}),
	}
}

// Online returns the current debounced status.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a callback invoked exactly once per genuine transition.
// The callback receives the new state.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetOnline forces the status, bypassing debounce. Used when a transport
// layer learns the truth directly (e.g. a request just succeeded after a
// string of failures) and by tests.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.streak = 0
	subs := append(([]func(bool))(nil), m.subs...)
	m.mu.Unlock()

	if changed {
		logging.Info("Network status changed", map[string]interface{}{"online": online})
		for _, fn := range subs {
			fn(online)
		}
	}
}

// Start begins probing. Safe to call once; Stop ends the loop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop halts probing and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.observe(m.prober.Probe(ctx))
		}
	}
}

// observe feeds one probe result through the debounce filter.
func (m *Monitor) observe(reachable bool) {
	m.mu.Lock()
	if reachable == m.online {
		m.streak = 0
		m.mu.Unlock()
		return
	}

	m.streak++
	if m.streak < m.stable {
		m.mu.Unlock()
		return
	}

	m.online = reachable
	m.streak = 0
	subs := append(([]func(bool))(nil), m.subs...)
	m.mu.Unlock()

	logging.Info("Network status changed", map[string]interface{}{"online": reachable})
	for _, fn := range subs {
		fn(reachable)
	}
}
