// Package connectivity tracks whether the backend is reachable. The Monitor
// is the only writer of the online flag; everything else reads it or
// subscribes to the offline -> online transition.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/nutritrack/internal/logging"
)

// Mode is the display form of the online flag.
type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// Prober checks reachability; a nil error means online.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor owns the online flag and notifies subscribers when the
// backend becomes reachable again.
type Monitor struct {
	mu         sync.Mutex
	online     bool
	onRestored []func(ctx context.Context)
	log        logging.Logger
}

// NewMonitor starts online when initial is true.
func NewMonitor(initial bool, log logging.Logger) *Monitor {
	return &Monitor{online: initial, log: log.With("module", "connectivity")}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) Mode() Mode {
	if m.Online() {
		return ModeOnline
	}
	return ModeOffline
}

// Subscribe registers fn to run every time the monitor goes from offline
// to online. Callbacks run sequentially on the goroutine that observed the
// transition.
func (m *Monitor) Subscribe(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRestored = append(m.onRestored, fn)
}

// SetOnline records the new state and reports whether it changed.
func (m *Monitor) SetOnline(ctx context.Context, online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	subs := append([]func(context.Context){}, m.onRestored...)
	m.mu.Unlock()

	if !online {
		m.log.Info(ctx, "switched to offline mode")
		return true
	}

	m.log.Info(ctx, "switched to online mode")
	for _, fn := range subs {
		fn(ctx)
	}
	return true
}

// Watch probes p immediately and then every interval until ctx is done.
// Each probe gets its own timeout.
func (m *Monitor) Watch(ctx context.Context, interval, timeout time.Duration, p Prober) {
	probe := func() {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Ping(pctx)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.log.Debug(ctx, "probe failed", "error", err)
		}
		m.SetOnline(ctx, err == nil)
	}

	probe()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			probe()
		case <-ctx.Done():
			return
		}
	}
}
