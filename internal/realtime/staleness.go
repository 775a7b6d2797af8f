package realtime

import (
	"sync"
	"time"
)

const (
	DefaultStaleThreshold    = 60 * time.Second
	DefaultStalePollInterval = 10 * time.Second
)

// Monitor derives the advisory "data may be outdated" signal from wall-clock
// time since the last applied event. It never acts on staleness itself;
// reconnection belongs to the subscription manager.
//
// A monitor that has never been touched is "not yet proven fresh", which is a
// different thing from stale: Stale reports false until a first event lands.
type Monitor struct {
	threshold time.Duration
	poll      time.Duration
	onChange  func(stale bool)

	mu         sync.Mutex
	lastUpdate *time.Time
	stale      bool
	stopCh     chan struct{}
	done       chan struct{}
}

// NewMonitor creates a staleness monitor. onChange, when non-nil, is invoked
// outside the lock whenever the signal flips, both from Touch and from the
// poll tick that lets the signal decay to true without new events.
func NewMonitor(threshold, poll time.Duration, onChange func(stale bool)) *Monitor {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	if poll <= 0 {
		poll = DefaultStalePollInterval
	}
	return &Monitor{
		threshold: threshold,
		poll:      poll,
		onChange:  onChange,
	}
}

// Start launches the poll ticker. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return
	}
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	stopCh, done := m.stopCh, m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.recompute()
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop halts the poll ticker and waits for it to exit. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stopCh, done := m.stopCh, m.done
	m.stopCh = nil
	m.done = nil
	m.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
}

// Touch records that an event was applied at t and recomputes immediately.
func (m *Monitor) Touch(t time.Time) {
	m.mu.Lock()
	m.lastUpdate = &t
	m.mu.Unlock()
	m.recompute()
}

func (m *Monitor) recompute() {
	m.mu.Lock()
	stale := m.lastUpdate != nil && time.Since(*m.lastUpdate) > m.threshold
	changed := stale != m.stale
	m.stale = stale
	onChange := m.onChange
	m.mu.Unlock()

	if changed && onChange != nil {
		onChange(stale)
	}
}

// Stale reports the signal as of the last Touch or poll tick.
func (m *Monitor) Stale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stale
}

// LastUpdate returns when the last event was applied, nil when no live event
// has been seen yet.
func (m *Monitor) LastUpdate() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastUpdate == nil {
		return nil
	}
	t := *m.lastUpdate
	return &t
}
