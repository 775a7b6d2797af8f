package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trailbook/slotsync/internal/models"
)

type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateError        ConnectionState = "error"
)

const (
	DefaultRetryDelay   = 3 * time.Second
	DefaultConnectGrace = 100 * time.Millisecond
	unsubscribeTimeout  = 5 * time.Second
)

// EventHandler processes one change event. A returned error is surfaced on
// the manager's Err field but does not tear down the subscription: one bad
// event must not stop the ones that follow.
type EventHandler func(event models.ChangeEvent) error

type ManagerOptions struct {
	// RetryOnError schedules one re-open per failed Subscribe attempt, with
	// no attempt cap. Deliberately fixed-delay rather than backoff: the
	// contract prefers eventually-reconnecting over giving up.
	RetryOnError bool
	RetryDelay   time.Duration

	// ConnectGrace is how long after a successful Subscribe the manager
	// reports "connected" when no event has arrived yet. The subscription ack
	// only proves the channel exists, so "no failure yet" is treated
	// optimistically instead of leaving the state stuck at connecting.
	ConnectGrace time.Duration
}

func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		RetryOnError: true,
		RetryDelay:   DefaultRetryDelay,
		ConnectGrace: DefaultConnectGrace,
	}
}

// Manager owns exactly one logical subscription at a time. It is created per
// view with an explicit lifecycle, never shared, and its timers die with it.
//
// The lock serializes every transition, including event delivery: once Close
// returns, no callback fires. Events from a superseded subscription are
// discarded by generation, so switching experiences is a single logical
// transition with no window where the old experience still delivers.
type Manager struct {
	source Source
	opts   ManagerOptions

	mu           sync.Mutex
	gen          uint64
	state        ConnectionState
	errMsg       string
	experienceID uuid.UUID
	onEvent      EventHandler
	handle       Handle
	retryTimer   *time.Timer
	graceTimer   *time.Timer
}

func NewManager(source Source, opts ManagerOptions) *Manager {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.ConnectGrace <= 0 {
		opts.ConnectGrace = DefaultConnectGrace
	}
	return &Manager{
		source: source,
		opts:   opts,
		state:  StateDisconnected,
	}
}

// Open subscribes to change events for the experience. If a subscription is
// already active it is torn down first, under the same lock, so the switch is
// atomic. A nil experience ID is the vacuous case: state goes to disconnected
// and nothing is subscribed.
func (m *Manager) Open(experienceID uuid.UUID, onEvent EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	m.teardownLocked()

	m.experienceID = experienceID
	m.onEvent = onEvent

	if experienceID == uuid.Nil {
		m.state = StateDisconnected
		m.errMsg = ""
		return
	}

	m.openLocked()
}

// openLocked attempts one Subscribe. Caller holds m.mu.
func (m *Manager) openLocked() {
	gen := m.gen
	m.state = StateConnecting
	m.errMsg = ""

	handle, err := m.source.Subscribe(m.experienceID, func(event models.ChangeEvent) {
		m.deliver(gen, event)
	})
	if err != nil {
		m.state = StateError
		m.errMsg = err.Error()
		log.Printf("realtime: subscribe failed for experience %s: %v", m.experienceID, err)

		if m.opts.RetryOnError {
			m.retryTimer = time.AfterFunc(m.opts.RetryDelay, func() {
				m.retry(gen)
			})
		}
		return
	}

	m.handle = handle
	m.graceTimer = time.AfterFunc(m.opts.ConnectGrace, func() {
		m.markConnected(gen)
	})
}

// deliver forwards one event to the handler. The callback runs under the
// manager lock: Close waits for any in-flight delivery, and deliveries for a
// superseded generation are dropped on the floor.
func (m *Manager) deliver(gen uint64, event models.ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return
	}

	// First event is as good as a handshake.
	m.state = StateConnected
	m.errMsg = ""

	if m.onEvent == nil {
		return
	}
	if err := m.onEvent(event); err != nil {
		// Consumer logic health is isolated from transport health: record the
		// error, keep the subscription running.
		m.errMsg = err.Error()
		log.Printf("realtime: slot change handler error: %v", err)
	}
}

func (m *Manager) markConnected(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.state != StateConnecting {
		return
	}
	m.state = StateConnected
}

func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return
	}
	log.Printf("realtime: retrying subscription for experience %s", m.experienceID)
	m.openLocked()
}

// Close tears the subscription down: pending retry and grace timers are
// cancelled, the handle is released, and the state returns to disconnected.
// Idempotent, and safe when Open never succeeded.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	m.teardownLocked()
	m.experienceID = uuid.Nil
	m.onEvent = nil
	m.state = StateDisconnected
	m.errMsg = ""
}

// teardownLocked cancels timers and releases the current handle, if any.
// Caller holds m.mu.
func (m *Manager) teardownLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	if m.handle != "" {
		handle := m.handle
		m.handle = ""
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
			defer cancel()
			if err := m.source.Unsubscribe(ctx, handle); err != nil {
				log.Printf("realtime: unsubscribe failed: %v", err)
			}
		}()
	}
}

func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the most recent subscription or handler error message, empty
// when healthy. Never an exception path: the UI reads it declaratively.
func (m *Manager) Err() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

func (m *Manager) ExperienceID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.experienceID
}
