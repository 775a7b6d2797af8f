package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMonitor_DecaysToStaleWithoutEvents is the staleness-decay property with
// scaled-down timings: fresh right after a touch, stale once the poll tick
// lands past the threshold, no new event required.
func TestMonitor_DecaysToStaleWithoutEvents(t *testing.T) {
	monitor := NewMonitor(60*time.Millisecond, 20*time.Millisecond, nil)
	monitor.Start()
	defer monitor.Stop()

	monitor.Touch(time.Now())
	assert.False(t, monitor.Stale())

	time.Sleep(40 * time.Millisecond)
	assert.False(t, monitor.Stale(), "not stale before the threshold")

	require.Eventually(t, func() bool {
		return monitor.Stale()
	}, time.Second, 10*time.Millisecond, "poll tick should flip the signal after the threshold")
}

// TestMonitor_NeverTouchedIsNotStale: zero live events means "not yet proven
// fresh", which is distinct from stale.
func TestMonitor_NeverTouchedIsNotStale(t *testing.T) {
	monitor := NewMonitor(20*time.Millisecond, 10*time.Millisecond, nil)
	monitor.Start()
	defer monitor.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.False(t, monitor.Stale())
	assert.Nil(t, monitor.LastUpdate())
}

// TestMonitor_TouchClearsStale: a fresh event recomputes immediately, without
// waiting for the next poll tick.
func TestMonitor_TouchClearsStale(t *testing.T) {
	monitor := NewMonitor(30*time.Millisecond, 10*time.Millisecond, nil)
	monitor.Start()
	defer monitor.Stop()

	monitor.Touch(time.Now().Add(-time.Second))
	require.Eventually(t, func() bool {
		return monitor.Stale()
	}, time.Second, 5*time.Millisecond)

	monitor.Touch(time.Now())
	assert.False(t, monitor.Stale())
	assert.NotNil(t, monitor.LastUpdate())
}

// TestMonitor_NotifiesOnFlip: the onChange hook fires when the signal
// changes, in both directions.
func TestMonitor_NotifiesOnFlip(t *testing.T) {
	var mu sync.Mutex
	var flips []bool
	monitor := NewMonitor(30*time.Millisecond, 10*time.Millisecond, func(stale bool) {
		mu.Lock()
		flips = append(flips, stale)
		mu.Unlock()
	})
	monitor.Start()
	defer monitor.Stop()

	monitor.Touch(time.Now())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flips) == 1 && flips[0]
	}, time.Second, 5*time.Millisecond)

	monitor.Touch(time.Now())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, flips, 2)
	assert.False(t, flips[1])
}

// TestMonitor_StopIsIdempotent and safe before Start.
func TestMonitor_StopIsIdempotent(t *testing.T) {
	monitor := NewMonitor(time.Second, time.Second, nil)
	monitor.Stop()

	monitor.Start()
	monitor.Stop()
	monitor.Stop()
}
