package realtime

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/trailbook/slotsync/internal/models"
)

// SlotCache is the reconciled local view of one experience's slots for one
// date. It is a read-through mirror: the server owns slot lifecycle, the
// cache only merges what the change stream reports. Each view owns its own
// instance; instances are never shared.
type SlotCache struct {
	mu    sync.Mutex
	date  string // YYYY-MM-DD
	slots []models.Slot
}

func NewSlotCache(date string) *SlotCache {
	return &SlotCache{date: date}
}

func (c *SlotCache) Date() string {
	return c.date
}

// Prime replaces the cache contents with the initial bulk-fetch snapshot,
// sorted by time-of-day. Priming is not a live event and does not count
// toward freshness.
func (c *SlotCache) Prime(slots []models.Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.slots = make([]models.Slot, len(slots))
	copy(c.slots, slots)
	c.sortLocked()
}

// Apply merges one change event. It returns whether the event matched the
// cache (an unmatched event is expected with at-least-once delivery and
// cross-date traffic, not an error). Events must be applied in receipt order;
// the subscription manager already serializes them.
func (c *SlotCache) Apply(event models.ChangeEvent) (bool, error) {
	if err := event.Validate(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch event.EventType {
	case models.EventInsert:
		// Only slots for the cache's date belong here, and duplicate delivery
		// of the same insert is a no-op.
		if event.New.SlotDate != c.date {
			return false, nil
		}
		if c.indexOfLocked(event.New.ID) >= 0 {
			return false, nil
		}
		c.slots = append(c.slots, *event.New)
		c.sortLocked()
		return true, nil

	case models.EventUpdate:
		// An unknown id usually means the slot is outside this cache's date
		// filter; stale references are expected, not errors. Content is
		// last-writer-wins; position is intentionally not re-sorted.
		i := c.indexOfLocked(event.New.ID)
		if i < 0 {
			return false, nil
		}
		c.slots[i] = *event.New
		return true, nil

	case models.EventDelete:
		i := c.indexOfLocked(event.Old.ID)
		if i < 0 {
			return false, nil
		}
		c.slots = append(c.slots[:i], c.slots[i+1:]...)
		return true, nil
	}

	return false, nil
}

// Slots returns a copy of the current view, sorted by time-of-day.
func (c *SlotCache) Slots() []models.Slot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Slot, len(c.slots))
	copy(out, c.slots)
	return out
}

func (c *SlotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

func (c *SlotCache) indexOfLocked(id uuid.UUID) int {
	for i := range c.slots {
		if c.slots[i].ID == id {
			return i
		}
	}
	return -1
}

// sortLocked orders by slot_time ascending. Times are canonical zero-padded
// HH:MM:SS strings, so lexicographic order is chronological order.
func (c *SlotCache) sortLocked() {
	sort.SliceStable(c.slots, func(i, j int) bool {
		return c.slots[i].SlotTime < c.slots[j].SlotTime
	})
}
