package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trailbook/slotsync/internal/models"
)

// SlotFetcher is the bulk-fetch collaborator used for initial population.
// Implementations return an empty slice, not nil-with-no-error, when the
// range holds no slots.
type SlotFetcher interface {
	GetByExperienceAndDateRange(ctx context.Context, experienceID uuid.UUID, startDate, endDate string) ([]models.Slot, error)
}

type WatcherOptions struct {
	Manager           ManagerOptions
	StaleThreshold    time.Duration
	StalePollInterval time.Duration
}

func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		Manager:           DefaultManagerOptions(),
		StaleThreshold:    DefaultStaleThreshold,
		StalePollInterval: DefaultStalePollInterval,
	}
}

// SlotView is one slot with its derived display projections baked in.
type SlotView struct {
	models.Slot
	Status          models.SlotStatus `json:"status"`
	SoldOut         bool              `json:"sold_out"`
	LowAvailability bool              `json:"low_availability"`
	EffectivePrice  int64             `json:"effective_price"`
}

// Snapshot is everything the presentation layer reads, declaratively. No
// error in this subsystem escapes as an exception; each terminates in one of
// these fields.
type Snapshot struct {
	ConnectionState ConnectionState `json:"connection_state"`
	LastUpdate      *time.Time      `json:"last_update,omitempty"`
	Error           string          `json:"error,omitempty"`
	LoadError       string          `json:"load_error,omitempty"`
	IsStale         bool            `json:"is_stale"`
	Slots           []SlotView      `json:"slots"`
}

// Watcher composes one subscription manager, one slot cache, and one
// staleness monitor into a live view of an experience's slots for a date.
// One watcher per consumer; Stop tears everything down, including pending
// retry timers, and no callback fires afterward.
type Watcher struct {
	fetcher SlotFetcher
	manager *Manager
	monitor *Monitor

	mu           sync.Mutex
	experienceID uuid.UUID
	basePrice    int64
	cache        *SlotCache
	loadErr      string

	changed chan struct{}
}

func NewWatcher(source Source, fetcher SlotFetcher, opts WatcherOptions) *Watcher {
	w := &Watcher{
		fetcher: fetcher,
		changed: make(chan struct{}, 1),
	}
	w.manager = NewManager(source, opts.Manager)
	w.monitor = NewMonitor(opts.StaleThreshold, opts.StalePollInterval, func(bool) {
		w.nudge()
	})
	return w
}

// Start primes the cache from the bulk fetch and opens the subscription. A
// fetch failure is surfaced as the snapshot's LoadError, distinct from
// subscription errors, and does not prevent subscribing. A nil experience ID
// skips both: the watcher sits in the vacuous disconnected state.
func (w *Watcher) Start(ctx context.Context, experienceID uuid.UUID, date string, basePrice int64) {
	w.mu.Lock()
	w.experienceID = experienceID
	w.basePrice = basePrice
	w.cache = NewSlotCache(date)
	w.mu.Unlock()

	w.load(ctx)
	w.monitor.Start()
	w.manager.Open(experienceID, w.handleEvent)
	w.nudge()
}

// SetDate switches the cache to a different date: re-fetch and re-prime. The
// subscription is already experience-scoped and stays up; events for other
// dates simply stop matching the new cache.
func (w *Watcher) SetDate(ctx context.Context, date string) {
	w.mu.Lock()
	w.cache = NewSlotCache(date)
	w.mu.Unlock()

	w.load(ctx)
	w.nudge()
}

// SetExperience re-subscribes to a different experience as one logical
// transition: the old handle is released and the new one opened with no
// window where an event from the old experience is delivered.
func (w *Watcher) SetExperience(ctx context.Context, experienceID uuid.UUID) {
	w.mu.Lock()
	w.experienceID = experienceID
	date := w.cache.Date()
	w.cache = NewSlotCache(date)
	w.mu.Unlock()

	w.load(ctx)
	w.manager.Open(experienceID, w.handleEvent)
	w.nudge()
}

func (w *Watcher) load(ctx context.Context) {
	w.mu.Lock()
	experienceID := w.experienceID
	cache := w.cache
	w.mu.Unlock()

	if experienceID == uuid.Nil {
		w.setLoadErr("")
		return
	}

	slots, err := w.fetcher.GetByExperienceAndDateRange(ctx, experienceID, cache.Date(), cache.Date())
	if err != nil {
		log.Printf("realtime: initial slot fetch failed for experience %s: %v", experienceID, err)
		w.setLoadErr(err.Error())
		return
	}

	cache.Prime(slots)
	w.setLoadErr("")
}

func (w *Watcher) setLoadErr(msg string) {
	w.mu.Lock()
	w.loadErr = msg
	w.mu.Unlock()
}

func (w *Watcher) handleEvent(event models.ChangeEvent) error {
	w.mu.Lock()
	cache := w.cache
	w.mu.Unlock()

	applied, err := cache.Apply(event)
	if err != nil {
		return err
	}
	if applied {
		w.monitor.Touch(time.Now())
		w.nudge()
	}
	return nil
}

// Snapshot assembles the current declarative view.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.Lock()
	cache := w.cache
	basePrice := w.basePrice
	loadErr := w.loadErr
	w.mu.Unlock()

	var slots []models.Slot
	if cache != nil {
		slots = cache.Slots()
	}

	views := make([]SlotView, 0, len(slots))
	for i := range slots {
		s := slots[i]
		views = append(views, SlotView{
			Slot:            s,
			Status:          s.DisplayStatus(),
			SoldOut:         s.SoldOut(),
			LowAvailability: s.LowAvailability(),
			EffectivePrice:  s.EffectivePrice(basePrice),
		})
	}

	return Snapshot{
		ConnectionState: w.manager.State(),
		LastUpdate:      w.monitor.LastUpdate(),
		Error:           w.manager.Err(),
		LoadError:       loadErr,
		IsStale:         w.monitor.Stale(),
		Slots:           views,
	}
}

// Changed delivers a nudge whenever the snapshot may have changed. The
// channel is coalescing: a pending nudge absorbs later ones.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changed
}

func (w *Watcher) nudge() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// Stop closes the subscription and halts the staleness ticker. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.manager.Close()
	w.monitor.Stop()
}
