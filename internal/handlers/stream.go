package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/trailbook/slotsync/internal/realtime"
)

const heartbeatInterval = 15 * time.Second

// StreamHandler serves the live slot view over server-sent events. Each
// connection gets its own watcher (cache + subscription + staleness monitor);
// when the client goes away the request context cancels and the watcher is
// torn down, retry timers included.
type StreamHandler struct {
	source  realtime.Source
	fetcher realtime.SlotFetcher
	opts    realtime.WatcherOptions
}

func NewStreamHandler(source realtime.Source, fetcher realtime.SlotFetcher, opts realtime.WatcherOptions) *StreamHandler {
	return &StreamHandler{source: source, fetcher: fetcher, opts: opts}
}

func (h *StreamHandler) RegisterRoutes(r chi.Router) {
	r.Get("/experiences/{experienceID}/slots/stream", h.StreamSlots)
}

func (h *StreamHandler) StreamSlots(w http.ResponseWriter, r *http.Request) {
	experienceID, err := uuid.Parse(chi.URLParam(r, "experienceID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid experience id")
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	var basePrice int64
	if raw := r.URL.Query().Get("base_price"); raw != "" {
		basePrice, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || basePrice < 0 {
			respondError(w, http.StatusBadRequest, "invalid base_price")
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	watcher := realtime.NewWatcher(h.source, h.fetcher, h.opts)
	watcher.Start(r.Context(), experienceID, date, basePrice)
	defer watcher.Stop()

	writeSnapshot(w, flusher, watcher)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-watcher.Changed():
			writeSnapshot(w, flusher, watcher)
		case <-heartbeat.C:
			// Keeps proxies from reaping idle connections and refreshes the
			// staleness flag for quiet experiences.
			writeSnapshot(w, flusher, watcher)
		}
	}
}

func writeSnapshot(w http.ResponseWriter, flusher http.Flusher, watcher *realtime.Watcher) {
	data, err := json.Marshal(watcher.Snapshot())
	if err != nil {
		log.Printf("handlers: failed to marshal snapshot: %v", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
