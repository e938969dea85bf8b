// Package events fans out change notifications to any number of subscribers
// and streams them to browsers as Server-Sent Events.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// Event types published by the soundboard.
const (
	TypeSounds   = "sounds"   // the audio directory changed
	TypePlayback = "playback" // a server-side controller changed state
)

const subscriberBuffer = 16

// An Event is a single notification. Data is marshaled to JSON when the event
// is streamed.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// A Hub delivers published events to every current subscriber. Publish never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mutex       sync.Mutex
	subscribers map[chan Event]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber. The returned function unregisters it
// and closes the channel; it may be called more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mutex.Lock()
	h.subscribers[ch] = struct{}{}
	h.mutex.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mutex.Lock()
			delete(h.subscribers, ch)
			h.mutex.Unlock()
			close(ch)
		})
	}
}

// Publish sends event to all subscribers.
func (h *Hub) Publish(event Event) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			slog.Debug("dropping event for slow subscriber", "type", event.Type)
		}
	}
}

// ServeHTTP streams events to the client until the request is canceled.
func (h *Hub) ServeHTTP(
	w http.ResponseWriter,
	req *http.Request,
) {
	ctx := req.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.ErrorContext(ctx, "streaming unsupported by response writer")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	events, cancel := h.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "keep-alive")

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event.Data)
			if err != nil {
				slog.ErrorContext(ctx, "failed to marshal event", "type", event.Type, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				slog.DebugContext(ctx, "failed to write event", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}
