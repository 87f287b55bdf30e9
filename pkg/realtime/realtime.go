// Package realtime provides a small in-process publish/subscribe hub used to
// fan out server events, such as a reload of the search settings, to every
// open websocket session.
//
// Delivery is best effort: each listener has its own buffered channel and an
// event that finds the buffer full is dropped for that listener only, so a
// slow session never holds up the publisher. There is no persistence or
// replay.
package realtime

import (
	"sync"
	"time"
)

const (
	// EventSettings announces that the search settings were replaced.
	EventSettings = "settings"

	defaultBufSize = 32
)

// Event is the envelope delivered to listeners.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(typ string, data any) Event {
	return Event{Type: typ, Time: time.Now().UTC(), Data: data}
}

// Hub is an in-memory fan-out dispatcher, safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]chan Event
	nextID    uint64
	bufSize   int
}

// NewHub constructs a hub with the given per-listener buffer size.
// If bufSize <= 0, a default of 32 is used.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	return &Hub{
		listeners: make(map[uint64]chan Event),
		bufSize:   bufSize,
	}
}

// Register adds a listener. Callers must Unregister the returned id.
func (h *Hub) Register() (uint64, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.bufSize)
	h.listeners[id] = ch
	return id, ch
}

// Unregister removes the listener and closes its channel. Unknown ids are
// ignored.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.listeners[id]; ok {
		delete(h.listeners, id)
		close(ch)
	}
}

// Broadcast delivers ev to every listener and returns how many received it.
func (h *Hub) Broadcast(ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, ch := range h.listeners {
		select {
		case ch <- ev:
			delivered++
		default:
			// Drop for slow listener.
		}
	}
	return delivered
}

func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
