package events

import "sync"

// History keeps a bounded in-memory log of recent events so the API can
// serve notifications without a persistence round trip.
type History struct {
	mu     sync.Mutex
	events []Event
	max    int
}

// NewHistory creates a history holding at most max events.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 200
	}
	return &History{max: max}
}

// Record appends an event, evicting the oldest when full. It matches the
// subscriber signature so it can be hooked onto a bus with SubscribeAll.
func (h *History) Record(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, event)
	if len(h.events) > h.max {
		h.events = h.events[len(h.events)-h.max:]
	}
}

// Recent returns up to limit events, newest first.
func (h *History) Recent(limit int) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 || limit > len(h.events) {
		limit = len(h.events)
	}
	out := make([]Event, 0, limit)
	for i := len(h.events) - 1; i >= len(h.events)-limit; i-- {
		out = append(out, h.events[i])
	}
	return out
}

// Clear drops all recorded events and returns how many were dropped.
func (h *History) Clear() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.events)
	h.events = nil
	return n
}
