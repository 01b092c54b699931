// Package events keeps a short, numbered history of the events written to
// the host so the status server can stream them to local followers.
//
// Hub is a protocol.Emitter. It is teed next to the stdout encoder, so a
// follower sees exactly what the host saw, each event tagged with a
// sequence number it can resume from after a reconnect.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/mattjoyce/uploader/internal/protocol"
)

// followerBuffer is how many events a follower may lag before new ones
// are dropped for it.
const followerBuffer = 128

// Event is one protocol event as recorded by the hub.
type Event struct {
	ID    int64     `json:"id"`
	Type  string    `json:"type"`
	JobID string    `json:"job_id,omitempty"`
	At    time.Time `json:"at"`
	Data  []byte    `json:"data"` // the protocol event as JSON
}

// Hub numbers events from 1 and retains the most recent ones. Event n
// lives in slot (n-1) % len(window) until event n+len(window) replaces it.
type Hub struct {
	mu     sync.Mutex
	window []Event
	last   int64

	followers map[int]*follower
	nextFID   int
	dropped   int64
}

type follower struct {
	ch      chan Event
	dropped int64
}

// NewHub creates a hub that retains up to retain events for replay.
func NewHub(retain int) *Hub {
	if retain <= 0 {
		retain = 100
	}
	return &Hub{
		window:    make([]Event, retain),
		followers: make(map[int]*follower),
	}
}

// Emit records pe and fans it out. A follower whose buffer is full misses
// the event; the upload path never waits on the status server.
func (h *Hub) Emit(pe protocol.Event) {
	payload, err := json.Marshal(pe)
	if err != nil {
		payload = []byte("{}")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.last++
	ev := Event{ID: h.last, Type: pe.Type, JobID: pe.JobID, At: time.Now().UTC(), Data: payload}
	h.window[(ev.ID-1)%int64(len(h.window))] = ev

	for _, f := range h.followers {
		select {
		case f.ch <- ev:
		default:
			f.dropped++
			h.dropped++
		}
	}
}

// Subscribe registers a follower. The returned stop func closes the
// channel and is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextFID
	h.nextFID++
	f := &follower{ch: make(chan Event, followerBuffer)}
	h.followers[id] = f

	var once sync.Once
	stop := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.followers, id)
			h.mu.Unlock()
			close(f.ch)
		})
	}
	return f.ch, stop
}

// Subscribers returns the number of connected followers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.followers)
}

// Dropped returns how many deliveries were skipped because a follower
// fell behind.
func (h *Hub) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// SnapshotSince returns the retained events numbered above after, oldest
// first. after 0 replays the whole window.
func (h *Hub) SnapshotSince(after int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	first := h.last - int64(len(h.window)) + 1
	if first < 1 {
		first = 1
	}
	if after >= first {
		first = after + 1
	}
	if first > h.last {
		return []Event{}
	}

	out := make([]Event, 0, h.last-first+1)
	for id := first; id <= h.last; id++ {
		out = append(out, h.window[(id-1)%int64(len(h.window))])
	}
	return out
}
