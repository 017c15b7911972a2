package study

import (
	"sync"
	"time"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// TrialEvent describes one terminal trial outcome as it happens.
type TrialEvent struct {
	StudyID   string    `json:"study_id"`
	StudyName string    `json:"study_name"`
	Number    int64     `json:"number"`
	State     string    `json:"state"`
	Value     *float64  `json:"value,omitempty"`
	Best      *float64  `json:"best,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Hub manages per-study trial event streaming to subscribers.
// It is safe for concurrent use.
//
// Closed topics are retained as markers so that late subscribers (those
// subscribing after a study's run finishes) receive a closed channel instead
// of blocking forever. Each marker is a few bytes, which is acceptable for
// the expected study volume.
type Hub struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subs   map[int]chan TrialEvent
	nextID int
	closed bool
}

// NewHub creates a new event hub.
func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]*topic),
	}
}

// Subscribe returns a channel that receives trial events for the given study
// and an unsubscribe function. If the study's topic has already been closed,
// the returned channel is immediately closed.
func (h *Hub) Subscribe(studyID string) (<-chan TrialEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[studyID]
	if !ok {
		t = &topic{subs: make(map[int]chan TrialEvent)}
		h.topics[studyID] = t
	}

	ch := make(chan TrialEvent, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends an event to all subscribers of its study.
// Events are dropped for subscribers whose buffers are full.
func (h *Hub) Publish(ev TrialEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[ev.StudyID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Drop the event for slow subscribers to avoid blocking workers.
		}
	}
}

// CloseStudy signals that no more events will be published for the given
// study. All subscriber channels are closed and future Subscribe calls return
// a closed channel.
func (h *Hub) CloseStudy(studyID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[studyID]
	if !ok {
		// Create a closed marker so late subscribers get a closed channel.
		h.topics[studyID] = &topic{subs: make(map[int]chan TrialEvent), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
