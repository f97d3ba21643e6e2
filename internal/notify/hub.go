// Package notify is the in-process publish point for "data changed" events.
package notify

import (
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer bounds how many undelivered events a slow subscriber can
// hold before further publishes to it are dropped.
const subscriberBuffer = 16

type subscriber struct {
	id string
	ch chan struct{}
}

// Hub fans a single event kind out to every attached subscriber. Delivery is
// in attachment order, once per publish; there is no buffering of past
// events, so a subscriber attached after a publish never sees it.
type Hub struct {
	mu   sync.Mutex
	subs []subscriber
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe attaches a new subscriber and returns its id and event channel.
func (h *Hub) Subscribe() (string, <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := subscriber{id: uuid.New().String(), ch: make(chan struct{}, subscriberBuffer)}
	h.subs = append(h.subs, sub)
	return sub.id, sub.ch
}

// Unsubscribe detaches a subscriber and closes its channel. Unknown ids are
// ignored, so detaching twice is safe.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, sub := range h.subs {
		if sub.id == id {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Publish delivers one event to every currently-attached subscriber. A
// subscriber whose buffer is full misses the event rather than blocking the
// publisher.
func (h *Hub) Publish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

// Len reports the number of attached subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
