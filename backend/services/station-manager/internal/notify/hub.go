package notify

import (
	"sync"
	"sync/atomic"
	"time"
)

const defaultBuffer = 8

// Event signals that station data changed. Seq increases by one per published event.
type Event struct {
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`
}

// Hub fans out change events to subscribers. Publish never blocks: a subscriber whose
// buffer is full misses the event. Late subscribers get no replay.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	seq    atomic.Uint64
	buffer int
}

// Subscription is a registered receiver of hub events.
type Subscription struct {
	id      uint64
	hub     *Hub
	ch      chan Event
	once    sync.Once
	dropped atomic.Uint64
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:  h.nextID,
		hub: h,
		ch:  make(chan Event, h.buffer),
	}
	h.subs[sub.id] = sub
	return sub
}

// Publish emits a new event to every subscriber and returns it.
func (h *Hub) Publish() Event {
	ev := Event{Seq: h.seq.Add(1), At: time.Now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
	return ev
}

// LastSeq returns the sequence number of the most recent event.
func (h *Hub) LastSeq() uint64 {
	return h.seq.Load()
}

// SubscriberCount returns the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// C returns the event channel. It is closed by Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Dropped reports how many events were missed because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s.id) })
}
