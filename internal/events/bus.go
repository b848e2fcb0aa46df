package events

import (
	"sync"
)

// Bus fans engine events out to in-process listeners: the alert monitor,
// the websocket stream and tests. Publishers are the signal pass, the order
// coordinator, the risk manager and reconciliation; none of them may be
// held up by a slow listener.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	topics  map[Event]map[uint64]chan any
	dropped map[Event]int64
}

func NewBus() *Bus {
	return &Bus{
		topics:  make(map[Event]map[uint64]chan any),
		dropped: make(map[Event]int64),
	}
}

// Subscribe opens a buffered listener on topic. The returned cancel closes
// the channel and may be called more than once.
func (b *Bus) Subscribe(topic Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan any, buffer)
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[uint64]chan any)
	}
	b.topics[topic][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.topics[topic][id]; ok {
			delete(b.topics[topic], id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish hands payload to every listener of topic. A listener whose buffer
// is full misses it; the miss is counted against topic.
func (b *Bus) Publish(topic Event, payload any) {
	b.mu.RLock()
	missed := 0
	for _, ch := range b.topics[topic] {
		select {
		case ch <- payload:
		default:
			missed++
		}
	}
	b.mu.RUnlock()

	if missed > 0 {
		b.mu.Lock()
		b.dropped[topic] += int64(missed)
		b.mu.Unlock()
	}
}

// Dropped is the total of missed deliveries over all topics, reported in
// the system status.
func (b *Bus) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total int64
	for _, n := range b.dropped {
		total += n
	}
	return total
}

// DroppedOn is the number of missed deliveries for one topic.
func (b *Bus) DroppedOn(topic Event) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped[topic]
}
