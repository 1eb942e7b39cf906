package events

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	subscriberBufferSize   = 100
	maxBackpressureRetries = 3
	backpressureRetryDelay = 10 * time.Millisecond
)

// Store persists events for later replay, mirroring the teacher's
// EventStore interface.
type Store interface {
	Save(event Event) error
	GetPending(target string, kinds []Kind) ([]Event, error)
	MarkDelivered(eventID string) error
	Cleanup(olderThan time.Time) error
}

// Mirror is an optional side-channel every published event is also sent
// to, used to bridge the in-process bus onto NATS for out-of-process
// observers.
type Mirror interface {
	Mirror(event Event)
}

type subscription struct {
	target string
	kinds  map[Kind]bool
	ch     chan Event
}

// Bus fans typed events out to subscribers, following the teacher's
// events.Bus (subscribe-by-target, non-blocking delivery with bounded
// backpressure retries, optional persistence).
type Bus struct {
	mu            sync.RWMutex
	subscribers   []*subscription
	store         Store
	mirror        Mirror
	droppedEvents uint64
}

// NewBus creates a Bus. store may be nil to run purely in-memory.
func NewBus(store Store) *Bus {
	return &Bus{store: store}
}

// SetMirror installs an optional mirror invoked for every published
// event, after in-process delivery.
func (b *Bus) SetMirror(m Mirror) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirror = m
}

// Subscribe returns a channel delivering events whose target matches (or
// is "all") and whose Kind is in kinds (or kinds is empty, meaning all
// kinds). The returned channel is buffered; slow subscribers are subject
// to backpressure handling in Publish, never to an unbounded block.
func (b *Bus) Subscribe(target string, kinds []Kind) <-chan Event {
	km := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		km[k] = true
	}
	sub := &subscription{
		target: target,
		kinds:  km,
		ch:     make(chan Event, subscriberBufferSize),
	}
	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()
	return sub.ch
}

// Unsubscribe removes a previously subscribed channel and closes it.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub.ch == ch {
			close(sub.ch)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish persists (if a store is configured), broadcasts the event to
// every matching subscriber without blocking the caller indefinitely,
// then mirrors it (if a mirror is configured).
func (b *Bus) Publish(target string, event Event) {
	if b.store != nil {
		if err := b.store.Save(event); err != nil {
			log.Printf("[EVENTS] failed to persist event %s: %v", event.ID, err)
		}
	}

	b.mu.RLock()
	subs := make([]*subscription, len(b.subscribers))
	copy(subs, b.subscribers)
	mirror := b.mirror
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.target != "all" && sub.target != target {
			continue
		}
		if len(sub.kinds) > 0 && !sub.kinds[event.Kind] {
			continue
		}
		b.sendWithBackpressure(sub, event)
	}

	if mirror != nil {
		mirror.Mirror(event)
	}
}

func (b *Bus) sendWithBackpressure(sub *subscription, event Event) {
	select {
	case sub.ch <- event:
		return
	default:
	}

	for i := 0; i < maxBackpressureRetries; i++ {
		time.Sleep(backpressureRetryDelay)
		select {
		case sub.ch <- event:
			return
		default:
		}
	}

	atomic.AddUint64(&b.droppedEvents, 1)
	log.Printf("[EVENTS] dropped event %s (%s) for target %s: subscriber buffer full", event.ID, event.Kind, sub.target)
}

// DroppedEventCount returns how many events have been dropped due to a
// full subscriber buffer since the bus was created.
func (b *Bus) DroppedEventCount() uint64 {
	return atomic.LoadUint64(&b.droppedEvents)
}

// GetPendingEvents returns undelivered events for target from the
// configured store, or an empty slice if no store is configured.
func (b *Bus) GetPendingEvents(target string, kinds []Kind) ([]Event, error) {
	if b.store == nil {
		return nil, nil
	}
	return b.store.GetPending(target, kinds)
}

// MarkDelivered records that target has consumed eventID, if a store is
// configured.
func (b *Bus) MarkDelivered(eventID string) error {
	if b.store == nil {
		return nil
	}
	return b.store.MarkDelivered(eventID)
}
