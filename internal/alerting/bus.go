// Package alerting turns scored telemetry into deduplicated alert episodes
// and fans resulting events out to connected subscribers.
package alerting

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/airspace.report/internal/monitoring"
)

// Event types carried on the bus.
const (
	EventAlert         = "alert"
	EventAlertResolved = "alert_resolved"
	EventTrackUpdate   = "track_update"
)

// Event is the envelope pushed to subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Encode serializes the event once so the fan-out loop does not marshal per
// subscriber.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Subscription is one attached consumer. Events arrives in publish order;
// the channel is closed when the subscriber is detached.
type Subscription struct {
	ID     string
	Events chan Event

	drops            int
	consecutiveDrops int
}

// Bus is a non-blocking fan-out of events to live subscribers. A slow
// subscriber loses events rather than stalling the pipeline; one that stays
// full for DropGrace consecutive publishes is disconnected.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*Subscription

	// Buffer is the per-subscriber channel depth.
	Buffer int

	// DropGrace is the consecutive-drop count that forces a disconnect.
	DropGrace int
}

// NewBus builds a Bus. Non-positive values fall back to a 64-event buffer
// and a 256-drop grace.
func NewBus(buffer, dropGrace int) *Bus {
	if buffer < 1 {
		buffer = 64
	}
	if dropGrace < 1 {
		dropGrace = 256
	}
	return &Bus{
		subs:      make(map[string]*Subscription),
		Buffer:    buffer,
		DropGrace: dropGrace,
	}
}

// Subscribe attaches a new consumer.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		Events: make(chan Event, b.Buffer),
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	n := len(b.subs)
	b.mu.Unlock()

	monitoring.BusSubscribers.Set(float64(n))
	return sub
}

// Unsubscribe detaches a consumer and closes its channel. Safe to call for
// an already detached subscription.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	n := len(b.subs)
	b.mu.Unlock()

	if ok {
		close(sub.Events)
	}
	monitoring.BusSubscribers.Set(float64(n))
}

// Publish delivers the event to every subscriber without blocking. Each
// subscriber sees events in publish order; a full channel drops the event
// for that subscriber only.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	var evict []string
	for id, sub := range b.subs {
		select {
		case sub.Events <- event:
			sub.consecutiveDrops = 0
		default:
			sub.drops++
			sub.consecutiveDrops++
			monitoring.BusDrops.Inc()
			if sub.consecutiveDrops >= b.DropGrace {
				evict = append(evict, id)
			}
		}
	}
	b.mu.Unlock()

	for _, id := range evict {
		monitoring.Logf("disconnecting subscriber %s after %d consecutive drops", id, b.DropGrace)
		b.Unsubscribe(id)
	}
}

// Drops reports the cumulative events lost by one subscriber, 0 for a
// detached or unknown id.
func (b *Bus) Drops(id string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sub, ok := b.subs[id]; ok {
		return sub.drops
	}
	return 0
}

// SubscriberCount reports the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
