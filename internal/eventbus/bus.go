// Package eventbus implements the Event Bus (C14): single-process
// publish-subscribe in which each subscription receives, on its own
// channel of models.Event, the events its filter accepts (there is no
// separate channel per event kind), with a monotonic sequence number and
// a bounded per-subscriber queue that drops events for a slow subscriber
// rather than blocking the publisher. Grounded on the teacher's
// websocket Hub (register/unregister/broadcast channels guarded by a
// mutex), generalized from "one hub for one websocket fan-out" to "N
// independently-filtered subscriptions over typed events". The bus
// itself keeps a bounded ring of recent events persisted to events.ring.
package eventbus

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/skiffhost/skiffd/internal/models"
)

// Filter decides whether a subscriber wants a given event.
type Filter func(models.Event) bool

// Subscription is a live registration; Unsubscribe stops delivery.
type Subscription struct {
	id     uint64
	bus    *Bus
	ch     chan models.Event
	filter Filter
}

// Events returns the channel this subscription receives on. It closes
// when Unsubscribe is called.
func (s *Subscription) Events() <-chan models.Event { return s.ch }

func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

// Bus is the process-wide event bus.
type Bus struct {
	publishMu sync.Mutex

	mu        sync.RWMutex
	subs      map[uint64]*Subscription
	nextSubID uint64
	seq       uint64
	ringPath  string
	ringCap   int
	ring      []models.Event
}

// New constructs a Bus that also appends every published event to a
// bounded ring persisted at ringPath (the "state/events.ring" file named
// in §6), so a dashboard reconnecting after a restart can replay recent
// history.
func New(ringPath string, ringCapacity int) *Bus {
	if ringCapacity <= 0 {
		ringCapacity = 10000
	}
	b := &Bus{
		subs:     make(map[uint64]*Subscription),
		ringPath: ringPath,
		ringCap:  ringCapacity,
	}
	b.loadRing()
	return b
}

func (b *Bus) loadRing() {
	if b.ringPath == "" {
		return
	}
	data, err := os.ReadFile(b.ringPath)
	if err != nil {
		return
	}
	var events []models.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return
	}
	b.ring = events
	for _, e := range events {
		if e.Seq > b.seq {
			b.seq = e.Seq
		}
	}
}

func (b *Bus) persistRing() {
	if b.ringPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(b.ringPath), 0o755); err != nil {
		return
	}
	data, err := json.Marshal(b.ring)
	if err != nil {
		return
	}
	tmp := b.ringPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, b.ringPath)
}

// Publish assigns the next monotonic sequence number, appends to the
// ring, and best-effort-delivers to every matching subscriber. A full
// subscriber queue drops the event for that subscriber and the
// subscriber is expected to surface its own subscriber_lag diagnostic by
// comparing sequence numbers on its next successful receive.
//
// publishMu serializes the whole call, seq assignment through delivery,
// so concurrent publishers (Supervisor, Installer, Tunnel Adapter, URL
// Manager all publish from independent goroutines) can never deliver to
// a shared subscriber channel out of seq order.
func (b *Bus) Publish(kind models.EventKind, origin string, payload interface{}) models.Event {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.Lock()
	b.seq++
	event := models.Event{Seq: b.seq, Kind: kind, Origin: origin, Payload: payload}
	b.ring = append(b.ring, event)
	if len(b.ring) > b.ringCap {
		b.ring = b.ring[len(b.ring)-b.ringCap:]
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	b.persistRing()

	for _, s := range subs {
		if s.filter != nil && !s.filter(event) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			// slow subscriber: drop rather than block the publisher.
		}
	}
	return event
}

// Subscribe registers sink with an optional filter; events matching the
// filter are delivered in publish order on the returned Subscription's
// channel.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	sub := &Subscription{
		id:     b.nextSubID,
		bus:    b,
		ch:     make(chan models.Event, 256),
		filter: filter,
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// Recent returns up to n of the most recently published events, for
// replay to a freshly-connected subscriber.
func (b *Bus) Recent(n int) []models.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > len(b.ring) {
		n = len(b.ring)
	}
	out := make([]models.Event, n)
	copy(out, b.ring[len(b.ring)-n:])
	return out
}
