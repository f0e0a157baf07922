// Package events implements the typed publish/subscribe surface the
// receiver uses to hand high-level results to its consumer (§6 "Event
// surface to consumer", §9 Design Notes: "event-target pattern"). All
// dispatch is synchronous on the caller's goroutine — the receiver's single
// reactor emits events inline as it processes each envelope.
package events

import "sync"

type Type string

const (
	Message     Type = "message"
	Sent        Type = "sent"
	Receipt     Type = "receipt"
	Read        Type = "read"
	Contact     Type = "contact"
	ContactSync Type = "contactsync"
	Group       Type = "group"
	GroupSync   Type = "groupsync"
	Error       Type = "error"
)

// Handler receives an event payload. The concrete type depends on Type; see
// the payload structs in this package.
type Handler func(payload any)

// Subscription is an opaque handle returned by On, passed back to Off.
type Subscription struct {
	typ Type
	id  uint64
}

// Bus is a simple typed pub/sub dispatcher. Safe for concurrent On/Off;
// Emit runs handlers synchronously in registration order on the caller's
// goroutine.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[Type][]entry
}

type entry struct {
	id uint64
	h  Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]entry)}
}

func (b *Bus) On(t Type, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], entry{id: id, h: h})
	return Subscription{typ: t, id: id}
}

func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[sub.typ]
	for i, e := range entries {
		if e.id == sub.id {
			b.handlers[sub.typ] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

func (b *Bus) Emit(t Type, payload any) {
	b.mu.Lock()
	entries := make([]entry, len(b.handlers[t]))
	copy(entries, b.handlers[t])
	b.mu.Unlock()

	for _, e := range entries {
		e.h(payload)
	}
}
