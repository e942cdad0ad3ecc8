package grid

import (
	"sync"

	"github.com/google/uuid"
)

// EventName identifies a class of event a grid engine emits.
type EventName string

// EventBatchChange is the only event name the engine emits today; the
// bus itself stays general-purpose so additional event names can be
// added without changing its contract.
const EventBatchChange EventName = "BatchChange"

// EventValue is the payload delivered to a handler. Origin identifies
// who caused the batch — a client id for a change applied via
// ApplyChangesFrom, or "" for a change made directly through
// AddItem/MoveItem/RemoveItem/ApplyChanges. A room's broadcaster uses
// Origin to exclude the client that already has the change.
type EventValue struct {
	Name        EventName
	BatchChange *ChangeBatch
	Origin      string
}

// Handler receives the engine's view at emission time plus the event
// payload. Handlers run synchronously while the engine considers its
// bus borrowed (see EventBus.Emit); a handler must never call back into
// the engine that owns this bus, only enqueue work for later.
type Handler func(view View, value EventValue)

type subscription struct {
	id      uuid.UUID
	handler Handler
}

// EventBus is a synchronous, named-event pub/sub table. Subscriptions
// for the same name fire in registration order. It holds its own lock
// independent of any engine lock, so Subscribe/Unsubscribe are safe to
// call from goroutines that never touch the owning engine (e.g. a
// server subscribing a debug listener to a room's engine).
type EventBus struct {
	mu   sync.Mutex
	subs map[EventName][]subscription
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[EventName][]subscription)}
}

// Subscribe registers handler under name and returns an opaque id used
// to unsubscribe it later.
func (b *EventBus) Subscribe(name EventName, handler Handler) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New()
	b.subs[name] = append(b.subs[name], subscription{id: id, handler: handler})
	return id
}

// Unsubscribe removes the handler registered under id for name. It is
// idempotent: an unknown id, or a name with no handlers, is a no-op. If
// name has no handlers left afterward, the name is dropped entirely.
func (b *EventBus) Unsubscribe(name EventName, id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers, ok := b.subs[name]
	if !ok {
		return
	}
	kept := handlers[:0]
	for _, s := range handlers {
		if s.id != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.subs, name)
		return
	}
	b.subs[name] = kept
}

// Emit invokes every handler registered under name, in subscription
// order, synchronously with (view, value). The handler slice is copied
// under lock and invoked after releasing it, so a handler calling
// Subscribe/Unsubscribe on this same bus cannot deadlock against Emit.
func (b *EventBus) Emit(view View, name EventName, value EventValue) {
	b.mu.Lock()
	handlers := append([]subscription(nil), b.subs[name]...)
	b.mu.Unlock()

	for _, s := range handlers {
		s.handler(view, value)
	}
}
