package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered event bus owned by one Map. Events emitted while the
// map visits its cells go to the back buffer; Flush swaps buffers and delivers
// them once the visit is over, so handlers are free to mutate the map.
type Bus struct {
	mu       sync.RWMutex // protects handler registration only
	front    []queued
	back     []queued
	handlers map[reflect.Type][]func(any)
}

type queued struct {
	t  reflect.Type
	ev any
}

func NewBus() *Bus {
	return &Bus{
		front:    make([]queued, 0, 64),
		back:     make([]queued, 0, 64),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

// Emit queues an event into the back buffer.
func Emit[T any](b *Bus, event T) {
	b.back = append(b.back, queued{t: typeOf[T](), ev: event})
}

// Subscribe registers a typed handler for events of type T.
// Safe to call from any goroutine.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := typeOf[T]()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// Pending returns the number of events waiting in the back buffer.
func (b *Bus) Pending() int { return len(b.back) }

// Flush swaps back→front and delivers the front buffer in emission order.
// Events emitted by handlers during Flush land in the fresh back buffer. A
// handler subscribed during Flush sees the events after the current one.
func (b *Bus) Flush() int {
	b.front, b.back = b.back, b.front[:0]
	for _, q := range b.front {
		// Handlers run without the lock so they may subscribe.
		b.mu.RLock()
		hs := b.handlers[q.t]
		b.mu.RUnlock()
		for _, h := range hs {
			h(q.ev)
		}
	}
	n := len(b.front)
	clear(b.front)
	b.front = b.front[:0]
	return n
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
