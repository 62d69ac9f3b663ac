// Package eventbus implements the Event Bus & Subscribers (C8): an
// in-process, synchronous, at-most-once publish/subscribe mechanism for
// domain.WorkflowEvent (spec.md §4.8), generalized from the teacher's
// internal/infrastructure/monitoring ObserverManager (a fixed-interface
// observer) into an open map[EventType][]Handler plus a global-handler
// list, matching the spec's exact dispatch order: type-specific handlers
// first, then global handlers, registration order within each group.
package eventbus

import (
	"context"
	"sync"

	"github.com/flowcore/chatflow/internal/domain"
)

// Handler reacts to one published WorkflowEvent. A handler must never
// panic out to the publisher — Bus.Publish recovers and logs instead
// (spec.md §4.8 "handler exceptions are caught and logged but never
// propagate to the publisher").
type Handler interface {
	Handle(ctx context.Context, event domain.WorkflowEvent)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event domain.WorkflowEvent)

func (f HandlerFunc) Handle(ctx context.Context, event domain.WorkflowEvent) { f(ctx, event) }

// PanicLogger receives a recovered panic value from a handler invocation.
// Bus itself has no logger dependency beyond this narrow hook, so callers
// can wire it to zerolog (or drop it) without this package importing
// zerolog directly.
type PanicLogger func(eventType domain.EventType, recovered any)

// Bus is the process-wide event bus. It is safe for concurrent use; publish
// is synchronous with respect to its own handlers (spec.md §4.8 "awaits all
// registered handlers") but does not block other goroutines publishing
// concurrently beyond the usual RWMutex fairness.
type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventType][]Handler
	global   []Handler
	onPanic  PanicLogger
}

// New returns an empty Bus. onPanic may be nil, in which case recovered
// handler panics are silently dropped.
func New(onPanic PanicLogger) *Bus {
	return &Bus{
		handlers: make(map[domain.EventType][]Handler),
		onPanic:  onPanic,
	}
}

// Subscribe registers h for events of exactly typ.
func (b *Bus) Subscribe(typ domain.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[typ] = append(b.handlers[typ], h)
}

// SubscribeAll registers h for every event type (spec.md's "global_handlers").
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, h)
}

// Publish delivers event to every type-specific handler (registration
// order), then every global handler (registration order). It never
// returns an error: a handler panic is recovered, reported via onPanic,
// and does not stop delivery to subsequent handlers.
func (b *Bus) Publish(ctx context.Context, event domain.WorkflowEvent) {
	b.mu.RLock()
	specific := append([]Handler{}, b.handlers[event.Type]...)
	global := append([]Handler{}, b.global...)
	b.mu.RUnlock()

	for _, h := range specific {
		b.invoke(ctx, h, event)
	}
	for _, h := range global {
		b.invoke(ctx, h, event)
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, event domain.WorkflowEvent) {
	defer func() {
		if r := recover(); r != nil && b.onPanic != nil {
			b.onPanic(event.Type, r)
		}
	}()
	h.Handle(ctx, event)
}

var (
	defaultOnce sync.Once
	defaultBus  *Bus
)

// Default returns the lazily-initialized process-wide Bus instance
// (spec.md §4.8 "a single process-wide bus instance is exposed via a
// lazily-initialized accessor").
func Default() *Bus {
	defaultOnce.Do(func() {
		defaultBus = New(nil)
	})
	return defaultBus
}

// SetDefault replaces the Bus returned by Default, so a test can start from
// a fresh bus. It is not synchronized with concurrent Default calls.
func SetDefault(b *Bus) {
	defaultOnce.Do(func() {})
	defaultBus = b
}
