// Package eventbus implements the event bus adapter.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/google/uuid"

	"github.com/bnema/sandboxer/internal/boundaries/out"
	"github.com/bnema/sandboxer/internal/domain"
)

const (
	publishTimeout = 5 * time.Second
	handlerTimeout = 30 * time.Second
	stopTimeout    = 10 * time.Second
)

// InMemory implements the EventBus interface using a buffered channel.
// Stop delivers every event already published before it returns.
type InMemory struct {
	handlers   []out.EventHandler
	eventChan  chan domain.Event
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	bufferSize int
	started    bool
	log        zerowrap.Logger
}

// NewInMemory creates a new in-memory event bus.
func NewInMemory(bufferSize int, log zerowrap.Logger) *InMemory {
	if bufferSize <= 0 {
		bufferSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &InMemory{
		handlers:   make([]out.EventHandler, 0),
		eventChan:  make(chan domain.Event, bufferSize),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		bufferSize: bufferSize,
		log:        log,
	}
}

// Publish publishes an event to the bus.
func (bus *InMemory) Publish(eventType domain.EventType, payload any) error {
	payload = derefPayload(payload)
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      payload,
	}

	switch p := payload.(type) {
	case domain.SandboxEventPayload:
		event.Sandbox = p.Sandbox
		event.ContainerID = p.ContainerID
	case domain.SecurityEventPayload:
		event.Sandbox = p.Sandbox
		event.ContainerID = p.ContainerID
	case domain.ResourceEventPayload:
		event.Sandbox = p.Sandbox
	}

	select {
	case <-bus.ctx.Done():
		return fmt.Errorf("event bus is stopped")
	default:
	}

	select {
	case bus.eventChan <- event:
		bus.log.Debug().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "eventbus").
			Str("event_id", event.ID).
			Str(zerowrap.FieldEvent, string(event.Type)).
			Str("sandbox", event.Sandbox).
			Msg("event published")
		return nil
	case <-bus.ctx.Done():
		return fmt.Errorf("event bus is stopped")
	case <-time.After(publishTimeout):
		bus.log.Error().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "eventbus").
			Str("event_id", event.ID).
			Str(zerowrap.FieldEvent, string(event.Type)).
			Str("sandbox", event.Sandbox).
			Msg("event channel is full, dropping event after 5s timeout")
		return fmt.Errorf("event channel is full, dropping event %s", event.ID)
	}
}

// Subscribe adds an event handler to the bus.
func (bus *InMemory) Subscribe(handler out.EventHandler) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.handlers = append(bus.handlers, handler)
	bus.log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "eventbus").
		Str(zerowrap.FieldHandler, fmt.Sprintf("%T", handler)).
		Int("total_handlers", len(bus.handlers)).
		Msg("event handler subscribed")

	return nil
}

// Unsubscribe removes an event handler from the bus.
func (bus *InMemory) Unsubscribe(handler out.EventHandler) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	for i, h := range bus.handlers {
		if h == handler {
			bus.handlers = append(bus.handlers[:i], bus.handlers[i+1:]...)
			bus.log.Debug().
				Str(zerowrap.FieldLayer, "adapter").
				Str(zerowrap.FieldAdapter, "eventbus").
				Str(zerowrap.FieldHandler, fmt.Sprintf("%T", handler)).
				Int("total_handlers", len(bus.handlers)).
				Msg("event handler unsubscribed")
			return nil
		}
	}

	return fmt.Errorf("handler not found")
}

// Start starts the event bus processing loop.
func (bus *InMemory) Start() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.started {
		return fmt.Errorf("event bus already started")
	}
	bus.started = true

	bus.log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "eventbus").
		Int("buffer_size", bus.bufferSize).
		Msg("starting event bus")

	go bus.processEvents()
	return nil
}

// Stop refuses new events, delivers the buffered ones and waits for the loop.
func (bus *InMemory) Stop() error {
	bus.mu.RLock()
	started := bus.started
	bus.mu.RUnlock()

	bus.stopOnce.Do(bus.cancel)
	if !started {
		return nil
	}

	select {
	case <-bus.done:
		bus.log.Debug().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "eventbus").
			Msg("event bus stopped")
		return nil
	case <-time.After(stopTimeout):
		bus.log.Warn().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "eventbus").
			Msg("event bus stop timeout")
		return fmt.Errorf("timeout waiting for event bus to stop")
	}
}

func (bus *InMemory) processEvents() {
	defer close(bus.done)

	for {
		select {
		case event := <-bus.eventChan:
			bus.handleEvent(event)
		case <-bus.ctx.Done():
			bus.drain()
			return
		}
	}
}

func (bus *InMemory) drain() {
	for {
		select {
		case event := <-bus.eventChan:
			bus.handleEvent(event)
		default:
			return
		}
	}
}

func (bus *InMemory) handleEvent(event domain.Event) {
	bus.mu.RLock()
	handlers := make([]out.EventHandler, len(bus.handlers))
	copy(handlers, bus.handlers)
	bus.mu.RUnlock()

	for _, handler := range handlers {
		if !handler.CanHandle(event.Type) {
			continue
		}
		bus.dispatch(handler, event)
	}
}

// dispatch runs one handler with a bounded lifetime. Handlers get a fresh
// context so buffered events still reach them while the bus is stopping.
func (bus *InMemory) dispatch(h out.EventHandler, event domain.Event) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	ctx = zerowrap.WithCtx(ctx, bus.log)

	done := make(chan error, 1)
	go func() {
		done <- h.Handle(ctx, event)
	}()

	select {
	case err := <-done:
		if err != nil {
			bus.log.Error().
				Str(zerowrap.FieldLayer, "adapter").
				Str(zerowrap.FieldAdapter, "eventbus").
				Err(err).
				Str("event_id", event.ID).
				Str(zerowrap.FieldEvent, string(event.Type)).
				Str(zerowrap.FieldHandler, fmt.Sprintf("%T", h)).
				Msg("error handling event")
			return
		}
		bus.log.Debug().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "eventbus").
			Str("event_id", event.ID).
			Str(zerowrap.FieldEvent, string(event.Type)).
			Str(zerowrap.FieldHandler, fmt.Sprintf("%T", h)).
			Dur(zerowrap.FieldDuration, time.Since(start)).
			Msg("event handled successfully")
	case <-ctx.Done():
		bus.log.Warn().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "eventbus").
			Str("event_id", event.ID).
			Str(zerowrap.FieldEvent, string(event.Type)).
			Str(zerowrap.FieldHandler, fmt.Sprintf("%T", h)).
			Dur(zerowrap.FieldDuration, time.Since(start)).
			Msg("handler timeout after 30s")
	}
}

// derefPayload stores known payloads by value so handlers match a single type.
func derefPayload(payload any) any {
	switch p := payload.(type) {
	case *domain.SandboxEventPayload:
		if p != nil {
			return *p
		}
	case *domain.SecurityEventPayload:
		if p != nil {
			return *p
		}
	case *domain.ResourceEventPayload:
		if p != nil {
			return *p
		}
	}
	return payload
}
