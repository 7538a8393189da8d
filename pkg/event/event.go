// pkg/event/event.go

// Package event provides a minimal in-process publish/subscribe bus used to
// broadcast scan lifecycle notifications to interested components.
package event

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handler receives a published event. Handlers run on their own goroutine.
type Handler func(ctx context.Context, data any)

// Manager is an in-process event bus. Create one with NewManager.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	inflight sync.WaitGroup
	logger   zerolog.Logger
}

// NewManager creates an empty event bus.
func NewManager() *Manager {
	return &Manager{
		handlers: make(map[string][]Handler),
		logger:   log.With().Str("component", "EventBus").Logger(),
	}
}

// Subscribe registers a handler for an event name.
func (m *Manager) Subscribe(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = append(m.handlers[name], handler)
}

// Publish delivers the event to every subscribed handler asynchronously.
// A panicking handler is contained and logged, never reaching the caller.
func (m *Manager) Publish(ctx context.Context, name string, data any) {
	m.mu.RLock()
	handlers := make([]Handler, len(m.handlers[name]))
	copy(handlers, m.handlers[name])
	m.mu.RUnlock()

	for _, handler := range handlers {
		h := handler
		m.inflight.Add(1)
		go func() {
			defer m.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error().Interface("panic", r).Str("event", name).
						Msg("Event handler panicked")
				}
			}()
			h(ctx, data)
		}()
	}
}

// Drain blocks until every handler goroutine launched by Publish has
// returned. Short-lived callers (the CLI) drain before rendering so late
// events are not cut off by process exit.
func (m *Manager) Drain() {
	m.inflight.Wait()
}
