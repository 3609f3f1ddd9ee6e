/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package events is the harness's in-process event stream. The workflow,
// the convergence waiter and the cleanup stack publish what happened;
// logging and metrics subscribe. Publication is synchronous and
// single-threaded, matching the harness's single logical thread of control.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Handler processes events of a specific type. Handlers are diagnostic
// sinks; a failing handler never affects workflow control flow.
type Handler func(ctx context.Context, event Event) error

// HandlerInfo contains metadata about a registered handler.
type HandlerInfo struct {
	Name    string
	Handler Handler
}

// Bus manages event publishing and subscriptions.
type Bus interface {
	// Publish sends an event to all registered handlers synchronously.
	// Returns an error if any handler fails (but continues executing all
	// handlers).
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a named handler for a specific event type.
	Subscribe(eventName string, handlerName string, handler Handler)

	// Handlers returns all registered handlers for an event type.
	Handlers(eventName string) []HandlerInfo
}

// InMemoryBus is a synchronous in-process event bus implementation.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]HandlerInfo
	logger   logr.Logger
}

// BusOption configures the InMemoryBus.
type BusOption func(*InMemoryBus)

// WithLogger sets the logger for the bus.
func WithLogger(logger logr.Logger) BusOption {
	return func(b *InMemoryBus) {
		b.logger = logger
	}
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(opts ...BusOption) *InMemoryBus {
	bus := &InMemoryBus{
		handlers: make(map[string][]HandlerInfo),
		logger:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Publish sends an event to all registered handlers. All handlers are
// executed even if some fail; errors are collected and returned.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := make([]HandlerInfo, len(b.handlers[event.EventName()]))
	copy(handlers, b.handlers[event.EventName()])
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var errs []error
	for _, hi := range handlers {
		start := time.Now()
		if err := hi.Handler(ctx, event); err != nil {
			b.logger.Error(err, "Handler failed",
				"event", event.EventName(),
				"handler", hi.Name,
				"duration", time.Since(start))
			errs = append(errs, fmt.Errorf("handler %s: %w", hi.Name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("event %s: %d handler(s) failed: %v", event.EventName(), len(errs), errs)
	}
	return nil
}

// Subscribe registers a handler for an event type. The handlerName must be
// unique within the event type.
func (b *InMemoryBus) Subscribe(eventName string, handlerName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], HandlerInfo{
		Name:    handlerName,
		Handler: handler,
	})
}

// Handlers returns all registered handlers for an event type.
func (b *InMemoryBus) Handlers(eventName string) []HandlerInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]HandlerInfo, len(b.handlers[eventName]))
	copy(out, b.handlers[eventName])
	return out
}

// NopBus discards every event. Used where no subscribers are wired.
type NopBus struct{}

// Publish implements Bus and does nothing.
func (NopBus) Publish(context.Context, Event) error { return nil }

// Subscribe implements Bus and does nothing.
func (NopBus) Subscribe(string, string, Handler) {}

// Handlers implements Bus and returns nil.
func (NopBus) Handlers(string) []HandlerInfo { return nil }
