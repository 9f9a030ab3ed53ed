package parser

import (
	deadlock "github.com/sasha-s/go-deadlock"
)

// SharedMap is a mutex-guarded string-keyed map shared by reference
// across every Parser (spec §4.2 "shares by reference the global
// variable store, function table, completion table, key-binding
// table..."). Modeled as a plain lock-guarded map the way
// runtime_types.go models its structs: one small type per concern,
// no generic container library in the pack goes further than this.
type SharedMap[V any] struct {
	mu   deadlock.Mutex
	data map[string]V
}

// NewSharedMap returns an empty shared map.
func NewSharedMap[V any]() *SharedMap[V] {
	return &SharedMap[V]{data: make(map[string]V)}
}

func (m *SharedMap[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *SharedMap[V]) Set(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *SharedMap[V]) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

// Keys returns a snapshot of the current key set.
func (m *SharedMap[V]) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

// EventTable is the global event-handler list (spec §4.2): appending a
// handler is the only mutation, matching fish's `function --on-event`.
type EventTable struct {
	mu       deadlock.Mutex
	handlers map[string][]string
}

func NewEventTable() *EventTable {
	return &EventTable{handlers: make(map[string][]string)}
}

// On registers handlerBody to run when event fires.
func (e *EventTable) On(event, handlerBody string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[event] = append(e.handlers[event], handlerBody)
}

// Handlers returns a defensive copy of the handlers registered for event.
func (e *EventTable) Handlers(event string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.handlers[event]...)
}
