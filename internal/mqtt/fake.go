package mqtt

import (
	"sync"

	"github.com/sweeney/plant-wall/internal/control"
	"github.com/sweeney/plant-wall/internal/status"
)

// FakePublisher records published telemetry for test assertions. It is
// safe for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	statuses []status.Snapshot
	events   []control.Event
	payloads [][]byte

	// StatusError and EventError, if set, are returned by the matching
	// publish call, which then records nothing.
	StatusError error
	EventError  error

	closed    bool
	connected bool
}

// NewFakePublisher creates a connected FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{connected: true}
}

// PublishStatus records the snapshot.
func (f *FakePublisher) PublishStatus(s status.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusError != nil {
		return f.StatusError
	}
	f.statuses = append(f.statuses, s)
	return nil
}

// PublishEvent records the event and its payload.
func (f *FakePublisher) PublishEvent(e control.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EventError != nil {
		return f.EventError
	}
	payload, err := FormatEventPayload(e)
	if err != nil {
		return err
	}
	f.events = append(f.events, e)
	f.payloads = append(f.payloads, payload)
	return nil
}

// IsConnected reports the value set by SetConnected.
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SetConnected changes the reported connection state.
func (f *FakePublisher) SetConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Statuses returns a copy of the recorded snapshots.
func (f *FakePublisher) Statuses() []status.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]status.Snapshot(nil), f.statuses...)
}

// Events returns a copy of the recorded events.
func (f *FakePublisher) Events() []control.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]control.Event(nil), f.events...)
}

// EventTypes returns the recorded event types in order.
func (f *FakePublisher) EventTypes() []control.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]control.EventType, len(f.events))
	for i, e := range f.events {
		types[i] = e.Type
	}
	return types
}

// Payloads returns a copy of the recorded event payloads.
func (f *FakePublisher) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

// Reset clears recorded telemetry and errors.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = nil
	f.events = nil
	f.payloads = nil
	f.StatusError = nil
	f.EventError = nil
	f.closed = false
}
