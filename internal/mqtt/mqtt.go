// Package mqtt publishes plant wall status and lifecycle events to a broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/plant-wall/internal/control"
	"github.com/sweeney/plant-wall/internal/status"
)

const (
	// TopicStatus carries the full status JSON, retained, once per tick.
	TopicStatus = "plantwall/status"

	// TopicEvents carries lifecycle events at QoS 1.
	TopicEvents = "plantwall/events"
)

// Connection events published by the client itself rather than the loop.
const (
	EventOffline     = "OFFLINE"
	EventReconnected = "RECONNECTED"
)

// Publisher sends telemetry to MQTT. It satisfies control.Telemetry.
type Publisher interface {
	// PublishStatus sends the status snapshot, replacing the retained one.
	// A status that cannot be sent is dropped; the next tick supersedes it.
	PublishStatus(s status.Snapshot) error

	// PublishEvent sends a lifecycle event. Events that cannot be sent
	// are held and replayed after reconnection.
	PublishEvent(e control.Event) error

	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

var _ control.Telemetry = Publisher(nil)

// EventPayload is the JSON body published on TopicEvents.
type EventPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Subsystem string `json:"subsystem,omitempty"`
	CycleID   string `json:"cycle_id,omitempty"`
	Amount    int    `json:"amount_ml,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// FormatEventPayload creates the JSON payload for a loop event.
func FormatEventPayload(e control.Event) ([]byte, error) {
	return json.Marshal(EventPayload{
		Timestamp: e.Time.UTC().Format(time.RFC3339),
		Event:     string(e.Type),
		Subsystem: e.Subsystem,
		CycleID:   e.CycleID,
		Amount:    e.Amount,
		Reason:    e.Reason,
	})
}

// FormatConnectionPayload creates the payload for OFFLINE or RECONNECTED.
// OFFLINE is registered as the last will, so its timestamp is the time the
// will was set, not the time the broker sends it.
func FormatConnectionPayload(event string, t time.Time) ([]byte, error) {
	return json.Marshal(EventPayload{
		Timestamp: t.UTC().Format(time.RFC3339),
		Event:     event,
	})
}
