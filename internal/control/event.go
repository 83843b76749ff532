package control

import (
	"time"

	"github.com/sweeney/plant-wall/internal/status"
)

// EventType names a lifecycle event emitted by the loop.
type EventType string

const (
	EventStartup            EventType = "STARTUP"
	EventShutdown           EventType = "SHUTDOWN"
	EventWateringStarted    EventType = "WATERING_STARTED"
	EventWateringStopped    EventType = "WATERING_STOPPED"
	EventNutrientDosed      EventType = "NUTRIENT_DOSED"
	EventSafeModeEntered    EventType = "SAFE_MODE_ENTERED"
	EventSafeModeCleared    EventType = "SAFE_MODE_CLEARED"
	EventSubsystemDegraded  EventType = "SUBSYSTEM_DEGRADED"
	EventSubsystemRecovered EventType = "SUBSYSTEM_RECOVERED"
)

// Reasons a watering cycle stops.
const (
	StopDuration = "duration"
	StopTankLow  = "tank_low"
	StopSafeMode = "safe_mode"
	StopShutdown = "shutdown"
)

// StartManual is the WATERING_STARTED reason for an operator request.
// Automatic starts carry no reason.
const StartManual = "manual"

// Event is one state change worth telling the outside world about.
type Event struct {
	Type      EventType
	Time      time.Time
	Subsystem string
	CycleID   string
	Amount    int
	Reason    string
}

// Telemetry receives status and events. Calls are made from the loop
// goroutine; errors are logged and otherwise ignored.
type Telemetry interface {
	PublishStatus(s status.Snapshot) error
	PublishEvent(e Event) error
	IsConnected() bool
}

type noTelemetry struct{}

func (noTelemetry) PublishStatus(status.Snapshot) error { return nil }
func (noTelemetry) PublishEvent(Event) error            { return nil }
func (noTelemetry) IsConnected() bool                   { return false }
