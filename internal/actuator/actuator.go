// Package actuator drives the wall's outputs: grow light, water pump,
// nutrient pump and the status display.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package actuator

import (
	"context"
	"fmt"
	"strconv"
)

// Actuator names used in faults, metrics and status output.
const (
	Light        = "light"
	Pump         = "pump"
	NutrientPump = "nutrient_pump"
	Display      = "display"
)

// LightMode is the coarse state of the grow light.
type LightMode string

const (
	LightOff     LightMode = "off"
	LightOn      LightMode = "on"
	LightDimming LightMode = "dimming"
)

// LightState is the commanded grow-light output. Level is only meaningful
// while dimming and is in percent.
type LightState struct {
	Mode  LightMode
	Level int
}

// Off, On and Dimmed build LightStates.
func Off() LightState { return LightState{Mode: LightOff} }
func On() LightState  { return LightState{Mode: LightOn, Level: 100} }

// Dimmed returns On for level >= 100 and Off for level <= 0.
func Dimmed(level int) LightState {
	switch {
	case level >= 100:
		return On()
	case level <= 0:
		return Off()
	}
	return LightState{Mode: LightDimming, Level: level}
}

// Lit reports whether the light is emitting at all.
func (l LightState) Lit() bool {
	return l.Mode == LightOn || l.Mode == LightDimming
}

func (l LightState) String() string {
	switch l.Mode {
	case LightDimming:
		return "dimming(" + strconv.Itoa(l.Level) + ")"
	case "":
		return string(LightOff)
	}
	return string(l.Mode)
}

// Frame is what the status display shows.
type Frame struct {
	Mode           string
	SoilMoisture   int
	ExternalLight  int
	WaterTankLevel int
	Stale          bool
	Light          LightState
	Watering       bool
	Degraded       []string
}

// Gateway is a stateless command sink. Every call is idempotent: repeating a
// command leaves the output as commanded and returns no error.
type Gateway interface {
	SetLight(ctx context.Context, s LightState) error
	SetPump(ctx context.Context, on bool) error

	// SetNutrientPump dispenses amountML. Zero stops any dose in progress.
	SetNutrientPump(ctx context.Context, amountML int) error

	Render(ctx context.Context, f Frame) error

	// Close drives every output to its safe level and releases resources.
	Close() error
}

// Fault reports a failed write to one actuator.
type Fault struct {
	Actuator string
	Err      error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("actuator fault (%s): %v", f.Actuator, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }
