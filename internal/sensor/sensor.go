// Package sensor turns raw sensor reads into calibrated readings.
// The real implementation samples an MCP3008 ADC over SPI.
// The fake implementation allows testing without hardware.
package sensor

import (
	"context"
	"fmt"
	"time"
)

// Sensor names used in faults, metrics and status output.
const (
	SoilMoisture   = "soil_moisture"
	ExternalLight  = "external_light"
	WaterTankLevel = "water_tank_level"

	// All is used when a failure cannot be pinned on one sensor.
	All = "sensors"
)

// Reading is one calibrated sample of every sensor. It is a value type and
// is never modified after capture.
type Reading struct {
	SoilMoisture   int // raw ADC units, 0-1023 (dry soil reads low)
	ExternalLight  int // raw ADC units, 0-1023
	WaterTankLevel int // percent, 0-100
	Time           time.Time
}

// Reader reads all sensors at once.
type Reader interface {
	// Read returns a calibrated reading. Time is left zero; the caller stamps it.
	// Any device error or out-of-range value is returned as a *Fault.
	Read(ctx context.Context) (Reading, error)

	// Close releases hardware resources.
	Close() error
}

// Fault reports a failed or implausible read from one sensor.
type Fault struct {
	Sensor string
	Err    error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("sensor fault (%s): %v", f.Sensor, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }
