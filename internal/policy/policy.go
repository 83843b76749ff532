// Package policy maps a sensor reading and thresholds to actuator intents.
// This package has NO I/O and never reads the clock: time and the small
// amount of memory the rules need are passed in and returned explicitly.
package policy

import (
	"time"

	"github.com/sweeney/plant-wall/internal/config"
	"github.com/sweeney/plant-wall/internal/sensor"
)

// Intent is what the policy would like the actuators to do this tick.
type Intent struct {
	WantLight  bool
	Brightness int // percent, applies when WantLight

	WantWatering bool

	// NutrientDose is the amount in ml to dispense; zero means none.
	NutrientDose int
}

// WantsNutrients reports whether a dose is requested.
func (i Intent) WantsNutrients() bool { return i.NutrientDose > 0 }

// Memory carries rule state between ticks.
type Memory struct {
	// Satiated is set while the last reading was at or above MoistureHigh.
	Satiated bool

	// LastDose is when nutrients were last dispensed. The caller records it
	// via Dosed once the dose command has succeeded.
	LastDose time.Time
}

// Dosed returns m with LastDose set to now.
func (m Memory) Dosed(now time.Time) Memory {
	m.LastDose = now
	return m
}

// Decide applies the threshold rules.
//
// Light: on when the ambient reading is below LightThreshold, ANDed with the
// day window when a day/night schedule is configured.
//
// Watering: wanted when soil moisture is below MoistureLow and the tank is at
// or above WaterLevelLow. A reading at or above MoistureHigh latches the
// intent off; the latch only releases once a later reading drops back below
// MoistureHigh, and that releasing reading never starts watering itself.
//
// Nutrients: the configured amount once per NutrientInterval since LastDose.
func Decide(r sensor.Reading, t config.Thresholds, now time.Time, m Memory) (Intent, Memory) {
	var in Intent

	in.WantLight = r.ExternalLight < t.LightThreshold
	if t.ScheduleEnabled() && InNight(t, now) {
		in.WantLight = false
	}
	in.Brightness = t.Brightness

	satiated := r.SoilMoisture >= t.MoistureHigh
	in.WantWatering = !satiated && !m.Satiated &&
		r.SoilMoisture < t.MoistureLow &&
		r.WaterTankLevel >= t.WaterLevelLow
	m.Satiated = satiated

	if t.NutrientsEnabled() && (m.LastDose.IsZero() || now.Sub(m.LastDose) >= t.NutrientInterval) {
		in.NutrientDose = t.NutrientAmount
	}

	return in, m
}

// InNight reports whether now falls in the night part of the schedule.
// A 24h cycle is anchored to local wall-clock time so the window follows
// DST; other cycle lengths run continuously from DayStart on 1970-01-01.
func InNight(t config.Thresholds, now time.Time) bool {
	if !t.ScheduleEnabled() {
		return false
	}
	cycle := t.DayDuration + t.NightDuration

	var elapsed time.Duration
	if cycle == 24*time.Hour {
		elapsed = wallClock(now) - t.DayStart
	} else {
		anchor := time.Date(1970, 1, 1, 0, 0, 0, 0, now.Location()).Add(t.DayStart)
		elapsed = now.Sub(anchor)
	}

	pos := elapsed % cycle
	if pos < 0 {
		pos += cycle
	}
	return pos >= t.DayDuration
}

// wallClock returns the local time of day as a duration since midnight.
func wallClock(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}
