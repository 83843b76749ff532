package config

import (
	"fmt"
	"time"
)

// Raw ADC bounds for soil moisture and light readings (MCP3008 is 10-bit).
const (
	RawMin = 0
	RawMax = 1023
)

// Thresholds is the runtime-tunable part of the configuration. The control
// loop holds it behind an atomic pointer and replaces it whole; a Thresholds
// value is never mutated after it has been handed to the loop.
type Thresholds struct {
	MoistureLow    int `mapstructure:"moisture_low"`
	MoistureHigh   int `mapstructure:"moisture_high"`
	LightThreshold int `mapstructure:"light_threshold"`
	WaterLevelLow  int `mapstructure:"water_level_low"`
	Brightness     int `mapstructure:"brightness"`

	// DayStart is the offset from local midnight at which the day window opens.
	// The schedule is active only when both DayDuration and NightDuration are set.
	DayStart      time.Duration `mapstructure:"day_start"`
	DayDuration   time.Duration `mapstructure:"day_duration"`
	NightDuration time.Duration `mapstructure:"night_duration"`

	WateringDuration time.Duration `mapstructure:"watering_duration"`
	WateringInterval time.Duration `mapstructure:"watering_interval"`

	// NutrientAmount is in millilitres. A zero NutrientInterval disables dosing.
	NutrientAmount   int           `mapstructure:"default_nutrient_amount"`
	NutrientInterval time.Duration `mapstructure:"nutrient_interval"`
}

// DefaultThresholds mirrors the stock settings shipped with the wall.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MoistureLow:      300,
		MoistureHigh:     700,
		LightThreshold:   500,
		WaterLevelLow:    10,
		Brightness:       100,
		DayStart:         6 * time.Hour,
		DayDuration:      12 * time.Hour,
		NightDuration:    12 * time.Hour,
		WateringDuration: 5 * time.Second,
		WateringInterval: time.Hour,
		NutrientAmount:   50,
	}
}

// ScheduleEnabled reports whether a day/night window is configured.
func (t Thresholds) ScheduleEnabled() bool {
	return t.DayDuration > 0 && t.NightDuration > 0
}

// NutrientsEnabled reports whether periodic nutrient dosing is configured.
func (t Thresholds) NutrientsEnabled() bool {
	return t.NutrientInterval > 0 && t.NutrientAmount > 0
}

// ValidationError reports a single rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks every bound the loop relies on. Field names are the
// snake_case names used in config files and on the settings API.
func (t Thresholds) Validate() error {
	switch {
	case t.MoistureLow < RawMin || t.MoistureLow > RawMax:
		return &ValidationError{"moisture_low", fmt.Sprintf("must be in [%d,%d]", RawMin, RawMax)}
	case t.MoistureHigh < RawMin || t.MoistureHigh > RawMax:
		return &ValidationError{"moisture_high", fmt.Sprintf("must be in [%d,%d]", RawMin, RawMax)}
	case t.MoistureLow >= t.MoistureHigh:
		return &ValidationError{"moisture_low", "must be below moisture_high"}
	case t.LightThreshold < RawMin || t.LightThreshold > RawMax:
		return &ValidationError{"light_threshold", fmt.Sprintf("must be in [%d,%d]", RawMin, RawMax)}
	case t.WaterLevelLow < 0 || t.WaterLevelLow > 100:
		return &ValidationError{"water_level_low", "must be in [0,100]"}
	case t.Brightness < 0 || t.Brightness > 100:
		return &ValidationError{"brightness", "must be in [0,100]"}
	case t.DayStart < 0 || t.DayStart >= 24*time.Hour:
		return &ValidationError{"day_start", "must be within one day"}
	case t.DayDuration < 0:
		return &ValidationError{"day_duration", "must be >= 0"}
	case t.NightDuration < 0:
		return &ValidationError{"night_duration", "must be >= 0"}
	case t.WateringDuration <= 0:
		return &ValidationError{"watering_duration", "must be > 0"}
	case t.WateringInterval <= 0:
		return &ValidationError{"watering_interval", "must be > 0"}
	case t.WateringInterval < t.WateringDuration:
		return &ValidationError{"watering_interval", "must not be shorter than watering_duration"}
	case t.NutrientAmount < 0:
		return &ValidationError{"default_nutrient_amount", "must be >= 0"}
	case t.NutrientInterval < 0:
		return &ValidationError{"nutrient_interval", "must be >= 0"}
	}
	return nil
}
