package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/plant-wall/internal/config"
)

// StatusJSON is the JSON representation served on /status and sent as
// retained telemetry.
type StatusJSON struct {
	Mode           string          `json:"mode"`
	SoilMoisture   *int            `json:"soil_moisture"`
	ExternalLight  *int            `json:"external_light"`
	WaterTankLevel *int            `json:"water_tank_level"`
	Stale          bool            `json:"stale"`
	LightState     string          `json:"light_state"`
	Brightness     int             `json:"brightness"`
	PumpState      string          `json:"pump_state"`
	WateringSince  string          `json:"watering_since,omitempty"`
	NutrientState  string          `json:"nutrient_state"`
	LastDose       string          `json:"last_dose,omitempty"`
	FaultFlags     []string        `json:"fault_flags"`
	Degraded       []string        `json:"degraded"`
	SafeModeReason string          `json:"safe_mode_reason,omitempty"`
	FaultCounts    FaultCountsJSON `json:"fault_counts"`
	MQTTConnected  bool            `json:"mqtt_connected"`
	Tick           uint64          `json:"tick"`
	Timestamp      string          `json:"timestamp,omitempty"`
	ReadingTime    string          `json:"reading_timestamp,omitempty"`
	UptimeSeconds  int64           `json:"uptime_seconds"`
	Thresholds     *ThresholdsJSON `json:"thresholds,omitempty"`
}

// FaultCountsJSON is the JSON representation of fault counters.
type FaultCountsJSON struct {
	Sensor      int `json:"sensor"`
	Actuator    int `json:"actuator"`
	Consecutive int `json:"consecutive"`
}

// ThresholdsJSON uses the same names and units as the settings API:
// day values in hours, watering and nutrient values in seconds.
type ThresholdsJSON struct {
	MoistureLow      int     `json:"moisture_low"`
	MoistureHigh     int     `json:"moisture_high"`
	LightThreshold   int     `json:"light_threshold"`
	WaterLevelLow    int     `json:"water_level_low"`
	Brightness       int     `json:"brightness"`
	DayStart         float64 `json:"day_start"`
	DayDuration      float64 `json:"day_duration"`
	NightDuration    float64 `json:"night_duration"`
	WateringDuration float64 `json:"watering_duration"`
	WateringInterval float64 `json:"watering_interval"`
	NutrientAmount   int     `json:"default_nutrient_amount"`
	NutrientInterval float64 `json:"nutrient_interval"`
}

// NewThresholdsJSON converts thresholds to their API units.
func NewThresholdsJSON(t config.Thresholds) ThresholdsJSON {
	return ThresholdsJSON{
		MoistureLow:      t.MoistureLow,
		MoistureHigh:     t.MoistureHigh,
		LightThreshold:   t.LightThreshold,
		WaterLevelLow:    t.WaterLevelLow,
		Brightness:       t.Brightness,
		DayStart:         t.DayStart.Hours(),
		DayDuration:      t.DayDuration.Hours(),
		NightDuration:    t.NightDuration.Hours(),
		WateringDuration: t.WateringDuration.Seconds(),
		WateringInterval: t.WateringInterval.Seconds(),
		NutrientAmount:   t.NutrientAmount,
		NutrientInterval: t.NutrientInterval.Seconds(),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func build(snap Snapshot) StatusJSON {
	sj := StatusJSON{
		Mode:           string(snap.Mode),
		Stale:          snap.Stale,
		LightState:     snap.Light,
		Brightness:     snap.Brightness,
		PumpState:      snap.Pump,
		WateringSince:  formatTime(snap.WateringSince),
		NutrientState:  snap.Nutrient,
		LastDose:       formatTime(snap.LastDose),
		FaultFlags:     nonNil(snap.FaultFlags),
		Degraded:       nonNil(snap.Degraded),
		SafeModeReason: snap.SafeModeReason,
		FaultCounts: FaultCountsJSON{
			Sensor:      snap.Faults.Sensor,
			Actuator:    snap.Faults.Actuator,
			Consecutive: snap.Faults.Consecutive,
		},
		MQTTConnected: snap.MQTTConnected,
		Tick:          snap.Tick,
		Timestamp:     formatTime(snap.Time),
		ReadingTime:   formatTime(snap.ReadingTime),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
	}
	if sj.Mode == "" {
		sj.Mode = string(ModeInitializing)
	}
	if snap.HasReading {
		m, l, w := snap.SoilMoisture, snap.ExternalLight, snap.WaterTankLevel
		sj.SoilMoisture, sj.ExternalLight, sj.WaterTankLevel = &m, &l, &w
	}
	if snap.Initialized {
		th := NewThresholdsJSON(snap.Thresholds)
		sj.Thresholds = &th
	}
	return sj
}

// FormatJSON returns the indented JSON served over HTTP.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(build(snap), "", "  ")
	return data
}

// FormatCompact returns single-line JSON for telemetry.
func FormatCompact(snap Snapshot) []byte {
	data, _ := json.Marshal(build(snap))
	return data
}
