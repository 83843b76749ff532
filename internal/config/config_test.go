package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestDefaultThresholdsMatchStockSettings(t *testing.T) {
	th := DefaultThresholds()
	if th.MoistureLow != 300 || th.MoistureHigh != 700 {
		t.Errorf("moisture band: got [%d,%d], want [300,700]", th.MoistureLow, th.MoistureHigh)
	}
	if th.LightThreshold != 500 {
		t.Errorf("LightThreshold: got %d, want 500", th.LightThreshold)
	}
	if th.WaterLevelLow != 10 {
		t.Errorf("WaterLevelLow: got %d, want 10", th.WaterLevelLow)
	}
	if th.WateringDuration != 5*time.Second || th.WateringInterval != time.Hour {
		t.Errorf("watering: got %v/%v, want 5s/1h", th.WateringDuration, th.WateringInterval)
	}
	if th.NutrientAmount != 50 {
		t.Errorf("NutrientAmount: got %d, want 50", th.NutrientAmount)
	}
	if th.NutrientsEnabled() {
		t.Error("nutrient dosing should be disabled without an interval")
	}
	if !th.ScheduleEnabled() {
		t.Error("day/night schedule should be enabled by default")
	}
}

func TestLoadNoFile(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":5000" {
		t.Errorf("HTTPAddr: got %q, want :5000", cfg.HTTPAddr)
	}
	if cfg.TickInterval != time.Minute {
		t.Errorf("TickInterval: got %v, want 1m", cfg.TickInterval)
	}
	if cfg.Thresholds != DefaultThresholds() {
		t.Errorf("Thresholds: got %+v, want defaults", cfg.Thresholds)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plantwall.yaml")
	yaml := `
http_addr: ":8080"
tick_interval: 30s
safe_mode_after: 3
hardware:
  pump_line: 20
thresholds:
  moisture_low: 250
  watering_duration: 10s
  nutrient_interval: 24h
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr: got %q", cfg.HTTPAddr)
	}
	if cfg.TickInterval != 30*time.Second {
		t.Errorf("TickInterval: got %v", cfg.TickInterval)
	}
	if cfg.SafeModeAfter != 3 {
		t.Errorf("SafeModeAfter: got %d", cfg.SafeModeAfter)
	}
	if cfg.Hardware.PumpLine != 20 {
		t.Errorf("PumpLine: got %d", cfg.Hardware.PumpLine)
	}
	// Unset keys keep their defaults.
	if cfg.Hardware.LightLine != 18 {
		t.Errorf("LightLine: got %d, want 18", cfg.Hardware.LightLine)
	}
	if cfg.Thresholds.MoistureLow != 250 {
		t.Errorf("MoistureLow: got %d", cfg.Thresholds.MoistureLow)
	}
	if cfg.Thresholds.MoistureHigh != 700 {
		t.Errorf("MoistureHigh: got %d, want 700", cfg.Thresholds.MoistureHigh)
	}
	if cfg.Thresholds.WateringDuration != 10*time.Second {
		t.Errorf("WateringDuration: got %v", cfg.Thresholds.WateringDuration)
	}
	if !cfg.Thresholds.NutrientsEnabled() {
		t.Error("expected nutrient dosing enabled")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadRejectsInvalidThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("thresholds:\n  water_level_low: 150\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path, nil)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != "water_level_low" {
		t.Errorf("Field: got %q, want water_level_low", ve.Field)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PLANTWALL_HTTP_ADDR", ":9999")
	t.Setenv("PLANTWALL_THRESHOLDS_LIGHT_THRESHOLD", "420")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr: got %q, want :9999", cfg.HTTPAddr)
	}
	if cfg.Thresholds.LightThreshold != 420 {
		t.Errorf("LightThreshold: got %d, want 420", cfg.Thresholds.LightThreshold)
	}
}

func TestLoadFlagsWin(t *testing.T) {
	t.Setenv("PLANTWALL_HTTP_ADDR", ":9999")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("http", ":5000", "")
	fs.Duration("tick", time.Minute, "")
	fs.Bool("mock", false, "")
	if err := fs.Parse([]string{"--http=:7000", "--tick=10s", "--mock"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Errorf("HTTPAddr: got %q, want :7000", cfg.HTTPAddr)
	}
	if cfg.TickInterval != 10*time.Second {
		t.Errorf("TickInterval: got %v, want 10s", cfg.TickInterval)
	}
	if !cfg.Mock {
		t.Error("expected Mock=true")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tick", func(c *Config) { c.TickInterval = 0 }},
		{"timeout not below tick", func(c *Config) { c.CallTimeout = c.TickInterval }},
		{"zero safe mode threshold", func(c *Config) { c.SafeModeAfter = 0 }},
		{"inverted tank calibration", func(c *Config) { c.Hardware.TankFullRaw = c.Hardware.TankEmptyRaw }},
		{"zero nutrient flow", func(c *Config) { c.Hardware.NutrientFlowMLPerSec = 0 }},
		{"bad thresholds", func(c *Config) { c.Thresholds.Brightness = 101 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Thresholds)
		wantField string
	}{
		{"negative water level", func(th *Thresholds) { th.WaterLevelLow = -5 }, "water_level_low"},
		{"water level over 100", func(th *Thresholds) { th.WaterLevelLow = 101 }, "water_level_low"},
		{"moisture over adc range", func(th *Thresholds) { th.MoistureHigh = 2000 }, "moisture_high"},
		{"inverted band", func(th *Thresholds) { th.MoistureLow = 800 }, "moisture_low"},
		{"equal band", func(th *Thresholds) { th.MoistureLow = th.MoistureHigh }, "moisture_low"},
		{"negative light threshold", func(th *Thresholds) { th.LightThreshold = -1 }, "light_threshold"},
		{"brightness", func(th *Thresholds) { th.Brightness = -1 }, "brightness"},
		{"day start", func(th *Thresholds) { th.DayStart = 24 * time.Hour }, "day_start"},
		{"zero watering duration", func(th *Thresholds) { th.WateringDuration = 0 }, "watering_duration"},
		{"zero watering interval", func(th *Thresholds) { th.WateringInterval = 0 }, "watering_interval"},
		{"interval shorter than duration", func(th *Thresholds) { th.WateringInterval = time.Second }, "watering_interval"},
		{"negative nutrient amount", func(th *Thresholds) { th.NutrientAmount = -1 }, "default_nutrient_amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultThresholds()
			tt.mutate(&th)
			err := th.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field: got %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestThresholdsScheduleDisabled(t *testing.T) {
	th := DefaultThresholds()
	th.NightDuration = 0
	if th.ScheduleEnabled() {
		t.Error("schedule should be disabled with zero night duration")
	}
	if err := th.Validate(); err != nil {
		t.Errorf("disabled schedule should validate: %v", err)
	}
}
