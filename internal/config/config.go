// Package config loads the plant wall daemon configuration.
//
// Sources, lowest to highest precedence: built-in defaults, an optional YAML
// file, PLANTWALL_* environment variables, command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides (PLANTWALL_HTTP_ADDR, ...).
const EnvPrefix = "PLANTWALL"

// Config is the startup configuration. Only Thresholds may change afterwards,
// and only through the settings intake.
type Config struct {
	HTTPAddr      string        `mapstructure:"http_addr"`
	Broker        string        `mapstructure:"broker"`
	ClientID      string        `mapstructure:"client_id"`
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	SafeModeAfter int           `mapstructure:"safe_mode_after"`
	Mock          bool          `mapstructure:"mock"`
	Debug         bool          `mapstructure:"debug"`
	Hardware      Hardware      `mapstructure:"hardware"`
	Thresholds    Thresholds    `mapstructure:"thresholds"`
}

// Hardware maps physical channels. Lines use the gpiochip offset, which on a
// Raspberry Pi equals the BCM pin number.
type Hardware struct {
	Chip         string `mapstructure:"chip"`
	LightLine    int    `mapstructure:"light_line"`
	PumpLine     int    `mapstructure:"pump_line"`
	NutrientLine int    `mapstructure:"nutrient_line"`
	LEDRedLine   int    `mapstructure:"led_red_line"`
	LEDGreenLine int    `mapstructure:"led_green_line"`
	LEDBlueLine  int    `mapstructure:"led_blue_line"`

	// MCP3008 on SPI0/CE0.
	SPIBus          int `mapstructure:"spi_bus"`
	SPIChip         int `mapstructure:"spi_chip"`
	MoistureChannel int `mapstructure:"moisture_channel"`
	LightChannel    int `mapstructure:"light_channel"`
	TankChannel     int `mapstructure:"tank_channel"`

	// Raw readings of the tank level probe when empty and when full.
	TankEmptyRaw int `mapstructure:"tank_empty_raw"`
	TankFullRaw  int `mapstructure:"tank_full_raw"`

	NutrientFlowMLPerSec float64 `mapstructure:"nutrient_flow_ml_per_sec"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		HTTPAddr:      ":5000",
		ClientID:      "plant-wall",
		TickInterval:  time.Minute,
		CallTimeout:   5 * time.Second,
		SafeModeAfter: 5,
		Hardware: Hardware{
			Chip:                 "gpiochip0",
			LightLine:            18,
			PumpLine:             23,
			NutrientLine:         24,
			LEDRedLine:           5,
			LEDGreenLine:         6,
			LEDBlueLine:          13,
			MoistureChannel:      0,
			LightChannel:         1,
			TankChannel:          6,
			TankEmptyRaw:         100,
			TankFullRaw:          900,
			NutrientFlowMLPerSec: 10,
		},
		Thresholds: DefaultThresholds(),
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"http":            "http_addr",
	"broker":          "broker",
	"client-id":       "client_id",
	"tick":            "tick_interval",
	"call-timeout":    "call_timeout",
	"safe-mode-after": "safe_mode_after",
	"mock":            "mock",
	"debug":           "debug",
}

// Load builds a Config. path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks startup-only settings and the initial thresholds.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return errors.New("tick_interval must be > 0")
	}
	if c.CallTimeout <= 0 {
		return errors.New("call_timeout must be > 0")
	}
	if c.CallTimeout >= c.TickInterval {
		return errors.New("call_timeout must be shorter than tick_interval")
	}
	if c.SafeModeAfter < 1 {
		return errors.New("safe_mode_after must be >= 1")
	}
	if c.Hardware.TankFullRaw <= c.Hardware.TankEmptyRaw {
		return errors.New("hardware.tank_full_raw must exceed hardware.tank_empty_raw")
	}
	if c.Hardware.NutrientFlowMLPerSec <= 0 {
		return errors.New("hardware.nutrient_flow_ml_per_sec must be > 0")
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	return nil
}

// setDefaults registers every key so that env overrides resolve during Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("broker", d.Broker)
	v.SetDefault("client_id", d.ClientID)
	v.SetDefault("tick_interval", d.TickInterval)
	v.SetDefault("call_timeout", d.CallTimeout)
	v.SetDefault("safe_mode_after", d.SafeModeAfter)
	v.SetDefault("mock", d.Mock)
	v.SetDefault("debug", d.Debug)

	h := d.Hardware
	v.SetDefault("hardware.chip", h.Chip)
	v.SetDefault("hardware.light_line", h.LightLine)
	v.SetDefault("hardware.pump_line", h.PumpLine)
	v.SetDefault("hardware.nutrient_line", h.NutrientLine)
	v.SetDefault("hardware.led_red_line", h.LEDRedLine)
	v.SetDefault("hardware.led_green_line", h.LEDGreenLine)
	v.SetDefault("hardware.led_blue_line", h.LEDBlueLine)
	v.SetDefault("hardware.spi_bus", h.SPIBus)
	v.SetDefault("hardware.spi_chip", h.SPIChip)
	v.SetDefault("hardware.moisture_channel", h.MoistureChannel)
	v.SetDefault("hardware.light_channel", h.LightChannel)
	v.SetDefault("hardware.tank_channel", h.TankChannel)
	v.SetDefault("hardware.tank_empty_raw", h.TankEmptyRaw)
	v.SetDefault("hardware.tank_full_raw", h.TankFullRaw)
	v.SetDefault("hardware.nutrient_flow_ml_per_sec", h.NutrientFlowMLPerSec)

	t := d.Thresholds
	v.SetDefault("thresholds.moisture_low", t.MoistureLow)
	v.SetDefault("thresholds.moisture_high", t.MoistureHigh)
	v.SetDefault("thresholds.light_threshold", t.LightThreshold)
	v.SetDefault("thresholds.water_level_low", t.WaterLevelLow)
	v.SetDefault("thresholds.brightness", t.Brightness)
	v.SetDefault("thresholds.day_start", t.DayStart)
	v.SetDefault("thresholds.day_duration", t.DayDuration)
	v.SetDefault("thresholds.night_duration", t.NightDuration)
	v.SetDefault("thresholds.watering_duration", t.WateringDuration)
	v.SetDefault("thresholds.watering_interval", t.WateringInterval)
	v.SetDefault("thresholds.default_nutrient_amount", t.NutrientAmount)
	v.SetDefault("thresholds.nutrient_interval", t.NutrientInterval)
}
