// Package sim models a plant wall in memory so the daemon can run without
// hardware. A Plant is both the sensor reader and the actuator gateway:
// soil dries over time, the pump wets it and drains the tank, and ambient
// light follows the sun.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sweeney/plant-wall/internal/actuator"
	"github.com/sweeney/plant-wall/internal/sensor"
)

// Config sets the starting state and rates of a Plant. Zero rates take
// the defaults below.
type Config struct {
	SoilMoisture   int // raw ADC units
	WaterTankLevel int // percent

	DryPerHour     float64 // moisture lost per hour
	WaterPerSecond float64 // moisture gained per second of pumping
	DrainPerSecond float64 // tank percent used per second of pumping

	Now func() time.Time
}

const (
	defaultDryPerHour     = 40
	defaultWaterPerSecond = 25
	defaultDrainPerSecond = 0.2
	peakDaylight          = 900
)

// DefaultConfig starts a slightly dry wall with a nearly full tank.
func DefaultConfig() Config {
	return Config{SoilMoisture: 420, WaterTankLevel: 90}
}

// Plant is a simulated wall. It is safe for concurrent use.
type Plant struct {
	mu  sync.Mutex
	cfg Config

	moisture float64
	tank     float64
	last     time.Time

	pump     bool
	light    actuator.LightState
	dosedML  int
	frame    actuator.Frame
	rendered int
}

// New creates a Plant.
func New(cfg Config) *Plant {
	if cfg.DryPerHour == 0 {
		cfg.DryPerHour = defaultDryPerHour
	}
	if cfg.WaterPerSecond == 0 {
		cfg.WaterPerSecond = defaultWaterPerSecond
	}
	if cfg.DrainPerSecond == 0 {
		cfg.DrainPerSecond = defaultDrainPerSecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Plant{
		cfg:      cfg,
		moisture: float64(cfg.SoilMoisture),
		tank:     float64(cfg.WaterTankLevel),
		last:     cfg.Now(),
		light:    actuator.Off(),
	}
}

// advance moves the model forward to now. Callers hold mu.
func (p *Plant) advance() {
	now := p.cfg.Now()
	dt := now.Sub(p.last).Seconds()
	p.last = now
	if dt <= 0 {
		return
	}

	p.moisture -= p.cfg.DryPerHour * dt / 3600
	if p.pump && p.tank > 0 {
		p.moisture += p.cfg.WaterPerSecond * dt
		p.tank -= p.cfg.DrainPerSecond * dt
	}
	p.moisture = clamp(p.moisture, 0, 1023)
	p.tank = clamp(p.tank, 0, 100)
}

// Read implements sensor.Reader.
func (p *Plant) Read(ctx context.Context) (sensor.Reading, error) {
	if err := ctx.Err(); err != nil {
		return sensor.Reading{}, &sensor.Fault{Sensor: sensor.All, Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return sensor.Reading{
		SoilMoisture:   int(math.Round(p.moisture)),
		ExternalLight:  Daylight(p.last),
		WaterTankLevel: int(math.Round(p.tank)),
	}, nil
}

// SetLight implements actuator.Gateway.
func (p *Plant) SetLight(_ context.Context, s actuator.LightState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.light = s
	return nil
}

// SetPump implements actuator.Gateway.
func (p *Plant) SetPump(_ context.Context, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.pump = on
	return nil
}

// SetNutrientPump implements actuator.Gateway. Doses are instantaneous.
func (p *Plant) SetNutrientPump(_ context.Context, amountML int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dosedML += amountML
	return nil
}

// Render implements actuator.Gateway.
func (p *Plant) Render(_ context.Context, f actuator.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frame = f
	p.rendered++
	return nil
}

// Close switches everything off.
func (p *Plant) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.pump = false
	p.light = actuator.Off()
	return nil
}

// State is a copy of the simulated outputs.
type State struct {
	SoilMoisture   float64
	WaterTankLevel float64
	Pump           bool
	Light          actuator.LightState
	DosedML        int
	Frame          actuator.Frame
	Renders        int
}

// State returns the current model without advancing it.
func (p *Plant) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		SoilMoisture:   p.moisture,
		WaterTankLevel: p.tank,
		Pump:           p.pump,
		Light:          p.light,
		DosedML:        p.dosedML,
		Frame:          p.frame,
		Renders:        p.rendered,
	}
}

// Daylight returns the simulated ambient light at t: zero between 18:00
// and 06:00, a half sine peaking at noon otherwise.
func Daylight(t time.Time) int {
	h := float64(t.Hour()) + float64(t.Minute())/60
	if h < 6 || h >= 18 {
		return 0
	}
	return int(math.Round(peakDaylight * math.Sin(math.Pi*(h-6)/12)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
