//go:build linux

package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/plant-wall/internal/config"
)

// RealGateway drives relay and LED outputs through the GPIO character device.
// Relays are active-high. The grow-light relay cannot dim, so any lit state
// closes it.
type RealGateway struct {
	chip     *gpiocdev.Chip
	light    *gpiocdev.Line
	pump     *gpiocdev.Line
	nutrient *gpiocdev.Line
	ledRed   *gpiocdev.Line
	ledGreen *gpiocdev.Line
	ledBlue  *gpiocdev.Line

	flowMLPerSec float64

	mu        sync.Mutex
	doseTimer *time.Timer
}

// NewRealGateway requests every output line, initially low.
func NewRealGateway(hw config.Hardware) (*RealGateway, error) {
	chip, err := gpiocdev.NewChip(hw.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", hw.Chip, err)
	}

	g := &RealGateway{chip: chip, flowMLPerSec: hw.NutrientFlowMLPerSec}
	lines := []struct {
		name   string
		offset int
		dst    **gpiocdev.Line
	}{
		{Light, hw.LightLine, &g.light},
		{Pump, hw.PumpLine, &g.pump},
		{NutrientPump, hw.NutrientLine, &g.nutrient},
		{"led red", hw.LEDRedLine, &g.ledRed},
		{"led green", hw.LEDGreenLine, &g.ledGreen},
		{"led blue", hw.LEDBlueLine, &g.ledBlue},
	}
	for _, l := range lines {
		line, err := chip.RequestLine(l.offset, gpiocdev.AsOutput(0))
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("request %s line %d: %w", l.name, l.offset, err)
		}
		*l.dst = line
	}
	return g, nil
}

func set(actuator string, line *gpiocdev.Line, on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return &Fault{Actuator: actuator, Err: err}
	}
	return nil
}

// SetLight switches the grow-light relay.
func (g *RealGateway) SetLight(ctx context.Context, s LightState) error {
	if err := ctx.Err(); err != nil {
		return &Fault{Actuator: Light, Err: err}
	}
	return set(Light, g.light, s.Lit())
}

// SetPump switches the water pump relay.
func (g *RealGateway) SetPump(ctx context.Context, on bool) error {
	if err := ctx.Err(); err != nil {
		return &Fault{Actuator: Pump, Err: err}
	}
	return set(Pump, g.pump, on)
}

// SetNutrientPump runs the dosing pump long enough to dispense amountML.
// A request while a dose is running is ignored.
func (g *RealGateway) SetNutrientPump(ctx context.Context, amountML int) error {
	if err := ctx.Err(); err != nil {
		return &Fault{Actuator: NutrientPump, Err: err}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if amountML <= 0 {
		if g.doseTimer != nil {
			g.doseTimer.Stop()
			g.doseTimer = nil
		}
		return set(NutrientPump, g.nutrient, false)
	}
	if g.doseTimer != nil {
		return nil
	}

	if err := set(NutrientPump, g.nutrient, true); err != nil {
		return err
	}
	d := time.Duration(float64(amountML) / g.flowMLPerSec * float64(time.Second))
	g.doseTimer = time.AfterFunc(d, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.nutrient.SetValue(0)
		g.doseTimer = nil
	})
	return nil
}

// Render shows the frame on the status LEDs: green while operating, red added
// when degraded, red alone in safe mode, blue while watering.
func (g *RealGateway) Render(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return &Fault{Actuator: Display, Err: err}
	}
	safe := f.Mode == "safe_mode"
	red := safe || len(f.Degraded) > 0 || f.Stale
	if err := set(Display, g.ledRed, red); err != nil {
		return err
	}
	if err := set(Display, g.ledGreen, !safe); err != nil {
		return err
	}
	return set(Display, g.ledBlue, f.Watering)
}

// Close drives every output low and reconfigures the lines as pulled-down
// inputs (Pi boot defaults) before releasing them.
func (g *RealGateway) Close() error {
	var errs []error

	g.mu.Lock()
	if g.doseTimer != nil {
		g.doseTimer.Stop()
		g.doseTimer = nil
	}
	g.mu.Unlock()

	for _, l := range []*gpiocdev.Line{g.light, g.pump, g.nutrient, g.ledRed, g.ledGreen, g.ledBlue} {
		if l == nil {
			continue
		}
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive line %d low: %w", l.Offset(), err))
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line %d: %w", l.Offset(), err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", l.Offset(), err))
		}
	}
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}
