//go:build !linux

package actuator

import (
	"context"
	"errors"

	"github.com/sweeney/plant-wall/internal/config"
)

var errUnsupported = errors.New("not supported")

// RealGateway is not available on non-Linux platforms.
type RealGateway struct{}

// NewRealGateway returns an error on non-Linux platforms.
func NewRealGateway(hw config.Hardware) (*RealGateway, error) {
	return nil, errors.New("actuator: not supported on this platform (requires Linux)")
}

// SetLight is not implemented on non-Linux platforms.
func (g *RealGateway) SetLight(ctx context.Context, s LightState) error {
	return &Fault{Actuator: Light, Err: errUnsupported}
}

// SetPump is not implemented on non-Linux platforms.
func (g *RealGateway) SetPump(ctx context.Context, on bool) error {
	return &Fault{Actuator: Pump, Err: errUnsupported}
}

// SetNutrientPump is not implemented on non-Linux platforms.
func (g *RealGateway) SetNutrientPump(ctx context.Context, amountML int) error {
	return &Fault{Actuator: NutrientPump, Err: errUnsupported}
}

// Render is not implemented on non-Linux platforms.
func (g *RealGateway) Render(ctx context.Context, f Frame) error {
	return &Fault{Actuator: Display, Err: errUnsupported}
}

// Close is not implemented on non-Linux platforms.
func (g *RealGateway) Close() error {
	return nil
}
