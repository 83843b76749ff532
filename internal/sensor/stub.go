//go:build !linux

package sensor

import (
	"context"
	"errors"

	"github.com/sweeney/plant-wall/internal/config"
)

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(hw config.Hardware) (*RealReader, error) {
	return nil, errors.New("sensor: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (r *RealReader) Read(ctx context.Context) (Reading, error) {
	return Reading{}, &Fault{Sensor: SoilMoisture, Err: errors.New("not supported")}
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}
