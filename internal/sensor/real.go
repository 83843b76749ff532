//go:build linux

package sensor

import (
	"context"
	"errors"
	"fmt"

	"gobot.io/x/gobot/v2/drivers/spi"
	"gobot.io/x/gobot/v2/platforms/raspi"

	"github.com/sweeney/plant-wall/internal/config"
)

// RealReader samples the analog sensors through an MCP3008 on the Pi's SPI bus.
type RealReader struct {
	adaptor *raspi.Adaptor
	adc     *spi.MCP3008Driver
	cal     Calibration

	moistureCh int
	lightCh    int
	tankCh     int
}

// NewRealReader opens the SPI bus and starts the ADC driver.
func NewRealReader(hw config.Hardware) (*RealReader, error) {
	adaptor := raspi.NewAdaptor()
	if err := adaptor.Connect(); err != nil {
		return nil, fmt.Errorf("connect raspi adaptor: %w", err)
	}

	adc := spi.NewMCP3008Driver(adaptor,
		spi.WithBusNumber(hw.SPIBus),
		spi.WithChipNumber(hw.SPIChip),
	)
	if err := adc.Start(); err != nil {
		adaptor.Finalize()
		return nil, fmt.Errorf("start mcp3008 on spi%d.%d: %w", hw.SPIBus, hw.SPIChip, err)
	}

	return &RealReader{
		adaptor: adaptor,
		adc:     adc,
		cal: Calibration{
			TankEmptyRaw: hw.TankEmptyRaw,
			TankFullRaw:  hw.TankFullRaw,
			Tolerance:    10,
		},
		moistureCh: hw.MoistureChannel,
		lightCh:    hw.LightChannel,
		tankCh:     hw.TankChannel,
	}, nil
}

// Read samples each channel in turn and calibrates the result.
func (r *RealReader) Read(ctx context.Context) (Reading, error) {
	var raw Raw
	var err error

	if raw.Moisture, err = r.channel(ctx, SoilMoisture, r.moistureCh); err != nil {
		return Reading{}, err
	}
	if raw.Light, err = r.channel(ctx, ExternalLight, r.lightCh); err != nil {
		return Reading{}, err
	}
	if raw.Tank, err = r.channel(ctx, WaterTankLevel, r.tankCh); err != nil {
		return Reading{}, err
	}
	return r.cal.Apply(raw)
}

func (r *RealReader) channel(ctx context.Context, name string, ch int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, &Fault{Sensor: name, Err: err}
	}
	v, err := r.adc.Read(ch)
	if err != nil {
		return 0, &Fault{Sensor: name, Err: fmt.Errorf("read adc channel %d: %w", ch, err)}
	}
	return v, nil
}

// Close halts the ADC driver and releases the adaptor.
func (r *RealReader) Close() error {
	var errs []error
	if r.adc != nil {
		if err := r.adc.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt mcp3008: %w", err))
		}
	}
	if r.adaptor != nil {
		if err := r.adaptor.Finalize(); err != nil {
			errs = append(errs, fmt.Errorf("finalize adaptor: %w", err))
		}
	}
	return errors.Join(errs...)
}
