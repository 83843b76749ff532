package sensor

import "fmt"

// ADC range of the MCP3008.
const (
	adcMin = 0
	adcMax = 1023
)

// Raw is one uncalibrated sample straight from the ADC.
type Raw struct {
	Moisture int
	Light    int
	Tank     int
}

// Calibration converts raw samples into a Reading.
type Calibration struct {
	TankEmptyRaw int
	TankFullRaw  int

	// Tolerance is how far (in percent) the tank level may fall outside
	// 0-100 before the probe is considered out of calibration.
	Tolerance int
}

// Apply validates raw and returns the calibrated reading.
func (c Calibration) Apply(raw Raw) (Reading, error) {
	if err := checkADC(SoilMoisture, raw.Moisture); err != nil {
		return Reading{}, err
	}
	if err := checkADC(ExternalLight, raw.Light); err != nil {
		return Reading{}, err
	}
	if err := checkADC(WaterTankLevel, raw.Tank); err != nil {
		return Reading{}, err
	}

	span := c.TankFullRaw - c.TankEmptyRaw
	if span <= 0 {
		return Reading{}, &Fault{Sensor: WaterTankLevel, Err: fmt.Errorf("invalid calibration empty=%d full=%d", c.TankEmptyRaw, c.TankFullRaw)}
	}
	pct := (raw.Tank - c.TankEmptyRaw) * 100 / span
	if pct < -c.Tolerance || pct > 100+c.Tolerance {
		return Reading{}, &Fault{Sensor: WaterTankLevel, Err: fmt.Errorf("level %d%% outside calibrated range", pct)}
	}

	return Reading{
		SoilMoisture:   raw.Moisture,
		ExternalLight:  raw.Light,
		WaterTankLevel: clamp(pct, 0, 100),
	}, nil
}

func checkADC(sensor string, v int) error {
	if v < adcMin || v > adcMax {
		return &Fault{Sensor: sensor, Err: fmt.Errorf("raw value %d outside [%d,%d]", v, adcMin, adcMax)}
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
