package control

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/plant-wall/internal/actuator"
	"github.com/sweeney/plant-wall/internal/config"
	"github.com/sweeney/plant-wall/internal/sensor"
	"github.com/sweeney/plant-wall/internal/status"
)

// t0 is noon, inside the default day window.
var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeTelemetry struct {
	mu       sync.Mutex
	statuses []status.Snapshot
	events   []Event
}

func (f *fakeTelemetry) PublishStatus(s status.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, s)
	return nil
}

func (f *fakeTelemetry) PublishEvent(e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeTelemetry) IsConnected() bool { return true }

func (f *fakeTelemetry) Events(typ EventType) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, e := range f.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type rig struct {
	loop   *Loop
	clock  *fakeClock
	reader *sensor.FakeReader
	gw     *actuator.FakeGateway
	pub    *status.Publisher
	tel    *fakeTelemetry
}

func reading(moisture, light, tank int) sensor.Reading {
	return sensor.Reading{SoilMoisture: moisture, ExternalLight: light, WaterTankLevel: tank}
}

// newRig builds a loop over fakes, starting at t0 with default thresholds.
func newRig(t *testing.T, r sensor.Reading, opts ...func(*Options)) *rig {
	t.Helper()
	rg := &rig{
		clock:  &fakeClock{t: t0},
		reader: sensor.NewFakeReader(r),
		gw:     actuator.NewFakeGateway(),
		pub:    status.NewPublisher(),
		tel:    &fakeTelemetry{},
	}
	o := Options{
		Reader:      rg.reader,
		Gateway:     rg.gw,
		Status:      rg.pub,
		Thresholds:  config.DefaultThresholds(),
		CallTimeout: 50 * time.Millisecond,
		Telemetry:   rg.tel,
		Logger:      zaptest.NewLogger(t),
		Now:         rg.clock.Now,
	}
	for _, fn := range opts {
		fn(&o)
	}
	l, err := New(o)
	require.NoError(t, err)
	rg.loop = l
	return rg
}

func safeAfter(n int) func(*Options) {
	return func(o *Options) { o.SafeModeAfter = n }
}

func thresholds(fn func(*config.Thresholds)) func(*Options) {
	return func(o *Options) { fn(&o.Thresholds) }
}
