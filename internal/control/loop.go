// Package control runs the plant wall's tick loop. The Loop is the single
// owner of actuator state: it reads sensors, asks the policy what to do,
// applies the answer under safety guards and publishes the result.
//
// Every hardware call is bounded by a timeout, retried at most once, and
// never allowed to stop the loop. Repeated faults escalate to safe mode,
// which holds every output off until an explicit reset.
package control

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/plant-wall/internal/actuator"
	"github.com/sweeney/plant-wall/internal/config"
	"github.com/sweeney/plant-wall/internal/metrics"
	"github.com/sweeney/plant-wall/internal/policy"
	"github.com/sweeney/plant-wall/internal/sensor"
	"github.com/sweeney/plant-wall/internal/status"
)

// Defaults for zero Options fields.
const (
	DefaultCallTimeout   = 5 * time.Second
	DefaultSafeModeAfter = 5
)

// Options configures a Loop. Reader, Gateway and Status are required.
type Options struct {
	Reader     sensor.Reader
	Gateway    actuator.Gateway
	Status     *status.Publisher
	Thresholds config.Thresholds

	// CallTimeout bounds each sensor read and actuator command.
	CallTimeout time.Duration

	// SafeModeAfter is the number of consecutive faults that enters safe mode.
	SafeModeAfter int

	Telemetry Telemetry
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// pumpCycle is the water pump state. The zero value is idle.
// Duration and interval are captured when the cycle starts so that
// settings changes never alter a cycle in flight.
type pumpCycle struct {
	watering  bool
	startedAt time.Time
	duration  time.Duration
	id        string
}

// Loop is the control loop. Tick and Run must be called from one goroutine;
// Thresholds, SetThresholds and the Request methods are safe from any goroutine.
type Loop struct {
	reader    sensor.Reader
	gw        actuator.Gateway
	pub       *status.Publisher
	tel       Telemetry
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
	timeout   time.Duration
	safeAfter int

	thresholds atomic.Pointer[config.Thresholds]
	reset      chan struct{}
	estop      chan struct{}
	water      chan struct{}

	// Owned by the loop goroutine.
	start      time.Time
	tick       uint64
	last       sensor.Reading
	hasReading bool
	stale      bool
	mem        policy.Memory

	light      actuator.LightState
	lightKnown bool

	pump         pumpCycle
	pumpUnsure   bool // a stop failed; the relay may still be closed
	lastStart    time.Time
	lastInterval time.Duration

	dosing  int
	dosedAt time.Time

	safe       *SafeModeEntered
	degraded   map[string]bool
	faults     status.FaultCounts
	tickFaults int
	lastFault  error
	flags      []string
}

// New validates opts and returns a Loop in the running state with every
// output assumed unknown. Nothing is commanded until the first Tick.
func New(opts Options) (*Loop, error) {
	if opts.Reader == nil {
		return nil, errors.New("control: sensor reader is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("control: actuator gateway is required")
	}
	if opts.Status == nil {
		return nil, errors.New("control: status publisher is required")
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("control: initial thresholds: %w", err)
	}
	if opts.SafeModeAfter < 0 {
		return nil, fmt.Errorf("control: safe mode threshold must be >= 1, got %d", opts.SafeModeAfter)
	}
	if opts.CallTimeout < 0 {
		return nil, fmt.Errorf("control: call timeout must be > 0, got %v", opts.CallTimeout)
	}

	l := &Loop{
		reader:    opts.Reader,
		gw:        opts.Gateway,
		pub:       opts.Status,
		tel:       opts.Telemetry,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		now:       opts.Now,
		timeout:   opts.CallTimeout,
		safeAfter: opts.SafeModeAfter,
		reset:     make(chan struct{}, 1),
		estop:     make(chan struct{}, 1),
		water:     make(chan struct{}, 1),
		degraded:  map[string]bool{},
		light:     actuator.Off(),
	}
	if l.tel == nil {
		l.tel = noTelemetry{}
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.timeout == 0 {
		l.timeout = DefaultCallTimeout
	}
	if l.safeAfter == 0 {
		l.safeAfter = DefaultSafeModeAfter
	}

	th := opts.Thresholds
	l.thresholds.Store(&th)

	// The first dose waits one full interval after start.
	l.start = l.now()
	l.mem.LastDose = l.start
	return l, nil
}

// Thresholds returns the configuration the next tick will use.
func (l *Loop) Thresholds() config.Thresholds {
	return *l.thresholds.Load()
}

// SetThresholds replaces the configuration from the next tick on.
// Callers are expected to have validated t.
func (l *Loop) SetThresholds(t config.Thresholds) {
	l.thresholds.Store(&t)
}

// RequestReset asks the loop to leave safe mode. The reset is applied on
// the loop goroutine; it is a no-op when the loop is not in safe mode.
func (l *Loop) RequestReset() {
	signal(l.reset)
}

// RequestSafeMode is the operator emergency stop: every output is switched
// off and the loop stays in safe mode until RequestReset.
func (l *Loop) RequestSafeMode() {
	signal(l.estop)
}

// RequestWatering asks for one watering cycle now. The request passes the
// same guards as automatic watering (pump idle, a fresh reading, tank at or
// above water_level_low, watering_interval since the last start) and is
// dropped, with a log line, when any of them fails.
func (l *Loop) RequestWatering() {
	signal(l.water)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func pending(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Run ticks immediately and then on every value from tick, until ctx ends.
// On exit the light and pumps are commanded off and a final status is published.
func (l *Loop) Run(ctx context.Context, tick <-chan time.Time) error {
	l.emit(Event{Type: EventStartup, Time: l.now()})
	l.log.Info("control loop started",
		zap.Duration("call_timeout", l.timeout),
		zap.Int("safe_mode_after", l.safeAfter))

	l.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case <-tick:
			l.Tick(ctx)
		case <-l.reset:
			now := l.now()
			if l.clearSafeMode(now) {
				l.publish(l.snapshot(now, l.Thresholds()))
			}
		case <-l.estop:
			now := l.now()
			if l.emergencyStop(ctx, now) {
				l.publish(l.snapshot(now, l.Thresholds()))
			}
		case <-l.water:
			now := l.now()
			cfg := l.Thresholds()
			if l.manualWatering(ctx, cfg, now) {
				l.publish(l.snapshot(now, cfg))
			}
		}
	}
}

// Tick runs one iteration and returns the status it published.
func (l *Loop) Tick(ctx context.Context) status.Snapshot {
	now := l.now()
	if pending(l.reset) {
		l.clearSafeMode(now)
	}
	estop, water := pending(l.estop), pending(l.water)

	cfg := l.Thresholds()
	l.tick++
	l.flags = nil
	l.tickFaults = 0
	l.dosing = 0

	r, err := l.read(ctx)
	if err != nil {
		l.sensorFault(ctx, err)
	} else {
		r.Time = now
		l.last, l.hasReading, l.stale = r, true, false
		l.recover(sensor.All)
		l.metrics.SetReading(sensor.SoilMoisture, r.SoilMoisture)
		l.metrics.SetReading(sensor.ExternalLight, r.ExternalLight)
		l.metrics.SetReading(sensor.WaterTankLevel, r.WaterTankLevel)
	}

	wasSafe := l.safe != nil
	if estop {
		l.emergencyStop(ctx, now)
	}
	switch {
	case wasSafe:
		l.holdIdle(ctx, now)
	case l.safe == nil:
		l.actuate(ctx, cfg, now, err == nil)
		if l.faults.Consecutive >= l.safeAfter {
			reason := fmt.Sprintf("%d consecutive faults", l.faults.Consecutive)
			l.enterSafeMode(ctx, now, reason, l.lastFault)
		}
	}
	if water {
		l.manualWatering(ctx, cfg, now)
	}
	if l.tickFaults == 0 && ctx.Err() == nil {
		l.faults.Consecutive = 0
	}

	l.render(ctx)

	snap := l.snapshot(now, cfg)
	l.publish(snap)
	l.metrics.Tick()
	return snap
}

// actuate applies one policy decision. Without a fresh reading only the
// watering cutoff runs, since it needs no sensor data.
func (l *Loop) actuate(ctx context.Context, cfg config.Thresholds, now time.Time, fresh bool) {
	if l.pump.watering && now.Sub(l.pump.startedAt) >= l.pump.duration {
		l.stopWatering(ctx, now, StopDuration)
	}
	if !fresh {
		return
	}

	in, mem := policy.Decide(l.last, cfg, now, l.mem)
	l.mem = mem

	l.applyLight(ctx, in)
	l.applyPump(ctx, cfg, in, now)
	l.applyNutrients(ctx, in, now)
}

func (l *Loop) applyLight(ctx context.Context, in policy.Intent) {
	want := actuator.Off()
	if in.WantLight {
		want = actuator.Dimmed(in.Brightness)
	}
	if l.lightKnown && want == l.light {
		return
	}
	err := l.command(ctx, actuator.Light, func(c context.Context) error {
		return l.gw.SetLight(c, want)
	})
	if err != nil {
		return
	}
	l.log.Info("light set", zap.Stringer("state", want))
	l.light, l.lightKnown = want, true
}

func (l *Loop) applyNutrients(ctx context.Context, in policy.Intent, now time.Time) {
	if !in.WantsNutrients() {
		return
	}
	amount := in.NutrientDose
	err := l.command(ctx, actuator.NutrientPump, func(c context.Context) error {
		return l.gw.SetNutrientPump(c, amount)
	})
	if err != nil {
		return
	}
	l.mem = l.mem.Dosed(now)
	l.dosing, l.dosedAt = amount, now
	l.metrics.NutrientDosed()
	l.log.Info("nutrients dosed", zap.Int("amount_ml", amount))
	l.emit(Event{Type: EventNutrientDosed, Time: now, Subsystem: actuator.NutrientPump, Amount: amount})
}

func (l *Loop) render(ctx context.Context) {
	f := actuator.Frame{
		Mode:           string(l.mode()),
		SoilMoisture:   l.last.SoilMoisture,
		ExternalLight:  l.last.ExternalLight,
		WaterTankLevel: l.last.WaterTankLevel,
		Stale:          l.stale || !l.hasReading,
		Light:          l.light,
		Watering:       l.pump.watering,
		Degraded:       l.degradedList(),
	}
	if err := l.try(ctx, actuator.Display, func(c context.Context) error { return l.gw.Render(c, f) }); err != nil {
		if ctx.Err() == nil {
			l.degrade(actuator.Display)
		}
		return
	}
	l.recover(actuator.Display)
}

func (l *Loop) sensorFault(ctx context.Context, err error) {
	f := asSensorFault(err)
	l.stale = true
	if ctx.Err() != nil {
		l.log.Debug("sensor read abandoned", zap.Error(ctx.Err()))
		return
	}
	l.faults.Sensor++
	l.metrics.SensorFault(f.Sensor)
	l.flag("sensor_fault:" + f.Sensor)
	l.countFault(f)
	l.degrade(sensor.All)
	l.log.Warn("sensor fault, holding outputs", zap.String("sensor", f.Sensor), zap.Error(f.Err))
}

// countFault records a fault toward safe mode.
func (l *Loop) countFault(err error) {
	l.faults.Consecutive++
	l.tickFaults++
	l.lastFault = err
}

func (l *Loop) flag(f string) {
	if !slices.Contains(l.flags, f) {
		l.flags = append(l.flags, f)
	}
}

func (l *Loop) degrade(subsystem string) {
	if l.degraded[subsystem] {
		return
	}
	l.degraded[subsystem] = true
	l.log.Warn("subsystem degraded", zap.String("subsystem", subsystem))
	l.emit(Event{Type: EventSubsystemDegraded, Time: l.now(), Subsystem: subsystem})
}

func (l *Loop) recover(subsystem string) {
	if !l.degraded[subsystem] {
		return
	}
	delete(l.degraded, subsystem)
	l.log.Info("subsystem recovered", zap.String("subsystem", subsystem))
	l.emit(Event{Type: EventSubsystemRecovered, Time: l.now(), Subsystem: subsystem})
}

func (l *Loop) degradedList() []string {
	out := make([]string, 0, len(l.degraded))
	for s := range l.degraded {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

func (l *Loop) mode() status.Mode {
	switch {
	case l.safe != nil:
		return status.ModeSafe
	case len(l.degraded) > 0:
		return status.ModeDegraded
	}
	return status.ModeRunning
}

func (l *Loop) snapshot(now time.Time, cfg config.Thresholds) status.Snapshot {
	s := status.Snapshot{
		Tick:           l.tick,
		Time:           now,
		StartTime:      l.start,
		HasReading:     l.hasReading,
		SoilMoisture:   l.last.SoilMoisture,
		ExternalLight:  l.last.ExternalLight,
		WaterTankLevel: l.last.WaterTankLevel,
		ReadingTime:    l.last.Time,
		Stale:          l.stale,
		Light:          l.light.String(),
		Brightness:     l.light.Level,
		Pump:           "idle",
		Nutrient:       "idle",
		LastDose:       l.dosedAt,
		Mode:           l.mode(),
		Degraded:       l.degradedList(),
		FaultFlags:     slices.Clone(l.flags),
		Faults:         l.faults,
		MQTTConnected:  l.tel.IsConnected(),
		Thresholds:     cfg,
	}
	switch {
	case l.pump.watering:
		s.Pump = "watering"
		s.WateringSince = l.pump.startedAt
	case l.pumpUnsure:
		s.Pump = "unknown"
	}
	if l.dosing > 0 {
		s.Nutrient = fmt.Sprintf("dosing(%dml)", l.dosing)
	}
	if l.safe != nil {
		s.SafeModeReason = l.safe.Error()
	}
	return s
}

func (l *Loop) publish(s status.Snapshot) {
	l.pub.Publish(s)
	l.metrics.SetMode(string(s.Mode))
	if err := l.tel.PublishStatus(s); err != nil {
		l.log.Debug("status telemetry failed", zap.Error(err))
	}
}

func (l *Loop) emit(e Event) {
	if err := l.tel.PublishEvent(e); err != nil {
		l.log.Debug("event telemetry failed", zap.String("event", string(e.Type)), zap.Error(err))
	}
}
