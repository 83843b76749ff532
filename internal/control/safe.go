package control

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/plant-wall/internal/actuator"
)

// Reason recorded when an operator stops the wall.
const reasonEmergencyStop = "emergency stop requested"

func (l *Loop) enterSafeMode(ctx context.Context, now time.Time, reason string, cause error) {
	l.safe = &SafeModeEntered{Reason: reason, Err: cause}
	l.log.Error("entering safe mode", zap.Error(l.safe))
	l.posture(ctx, now, StopSafeMode)
	l.emit(Event{Type: EventSafeModeEntered, Time: now, Reason: l.safe.Error()})
}

// emergencyStop enters safe mode on operator request and reports whether
// it did. Only a reset leaves it.
func (l *Loop) emergencyStop(ctx context.Context, now time.Time) bool {
	if l.safe != nil {
		return false
	}
	l.enterSafeMode(ctx, now, reasonEmergencyStop, nil)
	return true
}

// clearSafeMode leaves safe mode and reports whether it was active.
// The light is re-commanded on the next tick.
func (l *Loop) clearSafeMode(now time.Time) bool {
	if l.safe == nil {
		return false
	}
	l.log.Info("safe mode cleared", zap.String("was", l.safe.Reason))
	l.safe = nil
	l.faults.Consecutive = 0
	l.lightKnown = false
	l.emit(Event{Type: EventSafeModeCleared, Time: now})
	return true
}

// posture drives every output to idle: light off, pump off, any dose stopped.
// Each stop is retried once. A stop that still fails stays pending and
// holdIdle re-issues it on every safe-mode tick.
func (l *Loop) posture(ctx context.Context, now time.Time, reason string) {
	l.lightOff(ctx)
	l.pumpOff(ctx, now, reason)

	if err := l.halt(ctx, actuator.NutrientPump, func(c context.Context) error { return l.gw.SetNutrientPump(c, 0) }); err != nil {
		l.log.Error("nutrient pump stop failed", zap.String("reason", reason), zap.Error(err))
	}
	l.dosing = 0
}

// holdIdle repeats whichever stops have not been confirmed.
func (l *Loop) holdIdle(ctx context.Context, now time.Time) {
	if !l.lightKnown {
		l.lightOff(ctx)
	}
	if l.pumpUnsure {
		l.pumpOff(ctx, now, StopSafeMode)
	}
}

func (l *Loop) lightOff(ctx context.Context) {
	off := actuator.Off()
	if err := l.halt(ctx, actuator.Light, func(c context.Context) error { return l.gw.SetLight(c, off) }); err != nil {
		l.lightKnown = false
		l.log.Error("light off failed", zap.Error(err))
		return
	}
	l.light, l.lightKnown = off, true
}

// pumpOff stops the pump and closes any open cycle. On failure the pump is
// marked unconfirmed and the cycle stays open, so status keeps showing it.
func (l *Loop) pumpOff(ctx context.Context, now time.Time, reason string) {
	if err := l.halt(ctx, actuator.Pump, func(c context.Context) error { return l.gw.SetPump(c, false) }); err != nil {
		l.pumpUnsure = true
		l.log.Error("pump off failed", zap.String("reason", reason), zap.Bool("cycle_open", l.pump.watering), zap.Error(err))
		return
	}
	l.pumpUnsure = false
	l.endCycle(now, reason)
}

// shutdown applies the idle posture and publishes a final status. The run
// context is already done, so calls get a fresh one.
func (l *Loop) shutdown() {
	now := l.now()
	l.log.Info("shutting down, switching outputs off")
	l.posture(context.Background(), now, StopShutdown)
	l.publish(l.snapshot(now, l.Thresholds()))
	l.emit(Event{Type: EventShutdown, Time: now})
}
