package control

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/plant-wall/internal/actuator"
	"github.com/sweeney/plant-wall/internal/config"
	"github.com/sweeney/plant-wall/internal/policy"
)

// applyPump moves the pump between idle and watering.
// Transitions are idle->watering->idle only; a running cycle is never restarted.
func (l *Loop) applyPump(ctx context.Context, cfg config.Thresholds, in policy.Intent, now time.Time) {
	if l.pump.watering {
		if l.last.WaterTankLevel < cfg.WaterLevelLow {
			l.stopWatering(ctx, now, StopTankLow)
		}
		return
	}
	if !in.WantWatering {
		if l.pumpUnsure {
			l.stopWatering(ctx, now, StopSafeMode)
		}
		return
	}
	if why := l.startWatering(ctx, cfg, now, ""); why != "" {
		l.log.Debug("watering wanted, not started", zap.String("reason", why))
	}
}

// manualWatering starts one operator-requested cycle and reports whether
// it did. It refuses in safe mode, mid-cycle and without a fresh reading.
func (l *Loop) manualWatering(ctx context.Context, cfg config.Thresholds, now time.Time) bool {
	var why string
	switch {
	case l.safe != nil:
		why = "safe mode"
	case l.pump.watering:
		why = "already watering"
	case !l.hasReading || l.stale:
		why = "no fresh reading"
	default:
		why = l.startWatering(ctx, cfg, now, StartManual)
	}
	if why != "" {
		l.log.Info("manual watering refused", zap.String("reason", why))
		return false
	}
	return true
}

// startWatering opens a cycle if the tank and interval guards allow it.
// It returns why it did not, or "" once the pump is running.
func (l *Loop) startWatering(ctx context.Context, cfg config.Thresholds, now time.Time, trigger string) string {
	if l.last.WaterTankLevel < cfg.WaterLevelLow {
		return "tank low"
	}
	if !l.lastStart.IsZero() && now.Sub(l.lastStart) < l.lastInterval {
		return fmt.Sprintf("interval not elapsed, %v of %v", now.Sub(l.lastStart), l.lastInterval)
	}

	err := l.command(ctx, actuator.Pump, func(c context.Context) error {
		return l.gw.SetPump(c, true)
	})
	if err != nil {
		return "pump fault"
	}

	l.pumpUnsure = false
	l.pump = pumpCycle{
		watering:  true,
		startedAt: now,
		duration:  cfg.WateringDuration,
		id:        uuid.NewString(),
	}
	l.lastStart, l.lastInterval = now, cfg.WateringInterval
	l.metrics.WateringStarted()
	l.log.Info("watering started",
		zap.String("cycle", l.pump.id),
		zap.String("trigger", trigger),
		zap.Int("soil_moisture", l.last.SoilMoisture),
		zap.Int("water_tank_level", l.last.WaterTankLevel),
		zap.Duration("duration", l.pump.duration))
	l.emit(Event{Type: EventWateringStarted, Time: now, Subsystem: actuator.Pump, CycleID: l.pump.id, Reason: trigger})
	return ""
}

// stopWatering commands the pump off and ends the cycle. If the command
// fails the cycle stays open so the next tick tries again.
func (l *Loop) stopWatering(ctx context.Context, now time.Time, reason string) {
	err := l.command(ctx, actuator.Pump, func(c context.Context) error {
		return l.gw.SetPump(c, false)
	})
	if err != nil {
		l.log.Error("pump stop failed, retrying next tick",
			zap.String("cycle", l.pump.id), zap.String("reason", reason))
		return
	}
	l.pumpUnsure = false
	l.endCycle(now, reason)
}

func (l *Loop) endCycle(now time.Time, reason string) {
	if !l.pump.watering {
		return
	}
	l.log.Info("watering stopped",
		zap.String("cycle", l.pump.id),
		zap.String("reason", reason),
		zap.Duration("ran", now.Sub(l.pump.startedAt)))
	l.emit(Event{Type: EventWateringStopped, Time: now, Subsystem: actuator.Pump, CycleID: l.pump.id, Reason: reason})
	l.pump = pumpCycle{}
}
