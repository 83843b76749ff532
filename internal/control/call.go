package control

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/sweeney/plant-wall/internal/actuator"
	"github.com/sweeney/plant-wall/internal/sensor"
)

type result[T any] struct {
	val T
	err error
}

// bounded runs fn with a deadline and returns when either fn does or the
// deadline passes. fn runs on its own goroutine so a driver that ignores
// its context cannot stall the caller.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(cctx)
		done <- result[T]{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-cctx.Done():
		var zero T
		return zero, cctx.Err()
	}
}

func asSensorFault(err error) *sensor.Fault {
	var f *sensor.Fault
	if errors.As(err, &f) {
		return f
	}
	return &sensor.Fault{Sensor: sensor.All, Err: err}
}

func asActuatorFault(name string, err error) *actuator.Fault {
	var f *actuator.Fault
	if errors.As(err, &f) {
		return f
	}
	return &actuator.Fault{Actuator: name, Err: err}
}

// read takes one bounded sensor reading.
func (l *Loop) read(ctx context.Context) (sensor.Reading, error) {
	r, err := bounded(ctx, l.timeout, l.reader.Read)
	if err != nil {
		return sensor.Reading{}, asSensorFault(err)
	}
	return r, nil
}

// try issues one bounded actuator command and records any failure.
// A call cut short because ctx ended is returned but not recorded.
func (l *Loop) try(ctx context.Context, name string, fn func(context.Context) error) error {
	_, err := bounded(ctx, l.timeout, func(c context.Context) (struct{}, error) {
		return struct{}{}, fn(c)
	})
	if err == nil {
		return nil
	}
	f := asActuatorFault(name, err)
	if ctx.Err() != nil {
		l.log.Debug("actuator call abandoned", zap.String("actuator", name), zap.Error(ctx.Err()))
		return f
	}
	l.faults.Actuator++
	l.metrics.ActuatorFault(name)
	l.flag("actuator_fault:" + name)
	l.log.Warn("actuator fault", zap.String("actuator", name), zap.Error(f.Err))
	return f
}

// attempt is try with the failure counted toward safe mode.
func (l *Loop) attempt(ctx context.Context, name string, fn func(context.Context) error) error {
	err := l.try(ctx, name, fn)
	if err != nil && ctx.Err() == nil {
		l.countFault(err)
	}
	return err
}

// retried runs op and, if it fails, once more within the tick.
// A failed retry marks the subsystem degraded; success clears it.
func (l *Loop) retried(ctx context.Context, name string, op func() error) error {
	retry := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1), ctx)
	if err := backoff.Retry(op, retry); err != nil {
		if ctx.Err() == nil {
			l.degrade(name)
		}
		return err
	}
	l.recover(name)
	return nil
}

// command issues an actuator command, retrying once.
func (l *Loop) command(ctx context.Context, name string, fn func(context.Context) error) error {
	return l.retried(ctx, name, func() error { return l.attempt(ctx, name, fn) })
}

// halt issues a stop command, retrying once. Unlike command its failures
// do not count toward safe mode: it is used in safe mode and at shutdown.
func (l *Loop) halt(ctx context.Context, name string, fn func(context.Context) error) error {
	return l.retried(ctx, name, func() error { return l.try(ctx, name, fn) })
}
