package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Command is one recorded gateway call.
type Command struct {
	Actuator string
	Value    string
}

// FakeGateway records commands and can be scripted to fail.
type FakeGateway struct {
	mu sync.Mutex

	// Commands contains every successful command in call order.
	Commands []Command

	// Frames contains every successfully rendered frame.
	Frames []Frame

	// Current outputs as last successfully commanded.
	Light    LightState
	PumpOn   bool
	Doses    []int
	Closed   bool
	attempts map[string]int
	faults   map[string]int

	fail     map[string]error
	failNext map[string]int
	block    map[string]bool
}

// NewFakeGateway creates a FakeGateway with every output off.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		Light:    Off(),
		attempts: map[string]int{},
		faults:   map[string]int{},
		fail:     map[string]error{},
		failNext: map[string]int{},
		block:    map[string]bool{},
	}
}

// Fail makes every call to the named actuator fail until Heal is called.
func (f *FakeGateway) Fail(actuator string, err error) {
	f.mu.Lock()
	f.fail[actuator] = err
	f.mu.Unlock()
}

// FailNext makes the next n calls to the named actuator fail.
func (f *FakeGateway) FailNext(actuator string, n int) {
	f.mu.Lock()
	f.failNext[actuator] = n
	f.mu.Unlock()
}

// Block makes calls to the named actuator hang until their context ends.
func (f *FakeGateway) Block(actuator string) {
	f.mu.Lock()
	f.block[actuator] = true
	f.mu.Unlock()
}

// Heal clears every scripted failure for the named actuator.
func (f *FakeGateway) Heal(actuator string) {
	f.mu.Lock()
	delete(f.fail, actuator)
	delete(f.failNext, actuator)
	delete(f.block, actuator)
	f.mu.Unlock()
}

// Attempts returns how many calls reached the named actuator.
func (f *FakeGateway) Attempts(actuator string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[actuator]
}

// Faults returns how many calls to the named actuator failed.
func (f *FakeGateway) Faults(actuator string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.faults[actuator]
}

// CommandsFor returns the recorded values sent to one actuator.
func (f *FakeGateway) CommandsFor(actuator string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.Commands {
		if c.Actuator == actuator {
			out = append(out, c.Value)
		}
	}
	return out
}

// State returns the current light and pump outputs.
func (f *FakeGateway) State() (LightState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Light, f.PumpOn
}

// LastFrame returns the most recent rendered frame.
func (f *FakeGateway) LastFrame() (Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Frames) == 0 {
		return Frame{}, false
	}
	return f.Frames[len(f.Frames)-1], true
}

// check runs scripted failures; it must be called without f.mu held.
func (f *FakeGateway) check(ctx context.Context, actuator string) error {
	f.mu.Lock()
	f.attempts[actuator]++
	blocked := f.block[actuator]
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		f.mu.Lock()
		f.faults[actuator]++
		f.mu.Unlock()
		return &Fault{Actuator: actuator, Err: ctx.Err()}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[actuator]; err != nil {
		f.faults[actuator]++
		return &Fault{Actuator: actuator, Err: err}
	}
	if f.failNext[actuator] > 0 {
		f.failNext[actuator]--
		f.faults[actuator]++
		return &Fault{Actuator: actuator, Err: errors.New("scripted failure")}
	}
	return nil
}

func (f *FakeGateway) record(actuator, value string) {
	f.Commands = append(f.Commands, Command{Actuator: actuator, Value: value})
}

// SetLight records the light command.
func (f *FakeGateway) SetLight(ctx context.Context, s LightState) error {
	if err := f.check(ctx, Light); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Light = s
	f.record(Light, s.String())
	return nil
}

// SetPump records the pump command.
func (f *FakeGateway) SetPump(ctx context.Context, on bool) error {
	if err := f.check(ctx, Pump); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PumpOn = on
	if on {
		f.record(Pump, "on")
	} else {
		f.record(Pump, "off")
	}
	return nil
}

// SetNutrientPump records the dose.
func (f *FakeGateway) SetNutrientPump(ctx context.Context, amountML int) error {
	if err := f.check(ctx, NutrientPump); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if amountML > 0 {
		f.Doses = append(f.Doses, amountML)
	}
	f.record(NutrientPump, fmt.Sprintf("%dml", amountML))
	return nil
}

// Render records the frame.
func (f *FakeGateway) Render(ctx context.Context, fr Frame) error {
	if err := f.check(ctx, Display); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Frames = append(f.Frames, fr)
	return nil
}

// Close marks the gateway closed and switches outputs off.
func (f *FakeGateway) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.Light = Off()
	f.PumpOn = false
	return nil
}
