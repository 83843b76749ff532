package sensor

import (
	"context"
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted readings.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted readings. Each call to Read consumes the
	// next one; once exhausted the last sample repeats.
	Samples []Reading

	// Errors, if set, scripts a per-call error (nil entries succeed).
	// Calls beyond the end of Errors succeed.
	Errors []error

	// ReadError, if set, is returned by every Read.
	ReadError error

	// Block makes Read wait for the context to end, simulating a hung device.
	Block bool

	index  int
	calls  int
	Closed bool
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...Reading) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted reading.
func (f *FakeReader) Read(ctx context.Context) (Reading, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	block := f.Block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return Reading{}, &Fault{Sensor: SoilMoisture, Err: ctx.Err()}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return Reading{}, f.ReadError
	}
	if call < len(f.Errors) && f.Errors[call] != nil {
		return Reading{}, f.Errors[call]
	}
	if len(f.Samples) == 0 {
		return Reading{}, errors.New("no samples configured")
	}

	r := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return r, nil
}

// Calls returns how many times Read has been called.
func (f *FakeReader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// SetSamples replaces the script and rewinds it.
func (f *FakeReader) SetSamples(samples ...Reading) {
	f.mu.Lock()
	f.Samples = samples
	f.index = 0
	f.mu.Unlock()
}

// SetError sets ReadError under the lock.
func (f *FakeReader) SetError(err error) {
	f.mu.Lock()
	f.ReadError = err
	f.mu.Unlock()
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
