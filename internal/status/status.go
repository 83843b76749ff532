// Package status holds the latest published view of the plant wall.
// The control loop is the only writer; HTTP handlers, the websocket feed and
// telemetry read it. Handoff is an atomic pointer swap, so readers never see
// a partial update and never wait on the loop.
package status

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/plant-wall/internal/config"
)

// Mode is the overall operating mode.
type Mode string

const (
	ModeInitializing Mode = "initializing"
	ModeRunning      Mode = "running"
	ModeDegraded     Mode = "degraded"
	ModeSafe         Mode = "safe_mode"
)

// FaultCounts are running totals since start (or since the last safe-mode reset
// for Consecutive).
type FaultCounts struct {
	Sensor      int
	Actuator    int
	Consecutive int
}

// Snapshot is a point-in-time view of sensors and actuators.
// It is a value type; Publish copies its slices so that a published
// Snapshot is never modified afterwards.
type Snapshot struct {
	Initialized bool
	Tick        uint64
	Time        time.Time
	StartTime   time.Time

	// Last valid reading. HasReading is false until one succeeds.
	HasReading     bool
	SoilMoisture   int
	ExternalLight  int
	WaterTankLevel int
	ReadingTime    time.Time
	Stale          bool

	Light         string
	Brightness    int
	Pump          string
	WateringSince time.Time
	Nutrient      string
	LastDose      time.Time

	Mode           Mode
	Degraded       []string
	FaultFlags     []string
	SafeModeReason string
	Faults         FaultCounts

	MQTTConnected bool
	Thresholds    config.Thresholds
}

// NotInitialized is what Latest returns before the first tick completes.
var NotInitialized = Snapshot{
	Mode:     ModeInitializing,
	Light:    "off",
	Pump:     "idle",
	Nutrient: "idle",
}

// Uptime returns the time since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	if s.StartTime.IsZero() || s.Time.IsZero() {
		return 0
	}
	return s.Time.Sub(s.StartTime)
}

func (s Snapshot) clone() Snapshot {
	s.Degraded = slices.Clone(s.Degraded)
	s.FaultFlags = slices.Clone(s.FaultFlags)
	return s
}

type published struct {
	snap Snapshot
	json []byte
}

// Publisher stores the latest Snapshot together with its JSON encoding, so
// every reader of the same publication gets byte-identical output.
type Publisher struct {
	cur atomic.Pointer[published]

	mu     sync.Mutex
	subs   map[chan []byte]struct{}
	closed bool
}

// NewPublisher returns a Publisher holding NotInitialized.
func NewPublisher() *Publisher {
	p := &Publisher{subs: make(map[chan []byte]struct{})}
	p.cur.Store(&published{snap: NotInitialized, json: FormatJSON(NotInitialized)})
	return p
}

// Publish replaces the visible status and notifies subscribers.
// Slow subscribers miss intermediate publications rather than block the caller.
func (p *Publisher) Publish(s Snapshot) {
	s = s.clone()
	s.Initialized = true
	data := FormatJSON(s)
	p.cur.Store(&published{snap: s, json: data})

	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.subs {
		select {
		case ch <- data:
		default:
		}
	}
}

// Latest returns a copy of the most recent Snapshot, or NotInitialized.
func (p *Publisher) Latest() Snapshot {
	return p.cur.Load().snap.clone()
}

// LatestJSON returns the encoding of Latest. Callers must not modify it.
func (p *Publisher) LatestJSON() []byte {
	return p.cur.Load().json
}

// Subscribe registers for the JSON of each future publication.
// The returned cancel function must be called to release the subscription.
func (p *Publisher) Subscribe(buffer int) (<-chan []byte, func()) {
	ch := make(chan []byte, buffer)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if _, ok := p.subs[ch]; ok {
				delete(p.subs, ch)
				close(ch)
			}
		})
	}
}

// Close ends every subscription. Publish keeps working afterwards.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for ch := range p.subs {
		delete(p.subs, ch)
		close(ch)
	}
}
