package status

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/plant-wall/internal/config"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func sample() Snapshot {
	return Snapshot{
		Tick:           7,
		Time:           t0,
		StartTime:      t0.Add(-15 * time.Minute),
		HasReading:     true,
		SoilMoisture:   250,
		ExternalLight:  600,
		WaterTankLevel: 80,
		ReadingTime:    t0,
		Light:          "off",
		Pump:           "watering",
		WateringSince:  t0,
		Nutrient:       "idle",
		Mode:           ModeDegraded,
		Degraded:       []string{"display"},
		FaultFlags:     []string{"display"},
		Faults:         FaultCounts{Actuator: 2, Consecutive: 2},
		Thresholds:     config.DefaultThresholds(),
	}
}

func TestNewPublisherNotInitialized(t *testing.T) {
	p := NewPublisher()

	snap := p.Latest()
	if snap.Initialized {
		t.Error("expected Initialized=false before first publish")
	}
	if snap.Mode != ModeInitializing {
		t.Errorf("Mode: got %q, want %q", snap.Mode, ModeInitializing)
	}

	var sj StatusJSON
	if err := json.Unmarshal(p.LatestJSON(), &sj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sj.Mode != "initializing" {
		t.Errorf("mode: got %q", sj.Mode)
	}
	if sj.SoilMoisture != nil {
		t.Error("soil_moisture should be null before the first reading")
	}
	if sj.Thresholds != nil {
		t.Error("thresholds should be omitted before the first publish")
	}
}

func TestPublishAndLatest(t *testing.T) {
	p := NewPublisher()
	p.Publish(sample())

	snap := p.Latest()
	if !snap.Initialized {
		t.Error("expected Initialized=true")
	}
	if snap.Tick != 7 || snap.SoilMoisture != 250 || snap.Pump != "watering" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestPublishCopiesSlices(t *testing.T) {
	p := NewPublisher()
	s := sample()
	p.Publish(s)

	s.Degraded[0] = "mutated"
	if p.Latest().Degraded[0] != "display" {
		t.Error("Publish must copy Degraded")
	}

	got := p.Latest()
	got.FaultFlags[0] = "mutated"
	if p.Latest().FaultFlags[0] != "display" {
		t.Error("Latest must return a copy")
	}
}

func TestLatestJSONStableBetweenPublishes(t *testing.T) {
	p := NewPublisher()
	p.Publish(sample())

	a := p.LatestJSON()
	b := p.LatestJSON()
	if !bytes.Equal(a, b) {
		t.Error("two reads without a publish should be byte-identical")
	}

	next := sample()
	next.Tick = 8
	p.Publish(next)
	if bytes.Equal(a, p.LatestJSON()) {
		t.Error("a new publish should change the encoding")
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{StartTime: t0, Time: t0.Add(15 * time.Minute)}
	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
	if (Snapshot{}).Uptime() != 0 {
		t.Error("zero snapshot should report zero uptime")
	}
}

func TestFormatJSON(t *testing.T) {
	s := sample()
	s.Initialized = true
	data := FormatJSON(s)

	var sj StatusJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sj.Mode != "degraded" {
		t.Errorf("mode: got %q", sj.Mode)
	}
	if sj.SoilMoisture == nil || *sj.SoilMoisture != 250 {
		t.Errorf("soil_moisture: got %v", sj.SoilMoisture)
	}
	if sj.PumpState != "watering" || sj.WateringSince != "2026-01-01T12:00:00Z" {
		t.Errorf("pump: got %q since %q", sj.PumpState, sj.WateringSince)
	}
	if len(sj.Degraded) != 1 || sj.Degraded[0] != "display" {
		t.Errorf("degraded: got %v", sj.Degraded)
	}
	if sj.FaultCounts.Actuator != 2 {
		t.Errorf("fault_counts.actuator: got %d", sj.FaultCounts.Actuator)
	}
	if sj.UptimeSeconds != 900 {
		t.Errorf("uptime_seconds: got %d, want 900", sj.UptimeSeconds)
	}
	if sj.Thresholds == nil {
		t.Fatal("thresholds missing")
	}
	if sj.Thresholds.DayStart != 6 || sj.Thresholds.WateringDuration != 5 {
		t.Errorf("threshold units: day_start=%v watering_duration=%v",
			sj.Thresholds.DayStart, sj.Thresholds.WateringDuration)
	}
}

func TestFormatJSONEmptyListsAreArrays(t *testing.T) {
	s := sample()
	s.Degraded = nil
	s.FaultFlags = nil

	var raw map[string]any
	if err := json.Unmarshal(FormatCompact(s), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"degraded", "fault_flags"} {
		if _, ok := raw[key].([]any); !ok {
			t.Errorf("%s: got %T, want array", key, raw[key])
		}
	}
	if _, ok := raw["safe_mode_reason"]; ok {
		t.Error("safe_mode_reason should be omitted when empty")
	}
}

func TestFormatCompactSingleLine(t *testing.T) {
	data := FormatCompact(sample())
	if bytes.Contains(data, []byte("\n")) {
		t.Errorf("compact JSON should be one line: %s", data)
	}
}

func TestSubscribe(t *testing.T) {
	p := NewPublisher()
	ch, cancel := p.Subscribe(1)
	defer cancel()

	p.Publish(sample())
	select {
	case data := <-ch:
		if !bytes.Equal(data, p.LatestJSON()) {
			t.Error("subscriber should receive the published encoding")
		}
	case <-time.After(time.Second):
		t.Fatal("no publication delivered")
	}
}

func TestSubscribeSlowReaderDoesNotBlock(t *testing.T) {
	p := NewPublisher()
	_, cancel := p.Subscribe(0)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Publish(sample())
		p.Publish(sample())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestSubscribeCancelAndClose(t *testing.T) {
	p := NewPublisher()
	ch, cancel := p.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}

	ch2, cancel2 := p.Subscribe(1)
	defer cancel2()
	p.Close()
	if _, ok := <-ch2; ok {
		t.Error("channel should be closed after Close")
	}

	ch3, _ := p.Subscribe(1)
	if _, ok := <-ch3; ok {
		t.Error("subscribe after Close should return a closed channel")
	}
}

func TestConcurrentAccess(t *testing.T) {
	p := NewPublisher()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s := sample()
			s.Tick = uint64(n)
			p.Publish(s)
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Latest()
			var sj StatusJSON
			if err := json.Unmarshal(p.LatestJSON(), &sj); err != nil {
				t.Errorf("torn read: %v", err)
			}
		}()
	}
	wg.Wait()
}
