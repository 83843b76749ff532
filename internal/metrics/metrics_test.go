package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Tick()
	m.Tick()
	m.SensorFault("soil_moisture")
	m.ActuatorFault("pump")
	m.ActuatorFault("pump")
	m.WateringStarted()
	m.NutrientDosed()

	if got := testutil.ToFloat64(m.ticks); got != 2 {
		t.Errorf("ticks: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.sensorFaults.WithLabelValues("soil_moisture")); got != 1 {
		t.Errorf("sensor faults: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.actuatorFaults.WithLabelValues("pump")); got != 2 {
		t.Errorf("pump faults: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.wateringCycles); got != 1 {
		t.Errorf("watering cycles: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.nutrientDoses); got != 1 {
		t.Errorf("doses: got %v, want 1", got)
	}
}

func TestSetModeOneHot(t *testing.T) {
	m := New()
	m.SetMode("safe_mode")

	for _, mode := range Modes {
		want := 0.0
		if mode == "safe_mode" {
			want = 1
		}
		if got := testutil.ToFloat64(m.mode.WithLabelValues(mode)); got != want {
			t.Errorf("mode %s: got %v, want %v", mode, got, want)
		}
	}
}

func TestSetReading(t *testing.T) {
	m := New()
	m.SetReading("water_tank_level", 80)
	if got := testutil.ToFloat64(m.reading.WithLabelValues("water_tank_level")); got != 80 {
		t.Errorf("reading: got %v, want 80", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Tick()
	m.SensorFault("x")
	m.ActuatorFault("x")
	m.WateringStarted()
	m.NutrientDosed()
	m.SetMode("running")
	m.SetReading("x", 1)
	if m.Registry() != nil {
		t.Error("nil Metrics should have nil registry")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil handler status: got %d, want 404", rec.Code)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.Tick()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"plantwall_ticks_total 1", `plantwall_mode{mode="initializing"} 1`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}
