// Package metrics exposes control-loop counters and gauges to Prometheus.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "plantwall"

// Modes lists every value the mode gauge can take.
var Modes = []string{"initializing", "running", "degraded", "safe_mode"}

// Metrics holds the collectors registered for one loop.
type Metrics struct {
	registry *prometheus.Registry

	ticks          prometheus.Counter
	sensorFaults   *prometheus.CounterVec
	actuatorFaults *prometheus.CounterVec
	wateringCycles prometheus.Counter
	nutrientDoses  prometheus.Counter
	mode           *prometheus.GaugeVec
	reading        *prometheus.GaugeVec
}

// New creates the collectors on a private registry, together with the
// standard Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Control loop ticks completed.",
		}),
		sensorFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_faults_total",
			Help:      "Failed sensor reads by sensor.",
		}, []string{"sensor"}),
		actuatorFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuator_faults_total",
			Help:      "Failed actuator commands by actuator, counting each attempt.",
		}, []string{"actuator"}),
		wateringCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watering_cycles_total",
			Help:      "Watering cycles started.",
		}),
		nutrientDoses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nutrient_doses_total",
			Help:      "Nutrient doses dispensed.",
		}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode",
			Help:      "Current operating mode (1 for the active mode).",
		}, []string{"mode"}),
		reading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading",
			Help:      "Last valid sensor reading.",
		}, []string{"sensor"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks, m.sensorFaults, m.actuatorFaults,
		m.wateringCycles, m.nutrientDoses, m.mode, m.reading,
	)
	m.SetMode("initializing")
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Tick() {
	if m != nil {
		m.ticks.Inc()
	}
}

func (m *Metrics) SensorFault(sensor string) {
	if m != nil {
		m.sensorFaults.WithLabelValues(sensor).Inc()
	}
}

func (m *Metrics) ActuatorFault(actuator string) {
	if m != nil {
		m.actuatorFaults.WithLabelValues(actuator).Inc()
	}
}

func (m *Metrics) WateringStarted() {
	if m != nil {
		m.wateringCycles.Inc()
	}
}

func (m *Metrics) NutrientDosed() {
	if m != nil {
		m.nutrientDoses.Inc()
	}
}

// SetMode sets the gauge for mode to 1 and every other mode to 0.
func (m *Metrics) SetMode(mode string) {
	if m == nil {
		return
	}
	for _, name := range Modes {
		v := 0.0
		if name == mode {
			v = 1
		}
		m.mode.WithLabelValues(name).Set(v)
	}
}

// SetReading records the last valid value of one sensor.
func (m *Metrics) SetReading(sensor string, value int) {
	if m != nil {
		m.reading.WithLabelValues(sensor).Set(float64(value))
	}
}
