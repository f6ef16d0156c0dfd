// Package metrics exposes oven gauges and control-loop counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"oven_controller/internal/models"
)

// Recorder is what the control loop reports into.
type Recorder interface {
	ObserveState(st models.OvenState)
	TickSkipped(reason string)
	Fault(kind string)
}

// Skip reasons and fault kinds used as label values.
const (
	SkipOverlap = "overlap"
	SkipStorage = "storage"

	FaultSensor  = "sensor"
	FaultStorage = "storage"
	FaultApply   = "actuator"
)

// Metrics owns a private registry so tests and multiple instances never
// collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	temperature *prometheus.GaugeVec
	actuator    *prometheus.GaugeVec
	timerLeft   prometheus.Gauge
	ticks       prometheus.Counter
	skipped     *prometheus.CounterVec
	faults      *prometheus.CounterVec
}

var _ Recorder = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oven_temperature_celsius",
				Help: "Oven temperature in Celsius",
			},
			[]string{"kind"}, // sensed | target
		),
		actuator: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oven_actuator_on",
				Help: "Actuator state (1=on, 0=off)",
			},
			[]string{"actuator"},
		),
		timerLeft: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oven_timer_left_minutes",
				Help: "Minutes left on the countdown timer",
			},
		),
		ticks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "oven_control_ticks_total",
				Help: "Completed control loop ticks",
			},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oven_control_ticks_skipped_total",
				Help: "Control loop ticks skipped, by reason",
			},
			[]string{"reason"},
		),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oven_faults_total",
				Help: "Hardware and storage faults, by kind",
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(m.temperature, m.actuator, m.timerLeft, m.ticks, m.skipped, m.faults)
	return m
}

// Registry is exposed for callers that want to add their own collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveState records a completed tick and its resulting state.
func (m *Metrics) ObserveState(st models.OvenState) {
	m.ticks.Inc()
	m.temperature.WithLabelValues("sensed").Set(st.Temp)
	m.temperature.WithLabelValues("target").Set(st.SetTemp)
	m.timerLeft.Set(float64(st.TimerLeft))

	for name, on := range map[string]bool{
		"cooling": st.Cooling,
		"fan":     st.Fan,
		"light":   st.Light,
		"top":     st.Top,
		"bottom":  st.Bottom,
		"back":    st.Back,
	} {
		m.actuator.WithLabelValues(name).Set(boolToFloat(on))
	}
}

func (m *Metrics) TickSkipped(reason string) {
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Fault(kind string) {
	m.faults.WithLabelValues(kind).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveState(models.OvenState) {}
func (Nop) TickSkipped(string)            {}
func (Nop) Fault(string)                  {}
