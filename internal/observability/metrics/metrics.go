// Package metrics exports scheduler counters to Prometheus and serves
// /metrics, /healthz and, optionally, /debug/pprof/.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shantoshdurai/ClassNow-app/internal/engine"
	"github.com/shantoshdurai/ClassNow-app/internal/eventbus"
	"github.com/shantoshdurai/ClassNow-app/internal/reminder"
	"github.com/shantoshdurai/ClassNow-app/internal/timer"
)

const namespace = "classnow"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	armed      *prometheus.CounterVec
	fired      prometheus.Counter
	failed     prometheus.Counter
	cancelled  prometheus.Counter
	passes     *prometheus.CounterVec
	lastPass   prometheus.Gauge
	scheduled  prometheus.Gauge
	exact      prometheus.Gauge
	delivered  *prometheus.CounterVec
	exactAsked prometheus.Counter
}

// New registers all collectors. bus may be nil; when it implements
// eventbus.Stats its drop count is exported too.
func New(bus eventbus.Bus) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		armed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_armed_total",
			Help: "Timers armed, by precision.",
		}, []string{"precision"}),
		fired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_fired_total",
			Help: "Timers delivered to the engine.",
		}),
		failed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_failed_total",
			Help: "Arm or rearm failures.",
		}),
		cancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_cancelled_total",
			Help: "Timers cancelled.",
		}),
		passes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "schedule_passes_total",
			Help: "Full scheduling passes, by result.",
		}, []string{"result"}),
		lastPass: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "schedule_last_pass_timestamp_seconds",
			Help: "Unix time of the last completed pass.",
		}),
		scheduled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "reminders_scheduled",
			Help: "Reminders armed by the last pass.",
		}),
		exact: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "exact_permission",
			Help: "1 if the last pass could arm exact timers.",
		}),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Reminder notifications, by result.",
		}, []string{"result"}),
		exactAsked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "exact_permission_requests_total",
			Help: "Exact timer permission requests.",
		}),
	}
	if st, ok := bus.(eventbus.Stats); ok {
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "eventbus_dropped_total",
			Help: "Bus events dropped because a subscriber was full.",
		}, func() float64 { return float64(st.Dropped()) })
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Observe updates counters from one bus event.
func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case engine.EventArmed:
		if a, ok := e.Data.(reminder.ArmedTimer); ok {
			m.armed.WithLabelValues(string(a.Precision)).Inc()
		}
	case engine.EventFired:
		m.fired.Inc()
	case engine.EventFailed:
		m.failed.Inc()
	case engine.EventCancelled:
		m.cancelled.Inc()
	case engine.EventPass:
		if rep, ok := e.Data.(reminder.Report); ok {
			m.ObservePass(rep, nil, e.Time)
		}
	case timer.EventExactRequested:
		m.exactAsked.Inc()
	}
}

// ObservePass records a pass outcome; failed passes are not published on the bus.
func (m *Metrics) ObservePass(rep reminder.Report, err error, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	switch {
	case err != nil:
		m.passes.WithLabelValues("error").Inc()
		return
	case rep.Disabled:
		m.passes.WithLabelValues("disabled").Inc()
	default:
		m.passes.WithLabelValues("ok").Inc()
	}
	m.lastPass.Set(float64(at.Unix()))
	m.scheduled.Set(float64(rep.Armed))
	if rep.Exact {
		m.exact.Set(1)
	} else {
		m.exact.Set(0)
	}
}

// ObserveDelivery counts one notification attempt.
func (m *Metrics) ObserveDelivery(err error) {
	if err != nil {
		m.delivered.WithLabelValues("error").Inc()
		return
	}
	m.delivered.WithLabelValues("ok").Inc()
}
