// Package metrics holds the prometheus collectors of the monitoring core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "uptimecore"

var probeBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

type Metrics struct {
	Checks          *prometheus.CounterVec   // result: up|down|stale
	ProbeDuration   *prometheus.HistogramVec // result
	Confirmations   *prometheus.CounterVec   // outcome: scheduled|duplicate|confirmed|cleared
	IncidentsOpened prometheus.Counter
	IncidentsClosed prometheus.Counter
	Notifications   *prometheus.CounterVec // channel, result
	Aggregations    *prometheus.CounterVec // result: ok|failed
	StatusChanges   prometheus.Counter
	SSEDropped      prometheus.Counter
	HTTPRequests    *prometheus.CounterVec // route, status
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "checks", Name: "total",
			Help: "Evaluated probe outcomes by result.",
		}, []string{"result"}),
		ProbeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "checks", Name: "probe_duration_seconds",
			Help:    "Wall time of probes including timeouts.",
			Buckets: probeBuckets,
		}, []string{"result"}),
		Confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "confirmation", Name: "total",
			Help: "Delayed re-check lifecycle events.",
		}, []string{"outcome"}),
		IncidentsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "incidents", Name: "opened_total",
			Help: "Incidents opened.",
		}),
		IncidentsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "incidents", Name: "closed_total",
			Help: "Incidents closed by a recovery.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "sends_total",
			Help: "Channel send attempts by channel type and result.",
		}, []string{"channel", "result"}),
		Aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stats", Name: "daily_aggregations_total",
			Help: "Daily (monitor, date) aggregations by result.",
		}, []string{"result"}),
		StatusChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "status_changes_total",
			Help: "Status changes broadcast for public monitors.",
		}),
		SSEDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "dropped_total",
			Help: "Status changes a slow stream subscriber missed.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "api", Name: "http_requests_total",
			Help: "Processed HTTP requests.",
		}, []string{"route", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.Checks, m.ProbeDuration, m.Confirmations, m.IncidentsOpened, m.IncidentsClosed,
			m.Notifications, m.Aggregations, m.StatusChanges, m.SSEDropped, m.HTTPRequests)
	}
	return m
}

// Nop returns unregistered collectors for tests and tools.
func Nop() *Metrics { return New(nil) }
