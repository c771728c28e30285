package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the booking engine's collectors.  A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// HTTP requests by method, route and status code
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP latency by method and route
	HTTPRequestDuration *prometheus.HistogramVec

	// reservation attempts by kind (seat, event) and outcome
	ReservationsTotal *prometheus.CounterVec

	// time from Begin to Commit or Rollback
	ReservationDuration *prometheus.HistogramVec

	// aborted reservations by the last state reached
	ReservationAborts *prometheus.CounterVec

	// post-commit side effects that failed (cache, publish)
	SideEffectFailures *prometheus.CounterVec
}

// New registers the collectors with the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ReservationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservations_total",
				Help: "Total number of reservation attempts",
			},
			[]string{"kind", "outcome"},
		),
		ReservationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reservation_duration_seconds",
				Help:    "Time spent inside the reservation transaction",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"kind"},
		),
		ReservationAborts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_aborts_total",
				Help: "Aborted reservations by the last state reached",
			},
			[]string{"kind", "state"},
		),
		SideEffectFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_side_effect_failures_total",
				Help: "Post-commit side effects that failed",
			},
			[]string{"effect"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationsTotal,
		m.ReservationDuration,
		m.ReservationAborts,
		m.SideEffectFailures,
	)
	return m
}

// ObserveReservation records one finished reservation attempt.
func (m *Metrics) ObserveReservation(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ReservationsTotal.WithLabelValues(kind, outcome).Inc()
	m.ReservationDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveAbort records the state at which a reservation was aborted.
func (m *Metrics) ObserveAbort(kind, state string) {
	if m == nil {
		return
	}
	m.ReservationAborts.WithLabelValues(kind, state).Inc()
}

// ObserveSideEffectFailure counts a failed post-commit effect.
func (m *Metrics) ObserveSideEffectFailure(effect string) {
	if m == nil {
		return
	}
	m.SideEffectFailures.WithLabelValues(effect).Inc()
}
