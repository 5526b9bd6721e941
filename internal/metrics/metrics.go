// Package metrics exposes Prometheus instruments for the booking core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliyamo/restaurant-table-reservation/internal/apperror"
)

const (
	OutcomeSuccess = "success"
	OutcomeDropped = "dropped"
	OutcomeFailed  = "failed"
)

// Metrics groups the counters recorded by services.  A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	bookings      *prometheus.CounterVec
	lockOps       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	locksPurged   prometheus.Counter
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reservation",
			Name:      "booking_attempts_total",
			Help:      "Booking attempts by outcome kind.",
		}, []string{"outcome"}),
		lockOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reservation",
			Name:      "table_lock_operations_total",
			Help:      "Table lock operations by operation and outcome kind.",
		}, []string{"op", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reservation",
			Name:      "notifications_total",
			Help:      "Room notifications by event and outcome.",
		}, []string{"event", "outcome"}),
		locksPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reservation",
			Name:      "table_locks_purged_total",
			Help:      "Expired table locks removed by the sweeper.",
		}),
	}
	for _, c := range []prometheus.Collector{m.bookings, m.lockOps, m.notifications, m.locksPurged} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Outcome classifies err as a label value.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return string(apperror.KindOf(err))
}

func (m *Metrics) ObserveBooking(err error) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) ObserveLock(op string, err error) {
	if m == nil {
		return
	}
	m.lockOps.WithLabelValues(op, Outcome(err)).Inc()
}

func (m *Metrics) ObserveNotification(event, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) AddPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.locksPurged.Add(float64(n))
}
