package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking metrics
	BookingsTotal        prometheus.Counter
	BookingConflicts     prometheus.Counter
	Cancellations        *prometheus.CounterVec
	StatusTransitions    *prometheus.CounterVec
	TransitionViolations prometheus.Counter

	// Reconciliation metrics
	SweepRuns        prometheus.Counter
	SweepNoShows     prometheus.Counter
	SweepBlacklisted prometheus.Counter
	SweepErrors      prometheus.Counter
	SweepDuration    prometheus.Histogram

	// Challenge metrics
	ChallengesIssued   prometheus.Counter
	ChallengeFailures  prometheus.Counter
	ChallengeLockouts  prometheus.Counter
	NotificationErrors prometheus.Counter
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		BookingsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bookings_total",
			Help:      "Total number of successful bookings",
		}),
		BookingConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "booking_capacity_conflicts_total",
			Help:      "Bookings rejected because the slot could not cover the requested minutes",
		}),
		Cancellations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cancellations_total",
			Help:      "Total number of cancellations by origin",
		}, []string{"origin"}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions by target status",
		}, []string{"to"}),
		TransitionViolations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transition_violations_total",
			Help:      "Rejected illegal status transitions",
		}),
		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sweep_runs_total",
			Help:      "Total number of reconciliation sweeps",
		}),
		SweepNoShows: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sweep_no_shows_total",
			Help:      "Appointments converted to no-show by the sweep",
		}),
		SweepBlacklisted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sweep_blacklisted_total",
			Help:      "Patients escalated to the blacklist by the sweep",
		}),
		SweepErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sweep_row_errors_total",
			Help:      "Per-row failures captured during sweeps",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sweep_duration_seconds",
			Help:      "Time spent running reconciliation sweeps",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		ChallengesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "challenges_issued_total",
			Help:      "One-time codes issued",
		}),
		ChallengeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "challenge_failures_total",
			Help:      "Failed secret verifications",
		}),
		ChallengeLockouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "challenge_lockouts_total",
			Help:      "Verification lockouts triggered",
		}),
		NotificationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notification_errors_total",
			Help:      "Best-effort notification deliveries that failed",
		}),
	}
}
