package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trackfleet/logistics-core/internal/dispatch"
	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/queue"
	"github.com/trackfleet/logistics-core/internal/realtime"
	"github.com/trackfleet/logistics-core/internal/scheduler"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	JobRuns          *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	QueueEnqueued    prometheus.Counter
	QueueDropped     prometheus.Counter
	QueueFallbacks   prometheus.Counter
	DispatchOutcomes *prometheus.CounterVec
	WSConnections    prometheus.Gauge
	StoreHealth      *prometheus.GaugeVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "job_runs_total",
			Help: "Total scheduled job runs by terminal outcome.",
		}, []string{"job", "outcome"}),

		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Wall-clock duration of completed job runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"job"}),

		QueueEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_queue_enqueued_total",
			Help: "Notifications accepted onto the Redis queue.",
		}),
		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_queue_dropped_total",
			Help: "Queue items terminally dropped (retries exhausted or malformed).",
		}),
		QueueFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_queue_fallbacks_total",
			Help: "Direct dispatches taken because the queue was unavailable.",
		}),

		DispatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_dispatch_outcomes_total",
			Help: "Per-channel dispatch outcomes.",
		}, []string{"channel", "state"}),

		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Currently connected websocket clients.",
		}),

		StoreHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "store_healthy",
			Help: "1 when the store's last probe succeeded, 0 otherwise.",
		}, []string{"store"}),
	}

	reg.MustRegister(
		m.JobRuns,
		m.JobDuration,
		m.QueueEnqueued,
		m.QueueDropped,
		m.QueueFallbacks,
		m.DispatchOutcomes,
		m.WSConnections,
		m.StoreHealth,
	)

	return m
}

// SchedulerHooks feeds run outcomes into the job counters.
func (m *Metrics) SchedulerHooks() scheduler.Hooks {
	return scheduler.Hooks{
		OnRun: func(run scheduler.JobRun) {
			m.JobRuns.WithLabelValues(run.JobName, string(run.Outcome)).Inc()
			if run.Outcome != scheduler.OutcomeSkipped {
				m.JobDuration.WithLabelValues(run.JobName).Observe(run.Duration.Seconds())
			}
		},
	}
}

// QueueHooks counts enqueues, terminal drops, and fallback dispatches.
func (m *Metrics) QueueHooks() queue.Hooks {
	return queue.Hooks{
		OnEnqueued: func() { m.QueueEnqueued.Inc() },
		OnDropped:  func() { m.QueueDropped.Inc() },
		OnFallback: func() { m.QueueFallbacks.Inc() },
	}
}

// DispatchHooks counts per-channel outcomes.
func (m *Metrics) DispatchHooks() dispatch.Hooks {
	return dispatch.Hooks{
		OnOutcome: func(ch domain.Channel, state domain.DeliveryState) {
			m.DispatchOutcomes.WithLabelValues(string(ch), string(state)).Inc()
		},
	}
}

// HubHooks tracks the live connection gauge.
func (m *Metrics) HubHooks() realtime.Hooks {
	return realtime.Hooks{
		OnConnect:    func() { m.WSConnections.Inc() },
		OnDisconnect: func() { m.WSConnections.Dec() },
	}
}

// ObserveHealth mirrors a health snapshot into the per-store gauge.
func (m *Metrics) ObserveHealth(snap *domain.HealthSnapshot) {
	for name, state := range snap.Stores {
		v := 0.0
		if state == domain.HealthHealthy {
			v = 1.0
		}
		m.StoreHealth.WithLabelValues(name).Set(v)
	}
}
