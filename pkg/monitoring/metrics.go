package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the acquisition worker.
type Metrics struct {
	CyclesTotal        prometheus.Counter
	CycleDuration      prometheus.Histogram
	SensorReadFailures *prometheus.CounterVec
	GatewayUp          *prometheus.GaugeVec
	ConditionChanges   *prometheus.CounterVec
	SnapshotRuns       prometheus.Counter
	DailyRollups       *prometheus.CounterVec
}

// NewMetrics creates and registers the worker metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oee_worker_poll_cycles_total",
			Help: "Total number of completed polling cycles",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oee_worker_poll_cycle_duration_seconds",
			Help:    "Polling cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		SensorReadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oee_worker_sensor_read_failures_total",
			Help: "Total number of sensor reads that exhausted their retries",
		}, []string{"gateway"}),
		GatewayUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oee_worker_gateway_up",
			Help: "Whether the last contact with a gateway succeeded (1) or failed (0)",
		}, []string{"gateway"}),
		ConditionChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oee_worker_condition_changes_total",
			Help: "Total number of condition transitions recorded",
		}, []string{"condition"}),
		SnapshotRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oee_worker_snapshot_runs_total",
			Help: "Total number of periodic snapshot runs",
		}),
		DailyRollups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oee_worker_daily_rollups_total",
			Help: "Total number of daily roll-up runs by outcome",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.SensorReadFailures,
		m.GatewayUp,
		m.ConditionChanges,
		m.SnapshotRuns,
		m.DailyRollups,
	)
	return m
}
