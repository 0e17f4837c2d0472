package sandbox

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the sandbox manager.
type Metrics struct {
	Created           prometheus.Counter
	Destroyed         prometheus.Counter
	Expired           prometheus.Counter
	ProvisionFailures prometheus.Counter
	Active            prometheus.Gauge
	Executions        *prometheus.CounterVec
	ExecDuration      prometheus.Histogram
	SweepDuration     prometheus.Histogram
}

// NewMetrics creates and registers sandbox metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "repobox",
			Subsystem: "sandbox",
			Name:      "created_total",
			Help:      "Total sandboxes provisioned successfully.",
		}),
		Destroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "repobox",
			Subsystem: "sandbox",
			Name:      "destroyed_total",
			Help:      "Total sandboxes destroyed on request or shutdown.",
		}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "repobox",
			Subsystem: "sandbox",
			Name:      "expired_total",
			Help:      "Total sandboxes released by the expiry sweep.",
		}),
		ProvisionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "repobox",
			Subsystem: "sandbox",
			Name:      "provision_failures_total",
			Help:      "Total sandbox provisioning attempts that failed.",
		}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "repobox",
			Subsystem: "sandbox",
			Name:      "active",
			Help:      "Sandboxes currently in the running state.",
		}),
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repobox",
			Subsystem: "sandbox",
			Name:      "executions_total",
			Help:      "Total commands executed, labeled by exit code.",
		}, []string{"exit_code"}),
		ExecDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "repobox",
			Subsystem: "sandbox",
			Name:      "exec_duration_seconds",
			Help:      "Wall-clock duration of command executions.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "repobox",
			Subsystem: "sandbox",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of each expiry sweep.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}

	reg.MustRegister(
		m.Created,
		m.Destroyed,
		m.Expired,
		m.ProvisionFailures,
		m.Active,
		m.Executions,
		m.ExecDuration,
		m.SweepDuration,
	)

	return m
}
