package monitoring

import (
	"time"

	"esign-orchestrator/core/models"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes orchestration metrics for Prometheus/Grafana.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	activeRuns   prometheus.Gauge
	submissions  *prometheus.CounterVec
	pollTicks    *prometheus.CounterVec
	runDuration  prometheus.Histogram
	stalledRuns  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "esign_runs_started_total",
			Help: "Orchestration runs started",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "esign_runs_finished_total",
			Help: "Orchestration runs finished, by outcome",
		}, []string{"outcome"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "esign_runs_active",
			Help: "Orchestration runs currently in progress",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "esign_job_submissions_total",
			Help: "Provider job submissions, by kind, environment and result",
		}, []string{"kind", "target", "result"}),
		pollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "esign_poll_ticks_total",
			Help: "Status polls issued, by job kind and observed status",
		}, []string{"kind", "status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "esign_run_duration_seconds",
			Help:    "Wall-clock duration of orchestration runs",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
		stalledRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "esign_runs_stalled",
			Help: "Active runs that exceeded the stall warning threshold",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.runsStarted,
			m.runsFinished,
			m.activeRuns,
			m.submissions,
			m.pollTicks,
			m.runDuration,
			m.stalledRuns,
		)
	}
	return m
}

// RunStarted records a run start
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsStarted.Inc()
	m.activeRuns.Inc()
}

// RunFinished records a run end and its duration
func (m *Metrics) RunFinished(kind models.OutcomeKind, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runsFinished.WithLabelValues(string(kind)).Inc()
	m.activeRuns.Dec()
	m.runDuration.Observe(elapsed.Seconds())
}

// Submission records a job submission attempt. Production submissions are
// billable, so the target label doubles as the cost view.
func (m *Metrics) Submission(kind models.JobKind, target models.Target, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.submissions.WithLabelValues(string(kind), string(target), result).Inc()
}

// PollTick records one status poll
func (m *Metrics) PollTick(kind models.JobKind, status models.JobStatus) {
	if m == nil {
		return
	}
	m.pollTicks.WithLabelValues(string(kind), string(status)).Inc()
}

// SetStalled sets the number of runs currently over the stall threshold
func (m *Metrics) SetStalled(n int) {
	if m == nil {
		return
	}
	m.stalledRuns.Set(float64(n))
}
