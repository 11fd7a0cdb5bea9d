package monitoring

import (
	"context"
	"time"

	"esign-orchestrator/core/models"

	"go.uber.org/zap"
)

// ActiveRun is what the monitor needs to know about an in-flight run
type ActiveRun struct {
	ID        string
	StagingID string
	StartedAt time.Time
	Progress  models.ProgressState
}

// RunSource lists runs that have not finished yet
type RunSource interface {
	ActiveRuns() []ActiveRun
}

// RunMonitor periodically reports runs that have been active for longer
// than a threshold. Polling has no timeout, so this is the only signal of
// a job stuck at the provider.
type RunMonitor struct {
	source    RunSource
	metrics   *Metrics
	logger    *zap.Logger
	interval  time.Duration
	threshold time.Duration
}

// NewRunMonitor creates a new run monitor
func NewRunMonitor(source RunSource, metrics *Metrics, logger *zap.Logger, interval, threshold time.Duration) *RunMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunMonitor{
		source:    source,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		threshold: threshold,
	}
}

// Start starts the monitoring loop
func (m *RunMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(time.Now())
		}
	}
}

// Check logs every run over the threshold and returns how many there are
func (m *RunMonitor) Check(now time.Time) int {
	stalled := 0
	for _, run := range m.source.ActiveRuns() {
		elapsed := now.Sub(run.StartedAt)
		if elapsed < m.threshold {
			continue
		}
		stalled++
		m.logger.Warn("monitor.run_stalled",
			zap.String("run_id", run.ID),
			zap.String("staging_id", run.StagingID),
			zap.Duration("elapsed", elapsed),
			zap.Int("step", run.Progress.Step),
			zap.Int("percentage", run.Progress.Percentage),
			zap.String("message", run.Progress.Message),
		)
	}
	m.metrics.SetStalled(stalled)
	return stalled
}
