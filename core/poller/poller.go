// Package poller drives a submitted provider job to a terminal status.
package poller

import (
	"context"
	"time"

	"esign-orchestrator/core/models"
	"esign-orchestrator/core/monitoring"
	"esign-orchestrator/core/provider"

	"go.uber.org/zap"
)

const (
	// SignInterval is the delay between sign status polls
	SignInterval = 500 * time.Millisecond
	// StampInterval is the delay between stamp status polls
	StampInterval = 3 * time.Second
)

// Policy controls how one job kind is polled
type Policy struct {
	Name        string
	Interval    time.Duration
	UseFallback bool // try the transaction status endpoint when the job endpoint fails
	// IdentifyOperator sends the operator identity with every status call.
	IdentifyOperator bool
	OperatorEmail    string
}

// SignPolicy polls sign jobs quickly and falls back to the transaction endpoint
func SignPolicy() Policy {
	return Policy{Name: "sign", Interval: SignInterval, UseFallback: true}
}

// StampPolicy polls stamp jobs slowly on the job endpoint only and
// identifies the operator, as stamp submissions do
func StampPolicy() Policy {
	return Policy{Name: "stamp", Interval: StampInterval, IdentifyOperator: true}
}

func (p Policy) statusOptions() provider.StatusOptions {
	return provider.StatusOptions{
		Fallback:         p.UseFallback,
		IdentifyOperator: p.IdentifyOperator,
		OperatorEmail:    p.OperatorEmail,
	}
}

// StatusFetcher reads a job status from the provider
type StatusFetcher interface {
	FetchStatus(ctx context.Context, jobID string, opts provider.StatusOptions) (provider.Status, error)
}

// Observer is told about every status the poller applies
type Observer func(job *models.Job, status provider.Status)

// Engine polls jobs
type Engine struct {
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewEngine creates a polling engine. metrics may be nil.
func NewEngine(metrics *monitoring.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{metrics: metrics, logger: logger}
}

// Poll fetches job's status until it is terminal. job is updated in place
// after every fetch. There are no retries: the first fetch error ends
// polling and is returned as is. A failed job yields JobFailedError.
// The first fetch is immediate; after every non-terminal status the next
// fetch waits a full policy.Interval. Cancelling ctx stops polling and
// returns ctx.Err().
func (e *Engine) Poll(ctx context.Context, fetcher StatusFetcher, job *models.Job, policy Policy, observe Observer) (provider.Status, error) {
	opts := policy.statusOptions()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return provider.Status{}, ctx.Err()
		case <-timer.C:
		}

		st, err := fetcher.FetchStatus(ctx, job.ID, opts)
		if err != nil {
			if ctx.Err() != nil {
				return provider.Status{}, ctx.Err()
			}
			e.logger.Warn("poller.fetch_failed",
				zap.String("policy", policy.Name),
				zap.String("job_id", job.ID),
				zap.Int("polls", job.Polls),
				zap.Error(err),
			)
			return provider.Status{}, err
		}

		apply(job, st)
		e.metrics.PollTick(job.Kind, job.Status)
		e.logger.Debug("poller.status",
			zap.String("policy", policy.Name),
			zap.String("job_id", job.ID),
			zap.String("status", job.RawStatus),
			zap.Int("polls", job.Polls),
		)
		if observe != nil {
			observe(job.Clone(), st)
		}

		switch job.Status {
		case models.JobStatusCompleted:
			return st, nil
		case models.JobStatusFailed:
			return st, &models.JobFailedError{Kind: job.Kind, JobID: job.ID, Message: st.FailureMessage()}
		}
		timer.Reset(policy.Interval)
	}
}

func apply(job *models.Job, st provider.Status) {
	now := time.Now()
	job.Polls++
	job.RawStatus = st.Status
	job.Status = st.JobStatus()
	job.UpdatedAt = now
	if st.Result != "" {
		job.ResultPayload = st.Result
	}
	if msg := st.FailureMessage(); msg != "" && job.Status == models.JobStatusFailed {
		job.ErrorMessage = msg
	}
	if st.StructuredRef != "" {
		job.StructuredRef = st.StructuredRef
	}
	if job.Status.IsTerminal() && job.CompletedAt == nil {
		job.CompletedAt = &now
	}
}
