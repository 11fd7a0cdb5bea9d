package orchestrator

import (
	"context"
	"sync"
	"time"

	"esign-orchestrator/core/models"
	"esign-orchestrator/core/progress"
)

// Run is one sign (and optionally stamp) orchestration. It owns its own
// job slots, so concurrent runs for different documents never share state.
type Run struct {
	ID        string
	Request   models.RunRequest
	StartedAt time.Time

	progress *progress.Reporter
	cancel   context.CancelFunc

	cancelOnce sync.Once
	done       chan struct{}

	mu        sync.RWMutex
	env       models.EnvironmentConfig
	signJob   *models.Job
	stampJob  *models.Job
	outcome   *models.Outcome
	cancelled bool
}

// RunSnapshot is a point-in-time copy of a run
type RunSnapshot struct {
	ID          string
	StagingID   string
	StartedAt   time.Time
	Environment models.EnvironmentConfig
	Progress    models.ProgressState
	SignJob     *models.Job
	StampJob    *models.Job
	Outcome     *models.Outcome
}

// Finished reports whether the run reached an outcome
func (s RunSnapshot) Finished() bool {
	return s.Outcome != nil
}

func newRun(id string, req models.RunRequest, sinks []progress.Sink) *Run {
	return &Run{
		ID:        id,
		Request:   req,
		StartedAt: time.Now(),
		progress:  progress.New(sinks...),
		done:      make(chan struct{}),
	}
}

// Cancel stops the run: no further provider calls are made, any pending
// confirmation is abandoned and progress resets to 0. Calling Cancel more
// than once, or after the run finished, has no effect.
func (r *Run) Cancel() {
	select {
	case <-r.done:
		return
	default:
	}
	r.cancelOnce.Do(func() {
		r.mu.Lock()
		r.cancelled = true
		r.mu.Unlock()
		if r.cancel != nil {
			r.cancel()
		}
		r.progress.Cancel()
	})
}

// Cancelled reports whether Cancel was called before the run finished
func (r *Run) Cancelled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cancelled
}

// Done is closed when the run has an outcome
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or ctx is done
func (r *Run) Wait(ctx context.Context) (models.Outcome, error) {
	select {
	case <-ctx.Done():
		return models.Outcome{}, ctx.Err()
	case <-r.done:
		r.mu.RLock()
		defer r.mu.RUnlock()
		return *r.outcome, nil
	}
}

// Progress returns the run's progress reporter
func (r *Run) Progress() *progress.Reporter {
	return r.progress
}

// Snapshot copies the run's current state
func (r *Run) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := RunSnapshot{
		ID:          r.ID,
		StagingID:   r.Request.StagingID,
		StartedAt:   r.StartedAt,
		Environment: r.env,
		Progress:    r.progress.Snapshot(),
		SignJob:     r.signJob.Clone(),
		StampJob:    r.stampJob.Clone(),
	}
	if r.outcome != nil {
		o := *r.outcome
		o.SignJob = o.SignJob.Clone()
		o.StampJob = o.StampJob.Clone()
		s.Outcome = &o
	}
	return s
}

func (r *Run) setEnv(env models.EnvironmentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.env = env
}

func (r *Run) environment() models.EnvironmentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.env
}

func (r *Run) setJob(job *models.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch job.Kind {
	case models.JobKindSign:
		r.signJob = job.Clone()
	case models.JobKindStamp:
		r.stampJob = job.Clone()
	}
}

func (r *Run) finish(o models.Outcome) {
	r.mu.Lock()
	r.outcome = &o
	r.mu.Unlock()
	close(r.done)
}
