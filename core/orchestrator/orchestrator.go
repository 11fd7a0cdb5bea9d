// Package orchestrator chains the sign and stamp stages of a run: gate,
// submit, poll and resolve the retrievable reference for each.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"esign-orchestrator/core/gate"
	"esign-orchestrator/core/models"
	"esign-orchestrator/core/monitoring"
	"esign-orchestrator/core/poller"
	"esign-orchestrator/core/progress"
	"esign-orchestrator/core/provider"
	"esign-orchestrator/core/results"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action labels shown in production confirmations
const (
	SignActionLabel  = "E-Signing"
	StampActionLabel = "E-Stamping"
)

// JobClient is the provider surface a run needs
type JobClient interface {
	poller.StatusFetcher
	SubmitSign(ctx context.Context, req provider.SignRequest) (string, error)
	SubmitStamp(ctx context.Context, req provider.StampRequest) (string, error)
	SignedDownloadURL(ref string) string
	StampedDownloadURL(documentType, ref string) string
}

// ClientFactory binds a provider client to the environment a gate approved
type ClientFactory func(env models.EnvironmentConfig) JobClient

// EventRecorder stores run lifecycle events
type EventRecorder interface {
	CreateEvent(ctx context.Context, event models.RunEvent) error
	GetRunEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error)
	DeleteRunEvents(ctx context.Context, runID string) error
}

// Config holds orchestration settings
type Config struct {
	SignPolicy   poller.Policy
	StampPolicy  poller.Policy
	DocumentType string
	// RetainRuns is how many finished runs stay queryable
	RetainRuns int
}

// DefaultConfig returns the production polling policies
func DefaultConfig() Config {
	return Config{
		SignPolicy:   poller.SignPolicy(),
		StampPolicy:  poller.StampPolicy(),
		DocumentType: models.DefaultDocumentType,
		RetainRuns:   100,
	}
}

// Orchestrator starts and tracks runs
type Orchestrator struct {
	gate    *gate.Gate
	clients ClientFactory
	engine  *poller.Engine
	events  EventRecorder
	costs   *monitoring.CostTracker
	metrics *monitoring.Metrics
	logger  *zap.Logger
	cfg     Config

	resolveSigned  func(results.Payload) string
	resolveStamped func(results.Payload) string

	mu       sync.Mutex
	runs     map[string]*Run
	active   map[string]*Run // by staging id
	finished []string
}

// New creates an orchestrator. events, costs and metrics may be nil.
func New(
	g *gate.Gate,
	clients ClientFactory,
	engine *poller.Engine,
	events EventRecorder,
	costs *monitoring.CostTracker,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
	cfg Config,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = poller.NewEngine(metrics, logger)
	}
	if cfg.DocumentType == "" {
		cfg.DocumentType = models.DefaultDocumentType
	}
	if cfg.RetainRuns <= 0 {
		cfg.RetainRuns = DefaultConfig().RetainRuns
	}
	return &Orchestrator{
		gate:           g,
		clients:        clients,
		engine:         engine,
		events:         events,
		costs:          costs,
		metrics:        metrics,
		logger:         logger,
		cfg:            cfg,
		resolveSigned:  results.SignedReference,
		resolveStamped: results.StampedReference,
		runs:           make(map[string]*Run),
		active:         make(map[string]*Run),
	}
}

// Start validates req and launches a run in the background. The run
// outlives ctx; use Run.Cancel to stop it.
func (o *Orchestrator) Start(ctx context.Context, req models.RunRequest, sinks ...progress.Sink) (*Run, error) {
	req.StagingID = strings.TrimSpace(req.StagingID)
	if req.StagingID == "" {
		return nil, &models.ConfigurationError{Reason: "staging id is required"}
	}
	if len(req.Document) == 0 {
		return nil, &models.ConfigurationError{Reason: "document is empty"}
	}
	if req.DocumentType == "" {
		req.DocumentType = o.cfg.DocumentType
	}

	o.mu.Lock()
	if _, busy := o.active[req.StagingID]; busy {
		o.mu.Unlock()
		return nil, models.ErrRunInProgress
	}
	run := newRun(uuid.NewString(), req, sinks)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run.cancel = cancel
	o.runs[run.ID] = run
	o.active[req.StagingID] = run
	o.mu.Unlock()

	o.metrics.RunStarted()
	o.logger.Info("orchestrator.run.started",
		zap.String("run_id", run.ID),
		zap.String("staging_id", req.StagingID),
		zap.Bool("also_stamp", req.AlsoStamp),
	)

	go o.execute(runCtx, run)
	return run, nil
}

// Get returns a run by id
func (o *Orchestrator) Get(runID string) (*Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.runs[runID]
	if !ok {
		return nil, models.ErrRunNotFound
	}
	return run, nil
}

// Cancel cancels a run by id
func (o *Orchestrator) Cancel(runID string) error {
	run, err := o.Get(runID)
	if err != nil {
		return err
	}
	run.Cancel()
	return nil
}

// Events returns a run's recorded events, newest first
func (o *Orchestrator) Events(ctx context.Context, runID string, limit int) ([]models.RunEvent, error) {
	if _, err := o.Get(runID); err != nil {
		return nil, err
	}
	if o.events == nil {
		return []models.RunEvent{}, nil
	}
	return o.events.GetRunEvents(ctx, runID, limit)
}

// BillableSubmissions returns a run's production submission count by kind
func (o *Orchestrator) BillableSubmissions(runID string) map[string]int {
	return o.costs.GetRunCost(runID).Billable
}

// ActiveRuns lists runs without an outcome, oldest first
func (o *Orchestrator) ActiveRuns() []monitoring.ActiveRun {
	o.mu.Lock()
	runs := make([]*Run, 0, len(o.active))
	for _, r := range o.active {
		runs = append(runs, r)
	}
	o.mu.Unlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })
	out := make([]monitoring.ActiveRun, 0, len(runs))
	for _, r := range runs {
		out = append(out, monitoring.ActiveRun{
			ID:        r.ID,
			StagingID: r.Request.StagingID,
			StartedAt: r.StartedAt,
			Progress:  r.progress.Snapshot(),
		})
	}
	return out
}

// Shutdown cancels every active run and waits for them to finish
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	runs := make([]*Run, 0, len(o.active))
	for _, r := range o.active {
		runs = append(runs, r)
	}
	o.mu.Unlock()

	for _, r := range runs {
		r.Cancel()
	}
	for _, r := range runs {
		if _, err := r.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, run *Run) {
	o.complete(run, o.chain(ctx, run))
}

// chain runs the sign stage and, when requested, the stamp stage.
func (o *Orchestrator) chain(ctx context.Context, run *Run) models.Outcome {
	p := run.progress
	req := run.Request

	p.Begin("Validating document")
	o.record(run, models.RunEvent{Kind: models.EventRunStarted, Meta: map[string]interface{}{
		"staging_id":    req.StagingID,
		"document_type": req.DocumentType,
		"also_stamp":    req.AlsoStamp,
	}})
	p.Step(models.StepValidate, 15, "Document validated")

	decision, err := o.gate.Check(ctx, run.ID, SignActionLabel)
	if err != nil {
		return o.abort(ctx, run, nil, err)
	}
	o.recordGate(run, models.JobKindSign, decision)
	if !decision.Approved {
		return models.Outcome{Kind: models.OutcomeDeclined, Err: models.ErrDeclined}
	}
	run.setEnv(decision.Env)
	client := o.clients(decision.Env)

	p.Step(models.StepPrepare, 35, "Preparing document for e-signature")
	signReq := provider.NewSignRequest(req, time.Now())

	p.Step(models.StepSubmit, 55, "Submitting document for e-signature")
	jobID, err := client.SubmitSign(ctx, signReq)
	o.metrics.Submission(models.JobKindSign, decision.Env.Target, err)
	if err != nil {
		return o.abort(ctx, run, nil, err)
	}
	o.costs.TrackSubmission(run.ID, req.StagingID, models.JobKindSign, decision.Env.Target)

	signJob := models.NewJob(jobID, models.JobKindSign, req.StagingID)
	run.setJob(signJob)
	o.record(run, models.RunEvent{
		Kind:     models.EventJobSubmitted,
		JobKind:  models.JobKindSign,
		JobID:    jobID,
		ToStatus: models.JobStatusSubmitted,
		Meta:     map[string]interface{}{"specific_document_ref": signReq.SpecificDocumentRef},
	})

	signDone, signCeiling := 85, 84
	if req.AlsoStamp {
		signDone, signCeiling = 75, 74
	}
	p.Advance(70, "Waiting for e-signature")
	stopAnim := p.Animate(signCeiling)
	st, err := o.engine.Poll(ctx, client, signJob, o.cfg.SignPolicy, o.observer(run))
	stopAnim()
	run.setJob(signJob)
	if err != nil {
		return o.abort(ctx, run, signJob, err)
	}

	signedRef := client.SignedDownloadURL(o.resolveSigned(st.Payload()))
	o.recordReference(run, signJob, signedRef)
	p.Advance(signDone, "E-signature completed")

	outcome := models.Outcome{Kind: models.OutcomeSigned, SignJob: signJob, SignedRef: signedRef}
	if !req.AlsoStamp {
		return outcome
	}
	return o.stamp(ctx, run, outcome)
}

// stamp runs the stamp stage. Every failure here keeps the signed result.
func (o *Orchestrator) stamp(ctx context.Context, run *Run, outcome models.Outcome) models.Outcome {
	p := run.progress
	req := run.Request

	partial := func(err error) models.Outcome {
		if ctx.Err() != nil {
			outcome.Kind = models.OutcomeCancelled
			outcome.Err = models.ErrCancelled
			return outcome
		}
		o.logger.Warn("orchestrator.stamp.failed",
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
		o.record(run, models.RunEvent{Kind: models.EventJobFailed, JobKind: models.JobKindStamp, Reason: err.Error()})
		outcome.Kind = models.OutcomePartial
		outcome.StampErr = err
		return outcome
	}

	decision, err := o.gate.Check(ctx, run.ID, StampActionLabel)
	if err != nil {
		return partial(err)
	}
	o.recordGate(run, models.JobKindStamp, decision)
	if !decision.Approved {
		outcome.StampSkipped = true
		return outcome
	}
	if signedEnv := run.environment(); decision.Env != signedEnv {
		o.logger.Warn("orchestrator.stamp.environment_changed",
			zap.String("run_id", run.ID),
			zap.String("signed_base_url", signedEnv.BaseURL),
			zap.String("stamp_base_url", decision.Env.BaseURL),
		)
		return partial(fmt.Errorf("%w: signed on %s, now %s",
			models.ErrEnvironmentChanged, signedEnv.BaseURL, decision.Env.BaseURL))
	}
	client := o.clients(decision.Env)

	p.Advance(80, "Submitting document for e-stamp")
	jobID, err := client.SubmitStamp(ctx, provider.NewStampRequest(req))
	o.metrics.Submission(models.JobKindStamp, decision.Env.Target, err)
	if err != nil {
		return partial(err)
	}
	o.costs.TrackSubmission(run.ID, req.StagingID, models.JobKindStamp, decision.Env.Target)

	stampJob := models.NewJob(jobID, models.JobKindStamp, req.StagingID)
	outcome.StampJob = stampJob
	run.setJob(stampJob)
	o.record(run, models.RunEvent{
		Kind:     models.EventJobSubmitted,
		JobKind:  models.JobKindStamp,
		JobID:    jobID,
		ToStatus: models.JobStatusSubmitted,
	})

	p.Advance(85, "Waiting for e-stamp")
	stopAnim := p.Animate(94)
	stampPolicy := o.cfg.StampPolicy
	stampPolicy.OperatorEmail = req.OperatorEmail
	st, err := o.engine.Poll(ctx, client, stampJob, stampPolicy, o.observer(run))
	stopAnim()
	run.setJob(stampJob)
	if err != nil {
		return partial(err)
	}

	stampedRef := client.StampedDownloadURL(req.DocumentType, o.resolveStamped(st.Payload()))
	o.recordReference(run, stampJob, stampedRef)
	p.Advance(95, "E-stamp completed")

	outcome.Kind = models.OutcomeSignedAndStamped
	outcome.StampedRef = stampedRef
	return outcome
}

func (o *Orchestrator) abort(ctx context.Context, run *Run, job *models.Job, err error) models.Outcome {
	if ctx.Err() != nil {
		return models.Outcome{Kind: models.OutcomeCancelled, SignJob: job, Err: models.ErrCancelled}
	}
	o.logger.Error("orchestrator.sign.failed",
		zap.String("run_id", run.ID),
		zap.Error(err),
	)
	ev := models.RunEvent{Kind: models.EventJobFailed, JobKind: models.JobKindSign, Reason: err.Error()}
	if job != nil {
		ev.JobID = job.ID
		ev.ToStatus = job.Status
	}
	o.record(run, ev)
	return models.Outcome{Kind: models.OutcomeFailed, SignJob: job, Err: err}
}

// observer records status transitions and mirrors the job onto the run.
func (o *Orchestrator) observer(run *Run) poller.Observer {
	var last models.JobStatus
	return func(job *models.Job, st provider.Status) {
		run.setJob(job)
		if job.Status == last {
			return
		}
		last = job.Status
		o.record(run, models.RunEvent{
			Kind:     models.EventJobStatus,
			JobKind:  job.Kind,
			JobID:    job.ID,
			ToStatus: job.Status,
			Reason:   st.Status,
			Meta:     map[string]interface{}{"polls": job.Polls, "shape": string(st.Shape)},
		})
	}
}

func (o *Orchestrator) complete(run *Run, outcome models.Outcome) {
	outcome.FinishedAt = time.Now()
	p := run.progress

	switch outcome.Kind {
	case models.OutcomeSigned:
		p.Complete("E-signature completed successfully")
	case models.OutcomeSignedAndStamped:
		p.Complete("E-signature and e-stamp completed successfully")
	case models.OutcomePartial:
		p.Complete("E-signature completed successfully, but e-stamp failed")
	case models.OutcomeFailed:
		p.Fail("E-signature failed: " + outcome.Err.Error())
	default:
		p.Cancel()
	}

	ev := models.RunEvent{Kind: models.EventRunFinished, Reason: string(outcome.Kind)}
	if outcome.Kind == models.OutcomeCancelled {
		ev.Kind = models.EventRunCancelled
	}
	o.record(run, ev)

	o.mu.Lock()
	if o.active[run.Request.StagingID] == run {
		delete(o.active, run.Request.StagingID)
	}
	o.finished = append(o.finished, run.ID)
	var evicted []string
	if extra := len(o.finished) - o.cfg.RetainRuns; extra > 0 {
		evicted = append(evicted, o.finished[:extra]...)
		o.finished = o.finished[extra:]
		for _, id := range evicted {
			delete(o.runs, id)
		}
	}
	o.mu.Unlock()

	for _, id := range evicted {
		o.costs.Forget(id)
		if o.events != nil {
			_ = o.events.DeleteRunEvents(context.Background(), id)
		}
	}

	run.finish(outcome)
	o.metrics.RunFinished(outcome.Kind, outcome.FinishedAt.Sub(run.StartedAt))
	o.logger.Info("orchestrator.run.finished",
		zap.String("run_id", run.ID),
		zap.String("staging_id", run.Request.StagingID),
		zap.String("outcome", string(outcome.Kind)),
		zap.String("signed_ref", outcome.SignedRef),
		zap.String("stamped_ref", outcome.StampedRef),
	)
}

func (o *Orchestrator) record(run *Run, ev models.RunEvent) {
	if o.events == nil {
		return
	}
	ev.RunID = run.ID
	if err := o.events.CreateEvent(context.Background(), ev); err != nil {
		o.logger.Warn("orchestrator.event.record_failed",
			zap.String("run_id", run.ID),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) recordGate(run *Run, kind models.JobKind, d gate.Decision) {
	o.record(run, models.RunEvent{
		Kind:    models.EventGateDecision,
		JobKind: kind,
		Meta: map[string]interface{}{
			"target":   string(d.Env.Target),
			"base_url": d.Env.BaseURL,
			"approved": d.Approved,
		},
	})
}

func (o *Orchestrator) recordReference(run *Run, job *models.Job, ref string) {
	ev := models.RunEvent{
		Kind:    models.EventReferenceFound,
		JobKind: job.Kind,
		JobID:   job.ID,
		Meta:    map[string]interface{}{"reference": ref},
	}
	if ref == "" {
		ev.Reason = "no retrievable reference in result"
	}
	o.record(run, ev)
}
