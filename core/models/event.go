package models

import "time"

// RunEvent represents a lifecycle transition recorded for an orchestration run
type RunEvent struct {
	ID       string
	RunID    string
	At       time.Time
	Kind     RunEventKind
	JobKind  JobKind   // empty for run-level events
	JobID    string    // empty until a job id exists
	ToStatus JobStatus // empty for non-status events
	Reason   string
	Meta     map[string]interface{}
}

// RunEventKind represents the type of run event
type RunEventKind string

const (
	EventRunStarted     RunEventKind = "run_started"
	EventGateDecision   RunEventKind = "gate_decision"
	EventJobSubmitted   RunEventKind = "job_submitted"
	EventJobStatus      RunEventKind = "job_status"
	EventJobFailed      RunEventKind = "job_failed"
	EventReferenceFound RunEventKind = "reference_resolved"
	EventRunFinished    RunEventKind = "run_finished"
	EventRunCancelled   RunEventKind = "run_cancelled"
)
