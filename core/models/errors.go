package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for orchestration runs.
var (
	ErrRunInProgress      = errors.New("a run is already in progress for this document")
	ErrRunNotFound        = errors.New("run not found")
	ErrCancelled          = errors.New("run cancelled")
	ErrDeclined           = errors.New("production action declined by operator")
	ErrNoPendingGate      = errors.New("no confirmation pending for this run")
	// ErrEnvironmentChanged refuses a stamp aimed at a different provider
	// environment than the one holding the signed document.
	ErrEnvironmentChanged = errors.New("provider environment changed since the document was signed")
)

// ConfigurationError is returned before any network call when the run
// lacks what it needs to start (e.g. no staging id).
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// SubmissionError is returned when the provider rejects a job creation request.
type SubmissionError struct {
	Kind       JobKind
	StatusCode int
	Body       string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s submission failed: %d - %s", e.Kind, e.StatusCode, e.Body)
}

// MissingJobIDError is returned when job creation succeeded but none of the
// recognized identifier fields are present.
type MissingJobIDError struct {
	Kind JobKind
	Body string
}

func (e *MissingJobIDError) Error() string {
	return fmt.Sprintf("no job id returned from %s submission", e.Kind)
}

// PollingTransportError wraps network and HTTP failures while polling.
type PollingTransportError struct {
	JobID      string
	StatusCode int // 0 when the request never got a response
	Body       string
	Err        error
}

func (e *PollingTransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("status check for job %s failed: %d - %s", e.JobID, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("status check for job %s failed: %v", e.JobID, e.Err)
}

func (e *PollingTransportError) Unwrap() error {
	return e.Err
}

// JobFailedError is returned when the provider reports a failed job.
type JobFailedError struct {
	Kind    JobKind
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind) + " failed"
	}
	return fmt.Sprintf("job %s: %s", e.JobID, msg)
}

// InvalidResponseShapeError is returned when a status response matches
// none of the known provider schemas.
type InvalidResponseShapeError struct {
	Body string
	Err  error
}

func (e *InvalidResponseShapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid status response: %v", e.Err)
	}
	return "invalid status response"
}

func (e *InvalidResponseShapeError) Unwrap() error {
	return e.Err
}
