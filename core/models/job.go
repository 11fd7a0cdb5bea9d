package models

import (
	"strings"
	"time"
)

// Job represents a single provider-side unit of work (a sign or a stamp request)
// tracked by the opaque identifier the provider returned on submission.
type Job struct {
	ID          string
	Kind        JobKind
	DocumentRef string // staging/correlation id of the source document
	Status      JobStatus
	RawStatus   string // status string exactly as reported by the provider

	// ResultPayload and ErrorMessage are empty until the provider reports them.
	ResultPayload string
	ErrorMessage  string
	// StructuredRef holds a document reference the provider returned as a
	// dedicated field (signed_url, document_url, stamped_file), if any.
	StructuredRef string

	Polls       int
	SubmittedAt time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// JobKind represents the kind of provider job
type JobKind string

const (
	JobKindSign  JobKind = "sign"
	JobKindStamp JobKind = "stamp"
)

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ParseJobStatus maps a provider status string onto the job lifecycle.
// "completed"/"success" and "failed"/"error" are terminal; everything else
// is treated as still processing.
func ParseJobStatus(raw string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "success":
		return JobStatusCompleted
	case "failed", "error":
		return JobStatusFailed
	case "submitted":
		return JobStatusSubmitted
	default:
		return JobStatusProcessing
	}
}

// NewJob creates a job record for a freshly submitted provider job.
func NewJob(id string, kind JobKind, documentRef string) *Job {
	now := time.Now()
	return &Job{
		ID:          id,
		Kind:        kind,
		DocumentRef: documentRef,
		Status:      JobStatusSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
}

// Clone returns a copy that is safe to hand out while the original keeps
// being mutated by the polling loop.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
