package models

import (
	"strings"
	"time"
)

// DefaultDocumentType is the document category tag used when the caller
// does not supply one.
const DefaultDocumentType = "ARInvoices"

// RunRequest describes one sign (and optionally stamp) orchestration
type RunRequest struct {
	StagingID     string // correlation id of the originating business document
	DocumentType  string // e.g. "ARInvoices"
	DocumentName  string
	Document      []byte // raw PDF bytes
	SignerName    string
	SignerEmail   string
	OperatorEmail string // identity sent with stamp calls
	AlsoStamp     bool
	QRCode        string // machine-readable code embedded in the source document, if any
}

// HasQRCode reports whether the source document embeds a machine-readable
// code. Empty strings and the literal "null" do not count.
func (r RunRequest) HasQRCode() bool {
	code := strings.TrimSpace(r.QRCode)
	return code != "" && !strings.EqualFold(code, "null")
}

// OutcomeKind represents how a run finished
type OutcomeKind string

const (
	OutcomeSigned           OutcomeKind = "signed"
	OutcomeSignedAndStamped OutcomeKind = "signed_and_stamped"
	OutcomePartial          OutcomeKind = "partial" // signed, stamp failed
	OutcomeFailed           OutcomeKind = "failed"
	OutcomeCancelled        OutcomeKind = "cancelled"
	OutcomeDeclined         OutcomeKind = "declined" // production gate refused before any submission
)

// Outcome is the terminal result of a run
type Outcome struct {
	Kind       OutcomeKind
	SignJob    *Job
	StampJob   *Job
	SignedRef  string // empty when the provider gave no retrievable reference
	StampedRef string
	// StampSkipped is set when the operator declined the stamp confirmation.
	StampSkipped bool
	Err          error // fatal error for OutcomeFailed
	StampErr     error // stamp failure for OutcomePartial
	FinishedAt   time.Time
}

// SignSucceeded reports whether the run produced a signed document.
func (o Outcome) SignSucceeded() bool {
	return o.SignJob != nil && o.SignJob.Status == JobStatusCompleted
}
