package models

// ProgressState is the bounded progress model handed to presentation sinks
type ProgressState struct {
	Percentage int           `json:"percentage"` // 0..100
	Step       int           `json:"step"`       // 1..4
	Message    string        `json:"message"`
	Phase      ProgressPhase `json:"phase"`
}

// ProgressPhase distinguishes normal progress from the terminal visual states
type ProgressPhase string

const (
	PhaseIdle      ProgressPhase = "idle"
	PhaseRunning   ProgressPhase = "running"
	PhaseCompleted ProgressPhase = "completed"
	PhaseCancelled ProgressPhase = "cancelled"
	PhaseError     ProgressPhase = "error"
)

// Progress steps
const (
	StepValidate = 1
	StepPrepare  = 2
	StepSubmit   = 3
	StepComplete = 4
)

// IsTerminal reports whether the phase ends the run's progress updates.
func (p ProgressPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled || p == PhaseError
}
