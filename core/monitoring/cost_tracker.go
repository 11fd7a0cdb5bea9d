package monitoring

import (
	"sync"
	"time"

	"esign-orchestrator/core/models"
)

// CostTracker counts billable provider submissions per run. Only
// submissions accepted by the production environment are billable.
type CostTracker struct {
	mu       sync.RWMutex
	runCosts map[string]*RunCost
}

// RunCost tracks billable work for a single run
type RunCost struct {
	RunID           string         `json:"run_id"`
	StagingID       string         `json:"staging_id"`
	Billable        map[string]int `json:"billable"` // by job kind
	LastSubmittedAt time.Time      `json:"last_submitted_at"`
}

// Total returns the number of billable submissions
func (c RunCost) Total() int {
	n := 0
	for _, v := range c.Billable {
		n += v
	}
	return n
}

// NewCostTracker creates a new cost tracker
func NewCostTracker() *CostTracker {
	return &CostTracker{runCosts: make(map[string]*RunCost)}
}

// TrackSubmission records an accepted submission. Sandbox submissions are
// ignored.
func (ct *CostTracker) TrackSubmission(runID, stagingID string, kind models.JobKind, target models.Target) {
	if ct == nil || target != models.TargetProduction {
		return
	}
	ct.mu.Lock()
	defer ct.mu.Unlock()

	rc, ok := ct.runCosts[runID]
	if !ok {
		rc = &RunCost{RunID: runID, StagingID: stagingID, Billable: make(map[string]int)}
		ct.runCosts[runID] = rc
	}
	rc.Billable[string(kind)]++
	rc.LastSubmittedAt = time.Now()
}

// GetRunCost returns a copy of a run's billable work
func (ct *CostTracker) GetRunCost(runID string) RunCost {
	if ct == nil {
		return RunCost{RunID: runID, Billable: map[string]int{}}
	}
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	rc, ok := ct.runCosts[runID]
	if !ok {
		return RunCost{RunID: runID, Billable: map[string]int{}}
	}
	cp := *rc
	cp.Billable = make(map[string]int, len(rc.Billable))
	for k, v := range rc.Billable {
		cp.Billable[k] = v
	}
	return cp
}

// Forget stops tracking a run
func (ct *CostTracker) Forget(runID string) {
	if ct == nil {
		return
	}
	ct.mu.Lock()
	defer ct.mu.Unlock()
	delete(ct.runCosts, runID)
}
