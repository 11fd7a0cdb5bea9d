package handlers

import (
	"net/http"
	"time"

	"esign-orchestrator/core/environment"
	"esign-orchestrator/core/monitoring"
)

// RunLister lists the runs still in flight
type RunLister interface {
	ActiveRuns() []monitoring.ActiveRun
	BillableSubmissions(runID string) map[string]int
}

// DashboardHandler handles dashboard API requests
type DashboardHandler struct {
	runs           RunLister
	resolver       *environment.Resolver
	stallThreshold time.Duration
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(runs RunLister, resolver *environment.Resolver, stallThreshold time.Duration) *DashboardHandler {
	return &DashboardHandler{
		runs:           runs,
		resolver:       resolver,
		stallThreshold: stallThreshold,
	}
}

// GetDashboard handles GET /v1/dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	env, err := h.resolver.Resolve(r.Context())
	if err != nil {
		http.Error(w, "Failed to resolve environment: "+err.Error(), http.StatusInternalServerError)
		return
	}

	now := time.Now()
	active := h.runs.ActiveRuns()
	billable := map[string]int{}
	stalled := 0

	items := make([]map[string]interface{}, 0, len(active))
	for _, run := range active {
		age := now.Sub(run.StartedAt)
		isStalled := h.stallThreshold > 0 && age > h.stallThreshold
		if isStalled {
			stalled++
		}
		for kind, n := range h.runs.BillableSubmissions(run.ID) {
			billable[kind] += n
		}

		items = append(items, map[string]interface{}{
			"id":          run.ID,
			"staging_id":  run.StagingID,
			"started_at":  run.StartedAt.Format(time.RFC3339),
			"age_seconds": int(age.Seconds()),
			"progress":    run.Progress,
			"stalled":     isStalled,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"environment": environmentView(env),
		"runs": map[string]interface{}{
			"active":  len(active),
			"stalled": stalled,
			"items":   items,
		},
		"billable_submissions": billable,
	})
}
