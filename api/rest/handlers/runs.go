package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"esign-orchestrator/core/gate"
	"esign-orchestrator/core/models"
	"esign-orchestrator/core/orchestrator"
	"esign-orchestrator/core/spec"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RunHandler handles run-related HTTP requests
type RunHandler struct {
	orch      *orchestrator.Orchestrator
	confirmer *gate.PendingConfirmer
	logger    *zap.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(orch *orchestrator.Orchestrator, confirmer *gate.PendingConfirmer, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{orch: orch, confirmer: confirmer, logger: logger}
}

// StartRunRequest represents the request to start a run. Fields set
// explicitly override the ones in ManifestYAML.
type StartRunRequest struct {
	ManifestYAML   string `json:"manifest_yaml"`
	StagingID      string `json:"staging_id"`
	DocumentType   string `json:"document_type"`
	DocumentName   string `json:"document_name"`
	DocumentBase64 string `json:"document_base64"`
	SignerName     string `json:"signer_name"`
	SignerEmail    string `json:"signer_email"`
	OperatorEmail  string `json:"operator_email"`
	AlsoStamp      bool   `json:"also_stamp"`
	QRCode         string `json:"qr_code"`
}

// StartRun handles POST /v1/runs
func (h *RunHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var body StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req, err := body.toRunRequest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := h.orch.Start(r.Context(), req)
	if err != nil {
		var cfgErr *models.ConfigurationError
		switch {
		case errors.As(err, &cfgErr):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, models.ErrRunInProgress):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "Failed to start run: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, h.runView(run))
}

func (b StartRunRequest) toRunRequest() (models.RunRequest, error) {
	var req models.RunRequest
	if b.ManifestYAML != "" {
		rs, err := spec.DecodeRunSpec(b.ManifestYAML)
		if err != nil {
			return req, errors.New("Invalid manifest: " + err.Error())
		}
		if rs.Run.Document != "" {
			return req, errors.New("Invalid manifest: document paths are not accepted over HTTP, use document_base64")
		}
		parsed, err := spec.ParseRunSpec(b.ManifestYAML, "")
		if err != nil {
			return req, errors.New("Invalid manifest: " + err.Error())
		}
		req = *parsed
	}

	if b.DocumentBase64 != "" {
		doc, err := base64.StdEncoding.DecodeString(b.DocumentBase64)
		if err != nil {
			return req, errors.New("Invalid document_base64")
		}
		req.Document = doc
	}
	setIf(&req.StagingID, b.StagingID)
	setIf(&req.DocumentType, b.DocumentType)
	setIf(&req.DocumentName, b.DocumentName)
	setIf(&req.SignerName, b.SignerName)
	setIf(&req.SignerEmail, b.SignerEmail)
	setIf(&req.OperatorEmail, b.OperatorEmail)
	setIf(&req.QRCode, b.QRCode)
	if b.AlsoStamp {
		req.AlsoStamp = true
	}
	return req, nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// GetRun handles GET /v1/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.orch.Get(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.runView(run))
}

// CancelRun handles POST /v1/runs/{id}/cancel
func (h *RunHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	if err := h.orch.Cancel(runID); err != nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	h.logger.Info("api.run.cancel_requested", zap.String("run_id", runID))

	run, _ := h.orch.Get(runID)
	writeJSON(w, http.StatusOK, h.runView(run))
}

// ConfirmRunRequest answers a pending production confirmation
type ConfirmRunRequest struct {
	Approve bool `json:"approve"`
}

// ConfirmRun handles POST /v1/runs/{id}/confirm
func (h *RunHandler) ConfirmRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	if _, err := h.orch.Get(runID); err != nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	var body ConfirmRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.confirmer.Decide(runID, body.Approve); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	h.logger.Info("api.run.confirmation",
		zap.String("run_id", runID),
		zap.Bool("approve", body.Approve),
	)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       runID,
		"approved": body.Approve,
	})
}

// GetRunEvents handles GET /v1/runs/{id}/events
func (h *RunHandler) GetRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	limit := 100
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		n, err := strconv.Atoi(limitParam)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.orch.Events(r.Context(), runID, limit)
	if err != nil {
		if errors.Is(err, models.ErrRunNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, len(events))
	for i, event := range events {
		item := map[string]interface{}{
			"id":   event.ID,
			"at":   event.At,
			"kind": event.Kind,
		}
		if event.JobKind != "" {
			item["job_kind"] = event.JobKind
		}
		if event.JobID != "" {
			item["job_id"] = event.JobID
		}
		if event.ToStatus != "" {
			item["to_status"] = event.ToStatus
		}
		if event.Reason != "" {
			item["reason"] = event.Reason
		}
		if len(event.Meta) > 0 {
			item["meta"] = event.Meta
		}
		items[i] = item
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

func (h *RunHandler) runView(run *orchestrator.Run) map[string]interface{} {
	s := run.Snapshot()
	view := map[string]interface{}{
		"id":                   s.ID,
		"staging_id":           s.StagingID,
		"started_at":           s.StartedAt,
		"environment":          s.Environment,
		"progress":             s.Progress,
		"finished":             s.Finished(),
		"billable_submissions": h.orch.BillableSubmissions(s.ID),
	}
	if s.SignJob != nil {
		view["sign_job"] = jobView(s.SignJob)
	}
	if s.StampJob != nil {
		view["stamp_job"] = jobView(s.StampJob)
	}
	if h.confirmer != nil {
		if p, ok := h.confirmer.Pending(s.ID); ok {
			view["awaiting_confirmation"] = map[string]interface{}{
				"action":  p.ActionLabel,
				"message": p.Message,
			}
		}
	}
	if o := s.Outcome; o != nil {
		outcome := map[string]interface{}{
			"kind":          o.Kind,
			"signed_ref":    o.SignedRef,
			"stamped_ref":   o.StampedRef,
			"stamp_skipped": o.StampSkipped,
			"finished_at":   o.FinishedAt,
		}
		if o.Err != nil {
			outcome["error"] = o.Err.Error()
		}
		if o.StampErr != nil {
			outcome["stamp_error"] = o.StampErr.Error()
		}
		view["outcome"] = outcome
	}
	return view
}

func jobView(job *models.Job) map[string]interface{} {
	v := map[string]interface{}{
		"id":           job.ID,
		"kind":         job.Kind,
		"status":       job.Status,
		"raw_status":   job.RawStatus,
		"polls":        job.Polls,
		"submitted_at": job.SubmittedAt,
		"updated_at":   job.UpdatedAt,
	}
	if job.CompletedAt != nil {
		v["completed_at"] = *job.CompletedAt
	}
	if job.ErrorMessage != "" {
		v["error"] = job.ErrorMessage
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
