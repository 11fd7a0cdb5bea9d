package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"esign-orchestrator/core/models"
	"esign-orchestrator/core/results"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// Shape names the envelope a status response arrived in
type Shape string

const (
	ShapeJobEnvelope  Shape = "job"
	ShapeDataEnvelope Shape = "data"
	ShapeFlat         Shape = "flat"
)

const statusBodySchema = `{
	"type": "object",
	"required": ["status"],
	"properties": {
		"status": {"type": "string", "minLength": 1},
		"message": {"type": ["string", "null"]},
		"signed_url": {"type": ["string", "null"]},
		"document_url": {"type": ["string", "null"]},
		"stamped_file": {"type": ["string", "null"]}
	}
}`

func envelopeSchema(field string) string {
	return `{
		"type": "object",
		"required": ["` + field + `"],
		"properties": {"` + field + `": ` + statusBodySchema + `}
	}`
}

// Envelopes are tried in this order; the first match wins.
var statusShapes = []struct {
	shape  Shape
	schema *jsonschema.Schema
}{
	{ShapeJobEnvelope, jsonschema.MustCompileString("status-job.json", envelopeSchema("job"))},
	{ShapeDataEnvelope, jsonschema.MustCompileString("status-data.json", envelopeSchema("data"))},
	{ShapeFlat, jsonschema.MustCompileString("status-flat.json", statusBodySchema)},
}

// Status is a decoded job status report
type Status struct {
	Shape         Shape
	Status        string
	Result        string
	Error         string
	Message       string
	StructuredRef string
}

// JobStatus maps the raw status onto the job lifecycle
func (s Status) JobStatus() models.JobStatus {
	return models.ParseJobStatus(s.Status)
}

// Payload returns the fields the result resolver reads
func (s Status) Payload() results.Payload {
	return results.Payload{StructuredRef: s.StructuredRef, Result: s.Result, Message: s.Message}
}

// FailureMessage returns the provider's explanation for a failed job
func (s Status) FailureMessage() string {
	if s.Error != "" {
		return s.Error
	}
	return s.Message
}

type statusBody struct {
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result"`
	Error       json.RawMessage `json:"error"`
	Message     *string         `json:"message"`
	SignedURL   *string         `json:"signed_url"`
	DocumentURL *string         `json:"document_url"`
	StampedFile *string         `json:"stamped_file"`
}

// DecodeStatus validates a status response against the known envelopes
// and flattens it. An explicit "success": false is always rejected.
func DecodeStatus(raw []byte) (Status, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Status{}, &models.InvalidResponseShapeError{Body: string(raw), Err: fmt.Errorf("decode json: %w", err)}
	}

	if obj, ok := doc.(map[string]any); ok {
		if success, ok := obj["success"].(bool); ok && !success {
			return Status{}, &models.InvalidResponseShapeError{
				Body: string(raw),
				Err:  fmt.Errorf("provider reported success=false: %s", errorDetail(raw)),
			}
		}
	}

	var errs []error
	for _, s := range statusShapes {
		if err := s.schema.Validate(doc); err != nil {
			errs = append(errs, err)
			continue
		}
		body, err := unwrapStatus(raw, s.shape)
		if err != nil {
			return Status{}, &models.InvalidResponseShapeError{Body: string(raw), Err: err}
		}
		return flattenStatus(s.shape, body), nil
	}
	return Status{}, &models.InvalidResponseShapeError{Body: string(raw), Err: errors.Join(errs...)}
}

func unwrapStatus(raw []byte, shape Shape) (statusBody, error) {
	var body statusBody
	switch shape {
	case ShapeJobEnvelope:
		var env struct {
			Job statusBody `json:"job"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return body, err
		}
		return env.Job, nil
	case ShapeDataEnvelope:
		var env struct {
			Data statusBody `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return body, err
		}
		return env.Data, nil
	default:
		err := json.Unmarshal(raw, &body)
		return body, err
	}
}

func flattenStatus(shape Shape, b statusBody) Status {
	s := Status{
		Shape:   shape,
		Status:  b.Status,
		Result:  rawText(b.Result),
		Error:   rawText(b.Error),
		Message: deref(b.Message),
	}
	for _, ref := range []*string{b.SignedURL, b.DocumentURL, b.StampedFile} {
		if v := strings.TrimSpace(deref(ref)); v != "" {
			s.StructuredRef = v
			break
		}
	}
	return s
}

// rawText renders a JSON value as text. Strings are unquoted, null is empty,
// anything else keeps its JSON form so the reference patterns can scan it.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StatusOptions controls one status read
type StatusOptions struct {
	// Fallback tries /esign/transaction/{id}/status when the job endpoint fails.
	Fallback bool
	// IdentifyOperator sends X-User-Email; OperatorEmail overrides the
	// client's configured operator.
	IdentifyOperator bool
	OperatorEmail    string
}

// FetchStatus reads a job's status from /jobs/{id}/status. With
// opts.Fallback set and the primary endpoint failing,
// /esign/transaction/{id}/status is tried before giving up.
func (c *Client) FetchStatus(ctx context.Context, jobID string, opts StatusOptions) (Status, error) {
	var headers map[string]string
	if opts.IdentifyOperator {
		headers = map[string]string{"X-User-Email": c.operatorIdentity(opts.OperatorEmail)}
	}

	id := url.PathEscape(jobID)
	raw, err := c.getStatus(ctx, jobID, "/jobs/"+id+"/status", headers)
	if err != nil && opts.Fallback && ctx.Err() == nil {
		c.logger.Warn("provider.status.fallback",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		raw, err = c.getStatus(ctx, jobID, "/esign/transaction/"+id+"/status", headers)
	}
	if err != nil {
		return Status{}, err
	}
	return DecodeStatus(raw)
}

func (c *Client) getStatus(ctx context.Context, jobID, path string, headers map[string]string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, headers)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &models.PollingTransportError{JobID: jobID, Err: err}
	}
	if !resp.ok() {
		return nil, &models.PollingTransportError{
			JobID:      jobID,
			StatusCode: resp.StatusCode,
			Body:       errorDetail(resp.Body),
		}
	}
	return resp.Body, nil
}
