package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"esign-orchestrator/core/models"

	"go.uber.org/zap"
)

// jobIDFields lists the identifier fields in priority order. Top-level
// fields are checked before their nested data.* equivalents.
var jobIDFields = []string{"jobId", "job_id", "id", "transaction_id"}

// SignRequest is the body of POST /esign/process
type SignRequest struct {
	DocumentBase64      string `json:"document_base64"`
	SignImageName       string `json:"sign_image_name"`
	DocumentType        string `json:"document_type"`
	DocumentID          string `json:"document_id"`
	SpecificDocumentRef string `json:"specific_document_ref"`
	SignerName          string `json:"signer_name"`
	SignerEmail         string `json:"signer_email,omitempty"`
}

// NewSignRequest packages a run's document and signer metadata.
func NewSignRequest(req models.RunRequest, now time.Time) SignRequest {
	docType := req.DocumentType
	if docType == "" {
		docType = models.DefaultDocumentType
	}
	return SignRequest{
		DocumentBase64:      base64.StdEncoding.EncodeToString(req.Document),
		SignImageName:       req.SignerName,
		DocumentType:        docType,
		DocumentID:          req.StagingID,
		SpecificDocumentRef: SpecificDocumentRef(now),
		SignerName:          req.SignerName,
		SignerEmail:         req.SignerEmail,
	}
}

// SpecificDocumentRef builds the per-submission reference "receive_<timestamp>".
func SpecificDocumentRef(now time.Time) string {
	ts := now.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return "receive_" + ts
}

// StampRequest describes a stamp submission
type StampRequest struct {
	DocumentType         string `json:"-"`
	StagingID            string `json:"-"`
	OperatorEmail        string `json:"-"`
	IsDocumentWithQRCode bool   `json:"is_document_withqrcode"`
}

// NewStampRequest derives the stamp request from the same source document
// the sign job used.
func NewStampRequest(req models.RunRequest) StampRequest {
	docType := req.DocumentType
	if docType == "" {
		docType = models.DefaultDocumentType
	}
	return StampRequest{
		DocumentType:         docType,
		StagingID:            req.StagingID,
		OperatorEmail:        req.OperatorEmail,
		IsDocumentWithQRCode: req.HasQRCode(),
	}
}

// SubmitSign handles POST /esign/process and returns the provider job id
func (c *Client) SubmitSign(ctx context.Context, req SignRequest) (string, error) {
	c.logger.Info("provider.submit.sign",
		zap.String("document_id", req.DocumentID),
		zap.String("document_type", req.DocumentType),
		zap.String("specific_document_ref", req.SpecificDocumentRef),
		zap.String("target", string(c.env.Target)),
	)
	return c.submit(ctx, models.JobKindSign, "/esign/process", req, nil)
}

// SubmitStamp handles POST /esign/stamp/{documentType}/{stagingId}
func (c *Client) SubmitStamp(ctx context.Context, req StampRequest) (string, error) {
	path := "/esign/stamp/" + url.PathEscape(req.DocumentType) + "/" + url.PathEscape(req.StagingID)
	c.logger.Info("provider.submit.stamp",
		zap.String("document_id", req.StagingID),
		zap.String("document_type", req.DocumentType),
		zap.Bool("is_document_withqrcode", req.IsDocumentWithQRCode),
		zap.String("target", string(c.env.Target)),
	)
	headers := map[string]string{"X-User-Email": c.operatorIdentity(req.OperatorEmail)}
	return c.submit(ctx, models.JobKindStamp, path, req, headers)
}

// operatorIdentity picks the X-User-Email value for stamp calls.
func (c *Client) operatorIdentity(email string) string {
	if email != "" {
		return email
	}
	if c.operatorEmail != "" {
		return c.operatorEmail
	}
	return "unknown"
}

func (c *Client) submit(ctx context.Context, kind models.JobKind, path string, body any, headers map[string]string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, path, body, headers)
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		c.logger.Error("provider.submit.rejected",
			zap.String("kind", string(kind)),
			zap.Int("status", resp.StatusCode),
			zap.String("body", errorDetail(resp.Body)),
		)
		return "", &models.SubmissionError{Kind: kind, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	id, ok := ExtractJobID(resp.Body)
	if !ok {
		c.logger.Error("provider.submit.missing_job_id",
			zap.String("kind", string(kind)),
			zap.ByteString("body", resp.Body),
		)
		return "", &models.MissingJobIDError{Kind: kind, Body: string(resp.Body)}
	}

	c.logger.Info("provider.submit.accepted",
		zap.String("kind", string(kind)),
		zap.String("job_id", id),
	)
	return id, nil
}

// ExtractJobID finds the job identifier in a submission response body.
func ExtractJobID(raw []byte) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return "", false
	}

	if id, ok := firstID(body); ok {
		return id, true
	}
	if data, ok := body["data"].(map[string]any); ok {
		return firstID(data)
	}
	return "", false
}

func firstID(m map[string]any) (string, bool) {
	for _, field := range jobIDFields {
		switch v := m[field].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s, true
			}
		case json.Number:
			return v.String(), true
		}
	}
	return "", false
}
