package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"esign-orchestrator/core/results"

	"go.uber.org/zap"
)

// DocumentID is a listing row id. The provider sends numbers or strings.
type DocumentID string

func (id *DocumentID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = DocumentID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("document id: %w", err)
	}
	*id = DocumentID(n.String())
	return nil
}

// SignedDocument is one entry of a staging document's signed listing
type SignedDocument struct {
	ID                  DocumentID `json:"id"`
	TransactionID       string     `json:"transaction_id"`
	PartnerTrxID        string     `json:"partner_trx_id"`
	SpecificDocumentRef string     `json:"specific_document_ref"`
	SignedURL           string     `json:"signed_url"`
	SignerName          string     `json:"signer_name"`
	SignerEmail         string     `json:"signer_email"`
	SignedAt            string     `json:"signed_at"`
}

// StampedDocument is one entry of a staging document's stamped listing
type StampedDocument struct {
	ID                  DocumentID `json:"id"`
	RefNum              string     `json:"ref_num"`
	SerialNumber        string     `json:"serial_number"`
	SpecificDocumentRef string     `json:"specific_document_ref"`
	StampedAt           string     `json:"stamped_at"`
}

type listing[T any] struct {
	Success *bool `json:"success"`
	Data    []T   `json:"data"`
	Count   int   `json:"count"`
}

// ListSignedDocuments lists signed documents for a staging id. A 404 means
// nothing has been signed yet and yields an empty list.
func (c *Client) ListSignedDocuments(ctx context.Context, stagingID string) ([]SignedDocument, error) {
	return list[SignedDocument](ctx, c, "/esign/staging/"+url.PathEscape(stagingID)+"/documents")
}

// ListStampedDocuments lists stamped documents for a staging id. A 404 means
// nothing has been stamped yet and yields an empty list.
func (c *Client) ListStampedDocuments(ctx context.Context, stagingID string) ([]StampedDocument, error) {
	return list[StampedDocument](ctx, c, "/emeterai/staging/"+url.PathEscape(stagingID)+"/stamped")
}

func list[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return []T{}, nil
	}
	if !resp.ok() {
		return nil, fmt.Errorf("list %s: %d - %s", path, resp.StatusCode, errorDetail(resp.Body))
	}

	var body listing[T]
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	if body.Success != nil && !*body.Success {
		return nil, fmt.Errorf("list %s: %s", path, errorDetail(resp.Body))
	}
	if body.Data == nil {
		return []T{}, nil
	}
	return body.Data, nil
}

// JobDocument returns the download URL of a completed job's document
func (c *Client) JobDocument(ctx context.Context, jobID string) (string, error) {
	return c.documentURL(ctx, "/jobs/"+url.PathEscape(jobID)+"/document")
}

// TransactionDocument returns the download URL of a signing transaction's document
func (c *Client) TransactionDocument(ctx context.Context, transactionID string) (string, error) {
	return c.documentURL(ctx, "/esign/transaction/"+url.PathEscape(transactionID)+"/document")
}

func (c *Client) documentURL(ctx context.Context, path string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", fmt.Errorf("get document %s: %d - %s", path, resp.StatusCode, errorDetail(resp.Body))
	}

	var body struct {
		URL         string `json:"url"`
		DocumentURL string `json:"document_url"`
		SignedURL   string `json:"signed_url"`
		Data        *struct {
			URL         string `json:"url"`
			DocumentURL string `json:"document_url"`
			SignedURL   string `json:"signed_url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", fmt.Errorf("decode document response: %w", err)
	}
	candidates := []string{body.URL, body.DocumentURL, body.SignedURL}
	if body.Data != nil {
		candidates = append(candidates, body.Data.URL, body.Data.DocumentURL, body.Data.SignedURL)
	}
	for _, u := range candidates {
		if u = strings.TrimSpace(u); u != "" {
			return c.SignedDownloadURL(u), nil
		}
	}
	c.logger.Warn("provider.document.missing_url", zap.String("path", path))
	return "", fmt.Errorf("get document %s: no url in response", path)
}

// SignedDownloadURL turns a signed reference into a retrievable URL.
// Absolute references are returned unchanged; relative ones are joined to
// the environment's base URL.
func (c *Client) SignedDownloadURL(ref string) string {
	if ref == "" || results.IsAbsolute(ref) {
		return ref
	}
	return c.env.BaseURL + "/" + strings.TrimLeft(ref, "/")
}

// StampedDownloadURL returns the download URL for a stamped file name
func (c *Client) StampedDownloadURL(documentType, ref string) string {
	if ref == "" || results.IsAbsolute(ref) {
		return ref
	}
	return c.env.BaseURL + "/esign/download/stamped/" + url.PathEscape(documentType) + "/" + url.PathEscape(ref)
}
