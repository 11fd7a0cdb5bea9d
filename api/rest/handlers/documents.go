package handlers

import (
	"context"
	"net/http"

	"esign-orchestrator/core/environment"
	"esign-orchestrator/core/models"
	"esign-orchestrator/core/provider"

	"github.com/gorilla/mux"
)

// DocumentClient is the subset of the provider client used for document lookups
type DocumentClient interface {
	ListSignedDocuments(ctx context.Context, stagingID string) ([]provider.SignedDocument, error)
	ListStampedDocuments(ctx context.Context, stagingID string) ([]provider.StampedDocument, error)
	JobDocument(ctx context.Context, jobID string) (string, error)
	TransactionDocument(ctx context.Context, transactionID string) (string, error)
	SignedDownloadURL(ref string) string
	StampedDownloadURL(documentType, ref string) string
}

// DocumentHandler lists provider-side documents for the active environment
type DocumentHandler struct {
	resolver     *environment.Resolver
	clients      func(models.EnvironmentConfig) DocumentClient
	documentType string
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(resolver *environment.Resolver, clients func(models.EnvironmentConfig) DocumentClient, documentType string) *DocumentHandler {
	if documentType == "" {
		documentType = models.DefaultDocumentType
	}
	return &DocumentHandler{resolver: resolver, clients: clients, documentType: documentType}
}

func (h *DocumentHandler) client(ctx context.Context) (DocumentClient, error) {
	env, err := h.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return h.clients(env), nil
}

// ListSigned handles GET /v1/documents/{stagingId}/signed
func (h *DocumentHandler) ListSigned(w http.ResponseWriter, r *http.Request) {
	c, err := h.client(r.Context())
	if err != nil {
		http.Error(w, "Failed to resolve environment: "+err.Error(), http.StatusInternalServerError)
		return
	}

	docs, err := c.ListSignedDocuments(r.Context(), mux.Vars(r)["stagingId"])
	if err != nil {
		http.Error(w, "Failed to list signed documents: "+err.Error(), http.StatusBadGateway)
		return
	}

	items := make([]map[string]interface{}, 0, len(docs))
	for _, d := range docs {
		item := map[string]interface{}{
			"id":                    d.ID,
			"transaction_id":        d.TransactionID,
			"partner_trx_id":        d.PartnerTrxID,
			"specific_document_ref": d.SpecificDocumentRef,
			"signer_name":           d.SignerName,
			"signer_email":          d.SignerEmail,
			"signed_at":             d.SignedAt,
		}
		if d.SignedURL != "" {
			item["download_url"] = c.SignedDownloadURL(d.SignedURL)
		}
		items = append(items, item)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// ListStamped handles GET /v1/documents/{stagingId}/stamped
func (h *DocumentHandler) ListStamped(w http.ResponseWriter, r *http.Request) {
	c, err := h.client(r.Context())
	if err != nil {
		http.Error(w, "Failed to resolve environment: "+err.Error(), http.StatusInternalServerError)
		return
	}

	docType := r.URL.Query().Get("document_type")
	if docType == "" {
		docType = h.documentType
	}

	docs, err := c.ListStampedDocuments(r.Context(), mux.Vars(r)["stagingId"])
	if err != nil {
		http.Error(w, "Failed to list stamped documents: "+err.Error(), http.StatusBadGateway)
		return
	}

	items := make([]map[string]interface{}, 0, len(docs))
	for _, d := range docs {
		item := map[string]interface{}{
			"id":                    d.ID,
			"ref_num":               d.RefNum,
			"serial_number":         d.SerialNumber,
			"specific_document_ref": d.SpecificDocumentRef,
			"stamped_at":            d.StampedAt,
		}
		if d.SpecificDocumentRef != "" {
			item["download_url"] = c.StampedDownloadURL(docType, d.SpecificDocumentRef)
		}
		items = append(items, item)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// GetJobDocument handles GET /v1/documents/jobs/{id}
func (h *DocumentHandler) GetJobDocument(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, func(ctx context.Context, c DocumentClient, id string) (string, error) {
		return c.JobDocument(ctx, id)
	})
}

// GetTransactionDocument handles GET /v1/documents/transactions/{id}
func (h *DocumentHandler) GetTransactionDocument(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, func(ctx context.Context, c DocumentClient, id string) (string, error) {
		return c.TransactionDocument(ctx, id)
	})
}

func (h *DocumentHandler) lookup(w http.ResponseWriter, r *http.Request, fetch func(context.Context, DocumentClient, string) (string, error)) {
	c, err := h.client(r.Context())
	if err != nil {
		http.Error(w, "Failed to resolve environment: "+err.Error(), http.StatusInternalServerError)
		return
	}

	id := mux.Vars(r)["id"]
	u, err := fetch(r.Context(), c, id)
	if err != nil {
		http.Error(w, "Failed to fetch document: "+err.Error(), http.StatusBadGateway)
		return
	}
	if u == "" {
		http.Error(w, "Document not available", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":  id,
		"url": u,
	})
}
