package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"esign-orchestrator/core/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(models.EnvironmentConfig{Target: models.TargetSandbox, BaseURL: srv.URL + "/"}, opts...)
}

func TestExtractJobID(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"jobId", `{"jobId":"a1"}`, "a1", true},
		{"job_id beats data.id", `{"job_id":"x","data":{"id":"y"}}`, "x", true},
		{"priority order", `{"transaction_id":"t","id":"i","job_id":"j"}`, "j", true},
		{"numeric id", `{"id":12345}`, "12345", true},
		{"nested data", `{"success":true,"data":{"transaction_id":"trx-9"}}`, "trx-9", true},
		{"empty string skipped", `{"jobId":"","id":"fallback"}`, "fallback", true},
		{"none", `{"success":true,"message":"queued"}`, "", false},
		{"not json", `<html>`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJobID([]byte(tt.body))
			if got != tt.want || ok != tt.ok {
				t.Fatalf("ExtractJobID(%s) = %q, %v; want %q, %v", tt.body, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSpecificDocumentRef(t *testing.T) {
	now := time.Date(2024, 3, 5, 7, 8, 9, 123000000, time.UTC)
	if got, want := SpecificDocumentRef(now), "receive_2024-03-05T07-08-09-123Z"; got != want {
		t.Fatalf("SpecificDocumentRef() = %q, want %q", got, want)
	}
}

func TestSubmitSign(t *testing.T) {
	var got SignRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/esign/process" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"job_id":"job-1"}}`))
	})

	req := NewSignRequest(models.RunRequest{
		StagingID:  "STG-1",
		Document:   []byte("%PDF-1.4"),
		SignerName: "Tester",
	}, time.Now())
	id, err := c.SubmitSign(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitSign() error: %v", err)
	}
	if id != "job-1" {
		t.Fatalf("SubmitSign() id = %q", id)
	}
	if got.DocumentID != "STG-1" || got.DocumentType != models.DefaultDocumentType {
		t.Fatalf("SubmitSign() body = %+v", got)
	}
	if got.DocumentBase64 != "JVBERi0xLjQ=" {
		t.Fatalf("SubmitSign() document_base64 = %q", got.DocumentBase64)
	}
	if !strings.HasPrefix(got.SpecificDocumentRef, "receive_") {
		t.Fatalf("SubmitSign() specific_document_ref = %q", got.SpecificDocumentRef)
	}
}

func TestSubmitSignRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad document"}`))
	})

	_, err := c.SubmitSign(context.Background(), SignRequest{})
	var subErr *models.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("SubmitSign() error = %v, want SubmissionError", err)
	}
	if subErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("SubmissionError.StatusCode = %d", subErr.StatusCode)
	}
}

func TestSubmitSignMissingJobID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	_, err := c.SubmitSign(context.Background(), SignRequest{})
	var missing *models.MissingJobIDError
	if !errors.As(err, &missing) {
		t.Fatalf("SubmitSign() error = %v, want MissingJobIDError", err)
	}
}

func TestSubmitStamp(t *testing.T) {
	var path, email string
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		email = r.Header.Get("X-User-Email")
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"jobId":"stamp-1"}`))
	})

	req := NewStampRequest(models.RunRequest{StagingID: "STG-2", QRCode: "null"})
	id, err := c.SubmitStamp(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitStamp() error: %v", err)
	}
	if id != "stamp-1" {
		t.Fatalf("SubmitStamp() id = %q", id)
	}
	if path != "/esign/stamp/ARInvoices/STG-2" {
		t.Fatalf("SubmitStamp() path = %q", path)
	}
	if email != "unknown" {
		t.Fatalf("SubmitStamp() X-User-Email = %q", email)
	}
	if v, ok := body["is_document_withqrcode"].(bool); !ok || v {
		t.Fatalf("SubmitStamp() is_document_withqrcode = %v", body["is_document_withqrcode"])
	}
	if len(body) != 1 {
		t.Fatalf("SubmitStamp() body = %v", body)
	}
}

func TestDecodeStatus(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		shape  Shape
		status models.JobStatus
		result string
		ref    string
	}{
		{"job envelope", `{"job":{"status":"completed","result":"Signed URL: https://x.test/a.pdf"}}`, ShapeJobEnvelope, models.JobStatusCompleted, "Signed URL: https://x.test/a.pdf", ""},
		{"data envelope", `{"success":true,"data":{"status":"processing"}}`, ShapeDataEnvelope, models.JobStatusProcessing, "", ""},
		{"flat", `{"status":"success","signed_url":"https://x.test/s.pdf"}`, ShapeFlat, models.JobStatusCompleted, "", "https://x.test/s.pdf"},
		{"unknown status", `{"status":"queued"}`, ShapeFlat, models.JobStatusProcessing, "", ""},
		{"object result", `{"status":"completed","result":{"file":"stamped_ARInvoices_1.pdf"}}`, ShapeFlat, models.JobStatusCompleted, `{"file":"stamped_ARInvoices_1.pdf"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := DecodeStatus([]byte(tt.body))
			if err != nil {
				t.Fatalf("DecodeStatus() error: %v", err)
			}
			if st.Shape != tt.shape || st.JobStatus() != tt.status || st.Result != tt.result || st.StructuredRef != tt.ref {
				t.Fatalf("DecodeStatus() = %+v", st)
			}
		})
	}
}

func TestDecodeStatusInvalid(t *testing.T) {
	bodies := []string{
		`{"success":false,"message":"job not found"}`,
		`{"success":false,"job":{"status":"completed"}}`,
		`{"message":"no status"}`,
		`{"status":""}`,
		`{"status":42}`,
		`[]`,
		`not json`,
	}
	for _, body := range bodies {
		_, err := DecodeStatus([]byte(body))
		var shapeErr *models.InvalidResponseShapeError
		if !errors.As(err, &shapeErr) {
			t.Errorf("DecodeStatus(%s) error = %v, want InvalidResponseShapeError", body, err)
		}
	}
}

func TestFetchStatusFallback(t *testing.T) {
	var primary, fallback int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jobs/j1/status":
			atomic.AddInt32(&primary, 1)
			http.Error(w, "gone", http.StatusNotFound)
		case "/esign/transaction/j1/status":
			atomic.AddInt32(&fallback, 1)
			_, _ = w.Write([]byte(`{"data":{"status":"completed"}}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	})

	st, err := c.FetchStatus(context.Background(), "j1", StatusOptions{Fallback: true})
	if err != nil {
		t.Fatalf("FetchStatus() error: %v", err)
	}
	if st.JobStatus() != models.JobStatusCompleted {
		t.Fatalf("FetchStatus() status = %q", st.Status)
	}
	if p, f := atomic.LoadInt32(&primary), atomic.LoadInt32(&fallback); p != 1 || f != 1 {
		t.Fatalf("calls primary=%d fallback=%d", p, f)
	}

	_, err = c.FetchStatus(context.Background(), "j1", StatusOptions{})
	var transportErr *models.PollingTransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("FetchStatus() without fallback error = %v", err)
	}
	if transportErr.StatusCode != http.StatusNotFound {
		t.Fatalf("PollingTransportError.StatusCode = %d", transportErr.StatusCode)
	}
	if atomic.LoadInt32(&fallback) != 1 {
		t.Fatalf("fallback endpoint called without fallback enabled")
	}
}

func TestOperatorHeaderOnlyOnStampCalls(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.Method+" "+r.URL.Path] = r.Header.Get("X-User-Email")
		mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, "/status"):
			_, _ = w.Write([]byte(`{"status":"processing"}`))
		default:
			_, _ = w.Write([]byte(`{"job_id":"j1"}`))
		}
	}, WithOperatorEmail("ops@example.test"))
	ctx := context.Background()

	if _, err := c.SubmitSign(ctx, SignRequest{}); err != nil {
		t.Fatalf("SubmitSign() error: %v", err)
	}
	if _, err := c.FetchStatus(ctx, "sign-1", StatusOptions{Fallback: true}); err != nil {
		t.Fatalf("FetchStatus() error: %v", err)
	}
	if _, err := c.SubmitStamp(ctx, StampRequest{DocumentType: "ARInvoices", StagingID: "S1"}); err != nil {
		t.Fatalf("SubmitStamp() error: %v", err)
	}
	if _, err := c.FetchStatus(ctx, "stamp-1", StatusOptions{IdentifyOperator: true, OperatorEmail: "run@example.test"}); err != nil {
		t.Fatalf("FetchStatus() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := map[string]string{
		"POST /esign/process":             "",
		"GET /jobs/sign-1/status":         "",
		"POST /esign/stamp/ARInvoices/S1": "ops@example.test",
		"GET /jobs/stamp-1/status":        "run@example.test",
	}
	for key, email := range want {
		got, ok := seen[key]
		if !ok {
			t.Errorf("%s was not called", key)
			continue
		}
		if got != email {
			t.Errorf("%s X-User-Email = %q, want %q", key, got, email)
		}
	}
}

func TestListDocuments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/esign/staging/S1/documents":
			_, _ = w.Write([]byte(`{"success":true,"count":1,"data":[{"id":7,"transaction_id":"t1","signed_url":"https://x.test/s.pdf","signer_name":"A"}]}`))
		case "/emeterai/staging/S1/stamped":
			_, _ = w.Write([]byte(`{"success":true,"count":1,"data":[{"id":"st-1","serial_number":"SN1","ref_num":"R1"}]}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	})
	ctx := context.Background()

	signed, err := c.ListSignedDocuments(ctx, "S1")
	if err != nil {
		t.Fatalf("ListSignedDocuments() error: %v", err)
	}
	if len(signed) != 1 || signed[0].ID != "7" || signed[0].TransactionID != "t1" {
		t.Fatalf("ListSignedDocuments() = %+v", signed)
	}

	stamped, err := c.ListStampedDocuments(ctx, "S1")
	if err != nil {
		t.Fatalf("ListStampedDocuments() error: %v", err)
	}
	if len(stamped) != 1 || stamped[0].ID != "st-1" || stamped[0].SerialNumber != "SN1" {
		t.Fatalf("ListStampedDocuments() = %+v", stamped)
	}

	empty, err := c.ListSignedDocuments(ctx, "missing")
	if err != nil {
		t.Fatalf("ListSignedDocuments(404) error: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("ListSignedDocuments(404) = %+v", empty)
	}
}

func TestJobDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/jobs/j9/document" {
			_, _ = w.Write([]byte(`{"document_url":"files/signed_j9.pdf"}`))
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
	})

	u, err := c.JobDocument(context.Background(), "j9")
	if err != nil {
		t.Fatalf("JobDocument() error: %v", err)
	}
	if want := c.Environment().BaseURL + "/files/signed_j9.pdf"; u != want {
		t.Fatalf("JobDocument() = %q, want %q", u, want)
	}
}

func TestDownloadURLs(t *testing.T) {
	c := New(models.EnvironmentConfig{BaseURL: "https://svc.test/"})
	if got := c.SignedDownloadURL("https://cdn.test/a.pdf"); got != "https://cdn.test/a.pdf" {
		t.Errorf("SignedDownloadURL(absolute) = %q", got)
	}
	if got := c.SignedDownloadURL("/out/a.pdf"); got != "https://svc.test/out/a.pdf" {
		t.Errorf("SignedDownloadURL(relative) = %q", got)
	}
	if got := c.StampedDownloadURL("ARInvoices", "stamped_ARInvoices_1.pdf"); got != "https://svc.test/esign/download/stamped/ARInvoices/stamped_ARInvoices_1.pdf" {
		t.Errorf("StampedDownloadURL() = %q", got)
	}
}
