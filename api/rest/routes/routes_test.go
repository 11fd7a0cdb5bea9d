package routes

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"esign-orchestrator/api/rest/handlers"
	"esign-orchestrator/core/environment"
	"esign-orchestrator/core/gate"
	"esign-orchestrator/core/models"
	"esign-orchestrator/core/monitoring"
	"esign-orchestrator/core/orchestrator"
	"esign-orchestrator/core/poller"
	"esign-orchestrator/core/provider"
	"esign-orchestrator/core/repository"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

func providerServer(t *testing.T) *httptest.Server {
	t.Helper()
	pm := http.NewServeMux()
	pm.HandleFunc("/esign/process", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"job_id":"JOB-1"}`))
	})
	pm.HandleFunc("/jobs/JOB-1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"job":{"status":"completed","signed_url":"https://files.test/signed.pdf"}}`))
	})
	pm.HandleFunc("/jobs/JOB-1/document", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"url":"/dl/JOB-1.pdf"}}`))
	})
	pm.HandleFunc("/esign/staging/ST-1/documents", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":[{"id":7,"signed_url":"files/a.pdf","signer_name":"Alice"}],"count":1}`))
	})
	pm.HandleFunc("/emeterai/staging/ST-1/stamped", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":[{"id":"9","specific_document_ref":"receive_x.pdf"}]}`))
	})
	srv := httptest.NewServer(pm)
	t.Cleanup(srv.Close)
	return srv
}

type testAPI struct {
	server    *httptest.Server
	provider  *httptest.Server
	confirmer *gate.PendingConfirmer
	orch      *orchestrator.Orchestrator
}

func newTestAPI(t *testing.T, overrides environment.Overrides) *testAPI {
	t.Helper()
	prov := providerServer(t)

	endpoints := environment.Endpoints{Sandbox: prov.URL, Production: prov.URL}
	resolver := environment.NewResolver(environment.NewMemoryStore(), endpoints, overrides, nil)
	confirmer := gate.NewPendingConfirmer()
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	cfg := orchestrator.DefaultConfig()
	cfg.SignPolicy = poller.Policy{Name: "sign", Interval: time.Millisecond, UseFallback: true}
	cfg.StampPolicy = poller.Policy{Name: "stamp", Interval: time.Millisecond}

	clients := func(env models.EnvironmentConfig) orchestrator.JobClient { return provider.New(env) }
	orch := orchestrator.New(
		gate.New(resolver, confirmer, nil),
		clients,
		nil,
		repository.NewEventRepository(),
		monitoring.NewCostTracker(),
		metrics,
		nil,
		cfg,
	)

	r := mux.NewRouter()
	SetupRoutes(r, Handlers{
		Runs:        handlers.NewRunHandler(orch, confirmer, nil),
		Environment: handlers.NewEnvironmentHandler(resolver),
		Documents: handlers.NewDocumentHandler(resolver, func(env models.EnvironmentConfig) handlers.DocumentClient {
			return provider.New(env)
		}, ""),
		Dashboard: handlers.NewDashboardHandler(orch, resolver, time.Minute),
	}, reg)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testAPI{server: srv, provider: prov, confirmer: confirmer, orch: orch}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.server.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	out := map[string]interface{}{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	} else {
		out["body"] = string(raw)
	}
	return resp.StatusCode, out
}

// waitRun polls GET /v1/runs/{id} until cond holds.
func (a *testAPI) waitRun(t *testing.T, id string, cond func(map[string]interface{}) bool) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		code, view := a.do(t, http.MethodGet, "/v1/runs/"+id, nil)
		if code != http.StatusOK {
			t.Fatalf("GET run = %d", code)
		}
		if cond(view) {
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach the expected state", id)
	return nil
}

func finished(v map[string]interface{}) bool { return v["finished"] == true }

func startBody() map[string]interface{} {
	return map[string]interface{}{
		"staging_id":      "ST-1",
		"document_base64": base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")),
		"signer_name":     "Alice",
	}
}

func TestStartRunSandbox(t *testing.T) {
	api := newTestAPI(t, environment.Overrides{})

	code, view := api.do(t, http.MethodPost, "/v1/runs", startBody())
	if code != http.StatusCreated {
		t.Fatalf("POST /v1/runs = %d %v", code, view)
	}
	id, _ := view["id"].(string)
	if id == "" {
		t.Fatalf("missing run id in %v", view)
	}

	done := api.waitRun(t, id, finished)
	outcome := done["outcome"].(map[string]interface{})
	if outcome["kind"] != string(models.OutcomeSigned) {
		t.Fatalf("outcome = %v", outcome)
	}
	if outcome["signed_ref"] != "https://files.test/signed.pdf" {
		t.Errorf("signed_ref = %v", outcome["signed_ref"])
	}
	signJob := done["sign_job"].(map[string]interface{})
	if signJob["id"] != "JOB-1" || signJob["status"] != string(models.JobStatusCompleted) {
		t.Errorf("sign_job = %v", signJob)
	}

	code, events := api.do(t, http.MethodGet, "/v1/runs/"+id+"/events?limit=2", nil)
	if code != http.StatusOK {
		t.Fatalf("GET events = %d", code)
	}
	items := events["items"].([]interface{})
	if len(items) != 2 {
		t.Fatalf("events = %d, want 2", len(items))
	}
	if items[0].(map[string]interface{})["kind"] != string(models.EventRunFinished) {
		t.Errorf("newest event = %v", items[0])
	}
}

func TestStartRunValidation(t *testing.T) {
	api := newTestAPI(t, environment.Overrides{})

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing staging id", map[string]interface{}{"document_base64": "JVBERg=="}},
		{"missing document", map[string]interface{}{"staging_id": "ST-1"}},
		{"bad base64", map[string]interface{}{"staging_id": "ST-1", "document_base64": "***"}},
		{"manifest with path", map[string]interface{}{
			"manifest_yaml": "run:\n  staging_id: ST-1\n  document: /etc/passwd\n",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := api.do(t, http.MethodPost, "/v1/runs", tt.body)
			if code != http.StatusBadRequest {
				t.Fatalf("POST /v1/runs = %d, want 400", code)
			}
		})
	}
}

func TestStartRunFromManifest(t *testing.T) {
	api := newTestAPI(t, environment.Overrides{})

	body := map[string]interface{}{
		"manifest_yaml":   "run:\n  staging_id: ST-1\n  signer:\n    name: Bob\n",
		"document_base64": base64.StdEncoding.EncodeToString([]byte("%PDF")),
	}
	code, view := api.do(t, http.MethodPost, "/v1/runs", body)
	if code != http.StatusCreated {
		t.Fatalf("POST /v1/runs = %d %v", code, view)
	}
	if view["staging_id"] != "ST-1" {
		t.Errorf("staging_id = %v", view["staging_id"])
	}
	api.waitRun(t, view["id"].(string), finished)
}

func TestProductionRunAwaitsConfirmation(t *testing.T) {
	api := newTestAPI(t, environment.Overrides{Target: "production"})

	code, view := api.do(t, http.MethodPost, "/v1/runs", startBody())
	if code != http.StatusCreated {
		t.Fatalf("POST /v1/runs = %d %v", code, view)
	}
	id := view["id"].(string)

	waiting := api.waitRun(t, id, func(v map[string]interface{}) bool {
		_, ok := v["awaiting_confirmation"]
		return ok
	})
	prompt := waiting["awaiting_confirmation"].(map[string]interface{})
	if prompt["message"] != gate.Message(orchestrator.SignActionLabel) {
		t.Errorf("message = %v", prompt["message"])
	}

	// A second run for the same document is refused while the first waits.
	if code, _ := api.do(t, http.MethodPost, "/v1/runs", startBody()); code != http.StatusConflict {
		t.Errorf("duplicate POST /v1/runs = %d, want 409", code)
	}

	if code, _ := api.do(t, http.MethodPost, "/v1/runs/"+id+"/confirm", map[string]interface{}{"approve": false}); code != http.StatusOK {
		t.Fatalf("POST confirm = %d", code)
	}

	done := api.waitRun(t, id, finished)
	outcome := done["outcome"].(map[string]interface{})
	if outcome["kind"] != string(models.OutcomeDeclined) {
		t.Fatalf("outcome = %v", outcome)
	}
	if _, ok := done["sign_job"]; ok {
		t.Error("declined run must not submit a job")
	}

	if code, _ := api.do(t, http.MethodPost, "/v1/runs/"+id+"/confirm", map[string]interface{}{"approve": true}); code != http.StatusConflict {
		t.Errorf("confirm without pending prompt = %d, want 409", code)
	}
}

func TestCancelRunEndpoint(t *testing.T) {
	api := newTestAPI(t, environment.Overrides{Target: "production"})

	_, view := api.do(t, http.MethodPost, "/v1/runs", startBody())
	id := view["id"].(string)
	api.waitRun(t, id, func(v map[string]interface{}) bool {
		_, ok := v["awaiting_confirmation"]
		return ok
	})

	if code, _ := api.do(t, http.MethodPost, "/v1/runs/"+id+"/cancel", nil); code != http.StatusOK {
		t.Fatalf("POST cancel = %d", code)
	}
	done := api.waitRun(t, id, finished)
	if kind := done["outcome"].(map[string]interface{})["kind"]; kind != string(models.OutcomeCancelled) {
		t.Errorf("outcome kind = %v", kind)
	}
}

func TestRunNotFound(t *testing.T) {
	api := newTestAPI(t, environment.Overrides{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/runs/nope"},
		{http.MethodPost, "/v1/runs/nope/cancel"},
		{http.MethodGet, "/v1/runs/nope/events"},
	} {
		if code, _ := api.do(t, tc.method, tc.path, nil); code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.path, code)
		}
	}
}

func TestEnvironmentEndpoints(t *testing.T) {
	api := newTestAPI(t, environment.Overrides{})

	code, env := api.do(t, http.MethodGet, "/v1/environment", nil)
	if code != http.StatusOK || env["target"] != "sandbox" {
		t.Fatalf("GET /v1/environment = %d %v", code, env)
	}

	code, env = api.do(t, http.MethodPut, "/v1/environment", map[string]interface{}{"target": "prod"})
	if code != http.StatusOK || env["target"] != "production" || env["is_production"] != true {
		t.Fatalf("PUT target = %d %v", code, env)
	}

	code, env = api.do(t, http.MethodPut, "/v1/environment", map[string]interface{}{"base_url": "https://example.test"})
	if code != http.StatusOK || env["target"] != "sandbox" || env["base_url"] != api.provider.URL {
		t.Fatalf("PUT base_url = %d %v", code, env)
	}

	if code, _ := api.do(t, http.MethodPut, "/v1/environment", map[string]interface{}{"target": "staging"}); code != http.StatusBadRequest {
		t.Errorf("PUT unknown target = %d, want 400", code)
	}
}

func TestDocumentEndpoints(t *testing.T) {
	api := newTestAPI(t, environment.Overrides{})

	code, signed := api.do(t, http.MethodGet, "/v1/documents/ST-1/signed", nil)
	if code != http.StatusOK {
		t.Fatalf("GET signed = %d", code)
	}
	items := signed["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("signed items = %v", items)
	}
	first := items[0].(map[string]interface{})
	if first["id"] != "7" || first["download_url"] != api.provider.URL+"/files/a.pdf" {
		t.Errorf("signed item = %v", first)
	}

	code, stamped := api.do(t, http.MethodGet, "/v1/documents/ST-1/stamped?document_type=Reimbursement", nil)
	if code != http.StatusOK {
		t.Fatalf("GET stamped = %d", code)
	}
	st := stamped["items"].([]interface{})[0].(map[string]interface{})
	want := api.provider.URL + "/esign/download/stamped/Reimbursement/receive_x.pdf"
	if st["download_url"] != want {
		t.Errorf("stamped download_url = %v, want %s", st["download_url"], want)
	}

	// The provider answers 404 for staging ids with nothing signed yet.
	code, none := api.do(t, http.MethodGet, "/v1/documents/ST-2/signed", nil)
	if code != http.StatusOK || len(none["items"].([]interface{})) != 0 {
		t.Errorf("GET unknown staging = %d %v, want empty list", code, none)
	}

	code, doc := api.do(t, http.MethodGet, "/v1/documents/jobs/JOB-1", nil)
	if code != http.StatusOK || doc["url"] != api.provider.URL+"/dl/JOB-1.pdf" {
		t.Errorf("GET job document = %d %v", code, doc)
	}
}

func TestDashboardAndHealth(t *testing.T) {
	api := newTestAPI(t, environment.Overrides{Target: "production"})

	_, view := api.do(t, http.MethodPost, "/v1/runs", startBody())
	id := view["id"].(string)
	api.waitRun(t, id, func(v map[string]interface{}) bool {
		_, ok := v["awaiting_confirmation"]
		return ok
	})

	code, dash := api.do(t, http.MethodGet, "/v1/dashboard", nil)
	if code != http.StatusOK {
		t.Fatalf("GET /v1/dashboard = %d", code)
	}
	runs := dash["runs"].(map[string]interface{})
	if runs["active"] != float64(1) || runs["stalled"] != float64(0) {
		t.Errorf("dashboard runs = %v", runs)
	}
	if env := dash["environment"].(map[string]interface{}); env["label"] != "Production" {
		t.Errorf("dashboard environment = %v", env)
	}

	api.do(t, http.MethodPost, "/v1/runs/"+id+"/cancel", nil)
	api.waitRun(t, id, finished)

	if code, body := api.do(t, http.MethodGet, "/health", nil); code != http.StatusOK || body["body"] != "OK" {
		t.Errorf("GET /health = %d %v", code, body)
	}
	code, metrics := api.do(t, http.MethodGet, "/metrics", nil)
	if code != http.StatusOK || !strings.Contains(metrics["body"].(string), "esign_") {
		t.Errorf("GET /metrics = %d", code)
	}
}
