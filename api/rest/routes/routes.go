package routes

import (
	"net/http"

	"esign-orchestrator/api/rest/handlers"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups the REST handlers wired by SetupRoutes
type Handlers struct {
	Runs        *handlers.RunHandler
	Environment *handlers.EnvironmentHandler
	Documents   *handlers.DocumentHandler
	Dashboard   *handlers.DashboardHandler
}

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, h Handlers, gatherer prometheus.Gatherer) {
	api := r.PathPrefix("/v1").Subrouter()

	// Run endpoints
	api.HandleFunc("/runs", h.Runs.StartRun).Methods("POST")
	api.HandleFunc("/runs/{id}", h.Runs.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/cancel", h.Runs.CancelRun).Methods("POST")
	api.HandleFunc("/runs/{id}/confirm", h.Runs.ConfirmRun).Methods("POST")
	api.HandleFunc("/runs/{id}/events", h.Runs.GetRunEvents).Methods("GET")

	// Environment endpoints
	api.HandleFunc("/environment", h.Environment.GetEnvironment).Methods("GET")
	api.HandleFunc("/environment", h.Environment.SetEnvironment).Methods("PUT")

	// Document endpoints; the fixed segments are registered first
	api.HandleFunc("/documents/jobs/{id}", h.Documents.GetJobDocument).Methods("GET")
	api.HandleFunc("/documents/transactions/{id}", h.Documents.GetTransactionDocument).Methods("GET")
	api.HandleFunc("/documents/{stagingId}/signed", h.Documents.ListSigned).Methods("GET")
	api.HandleFunc("/documents/{stagingId}/stamped", h.Documents.ListStamped).Methods("GET")

	api.HandleFunc("/dashboard", h.Dashboard.GetDashboard).Methods("GET")

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
}
