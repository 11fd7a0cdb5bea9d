package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"esign-orchestrator/core/environment"
	"esign-orchestrator/core/models"
)

// EnvironmentHandler exposes the provider environment preference
type EnvironmentHandler struct {
	resolver *environment.Resolver
}

// NewEnvironmentHandler creates a new environment handler
func NewEnvironmentHandler(resolver *environment.Resolver) *EnvironmentHandler {
	return &EnvironmentHandler{resolver: resolver}
}

// SetEnvironmentRequest selects an environment by target key or base URL
type SetEnvironmentRequest struct {
	Target  string `json:"target"`
	BaseURL string `json:"base_url"`
}

// GetEnvironment handles GET /v1/environment
func (h *EnvironmentHandler) GetEnvironment(w http.ResponseWriter, r *http.Request) {
	env, err := h.resolver.Resolve(r.Context())
	if err != nil {
		http.Error(w, "Failed to resolve environment: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, environmentView(env))
}

// SetEnvironment handles PUT /v1/environment
func (h *EnvironmentHandler) SetEnvironment(w http.ResponseWriter, r *http.Request) {
	var body SetEnvironmentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	value := strings.TrimSpace(body.BaseURL)
	if value == "" {
		value = strings.TrimSpace(body.Target)
		if _, ok := models.ParseTarget(value); !ok {
			http.Error(w, "target must be one of sandbox, sb, prod, production", http.StatusBadRequest)
			return
		}
	}

	env, err := h.resolver.Set(r.Context(), value)
	if err != nil {
		http.Error(w, "Failed to save environment: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, environmentView(env))
}

func environmentView(env models.EnvironmentConfig) map[string]interface{} {
	return map[string]interface{}{
		"target":        env.Target,
		"base_url":      env.BaseURL,
		"label":         env.Label(),
		"is_production": env.IsProduction(),
	}
}
