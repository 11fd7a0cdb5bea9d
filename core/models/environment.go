package models

import "strings"

// Target represents the provider deployment a run talks to
type Target string

const (
	TargetSandbox    Target = "sandbox"
	TargetProduction Target = "production"
)

// ParseTarget accepts the target keys operators use ("sandbox", "sb",
// "prod", "production") in any case.
func ParseTarget(s string) (Target, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "production":
		return TargetProduction, true
	case "sandbox", "sb":
		return TargetSandbox, true
	default:
		return "", false
	}
}

// EnvironmentConfig is the resolved deployment target and its service base URL
type EnvironmentConfig struct {
	Target  Target `json:"target"`
	BaseURL string `json:"base_url"`
}

// IsProduction reports whether actions against this environment are billable.
func (e EnvironmentConfig) IsProduction() bool {
	return e.Target == TargetProduction
}

// Label returns the display name shown to operators.
func (e EnvironmentConfig) Label() string {
	if e.IsProduction() {
		return "Production"
	}
	return "Sandbox"
}
