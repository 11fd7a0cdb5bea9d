package environment

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"esign-orchestrator/core/models"

	"go.uber.org/zap"
)

// Canonical provider base URLs
const (
	DefaultSandboxURL    = "https://dentsu-kansai-expressiv.idsdev.site"
	DefaultProductionURL = "https://dentsu-kansai-expressiv-prod.idsdev.site"
)

var (
	productionHostPattern = regexp.MustCompile(`(?i)expressiv-prod`)
	absoluteURLPattern    = regexp.MustCompile(`(?i)^https?://`)
)

// Endpoints maps each target onto its canonical base URL
type Endpoints struct {
	Sandbox    string
	Production string
}

// DefaultEndpoints returns the canonical provider endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{Sandbox: DefaultSandboxURL, Production: DefaultProductionURL}
}

// URLFor returns the canonical base URL for a target.
func (e Endpoints) URLFor(target models.Target) string {
	if target == models.TargetProduction {
		return trimURL(e.Production)
	}
	return trimURL(e.Sandbox)
}

// Overrides are explicit, non-persisted settings supplied by the process
// (flags or environment variables). They outrank the stored preference.
type Overrides struct {
	BaseURL string
	Target  string
}

// Resolver determines the active environment from overrides, the stored
// preference and the sandbox default, in that order.
type Resolver struct {
	store     PreferenceStore
	endpoints Endpoints
	overrides Overrides
	logger    *zap.Logger
}

// NewResolver creates a new environment resolver
func NewResolver(store PreferenceStore, endpoints Endpoints, overrides Overrides, logger *zap.Logger) *Resolver {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:     store,
		endpoints: endpoints,
		overrides: overrides,
		logger:    logger,
	}
}

// IsProductionURL reports whether a URL points at the production host.
func IsProductionURL(u string) bool {
	return productionHostPattern.MatchString(u)
}

// Resolve returns the active environment. It never writes to the store, so
// two calls without an intervening Set return the same value.
func (r *Resolver) Resolve(ctx context.Context) (models.EnvironmentConfig, error) {
	if u := strings.TrimSpace(r.overrides.BaseURL); u != "" {
		return r.fromURL(u), nil
	}

	if target, ok := models.ParseTarget(r.overrides.Target); ok {
		return r.fromTarget(target), nil
	}

	pref, err := r.store.Load(ctx)
	if err != nil {
		return models.EnvironmentConfig{}, fmt.Errorf("load environment preference: %w", err)
	}
	if target, ok := models.ParseTarget(pref.Target); ok {
		return r.fromTarget(target), nil
	}
	if pref.BaseURL != "" && IsProductionURL(pref.BaseURL) {
		return r.fromTarget(models.TargetProduction), nil
	}

	return r.fromTarget(models.TargetSandbox), nil
}

// Set persists a target key ("sandbox", "prod", ...) or a full URL as the
// preferred environment. Target and base URL are written together.
func (r *Resolver) Set(ctx context.Context, targetOrURL string) (models.EnvironmentConfig, error) {
	var cfg models.EnvironmentConfig
	if absoluteURLPattern.MatchString(strings.TrimSpace(targetOrURL)) {
		cfg = r.classify(targetOrURL)
	} else {
		target, ok := models.ParseTarget(targetOrURL)
		if !ok {
			target = models.TargetSandbox
		}
		cfg = r.fromTarget(target)
	}

	pref := Preference{Target: string(cfg.Target), BaseURL: cfg.BaseURL}
	if err := r.store.Save(ctx, pref); err != nil {
		return models.EnvironmentConfig{}, fmt.Errorf("save environment preference: %w", err)
	}

	r.logger.Info("environment.set",
		zap.String("target", string(cfg.Target)),
		zap.String("base_url", cfg.BaseURL),
	)

	// An explicit override still wins over what was just stored.
	return r.Resolve(ctx)
}

// Heal rewrites a stored preference whose base URL drifted away from the
// canonical URL of its target. It reports whether a rewrite happened.
func (r *Resolver) Heal(ctx context.Context) (models.EnvironmentConfig, bool, error) {
	cfg, err := r.Resolve(ctx)
	if err != nil {
		return cfg, false, err
	}
	if r.overrides.BaseURL != "" || r.overrides.Target != "" {
		return cfg, false, nil
	}

	pref, err := r.store.Load(ctx)
	if err != nil {
		return cfg, false, fmt.Errorf("load environment preference: %w", err)
	}
	if pref.IsZero() {
		return cfg, false, nil
	}
	if pref.Target == string(cfg.Target) && trimURL(pref.BaseURL) == cfg.BaseURL {
		return cfg, false, nil
	}

	healed := Preference{Target: string(cfg.Target), BaseURL: cfg.BaseURL}
	if err := r.store.Save(ctx, healed); err != nil {
		return cfg, false, fmt.Errorf("save environment preference: %w", err)
	}

	r.logger.Warn("environment.drift_healed",
		zap.String("stored_target", pref.Target),
		zap.String("stored_base_url", pref.BaseURL),
		zap.String("target", string(cfg.Target)),
		zap.String("base_url", cfg.BaseURL),
	)
	return cfg, true, nil
}

// fromURL handles an explicit URL override: production hosts collapse onto
// the canonical production URL, anything else is used as given.
func (r *Resolver) fromURL(u string) models.EnvironmentConfig {
	if IsProductionURL(u) {
		return r.fromTarget(models.TargetProduction)
	}
	return models.EnvironmentConfig{Target: models.TargetSandbox, BaseURL: trimURL(u)}
}

// classify maps a URL onto its target and that target's canonical URL.
func (r *Resolver) classify(u string) models.EnvironmentConfig {
	if IsProductionURL(u) {
		return r.fromTarget(models.TargetProduction)
	}
	return r.fromTarget(models.TargetSandbox)
}

func (r *Resolver) fromTarget(target models.Target) models.EnvironmentConfig {
	return models.EnvironmentConfig{Target: target, BaseURL: r.endpoints.URLFor(target)}
}

func trimURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}
