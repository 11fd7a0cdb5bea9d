package config

import (
	"net/http"
	"strings"

	"esign-orchestrator/core/environment"
	"esign-orchestrator/core/orchestrator"
	"esign-orchestrator/core/provider"
	"esign-orchestrator/core/repository"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OpenPreferenceStore opens the store named by PreferencesDSN. The returned
// close func is never nil.
func (c *Config) OpenPreferenceStore() (environment.PreferenceStore, func() error, error) {
	if c.PreferencesDSN == "" || strings.EqualFold(c.PreferencesDSN, "memory") {
		return environment.NewMemoryStore(), func() error { return nil }, nil
	}
	db, err := repository.NewDB(c.PreferencesDSN)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewPreferenceRepository(db, c.ClientID), db.Close, nil
}

// ProviderOptions returns the client options shared by every provider
// client built from this config. All clients share one rate limiter.
func (c *Config) ProviderOptions(logger *zap.Logger) []provider.Option {
	opts := []provider.Option{
		provider.WithHTTPClient(&http.Client{Timeout: c.HTTPTimeout}),
		provider.WithLogger(logger),
		provider.WithOperatorEmail(c.OperatorEmail),
	}
	if c.RequestsPerSecond > 0 {
		burst := int(c.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, provider.WithRateLimiter(rate.NewLimiter(rate.Limit(c.RequestsPerSecond), burst)))
	}
	return opts
}

// Orchestration returns the run settings derived from this config
func (c *Config) Orchestration() orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.SignPolicy.Interval = c.SignPollInterval
	oc.StampPolicy.Interval = c.StampPollInterval
	oc.DocumentType = c.DocumentType
	return oc
}
