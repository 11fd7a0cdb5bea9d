package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"esign-orchestrator/core/environment"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// Server
	ServerPort string

	// Preferences: "memory", a SQLite path, or a postgres:// DSN
	PreferencesDSN string
	ClientID       string

	// Provider environment
	EnvironmentOverride string // KASBO_ENV
	BaseURLOverride     string // KASBO_SERVICE_BASE_URL
	SandboxBaseURL      string
	ProductionBaseURL   string

	// Provider calls
	SignPollInterval  time.Duration
	StampPollInterval time.Duration
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
	DocumentType      string
	OperatorEmail     string

	// Monitoring
	StallThreshold time.Duration
	LogLevel       string
}

// fileConfig is the optional YAML file named by ESIGN_CONFIG. Environment
// variables override anything set in it.
type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Preferences struct {
		DSN      string `yaml:"dsn"`
		ClientID string `yaml:"client_id"`
	} `yaml:"preferences"`
	Provider struct {
		Environment       string  `yaml:"environment"`
		BaseURL           string  `yaml:"base_url"`
		SandboxBaseURL    string  `yaml:"sandbox_base_url"`
		ProductionBaseURL string  `yaml:"production_base_url"`
		SignPollInterval  string  `yaml:"sign_poll_interval"`
		StampPollInterval string  `yaml:"stamp_poll_interval"`
		HTTPTimeout       string  `yaml:"http_timeout"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		DocumentType      string  `yaml:"document_type"`
		OperatorEmail     string  `yaml:"operator_email"`
	} `yaml:"provider"`
	Monitoring struct {
		StallThreshold string `yaml:"stall_threshold"`
		LogLevel       string `yaml:"log_level"`
	} `yaml:"monitoring"`
}

// Load loads configuration from the optional YAML file and environment variables
func Load() (*Config, error) {
	var fc fileConfig
	if path := os.Getenv("ESIGN_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	p := fc.Provider
	cfg := &Config{
		ServerPort:          getEnv("SERVER_PORT", or(fc.Server.Port, "8080")),
		PreferencesDSN:      getEnv("PREFERENCES_DSN", or(fc.Preferences.DSN, "memory")),
		ClientID:            getEnv("CLIENT_ID", or(fc.Preferences.ClientID, "default")),
		EnvironmentOverride: getEnv("KASBO_ENV", p.Environment),
		BaseURLOverride:     getEnv("KASBO_SERVICE_BASE_URL", p.BaseURL),
		SandboxBaseURL:      getEnv("SANDBOX_BASE_URL", or(p.SandboxBaseURL, environment.DefaultSandboxURL)),
		ProductionBaseURL:   getEnv("PRODUCTION_BASE_URL", or(p.ProductionBaseURL, environment.DefaultProductionURL)),
		SignPollInterval:    getEnvAsDuration("SIGN_POLL_INTERVAL", parseDuration(p.SignPollInterval, 500*time.Millisecond)),
		StampPollInterval:   getEnvAsDuration("STAMP_POLL_INTERVAL", parseDuration(p.StampPollInterval, 3*time.Second)),
		HTTPTimeout:         getEnvAsDuration("HTTP_TIMEOUT", parseDuration(p.HTTPTimeout, 45*time.Second)),
		RequestsPerSecond:   getEnvAsFloat("PROVIDER_RPS", orFloat(p.RequestsPerSecond, 10)),
		DocumentType:        getEnv("DOCUMENT_TYPE", or(p.DocumentType, "ARInvoices")),
		OperatorEmail:       getEnv("OPERATOR_EMAIL", p.OperatorEmail),
		StallThreshold:      getEnvAsDuration("STALL_THRESHOLD", parseDuration(fc.Monitoring.StallThreshold, 10*time.Minute)),
		LogLevel:            getEnv("LOG_LEVEL", or(fc.Monitoring.LogLevel, "info")),
	}
	return cfg, nil
}

// Endpoints returns the configured canonical provider URLs
func (c *Config) Endpoints() environment.Endpoints {
	return environment.Endpoints{Sandbox: c.SandboxBaseURL, Production: c.ProductionBaseURL}
}

// Overrides returns the process-level environment overrides
func (c *Config) Overrides() environment.Overrides {
	return environment.Overrides{BaseURL: c.BaseURLOverride, Target: c.EnvironmentOverride}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

func or(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func orFloat(value, defaultValue float64) float64 {
	if value > 0 {
		return value
	}
	return defaultValue
}
