package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file: parse, defaults,
// environment overrides, validate. Environment variables always take
// precedence over file values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Scalar
// overrides follow AEGIS_SECTION_FIELD; credentials use their
// conventional provider names.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("AEGIS_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("AEGIS_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("AEGIS_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("AEGIS_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("AEGIS_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	if val := os.Getenv("AEGIS_DATABASE_AUDIT_PATH"); val != "" {
		cfg.Database.AuditPath = val
	}
	if val := os.Getenv("AEGIS_DATABASE_REVIEW_PATH"); val != "" {
		cfg.Database.ReviewPath = val
	}

	if val := os.Getenv("AEGIS_MODEL_ROUTER_DEFAULT_MODEL"); val != "" {
		cfg.ModelRouter.DefaultModel = val
	}
	if val := os.Getenv("AEGIS_MODEL_ROUTER_FALLBACK_MODEL"); val != "" {
		cfg.ModelRouter.FallbackModel = val
	}
	if val := os.Getenv("AEGIS_MODEL_ROUTER_TIMEOUT_SECONDS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.ModelRouter.TimeoutSeconds = i
		}
	}
	if val := os.Getenv("AEGIS_MODEL_ROUTER_MAX_RETRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.ModelRouter.MaxRetries = i
		}
	}
	if val := os.Getenv("AEGIS_MODEL_ROUTER_LOCAL_DAEMON_BASE_URL"); val != "" {
		cfg.ModelRouter.LocalDaemonBaseURL = val
		cfg.ModelRouter.UseLocalDaemon = true
	}

	// Credentials never live in the file.
	cfg.ModelRouter.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.ModelRouter.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
}
