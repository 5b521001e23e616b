package config

import (
	"fmt"
	"time"
)

// Config is the root configuration document.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Database    DatabaseConfig    `yaml:"database"`
	ModelRouter ModelRouterConfig `yaml:"model_router"`
	HITL        HITLConfig        `yaml:"hitl"`
	Audit       AuditConfig       `yaml:"audit"`
	Policies    PoliciesConfig    `yaml:"policy_engine"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// ListenAddress is the host:port to bind (default ":8080").
	ListenAddress string `yaml:"listen_address"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`
}

// DatabaseConfig locates the SQLite stores.
type DatabaseConfig struct {
	// AuditPath is the audit event store file.
	AuditPath string `yaml:"audit_path"`

	// ReviewPath is the review queue store file.
	ReviewPath string `yaml:"review_path"`

	// BusyTimeout is how long either store waits for locks.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// ModelRouterConfig configures model selection and providers.
type ModelRouterConfig struct {
	DefaultModel  string `yaml:"default_model"`
	FallbackModel string `yaml:"fallback_model"`

	// TimeoutSeconds bounds each provider attempt.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// MaxRetries is retries after the first attempt per model.
	MaxRetries int `yaml:"max_retries"`

	// UseLocalDaemon registers the Ollama adapter.
	UseLocalDaemon bool `yaml:"use_local_daemon"`

	// LocalDaemonBaseURL is the Ollama address.
	LocalDaemonBaseURL string `yaml:"local_daemon_base_url"`

	// API keys come from the environment only, never the file.
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
}

// Timeout returns TimeoutSeconds as a duration.
func (c *ModelRouterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HITLConfig configures the review queue.
type HITLConfig struct {
	// DefaultPriority is assigned to escalation-created reviews.
	DefaultPriority int `yaml:"default_priority"`

	// ReviewTTL is how long a pending review stays claimable.
	// Zero means reviews never expire.
	ReviewTTL time.Duration `yaml:"review_ttl"`

	// LockDuration is the default dequeue lock.
	LockDuration time.Duration `yaml:"lock_duration"`

	// ReaperSchedule is a cron expression for queue maintenance.
	ReaperSchedule string `yaml:"reaper_schedule"`

	// BypassEnabled turns on the approved-review escalation bypass.
	BypassEnabled bool `yaml:"bypass_enabled"`

	// BypassMaxAge bounds how old an approval may be to grant a
	// bypass.
	BypassMaxAge time.Duration `yaml:"bypass_max_age"`
}

// AuditConfig configures the audit pipeline.
type AuditConfig struct {
	// BufferSize is the async event buffer capacity.
	BufferSize int `yaml:"buffer_size"`

	// WriteTimeout bounds each store write.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PoliciesConfig configures the policy engine's runtime behavior.
// The policies: list itself lives at the document's top level and is
// parsed by the engine.
type PoliciesConfig struct {
	// HotReload enables the fsnotify watcher on the config file.
	HotReload bool `yaml:"hot_reload"`
}

// ApplyDefaults fills unset fields with production defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 90 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Database.AuditPath == "" {
		cfg.Database.AuditPath = "data/audit.db"
	}
	if cfg.Database.ReviewPath == "" {
		cfg.Database.ReviewPath = "data/reviews.db"
	}
	if cfg.Database.BusyTimeout == 0 {
		cfg.Database.BusyTimeout = 5 * time.Second
	}

	if cfg.ModelRouter.TimeoutSeconds == 0 {
		cfg.ModelRouter.TimeoutSeconds = 30
	}
	if cfg.ModelRouter.MaxRetries == 0 {
		cfg.ModelRouter.MaxRetries = 2
	}
	if cfg.ModelRouter.LocalDaemonBaseURL == "" {
		cfg.ModelRouter.LocalDaemonBaseURL = "http://localhost:11434"
	}

	if cfg.HITL.LockDuration == 0 {
		cfg.HITL.LockDuration = 5 * time.Minute
	}
	if cfg.HITL.ReaperSchedule == "" {
		cfg.HITL.ReaperSchedule = "* * * * *"
	}
	if cfg.HITL.BypassMaxAge == 0 {
		cfg.HITL.BypassMaxAge = 7 * 24 * time.Hour
	}

	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = 1024
	}
	if cfg.Audit.WriteTimeout == 0 {
		cfg.Audit.WriteTimeout = 5 * time.Second
	}
}

// Validate checks the configuration for contradictions.
func Validate(cfg *Config) error {
	if cfg.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}
	if cfg.ModelRouter.DefaultModel == "" {
		return fmt.Errorf("model_router.default_model is required")
	}
	if cfg.ModelRouter.TimeoutSeconds <= 0 {
		return fmt.Errorf("model_router.timeout_seconds must be positive")
	}
	if cfg.ModelRouter.MaxRetries < 0 {
		return fmt.Errorf("model_router.max_retries cannot be negative")
	}
	if cfg.Database.AuditPath == "" {
		return fmt.Errorf("database.audit_path cannot be empty")
	}
	if cfg.Database.ReviewPath == "" {
		return fmt.Errorf("database.review_path cannot be empty")
	}
	if cfg.HITL.LockDuration <= 0 {
		return fmt.Errorf("hitl.lock_duration must be positive")
	}
	return nil
}
