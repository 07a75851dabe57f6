package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crosslister/listing-worker/internal/common"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Worker    WorkerConfig    `yaml:"worker"`
	Redis     RedisConfig     `yaml:"redis"`
	Retry     RetryConfig     `yaml:"retry"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Poster    PosterConfig    `yaml:"poster"`
	Notify    NotifyConfig    `yaml:"notify"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// WorkerConfig holds runtime settings for the worker process.
type WorkerConfig struct {
	Targets       []string      `yaml:"targets"`       // marketplaces to register posters for
	LogLevel      string        `yaml:"logLevel"`      // debug|info|warn|error
	ShutdownGrace time.Duration `yaml:"shutdownGrace"` // time to let the in-flight job finish
}

// RedisConfig holds the queue and checkpoint connection settings.
type RedisConfig struct {
	URL           string        `yaml:"url"` // required, e.g. redis://localhost:6379
	QueueKey      string        `yaml:"queueKey"`
	ProcessingKey string        `yaml:"processingKey"`
	PollInterval  time.Duration `yaml:"pollInterval"`
	CheckpointTTL time.Duration `yaml:"checkpointTTL"`
	StatusTTL     time.Duration `yaml:"statusTTL"`
}

// RetryConfig bounds retries around unreliable poster calls.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"baseDelay"`
	MaxDelay  time.Duration `yaml:"maxDelay"`
}

// OptimizerConfig selects the content optimizer provider.
type OptimizerConfig struct {
	Provider   string             `yaml:"provider"` // "openrouter" or "mock"
	OpenRouter OpenRouterSettings `yaml:"openrouter"`
	Mock       MockDelaySettings  `yaml:"mock"`
}

// OpenRouterSettings config for the OpenAI-compatible optimizer backend.
type OpenRouterSettings struct {
	BaseURL string        `yaml:"baseUrl"`
	APIKey  string        `yaml:"apiKey"` // supports env expansion
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// MockDelaySettings config for mock providers that simulate latency.
type MockDelaySettings struct {
	Delay time.Duration `yaml:"delay"`
}

// SessionsConfig selects the session provider.
type SessionsConfig struct {
	Provider string             `yaml:"provider"` // "api" or "static"
	API      SessionAPISettings `yaml:"api"`
	Static   []StaticCredential `yaml:"static"`
}

// SessionAPISettings config for the backend sessions endpoint.
type SessionAPISettings struct {
	BaseURL string        `yaml:"baseUrl"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
}

// StaticCredential is a config-supplied credential for local runs.
type StaticCredential struct {
	OwnerID   string `yaml:"ownerId"`
	Target    string `yaml:"target"`
	ProfileID string `yaml:"profileId"`
	Cookies   string `yaml:"cookies"`
	ExpiresAt string `yaml:"expiresAt"` // RFC 3339, optional
}

// PosterConfig selects the poster provider and the per-target timeout.
type PosterConfig struct {
	Provider    string            `yaml:"provider"` // "agent" or "mock"
	Agent       AgentSettings     `yaml:"agent"`
	Mock        MockDelaySettings `yaml:"mock"`
	PostTimeout time.Duration     `yaml:"postTimeout"` // hard wall-clock limit per target
}

// AgentSettings config for the browser-automation service.
type AgentSettings struct {
	BaseURL      string        `yaml:"baseUrl"`
	APIKey       string        `yaml:"apiKey"`
	PollInterval time.Duration `yaml:"pollInterval"`
	MaxSteps     int           `yaml:"maxSteps"`
}

// NotifyConfig controls the completion webhook.
type NotifyConfig struct {
	Enabled    bool          `yaml:"enabled"`
	WebhookURL string        `yaml:"webhookUrl"`
	Retries    int           `yaml:"retries"`
	Backoff    time.Duration `yaml:"backoff"`
}

// ArchiveConfig controls the SQLite result archive. Empty path disables it.
type ArchiveConfig struct {
	DatabasePath string `yaml:"databasePath"`
}

// Load reads YAML config from path, expands environment variables, and
// validates it. If path is empty, it falls back to the LISTING_WORKER_CONFIG
// env var and then to "config.yaml".
func Load(path string) (*Config, error) {
	if path == "" {
		if env := os.Getenv("LISTING_WORKER_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// Expand environment variables in file content.
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.Worker.Targets) == 0 {
		cfg.Worker.Targets = []string{"poshmark", "ebay", "mercari"}
	}
	if strings.TrimSpace(cfg.Worker.LogLevel) == "" {
		cfg.Worker.LogLevel = "info"
	}
	if cfg.Worker.ShutdownGrace == 0 {
		cfg.Worker.ShutdownGrace = 30 * time.Second
	}

	if cfg.Redis.QueueKey == "" {
		cfg.Redis.QueueKey = common.DefaultQueueKey
	}
	if cfg.Redis.ProcessingKey == "" {
		cfg.Redis.ProcessingKey = common.DefaultProcessingKey
	}
	if cfg.Redis.PollInterval == 0 {
		cfg.Redis.PollInterval = 5 * time.Second
	}
	if cfg.Redis.CheckpointTTL == 0 {
		cfg.Redis.CheckpointTTL = 7 * 24 * time.Hour
	}
	if cfg.Redis.StatusTTL == 0 {
		cfg.Redis.StatusTTL = 7 * 24 * time.Hour
	}

	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 2 * time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = time.Minute
	}

	if cfg.Optimizer.Provider == "" {
		cfg.Optimizer.Provider = "mock"
	}
	if strings.EqualFold(cfg.Optimizer.Provider, "openrouter") {
		if strings.TrimSpace(cfg.Optimizer.OpenRouter.BaseURL) == "" {
			cfg.Optimizer.OpenRouter.BaseURL = "https://openrouter.ai/api"
		}
		if strings.TrimSpace(cfg.Optimizer.OpenRouter.Model) == "" {
			cfg.Optimizer.OpenRouter.Model = "anthropic/claude-sonnet-4"
		}
		if cfg.Optimizer.OpenRouter.Timeout == 0 {
			cfg.Optimizer.OpenRouter.Timeout = 60 * time.Second
		}
	}

	if cfg.Sessions.Provider == "" {
		cfg.Sessions.Provider = "static"
	}
	if cfg.Sessions.API.Timeout == 0 {
		cfg.Sessions.API.Timeout = 15 * time.Second
	}

	if cfg.Poster.Provider == "" {
		cfg.Poster.Provider = "mock"
	}
	if cfg.Poster.PostTimeout == 0 {
		cfg.Poster.PostTimeout = 2 * time.Minute
	}
	if cfg.Poster.Agent.PollInterval == 0 {
		cfg.Poster.Agent.PollInterval = 2 * time.Second
	}
	if cfg.Poster.Agent.MaxSteps == 0 {
		cfg.Poster.Agent.MaxSteps = 50
	}

	if cfg.Notify.Retries == 0 {
		cfg.Notify.Retries = 3
	}
	if cfg.Notify.Backoff == 0 {
		cfg.Notify.Backoff = 2 * time.Second
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Redis.URL) == "" {
		return errors.New("redis.url is required")
	}
	switch cfg.Optimizer.Provider {
	case "mock":
	case "openrouter":
		if strings.TrimSpace(cfg.Optimizer.OpenRouter.APIKey) == "" {
			return errors.New("optimizer.openrouter.apiKey is required")
		}
	default:
		return fmt.Errorf("unsupported optimizer provider %q", cfg.Optimizer.Provider)
	}
	switch cfg.Sessions.Provider {
	case "static":
	case "api":
		if strings.TrimSpace(cfg.Sessions.API.BaseURL) == "" {
			return errors.New("sessions.api.baseUrl is required")
		}
	default:
		return fmt.Errorf("unsupported sessions provider %q", cfg.Sessions.Provider)
	}
	switch cfg.Poster.Provider {
	case "mock":
	case "agent":
		if strings.TrimSpace(cfg.Poster.Agent.BaseURL) == "" {
			return errors.New("poster.agent.baseUrl is required")
		}
	default:
		return fmt.Errorf("unsupported poster provider %q", cfg.Poster.Provider)
	}
	if cfg.Notify.Enabled && strings.TrimSpace(cfg.Notify.WebhookURL) == "" {
		return errors.New("notify.webhookUrl is required when notifications are enabled")
	}
	return nil
}
