package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/crosslister/listing-worker/internal/common"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
redis:
  url: redis://localhost:6379
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Worker.Targets; len(got) != 3 || got[0] != "poshmark" || got[1] != "ebay" || got[2] != "mercari" {
		t.Fatalf("targets = %v", got)
	}
	if cfg.Worker.LogLevel != "info" {
		t.Fatalf("logLevel = %q", cfg.Worker.LogLevel)
	}
	if cfg.Redis.QueueKey != common.DefaultQueueKey || cfg.Redis.ProcessingKey != common.DefaultProcessingKey {
		t.Fatalf("queue keys = %q / %q", cfg.Redis.QueueKey, cfg.Redis.ProcessingKey)
	}
	if cfg.Redis.CheckpointTTL != 7*24*time.Hour {
		t.Fatalf("checkpointTTL = %v", cfg.Redis.CheckpointTTL)
	}
	if cfg.Retry.Attempts != 3 || cfg.Retry.BaseDelay != 2*time.Second || cfg.Retry.MaxDelay != time.Minute {
		t.Fatalf("retry = %+v", cfg.Retry)
	}
	if cfg.Optimizer.Provider != "mock" || cfg.Sessions.Provider != "static" || cfg.Poster.Provider != "mock" {
		t.Fatalf("providers = %q/%q/%q", cfg.Optimizer.Provider, cfg.Sessions.Provider, cfg.Poster.Provider)
	}
	if cfg.Poster.PostTimeout != 2*time.Minute {
		t.Fatalf("postTimeout = %v", cfg.Poster.PostTimeout)
	}
	if cfg.Worker.ShutdownGrace != 30*time.Second {
		t.Fatalf("shutdownGrace = %v", cfg.Worker.ShutdownGrace)
	}
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_REDIS_URL", "redis://queue-host:6380/1")
	t.Setenv("TEST_OPENROUTER_KEY", "sk-or-abc123")
	path := writeConfig(t, `
redis:
  url: ${TEST_REDIS_URL}
optimizer:
  provider: openrouter
  openrouter:
    apiKey: ${TEST_OPENROUTER_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.URL != "redis://queue-host:6380/1" {
		t.Fatalf("redis url = %q", cfg.Redis.URL)
	}
	if cfg.Optimizer.OpenRouter.APIKey != "sk-or-abc123" {
		t.Fatalf("apiKey = %q", cfg.Optimizer.OpenRouter.APIKey)
	}
	// Provider-specific defaults land alongside the expanded key.
	if cfg.Optimizer.OpenRouter.BaseURL != "https://openrouter.ai/api" {
		t.Fatalf("baseUrl = %q", cfg.Optimizer.OpenRouter.BaseURL)
	}
	if cfg.Optimizer.OpenRouter.Model == "" || cfg.Optimizer.OpenRouter.Timeout != 60*time.Second {
		t.Fatalf("openrouter defaults = %+v", cfg.Optimizer.OpenRouter)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
worker:
  targets: [poshmark, ebay]
  logLevel: debug
  shutdownGrace: 10s
redis:
  url: redis://localhost:6379
  queueKey: queue:custom
  pollInterval: 1s
retry:
  attempts: 5
  baseDelay: 500ms
sessions:
  provider: static
  static:
    - ownerId: user-1
      target: poshmark
      profileId: prof-1
      cookies: "session=abc"
poster:
  provider: agent
  postTimeout: 90s
  agent:
    baseUrl: http://agent:8080
    pollInterval: 1s
notify:
  enabled: true
  webhookUrl: http://backend/hooks/jobs
archive:
  databasePath: /var/lib/worker/results.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Worker.Targets) != 2 || cfg.Worker.ShutdownGrace != 10*time.Second {
		t.Fatalf("worker = %+v", cfg.Worker)
	}
	if cfg.Redis.QueueKey != "queue:custom" || cfg.Redis.PollInterval != time.Second {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if cfg.Retry.Attempts != 5 || cfg.Retry.BaseDelay != 500*time.Millisecond {
		t.Fatalf("retry = %+v", cfg.Retry)
	}
	if len(cfg.Sessions.Static) != 1 || cfg.Sessions.Static[0].ProfileID != "prof-1" {
		t.Fatalf("static creds = %+v", cfg.Sessions.Static)
	}
	if cfg.Poster.PostTimeout != 90*time.Second || cfg.Poster.Agent.MaxSteps != 50 {
		t.Fatalf("poster = %+v", cfg.Poster)
	}
	if !cfg.Notify.Enabled || cfg.Notify.Retries != 3 {
		t.Fatalf("notify = %+v", cfg.Notify)
	}
	if cfg.Archive.DatabasePath == "" {
		t.Fatal("archive path lost")
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing redis url",
			yaml:    `worker: {logLevel: info}`,
			wantErr: "redis.url is required",
		},
		{
			name: "openrouter without api key",
			yaml: `
redis: {url: redis://localhost:6379}
optimizer: {provider: openrouter}
`,
			wantErr: "optimizer.openrouter.apiKey is required",
		},
		{
			name: "unknown optimizer provider",
			yaml: `
redis: {url: redis://localhost:6379}
optimizer: {provider: gpt}
`,
			wantErr: "unsupported optimizer provider",
		},
		{
			name: "api sessions without base url",
			yaml: `
redis: {url: redis://localhost:6379}
sessions: {provider: api}
`,
			wantErr: "sessions.api.baseUrl is required",
		},
		{
			name: "agent poster without base url",
			yaml: `
redis: {url: redis://localhost:6379}
poster: {provider: agent}
`,
			wantErr: "poster.agent.baseUrl is required",
		},
		{
			name: "notifications enabled without webhook",
			yaml: `
redis: {url: redis://localhost:6379}
notify: {enabled: true}
`,
			wantErr: "notify.webhookUrl is required",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_EnvVarFallbackPath(t *testing.T) {
	path := writeConfig(t, `
redis:
  url: redis://localhost:6379
`)
	t.Setenv("LISTING_WORKER_CONFIG", path)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.URL != "redis://localhost:6379" {
		t.Fatalf("redis url = %q", cfg.Redis.URL)
	}
}
