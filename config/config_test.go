package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS URL nats://localhost:4222, got %s", cfg.NATS.URL)
	}
	if cfg.Sinks.VectorIndex != "document-embeddings" {
		t.Errorf("expected default vector index document-embeddings, got %s", cfg.Sinks.VectorIndex)
	}
	if cfg.Sinks.VectorDimensions != 1536 {
		t.Errorf("expected default vector dimensions 1536, got %d", cfg.Sinks.VectorDimensions)
	}
	if cfg.Pipeline.Deadline != 30*time.Minute {
		t.Errorf("expected default deadline 30m, got %v", cfg.Pipeline.Deadline)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected default retry attempts 3, got %d", cfg.Retry.MaxAttempts)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing NATS URL",
			modify:  func(c *Config) { c.NATS.URL = "" },
			wantErr: true,
		},
		{
			name:    "missing loader endpoint",
			modify:  func(c *Config) { c.Sinks.LoaderEndpoint = "" },
			wantErr: true,
		},
		{
			name:    "missing embedder endpoint",
			modify:  func(c *Config) { c.Sinks.EmbedderEndpoint = "" },
			wantErr: true,
		},
		{
			name:    "zero vector dimensions",
			modify:  func(c *Config) { c.Sinks.VectorDimensions = 0 },
			wantErr: true,
		},
		{
			name:    "negative deadline",
			modify:  func(c *Config) { c.Pipeline.Deadline = -time.Minute },
			wantErr: true,
		},
		{
			name:    "zero max concurrent",
			modify:  func(c *Config) { c.Pipeline.MaxConcurrent = 0 },
			wantErr: true,
		},
		{
			name:    "bad retry multiplier",
			modify:  func(c *Config) { c.Retry.BackoffMultiplier = 0.5 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp file with config
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
nats:
  url: "nats://test:4222"
ontology:
  dir: "/etc/semgraph/schemas"
  ttl: 10m
sinks:
  loader_endpoint: "https://graph.test:8182/loader"
  vector_endpoint: "https://search.test:9200"
  vector_index: "test-embeddings"
  embedder_endpoint: "http://embed.test:8085/embed"
pipeline:
  deadline: 15m
  max_concurrent: 2
retry:
  max_attempts: 5
  base_delay: 2s
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.NATS.URL != "nats://test:4222" {
		t.Errorf("expected NATS URL nats://test:4222, got %s", cfg.NATS.URL)
	}
	if cfg.Ontology.Dir != "/etc/semgraph/schemas" {
		t.Errorf("expected ontology dir /etc/semgraph/schemas, got %s", cfg.Ontology.Dir)
	}
	if cfg.Ontology.TTL != 10*time.Minute {
		t.Errorf("expected ontology TTL 10m, got %v", cfg.Ontology.TTL)
	}
	if cfg.Sinks.VectorIndex != "test-embeddings" {
		t.Errorf("expected vector index test-embeddings, got %s", cfg.Sinks.VectorIndex)
	}
	// Unset in file, default should survive
	if cfg.Sinks.VectorDimensions != 1536 {
		t.Errorf("expected vector dimensions 1536, got %d", cfg.Sinks.VectorDimensions)
	}
	if cfg.Pipeline.Deadline != 15*time.Minute {
		t.Errorf("expected deadline 15m, got %v", cfg.Pipeline.Deadline)
	}
	if cfg.Pipeline.MaxConcurrent != 2 {
		t.Errorf("expected max concurrent 2, got %d", cfg.Pipeline.MaxConcurrent)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected retry attempts 5, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != 2*time.Second {
		t.Errorf("expected base delay 2s, got %v", cfg.Retry.BaseDelay)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		NATS: NATSConfig{
			URL: "nats://override:4222",
		},
		Sinks: SinksConfig{
			VectorIndex: "override-index",
		},
	}

	base.Merge(override)

	if base.NATS.URL != "nats://override:4222" {
		t.Errorf("expected NATS URL nats://override:4222, got %s", base.NATS.URL)
	}
	// Loader endpoint should remain from base since override didn't set it
	if base.Sinks.LoaderEndpoint != "http://localhost:8182/loader" {
		t.Errorf("expected loader endpoint to remain default, got %s", base.Sinks.LoaderEndpoint)
	}
	if base.Sinks.VectorIndex != "override-index" {
		t.Errorf("expected vector index override-index, got %s", base.Sinks.VectorIndex)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Sinks.VectorIndex = "saved-index"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	// Verify file was created
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	// Load and verify
	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Sinks.VectorIndex != "saved-index" {
		t.Errorf("expected vector index saved-index, got %s", loaded.Sinks.VectorIndex)
	}
}

func TestLoaderExplicitPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "semgraph-test.yaml")

	content := `
pipeline:
  max_concurrent: 8
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	loader := NewLoader(nil)
	cfg, err := loader.Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.MaxConcurrent != 8 {
		t.Errorf("expected max concurrent 8, got %d", cfg.Pipeline.MaxConcurrent)
	}

	if _, err := loader.Load(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}
