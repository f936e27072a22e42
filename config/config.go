// Package config provides configuration loading and management for Semgraph.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/semgraph/retry"
)

// Config represents the complete Semgraph configuration
type Config struct {
	NATS     NATSConfig     `yaml:"nats"`
	Ontology OntologyConfig `yaml:"ontology"`
	Sinks    SinksConfig    `yaml:"sinks"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Retry    retry.Policy   `yaml:"retry"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL
	URL string `yaml:"url"`
	// Name identifies this client to the server
	Name string `yaml:"name"`
}

// OntologyConfig configures schema loading and caching
type OntologyConfig struct {
	// Dir holds local schema YAML documents seeded into the schema
	// bucket at startup (empty = bucket contents only)
	Dir string `yaml:"dir"`
	// TTL bounds how long a cached schema model is served before a
	// refresh is attempted
	TTL time.Duration `yaml:"ttl"`
	// Watch enables filesystem invalidation for Dir
	Watch bool `yaml:"watch"`
}

// SinksConfig configures the commit targets
type SinksConfig struct {
	// LoaderEndpoint is the graph database bulk loader API
	LoaderEndpoint string `yaml:"loader_endpoint"`
	// VectorEndpoint is the vector search cluster base URL
	VectorEndpoint string `yaml:"vector_endpoint"`
	// VectorIndex is the target index name
	VectorIndex string `yaml:"vector_index"`
	// VectorDimensions is the embedding width
	VectorDimensions int `yaml:"vector_dimensions"`
	// EmbedderEndpoint is the embedding service URL
	EmbedderEndpoint string `yaml:"embedder_endpoint"`
}

// PipelineConfig configures execution orchestration
type PipelineConfig struct {
	// Deadline bounds one execution end to end
	Deadline time.Duration `yaml:"deadline"`
	// MaxConcurrent bounds executions in flight
	MaxConcurrent int `yaml:"max_concurrent"`
	// ArtifactBucket names the object store bucket holding parsed
	// document artifacts
	ArtifactBucket string `yaml:"artifact_bucket"`
	// DeadLetterSubject is where failed executions are announced
	DeadLetterSubject string `yaml:"dead_letter_subject"`
	// MetricsAddr serves Prometheus metrics when non-empty
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:  "nats://localhost:4222",
			Name: "semgraph",
		},
		Ontology: OntologyConfig{
			Dir:   "",
			TTL:   time.Hour,
			Watch: false,
		},
		Sinks: SinksConfig{
			LoaderEndpoint:   "http://localhost:8182/loader",
			VectorEndpoint:   "http://localhost:9200",
			VectorIndex:      "document-embeddings",
			VectorDimensions: 1536,
			EmbedderEndpoint: "http://localhost:8085/embed",
		},
		Pipeline: PipelineConfig{
			Deadline:          30 * time.Minute,
			MaxConcurrent:     4,
			ArtifactBucket:    "SEMGRAPH_ARTIFACTS",
			DeadLetterSubject: "pipeline.deadletter",
			MetricsAddr:       ":9090",
		},
		Retry: retry.DefaultPolicy(),
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.Sinks.LoaderEndpoint == "" {
		return fmt.Errorf("sinks.loader_endpoint is required")
	}
	if c.Sinks.VectorEndpoint == "" {
		return fmt.Errorf("sinks.vector_endpoint is required")
	}
	if c.Sinks.EmbedderEndpoint == "" {
		return fmt.Errorf("sinks.embedder_endpoint is required")
	}
	if c.Sinks.VectorDimensions <= 0 {
		return fmt.Errorf("sinks.vector_dimensions must be positive")
	}
	if c.Ontology.TTL <= 0 {
		return fmt.Errorf("ontology.ttl must be positive")
	}
	if c.Pipeline.Deadline <= 0 {
		return fmt.Errorf("pipeline.deadline must be positive")
	}
	if c.Pipeline.MaxConcurrent <= 0 {
		return fmt.Errorf("pipeline.max_concurrent must be positive")
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Name != "" {
		c.NATS.Name = other.NATS.Name
	}

	// Ontology
	if other.Ontology.Dir != "" {
		c.Ontology.Dir = other.Ontology.Dir
	}
	if other.Ontology.TTL != 0 {
		c.Ontology.TTL = other.Ontology.TTL
	}
	if other.Ontology.Watch {
		c.Ontology.Watch = true
	}

	// Sinks
	if other.Sinks.LoaderEndpoint != "" {
		c.Sinks.LoaderEndpoint = other.Sinks.LoaderEndpoint
	}
	if other.Sinks.VectorEndpoint != "" {
		c.Sinks.VectorEndpoint = other.Sinks.VectorEndpoint
	}
	if other.Sinks.VectorIndex != "" {
		c.Sinks.VectorIndex = other.Sinks.VectorIndex
	}
	if other.Sinks.VectorDimensions != 0 {
		c.Sinks.VectorDimensions = other.Sinks.VectorDimensions
	}
	if other.Sinks.EmbedderEndpoint != "" {
		c.Sinks.EmbedderEndpoint = other.Sinks.EmbedderEndpoint
	}

	// Pipeline
	if other.Pipeline.Deadline != 0 {
		c.Pipeline.Deadline = other.Pipeline.Deadline
	}
	if other.Pipeline.MaxConcurrent != 0 {
		c.Pipeline.MaxConcurrent = other.Pipeline.MaxConcurrent
	}
	if other.Pipeline.ArtifactBucket != "" {
		c.Pipeline.ArtifactBucket = other.Pipeline.ArtifactBucket
	}
	if other.Pipeline.DeadLetterSubject != "" {
		c.Pipeline.DeadLetterSubject = other.Pipeline.DeadLetterSubject
	}
	if other.Pipeline.MetricsAddr != "" {
		c.Pipeline.MetricsAddr = other.Pipeline.MetricsAddr
	}

	// Retry
	if other.Retry.MaxAttempts != 0 {
		c.Retry.MaxAttempts = other.Retry.MaxAttempts
	}
	if other.Retry.BaseDelay != 0 {
		c.Retry.BaseDelay = other.Retry.BaseDelay
	}
	if other.Retry.BackoffMultiplier != 0 {
		c.Retry.BackoffMultiplier = other.Retry.BackoffMultiplier
	}
	if other.Retry.MaxDelay != 0 {
		c.Retry.MaxDelay = other.Retry.MaxDelay
	}
}
