package pipelineorchestrator

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/semgraph/retry"
)

// orchestratorSchema defines the configuration schema.
var orchestratorSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the pipeline-orchestrator component.
type Config struct {
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`

	LoaderEndpoint   string `json:"loader_endpoint" schema:"type:string,description:Graph database bulk loader endpoint,category:basic"`
	VectorEndpoint   string `json:"vector_endpoint" schema:"type:string,description:Vector search cluster endpoint,category:basic"`
	VectorIndex      string `json:"vector_index" schema:"type:string,description:Vector index name,category:basic,default:document-embeddings"`
	VectorDimensions int    `json:"vector_dimensions" schema:"type:int,description:Embedding vector dimensions,category:basic,default:1536"`
	EmbedderEndpoint string `json:"embedder_endpoint" schema:"type:string,description:Embedding service endpoint,category:basic"`

	ArtifactBucket string `json:"artifact_bucket" schema:"type:string,description:Object store bucket holding parsed document artifacts,category:advanced,default:SEMGRAPH_ARTIFACTS"`
	SchemaTTL      string `json:"schema_ttl" schema:"type:string,description:Ontology cache time-to-live,category:advanced,default:1h"`
	Deadline       string `json:"deadline" schema:"type:string,description:Per-execution hard deadline,category:advanced,default:30m"`
	MaxConcurrent  int    `json:"max_concurrent" schema:"type:int,description:Maximum executions in flight,category:advanced,default:4"`

	Retry retry.Policy `json:"retry" schema:"type:object,description:Retry policy for pipeline stages,category:advanced"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.LoaderEndpoint == "" {
		return fmt.Errorf("loader_endpoint is required")
	}
	if c.VectorEndpoint == "" {
		return fmt.Errorf("vector_endpoint is required")
	}
	if c.EmbedderEndpoint == "" {
		return fmt.Errorf("embedder_endpoint is required")
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent cannot be negative")
	}
	if c.SchemaTTL != "" {
		if _, err := time.ParseDuration(c.SchemaTTL); err != nil {
			return fmt.Errorf("invalid schema_ttl: %w", err)
		}
	}
	if c.Deadline != "" {
		if _, err := time.ParseDuration(c.Deadline); err != nil {
			return fmt.Errorf("invalid deadline: %w", err)
		}
	}
	if c.Retry != (retry.Policy{}) {
		if err := c.Retry.Validate(); err != nil {
			return fmt.Errorf("invalid retry policy: %w", err)
		}
	}
	return nil
}

// GetSchemaTTL returns the parsed schema cache TTL.
func (c *Config) GetSchemaTTL() time.Duration {
	d, err := time.ParseDuration(c.SchemaTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// GetDeadline returns the parsed per-execution deadline.
func (c *Config) GetDeadline() time.Duration {
	d, err := time.ParseDuration(c.Deadline)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// GetMaxConcurrent returns the in-flight execution bound.
func (c *Config) GetMaxConcurrent() int {
	if c.MaxConcurrent <= 0 {
		return 4
	}
	return c.MaxConcurrent
}

// GetArtifactBucket returns the artifact bucket name.
func (c *Config) GetArtifactBucket() string {
	if c.ArtifactBucket == "" {
		return "SEMGRAPH_ARTIFACTS"
	}
	return c.ArtifactBucket
}

// GetRetryPolicy returns the retry policy, falling back to defaults.
func (c *Config) GetRetryPolicy() retry.Policy {
	if c.Retry == (retry.Policy{}) {
		return retry.DefaultPolicy()
	}
	return c.Retry
}

// DefaultConfig returns the default configuration for the orchestrator.
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "triggers_in",
					Type:        "jetstream",
					Subject:     "ingest.document.ready",
					StreamName:  "INGEST",
					Required:    true,
					Description: "Document-ready triggers from the parsing collaborator",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "completions_out",
					Type:        "jetstream",
					Subject:     "pipeline.execution.completed",
					Required:    true,
					Description: "Terminal execution records for downstream consumers",
				},
			},
		},
		VectorIndex:      "document-embeddings",
		VectorDimensions: 1536,
		ArtifactBucket:   "SEMGRAPH_ARTIFACTS",
		SchemaTTL:        "1h",
		Deadline:         "30m",
		MaxConcurrent:    4,
		Retry:            retry.DefaultPolicy(),
	}
}
