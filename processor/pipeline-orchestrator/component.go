// Package pipelineorchestrator provides the processor component that
// consumes document-ready triggers and drives each one through the
// ingestion pipeline to a terminal outcome.
package pipelineorchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/semgraph/commit"
	"github.com/c360studio/semgraph/graph"
	"github.com/c360studio/semgraph/ontology"
	"github.com/c360studio/semgraph/pipeline"
	"github.com/c360studio/semgraph/retry"
	"github.com/c360studio/semgraph/storage"
	"github.com/c360studio/semgraph/validate"
)

// ExecutionRunner runs one pipeline execution to its terminal stage.
// pipeline.Engine implements it; tests substitute fakes.
type ExecutionRunner interface {
	Run(ctx context.Context, trigger pipeline.Trigger) (*storage.ExecutionRecord, error)
}

// Component implements the pipeline-orchestrator processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	engine ExecutionRunner

	// Resolved subjects from port config
	inputSubject  string
	inputStream   string
	outputSubject string

	// Bounded concurrency for in-flight executions
	slots chan struct{}

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	inflight  sync.WaitGroup

	// Metrics
	triggersProcessed atomic.Int64
	triggersRejected  atomic.Int64
	executionsFailed  atomic.Int64
	lastActivityMu    sync.RWMutex
	lastActivity      time.Time
}

// NewComponent creates a new pipeline-orchestrator component.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if config.Ports == nil {
		config = DefaultConfig()
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("unmarshal config with defaults: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	inputSubject := "ingest.document.ready"
	inputStream := "INGEST"
	outputSubject := "pipeline.execution.completed"

	if config.Ports != nil {
		if len(config.Ports.Inputs) > 0 {
			inputSubject = config.Ports.Inputs[0].Subject
			inputStream = config.Ports.Inputs[0].StreamName
		}
		if len(config.Ports.Outputs) > 0 {
			outputSubject = config.Ports.Outputs[0].Subject
		}
	}

	return &Component{
		name:          "pipeline-orchestrator",
		config:        config,
		natsClient:    deps.NATSClient,
		logger:        deps.GetLogger(),
		inputSubject:  inputSubject,
		inputStream:   inputStream,
		outputSubject: outputSubject,
		slots:         make(chan struct{}, config.GetMaxConcurrent()),
	}, nil
}

// SetEngine overrides the execution runner. Must be called before Start.
func (c *Component) SetEngine(engine ExecutionRunner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine = engine
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	return nil
}

// Start builds the engine if none was injected, then begins consuming
// triggers.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	if c.engine == nil {
		engine, err := c.buildEngine(ctx)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("build engine: %w", err)
		}
		c.engine = engine
	}

	c.running = true
	c.startTime = time.Now()

	consumeCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	consumerCfg := natsclient.StreamConsumerConfig{
		StreamName:    c.inputStream,
		ConsumerName:  "pipeline-orchestrator",
		FilterSubject: c.inputSubject,
		DeliverPolicy: "new",
		AckPolicy:     "explicit",
		MaxDeliver:    3,
		AckWait:       30 * time.Second,
	}

	err := c.natsClient.ConsumeStreamWithConfig(consumeCtx, consumerCfg, c.handleMessage)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("start consumer: %w", err)
	}

	c.logger.Info("pipeline-orchestrator started",
		"input", c.inputSubject,
		"output", c.outputSubject,
		"max_concurrent", c.config.GetMaxConcurrent(),
		"deadline", c.config.GetDeadline())

	return nil
}

// buildEngine wires the production pipeline from the component config.
func (c *Component) buildEngine(ctx context.Context) (*pipeline.Engine, error) {
	js, err := c.natsClient.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get jetstream: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	artifacts, err := getOrCreateObjectStore(setupCtx, js, c.config.GetArtifactBucket())
	if err != nil {
		return nil, fmt.Errorf("open artifact bucket: %w", err)
	}

	schemaStore, err := ontology.NewKVStore(setupCtx, js)
	if err != nil {
		return nil, fmt.Errorf("open schema bucket: %w", err)
	}

	stager, err := commit.NewStager(setupCtx, js)
	if err != nil {
		return nil, fmt.Errorf("open staging bucket: %w", err)
	}

	store, err := storage.NewStore(setupCtx, js)
	if err != nil {
		return nil, fmt.Errorf("open record buckets: %w", err)
	}

	cache := ontology.NewCache(schemaStore, c.logger,
		ontology.WithTTL(c.config.GetSchemaTTL()))

	graphSink := commit.NewGraphStore(stager, commit.GraphStoreConfig{
		LoaderEndpoint: c.config.LoaderEndpoint,
	}, c.logger)

	vectorSink := commit.NewVectorIndex(commit.VectorIndexConfig{
		Endpoint:   c.config.VectorEndpoint,
		IndexName:  c.config.VectorIndex,
		Dimensions: c.config.VectorDimensions,
	}, c.logger)

	return pipeline.NewEngine(pipeline.EngineConfig{
		Artifacts:   pipeline.NewObjectArtifactSource(artifacts),
		Builder:     graph.NewBuilder(),
		Schemas:     cache,
		Validator:   validate.New(),
		GraphSink:   graphSink,
		VectorSink:  vectorSink,
		Embedder:    commit.NewHTTPEmbedder(c.config.EmbedderEndpoint, nil),
		Runner:      retry.NewRunner(c.config.GetRetryPolicy(), c.logger),
		Archive:     store,
		DeadLetters: pipeline.NewNATSDeadLetterSink(c.natsClient, store, "", c.logger),
		Triples:     pipeline.NewNATSTriplePublisher(c.natsClient, "", c.logger),
		Deadline:    c.config.GetDeadline(),
		Metrics:     pipeline.NewMetrics(prometheus.DefaultRegisterer),
		Logger:      c.logger,
	})
}

func getOrCreateObjectStore(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.ObjectStore, error) {
	store, err := js.ObjectStore(ctx, bucket)
	if err == nil {
		return store, nil
	}
	return js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Parsed document artifacts awaiting ingestion",
	})
}

// handleMessage admits one trigger and runs its execution. The message
// is acked once admitted: the engine owns failure durability through
// dead letters, and a redelivery would start a duplicate execution.
func (c *Component) handleMessage(ctx context.Context, msg jetstream.Msg) {
	trigger, err := decodeTrigger(msg.Data())
	if err != nil {
		c.logger.Warn("Rejected malformed trigger",
			"error", err,
			"subject", msg.Subject())
		c.triggersRejected.Add(1)
		_ = msg.Term()
		return
	}

	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
	c.updateLastActivity()

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer func() { <-c.slots }()
		c.runExecution(ctx, trigger)
	}()
}

func (c *Component) runExecution(ctx context.Context, trigger pipeline.Trigger) {
	record, err := c.engine.Run(ctx, trigger)
	c.triggersProcessed.Add(1)
	if err != nil {
		c.executionsFailed.Add(1)
	}
	if record == nil {
		return
	}

	completion := CompletionPayload{
		DocumentID:    record.DocumentID,
		CorrelationID: record.CorrelationID,
		FinalStage:    record.FinalStage,
		Succeeded:     record.Succeeded,
		Warnings:      len(record.Warnings),
	}
	baseMsg := message.NewBaseMessage(CompletionType, &completion, c.name)
	data, err := json.Marshal(baseMsg)
	if err != nil {
		c.logger.Warn("Failed to marshal completion event",
			"document_id", record.DocumentID,
			"error", err)
		return
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.natsClient.PublishToStream(publishCtx, c.outputSubject, data); err != nil {
		c.logger.Warn("Failed to publish completion event",
			"document_id", record.DocumentID,
			"subject", c.outputSubject,
			"error", err)
	}
}

// decodeTrigger accepts either a typed base message or a bare trigger
// object, so external collaborators do not need the envelope format.
// Triggers arriving without a correlation ID get one assigned.
func decodeTrigger(data []byte) (pipeline.Trigger, error) {
	var baseMsg message.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err == nil {
		if payload, ok := baseMsg.Payload().(*TriggerPayload); ok {
			if err := payload.Validate(); err != nil {
				return pipeline.Trigger{}, err
			}
			return triggerFromPayload(payload), nil
		}
	}

	var payload TriggerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return pipeline.Trigger{}, fmt.Errorf("decode trigger: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return pipeline.Trigger{}, err
	}
	return triggerFromPayload(&payload), nil
}

func triggerFromPayload(payload *TriggerPayload) pipeline.Trigger {
	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	return pipeline.Trigger{
		DocumentID:     payload.DocumentID,
		SourceLocation: payload.SourceLocation,
		CorrelationID:  correlationID,
	}
}

// Stop drains in-flight executions and stops the component.
func (c *Component) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.running = false
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	var drainErr error
	select {
	case <-done:
	case <-time.After(timeout):
		drainErr = errors.New("timed out waiting for in-flight executions")
	}

	c.logger.Info("pipeline-orchestrator stopped",
		"triggers_processed", c.triggersProcessed.Load(),
		"triggers_rejected", c.triggersRejected.Load(),
		"executions_failed", c.executionsFailed.Load())

	return drainErr
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "pipeline-orchestrator",
		Type:        "processor",
		Description: "Drives document executions through validation and the parallel graph and vector commits",
		Version:     "1.0.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, portDef := range c.config.Ports.Inputs {
		ports[i] = buildPort(portDef, component.DirectionInput)
	}
	return ports
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = buildPort(portDef, component.DirectionOutput)
	}
	return ports
}

// buildPort creates a component.Port from a PortDefinition, using JetStreamPort
// for jetstream-type ports and NATSPort for core NATS ports.
func buildPort(portDef component.PortDefinition, direction component.Direction) component.Port {
	port := component.Port{
		Name:        portDef.Name,
		Direction:   direction,
		Required:    portDef.Required,
		Description: portDef.Description,
	}
	if portDef.Type == "jetstream" {
		port.Config = component.JetStreamPort{
			StreamName: portDef.StreamName,
			Subjects:   []string{portDef.Subject},
		}
	} else {
		port.Config = component.NATSPort{
			Subject: portDef.Subject,
		}
	}
	return port
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return orchestratorSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	errorCount := int(c.triggersRejected.Load() + c.executionsFailed.Load())

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: errorCount,
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.getLastActivity(),
	}
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}
