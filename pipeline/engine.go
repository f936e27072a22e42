package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/semgraph/commit"
	"github.com/c360studio/semgraph/graph"
	"github.com/c360studio/semgraph/ontology"
	"github.com/c360studio/semgraph/retry"
	"github.com/c360studio/semgraph/storage"
	"github.com/c360studio/semgraph/validate"
)

// DefaultDeadline bounds one execution end to end. An execution still
// running when it expires fails with a timeout and dead-letters.
const DefaultDeadline = 30 * time.Minute

// Branch names used in attempts maps and branch results.
const (
	BranchGraph  = "graph"
	BranchVector = "vector"
)

// SchemaSource yields the current ontology model. ontology.Cache
// implements it.
type SchemaSource interface {
	Get(ctx context.Context) (*ontology.Model, error)
}

// GraphCommitter persists a fact graph into the graph database.
type GraphCommitter interface {
	Commit(ctx context.Context, g *graph.FactGraph) (*commit.LoadResult, error)
}

// VectorCommitter upserts chunk embeddings into the search index.
type VectorCommitter interface {
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, documentID string, records []commit.VectorRecord) (*commit.UpsertResult, error)
}

// Archiver stores terminal execution records.
type Archiver interface {
	ArchiveExecution(ctx context.Context, rec *storage.ExecutionRecord) error
}

// Engine drives one execution per Run call. It is safe for concurrent
// use; all per-run state lives in the Execution.
type Engine struct {
	artifacts   ArtifactSource
	builder     *graph.Builder
	schemas     SchemaSource
	validator   *validate.Validator
	graphSink   GraphCommitter
	vectorSink  VectorCommitter
	embedder    commit.Embedder
	runner      *retry.Runner
	archive     Archiver
	deadLetters DeadLetterSink
	triples     TriplePublisher
	deadline    time.Duration
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// EngineConfig assembles an Engine. All collaborators are required
// except Metrics, Logger, and Deadline, which default.
type EngineConfig struct {
	Artifacts   ArtifactSource
	Builder     *graph.Builder
	Schemas     SchemaSource
	Validator   *validate.Validator
	GraphSink   GraphCommitter
	VectorSink  VectorCommitter
	Embedder    commit.Embedder
	Runner      *retry.Runner
	Archive     Archiver
	DeadLetters DeadLetterSink
	Triples     TriplePublisher
	Deadline    time.Duration
	Metrics     *Metrics
	Logger      *slog.Logger
}

// NewEngine validates the wiring and returns an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	switch {
	case cfg.Artifacts == nil:
		return nil, fmt.Errorf("artifact source is required")
	case cfg.Builder == nil:
		return nil, fmt.Errorf("builder is required")
	case cfg.Schemas == nil:
		return nil, fmt.Errorf("schema source is required")
	case cfg.Validator == nil:
		return nil, fmt.Errorf("validator is required")
	case cfg.GraphSink == nil:
		return nil, fmt.Errorf("graph sink is required")
	case cfg.VectorSink == nil:
		return nil, fmt.Errorf("vector sink is required")
	case cfg.Embedder == nil:
		return nil, fmt.Errorf("embedder is required")
	case cfg.Runner == nil:
		return nil, fmt.Errorf("retry runner is required")
	case cfg.Archive == nil:
		return nil, fmt.Errorf("archive store is required")
	case cfg.DeadLetters == nil:
		return nil, fmt.Errorf("dead letter sink is required")
	case cfg.Triples == nil:
		return nil, fmt.Errorf("triple publisher is required")
	}

	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		artifacts:   cfg.Artifacts,
		builder:     cfg.Builder,
		schemas:     cfg.Schemas,
		validator:   cfg.Validator,
		graphSink:   cfg.GraphSink,
		vectorSink:  cfg.VectorSink,
		embedder:    cfg.Embedder,
		runner:      cfg.Runner,
		archive:     cfg.Archive,
		deadLetters: cfg.DeadLetters,
		triples:     cfg.Triples,
		deadline:    cfg.Deadline,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         time.Now,
	}, nil
}

// WithClock replaces the engine's time source. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Run executes the full pipeline for one trigger and always returns a
// terminal record. The error reports why the execution failed; the
// record already captures it, so callers typically just log it.
func (e *Engine) Run(ctx context.Context, trigger Trigger) (*storage.ExecutionRecord, error) {
	exec := newExecution(trigger, e.now(), e.deadline)
	ctx, cancel := context.WithDeadline(ctx, exec.Deadline)
	defer cancel()

	logger := e.logger.With(
		"document_id", exec.DocumentID,
		"correlation_id", exec.CorrelationID)
	logger.Info("Execution started", "deadline", exec.Deadline)

	// Generating
	doc, fg, err := e.generate(ctx, exec, trigger)
	if err != nil {
		return e.fail(ctx, exec, err)
	}
	if err := e.advance(exec, EventFactsGenerated); err != nil {
		return e.fail(ctx, exec, err)
	}

	// Validating
	report, err := e.validate(ctx, exec, fg)
	if err != nil {
		return e.fail(ctx, exec, err)
	}
	if err := e.advance(exec, EventReportReady); err != nil {
		return e.fail(ctx, exec, err)
	}

	// Deciding. Never retried: a FAIL verdict is deterministic for a
	// given graph and schema, so retrying cannot change it.
	if report.Status == validate.StatusFail {
		logger.Warn("Validation rejected document",
			"violations", len(report.Violations),
			"warnings", len(report.Warnings))
		if err := e.advance(exec, EventRejected); err != nil {
			return e.fail(ctx, exec, err)
		}
		return e.finishFailed(ctx, exec, &ValidationError{
			DocumentID: exec.DocumentID,
			Violations: len(report.Violations),
		})
	}
	if err := e.advance(exec, EventAccepted); err != nil {
		return e.fail(ctx, exec, err)
	}

	// CommittingParallel. Both branches always run to completion so the
	// record shows each outcome even when one fails.
	type branchOutcome struct {
		result storage.BranchResult
		err    error
	}
	outcomes := make(chan branchOutcome, 2)
	go func() {
		res, err := e.runGraphBranch(ctx, fg)
		outcomes <- branchOutcome{result: res, err: err}
	}()
	go func() {
		res, err := e.runVectorBranch(ctx, doc)
		outcomes <- branchOutcome{result: res, err: err}
	}()
	if err := e.advance(exec, EventBranchesLaunched); err != nil {
		return e.fail(ctx, exec, err)
	}

	// Joining
	branchErrs := make(map[string]error, 2)
	for range 2 {
		out := <-outcomes
		exec.BranchResults = append(exec.BranchResults, out.result)
		exec.Attempts[out.result.Branch] = out.result.Attempts
		if out.err != nil {
			branchErrs[out.result.Branch] = out.err
		}
	}
	sort.Slice(exec.BranchResults, func(i, j int) bool {
		return exec.BranchResults[i].Branch < exec.BranchResults[j].Branch
	})

	if len(branchErrs) > 0 {
		joinErr := joinBranchError(branchErrs)
		if err := e.advance(exec, EventBranchFailed); err != nil {
			return e.fail(ctx, exec, err)
		}
		return e.finishFailed(ctx, exec, joinErr)
	}

	if err := e.advance(exec, EventAllSucceeded); err != nil {
		return e.fail(ctx, exec, err)
	}
	e.announceTriples(ctx, exec, fg)
	return e.finishSucceeded(ctx, exec)
}

// announceTriples publishes the committed graph for downstream
// consumers. A publish failure never fails the execution; both commits
// are already durable at this point.
func (e *Engine) announceTriples(ctx context.Context, exec *Execution, fg *graph.FactGraph) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := e.triples.PublishGraph(pubCtx, exec.CorrelationID, fg); err != nil {
		e.logger.Warn("Failed to announce committed graph",
			"document_id", exec.DocumentID,
			"error", err)
	}
}

func (e *Engine) generate(ctx context.Context, exec *Execution, trigger Trigger) (*graph.ParsedDocument, *graph.FactGraph, error) {
	defer e.observeStage(StageGenerating, e.now())

	var doc *graph.ParsedDocument
	var fg *graph.FactGraph
	attempts, err := e.runner.Run(ctx, "generate", func(ctx context.Context) error {
		d, err := e.artifacts.Fetch(ctx, trigger.SourceLocation)
		if err != nil {
			return err
		}
		g, err := e.builder.Build(d)
		if err != nil {
			return err
		}
		doc, fg = d, g
		return nil
	})
	exec.Attempts["generate"] = attempts
	if err != nil {
		return nil, nil, fmt.Errorf("generate facts: %w", err)
	}
	return doc, fg, nil
}

func (e *Engine) validate(ctx context.Context, exec *Execution, fg *graph.FactGraph) (*validate.Report, error) {
	defer e.observeStage(StageValidating, e.now())

	var report *validate.Report
	attempts, err := e.runner.Run(ctx, "validate", func(ctx context.Context) error {
		model, err := e.schemas.Get(ctx)
		if err != nil {
			return err
		}
		r, err := e.validator.Validate(fg, model)
		if err != nil {
			return err
		}
		report = r
		return nil
	})
	exec.Attempts["validate"] = attempts
	if err != nil {
		return nil, fmt.Errorf("validate facts: %w", err)
	}

	e.metrics.ValidationReports.WithLabelValues(string(report.Status)).Inc()
	for _, w := range report.Warnings {
		exec.Warnings = append(exec.Warnings, w.Message)
	}
	return report, nil
}

func (e *Engine) runGraphBranch(ctx context.Context, fg *graph.FactGraph) (storage.BranchResult, error) {
	var result *commit.LoadResult
	attempts, err := e.runner.Run(ctx, "graph-commit", func(ctx context.Context) error {
		r, err := e.graphSink.Commit(ctx, fg)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	e.metrics.BranchRetries.WithLabelValues(BranchGraph).Add(float64(attempts))

	res := storage.BranchResult{Branch: BranchGraph, Attempts: attempts}
	if err != nil {
		res.Error = err.Error()
		return res, fmt.Errorf("graph branch: %w", err)
	}
	res.Succeeded = true
	res.Detail, _ = json.Marshal(result)
	return res, nil
}

func (e *Engine) runVectorBranch(ctx context.Context, doc *graph.ParsedDocument) (storage.BranchResult, error) {
	var result *commit.UpsertResult
	attempts, err := e.runner.Run(ctx, "vector-commit", func(ctx context.Context) error {
		if err := e.vectorSink.EnsureIndex(ctx); err != nil {
			return err
		}
		records, err := e.embedChunks(ctx, doc)
		if err != nil {
			return err
		}
		r, err := e.vectorSink.Upsert(ctx, doc.DocumentID, records)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	e.metrics.BranchRetries.WithLabelValues(BranchVector).Add(float64(attempts))

	res := storage.BranchResult{Branch: BranchVector, Attempts: attempts}
	if err != nil {
		res.Error = err.Error()
		return res, fmt.Errorf("vector branch: %w", err)
	}
	res.Succeeded = true
	res.Detail, _ = json.Marshal(result)
	return res, nil
}

func (e *Engine) embedChunks(ctx context.Context, doc *graph.ParsedDocument) ([]commit.VectorRecord, error) {
	texts := make([]string, len(doc.Chunks))
	for i, chunk := range doc.Chunks {
		texts[i] = chunk.Text
	}

	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(doc.Chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(doc.Chunks))
	}

	records := make([]commit.VectorRecord, len(doc.Chunks))
	for i, chunk := range doc.Chunks {
		records[i] = commit.VectorRecord{
			ID:     commit.RecordID(doc.DocumentID, chunk.ChunkID),
			Vector: vectors[i],
			Text:   chunk.Text,
			Metadata: map[string]any{
				"chunkId":     chunk.ChunkID,
				"fileName":    doc.FileName,
				"startOffset": chunk.StartOffset,
				"length":      chunk.Length,
			},
		}
	}
	return records, nil
}

// advance applies a state machine event. A transition rejection is a
// programming error and routes the execution to Failed.
func (e *Engine) advance(exec *Execution, event Event) error {
	return exec.Apply(event, e.now())
}

// fail moves a non-terminal execution to Failed and finishes it.
func (e *Engine) fail(ctx context.Context, exec *Execution, cause error) (*storage.ExecutionRecord, error) {
	if !exec.Stage.Terminal() {
		event := EventStageFailed
		if errors.Is(cause, context.DeadlineExceeded) {
			event = EventDeadlineExceeded
		}
		if err := exec.Apply(event, e.now()); err != nil {
			e.logger.Error("Failed to apply terminal transition",
				"stage", exec.Stage,
				"error", err)
			exec.Stage = StageFailed
		}
	}
	return e.finishFailed(ctx, exec, cause)
}

// finishFailed archives the record and emits exactly one dead letter.
func (e *Engine) finishFailed(ctx context.Context, exec *Execution, cause error) (*storage.ExecutionRecord, error) {
	finished := e.now()
	record := exec.record(finished)

	failedStage := string(exec.Stage)
	if n := len(exec.StageChanges); n > 0 {
		failedStage = exec.StageChanges[n-1].From
	}

	kind := Classify(cause)
	e.logger.Error("Execution failed",
		"document_id", exec.DocumentID,
		"correlation_id", exec.CorrelationID,
		"failed_stage", failedStage,
		"kind", kind,
		"error", cause)

	// Archival uses a fresh context so a blown deadline cannot also
	// suppress the record of its own failure.
	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := e.archive.ArchiveExecution(archiveCtx, record); err != nil {
		e.logger.Error("Failed to archive execution record",
			"correlation_id", exec.CorrelationID,
			"error", err)
	}

	deadLetter := &storage.DeadLetterRecord{
		DocumentID:    exec.DocumentID,
		CorrelationID: exec.CorrelationID,
		FailedStage:   failedStage,
		Error: storage.ErrorDetail{
			Kind:    kind,
			Message: cause.Error(),
		},
		Attempts:      exec.Attempts,
		BranchResults: exec.BranchResults,
		Timestamp:     finished,
	}
	if err := e.deadLetters.Emit(archiveCtx, deadLetter); err != nil {
		e.logger.Error("Failed to emit dead letter",
			"document_id", exec.DocumentID,
			"error", err)
	} else {
		e.metrics.DeadLetters.Inc()
	}

	e.metrics.Executions.WithLabelValues("failed").Inc()
	return record, cause
}

func (e *Engine) finishSucceeded(ctx context.Context, exec *Execution) (*storage.ExecutionRecord, error) {
	record := exec.record(e.now())

	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := e.archive.ArchiveExecution(archiveCtx, record); err != nil {
		e.logger.Error("Failed to archive execution record",
			"correlation_id", exec.CorrelationID,
			"error", err)
	}

	e.metrics.Executions.WithLabelValues("succeeded").Inc()
	e.logger.Info("Execution succeeded",
		"document_id", exec.DocumentID,
		"correlation_id", exec.CorrelationID,
		"duration", record.FinishedAt.Sub(record.StartedAt))
	return record, nil
}

func (e *Engine) observeStage(stage Stage, startedAt time.Time) {
	e.metrics.StageDuration.WithLabelValues(string(stage)).Observe(e.now().Sub(startedAt).Seconds())
}

// joinBranchError folds branch failures into one terminal cause,
// preferring the graph branch for a deterministic classification when
// both failed.
func joinBranchError(errs map[string]error) error {
	if err, ok := errs[BranchGraph]; ok {
		return err
	}
	for _, err := range errs {
		return err
	}
	return nil
}
