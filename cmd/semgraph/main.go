// Package main provides the semgraph binary entry point.
// Semgraph ingests parsed document artifacts into a knowledge graph and
// a vector search index, validating every fact graph against a stored
// ontology before anything is committed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/c360studio/semgraph/config"
	"github.com/c360studio/semgraph/graph"
	"github.com/c360studio/semgraph/ontology"
	pipelineorchestrator "github.com/c360studio/semgraph/processor/pipeline-orchestrator"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semgraph"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "semgraph",
		Short: "Document ingestion pipeline",
		Long: `Semgraph drives parsed documents through schema validation and
commits accepted fact graphs to a graph database and a vector index.

It provides:
- Ontology-backed validation of generated fact graphs
- Parallel graph and vector commits with bounded retries
- Dead-letter records for every failed execution

All components communicate via NATS using the semstreams framework.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func run(configPath, logLevel string) error {
	// Print banner
	printBanner()

	// Configure logging
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.NewLoader(logger).Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Connect to NATS
	ctx := context.Background()
	natsClient, err := connectToNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	// Ensure JetStream streams exist
	js, err := natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}
	if err := ensureStreams(ctx, js, cfg, logger); err != nil {
		return err
	}

	// Seed local schema documents into the schema bucket
	if cfg.Ontology.Dir != "" {
		if err := seedSchemas(ctx, js, cfg.Ontology.Dir, logger); err != nil {
			return fmt.Errorf("seed schemas: %w", err)
		}
		if cfg.Ontology.Watch {
			watcher := ontology.NewDirLoader(cfg.Ontology.Dir, "**/*.{yaml,yml}", logger)
			reseed := &schemaReseeder{js: js, dir: cfg.Ontology.Dir, logger: logger}
			go func() {
				if err := watcher.Watch(ctx, reseed); err != nil {
					logger.Warn("Schema watcher stopped", "error", err)
				}
			}()
		}
	}

	// Serve Prometheus metrics
	if cfg.Pipeline.MetricsAddr != "" {
		go serveMetrics(cfg.Pipeline.MetricsAddr, logger)
	}

	// Build and start the orchestrator component
	rawConfig, err := orchestratorConfig(cfg)
	if err != nil {
		return fmt.Errorf("build orchestrator config: %w", err)
	}

	deps := component.Dependencies{
		NATSClient: natsClient,
		Logger:     logger,
	}
	comp, err := pipelineorchestrator.NewComponent(rawConfig, deps)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	orchestrator, ok := comp.(*pipelineorchestrator.Component)
	if !ok {
		return fmt.Errorf("unexpected component type %T", comp)
	}

	if err := orchestrator.Initialize(); err != nil {
		return fmt.Errorf("initialize orchestrator: %w", err)
	}

	// Setup signal handling
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := orchestrator.Start(signalCtx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	slog.Info("Semgraph ready",
		"version", Version,
		"input", "ingest.document.ready",
		"max_concurrent", cfg.Pipeline.MaxConcurrent)

	// Block until shutdown signal
	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	shutdownTimeout := 30 * time.Second
	if err := orchestrator.Stop(shutdownTimeout); err != nil {
		slog.Error("Error stopping orchestrator", "error", err)
	}

	slog.Info("Semgraph shutdown complete")
	return nil
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║             Semgraph v" + Version + "                    ║")
	fmt.Println("║      Document Ingestion Pipeline              ║")
	fmt.Println("╚═══════════════════════════════════════════════╝")
}

func connectToNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	natsURL := cfg.NATS.URL

	// Environment variable override takes precedence
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		natsURL = envURL
	} else if envURL := os.Getenv("SEMGRAPH_NATS_URL"); envURL != "" {
		natsURL = envURL
	}

	logger.Info("Connecting to NATS", "url", natsURL)

	client, err := natsclient.NewClient(natsURL,
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	logger.Info("Connected to NATS", "url", natsURL)
	return client, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	// Check for common connection errors
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set NATS_URL environment variable to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

func ensureStreams(ctx context.Context, js jetstream.JetStream, cfg *config.Config, logger *slog.Logger) error {
	logger.Debug("Creating JetStream streams")

	streams := []jetstream.StreamConfig{
		{
			Name:     "INGEST",
			Subjects: []string{"ingest.document.>"},
			MaxAge:   24 * time.Hour,
		},
		{
			Name:     "PIPELINE",
			Subjects: []string{"pipeline.execution.>", "pipeline.graph.>"},
			MaxAge:   24 * time.Hour,
		},
		{
			Name:     "DEADLETTER",
			Subjects: []string{cfg.Pipeline.DeadLetterSubject},
			MaxAge:   30 * 24 * time.Hour,
		},
	}

	for _, streamCfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("ensure stream %s: %w", streamCfg.Name, err)
		}
	}

	logger.Debug("JetStream streams ready")
	return nil
}

// seedSchemas publishes local schema documents into the schema bucket so
// a fresh deployment validates against something. The built-in document
// schema is seeded first; local files override it key by key.
func seedSchemas(ctx context.Context, js jetstream.JetStream, dir string, logger *slog.Logger) error {
	store, err := ontology.NewKVStore(ctx, js)
	if err != nil {
		return err
	}

	if err := store.Put(ctx, "00-builtin.yaml", []byte(graph.DefaultSchemaYAML)); err != nil {
		return fmt.Errorf("seed builtin schema: %w", err)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.{yaml,yml}")
	if err != nil {
		return fmt.Errorf("glob schema dir: %w", err)
	}

	for _, match := range matches {
		data, err := os.ReadFile(filepath.Join(dir, match))
		if err != nil {
			return fmt.Errorf("read schema %s: %w", match, err)
		}
		key := strings.ReplaceAll(match, string(filepath.Separator), "-")
		if err := store.Put(ctx, key, data); err != nil {
			return fmt.Errorf("seed schema %s: %w", match, err)
		}
		logger.Debug("Seeded schema document", "file", match, "key", key)
	}

	logger.Info("Schema documents seeded", "dir", dir, "count", len(matches)+1)
	return nil
}

// schemaReseeder pushes changed schema files back into the schema bucket
// so running instances pick them up on the next cache refresh.
type schemaReseeder struct {
	js     jetstream.JetStream
	dir    string
	logger *slog.Logger
}

func (r *schemaReseeder) Invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := seedSchemas(ctx, r.js, r.dir, r.logger); err != nil {
		r.logger.Warn("Failed to reseed schemas", "error", err)
	}
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("Serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server stopped", "error", err)
	}
}

func orchestratorConfig(cfg *config.Config) (json.RawMessage, error) {
	componentCfg := pipelineorchestrator.DefaultConfig()
	componentCfg.LoaderEndpoint = cfg.Sinks.LoaderEndpoint
	componentCfg.VectorEndpoint = cfg.Sinks.VectorEndpoint
	componentCfg.VectorIndex = cfg.Sinks.VectorIndex
	componentCfg.VectorDimensions = cfg.Sinks.VectorDimensions
	componentCfg.EmbedderEndpoint = cfg.Sinks.EmbedderEndpoint
	componentCfg.ArtifactBucket = cfg.Pipeline.ArtifactBucket
	componentCfg.SchemaTTL = cfg.Ontology.TTL.String()
	componentCfg.Deadline = cfg.Pipeline.Deadline.String()
	componentCfg.MaxConcurrent = cfg.Pipeline.MaxConcurrent
	componentCfg.Retry = cfg.Retry

	return json.Marshal(componentCfg)
}
