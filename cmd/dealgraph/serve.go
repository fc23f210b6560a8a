package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sellside/dealgraph"
	"github.com/sellside/dealgraph/pkg/config"
	"github.com/sellside/dealgraph/pkg/driver"
	"github.com/sellside/dealgraph/pkg/embedder"
	"github.com/sellside/dealgraph/pkg/extraction"
	"github.com/sellside/dealgraph/pkg/fastpath"
	"github.com/sellside/dealgraph/pkg/rerank"
	"github.com/sellside/dealgraph/pkg/resolution"
	"github.com/sellside/dealgraph/pkg/server"
	"github.com/sellside/dealgraph/pkg/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dealgraph HTTP server",
	Long: `Start the HTTP server exposing ingestion, retrieval, episode listing and
entity resolution over REST. Configuration comes from dealgraph.yaml,
environment variables and flags.`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
	serveMode string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "server host")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port")
	serveCmd.Flags().StringVar(&serveMode, "mode", "", "gin mode (debug, release, test)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serveMode
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := buildClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	if err := client.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	srv := server.New(cfg, client, logger)
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	}
}

// buildLogger assembles the structured logger, teeing warnings and errors
// into parquet when a telemetry path is configured.
func buildLogger(cfg *config.Config) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	if cfg.Telemetry.ParquetPath != "" {
		if err := os.MkdirAll(cfg.Telemetry.ParquetPath, 0o755); err != nil {
			return nil, fmt.Errorf("create telemetry directory: %w", err)
		}
		parquetHandler, err := telemetry.NewParquetHandler(handler, cfg.Telemetry.ParquetPath)
		if err != nil {
			return nil, fmt.Errorf("init telemetry handler: %w", err)
		}
		handler = parquetHandler
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// buildClient wires the production collaborators from configuration.
func buildClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dealgraph.Client, error) {
	store, err := driver.NewNeo4jStore(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
	if err != nil {
		return nil, fmt.Errorf("connect neo4j: %w", err)
	}

	index, err := fastpath.NewPostgresIndex(ctx, cfg.Postgres.DSN, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	embedClient, err := buildEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}

	var extractor *extraction.Extractor
	if cfg.Extraction.APIKey != "" {
		chatClient := extraction.NewOpenAIClient(extraction.OpenAIConfig{
			APIKey:      cfg.Extraction.APIKey,
			BaseURL:     cfg.Extraction.BaseURL,
			Model:       cfg.Extraction.Model,
			Temperature: cfg.Extraction.Temperature,
			MaxTokens:   cfg.Extraction.MaxTokens,
		}, logger)
		extractor = extraction.NewExtractor(chatClient)
	} else {
		logger.Warn("no extraction api key configured, graph extraction disabled")
	}

	var reranker rerank.Reranker
	if cfg.Reranker.BaseURL != "" {
		reranker = rerank.NewCrossEncoder(rerank.CrossEncoderConfig{
			BaseURL: cfg.Reranker.BaseURL,
			APIKey:  cfg.Reranker.APIKey,
			Model:   cfg.Reranker.Model,
			Timeout: cfg.Reranker.Timeout,
		}, logger)
	}

	var latency *telemetry.LatencyRecorder
	if cfg.Telemetry.ParquetPath != "" {
		latency, err = telemetry.NewLatencyRecorder(cfg.Telemetry.ParquetPath)
		if err != nil {
			return nil, fmt.Errorf("init latency recorder: %w", err)
		}
	}

	return dealgraph.New(ctx, dealgraph.Options{
		Store:               store,
		Index:               index,
		Embedder:            embedClient,
		Extractor:           extractor,
		Reranker:            reranker,
		Resolution:          resolution.Config{High: cfg.Resolution.High, Low: cfg.Resolution.Low},
		MaxConcurrency:      cfg.Ingestion.MaxConcurrency,
		EpisodeCharLimit:    cfg.Ingestion.EpisodeCharLimit,
		RetrievalBudget:     time.Duration(cfg.Retrieval.BudgetMS) * time.Millisecond,
		GraphBudgetFraction: cfg.Retrieval.GraphBudgetFraction,
		Latency:             latency,
		Logger:              logger,
	})
}

// buildEmbedder stacks the OpenAI embedder with the badger cache and the
// circuit breaker.
func buildEmbedder(cfg *config.Config, logger *slog.Logger) (embedder.Client, error) {
	base := embedder.NewOpenAIEmbedder(embedder.OpenAIConfig{
		APIKey:            cfg.Embedding.APIKey,
		BaseURL:           cfg.Embedding.BaseURL,
		Model:             cfg.Embedding.Model,
		Dimensions:        cfg.Embedding.Dimensions,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	}, logger)

	cached, err := embedder.NewCachedEmbedder(base, cfg.Embedding.CachePath, logger)
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	return embedder.NewBreakerEmbedder(cached, logger), nil
}
