// Ideabankd mines AI-assistant conversation history for recurring
// ideas, insights, and use-cases, and serves the run pipeline and the
// harmonized item library over HTTP with SSE progress streaming.
//
// Configuration is loaded from ~/.config/ideabank/config.yaml with
// environment variable overrides. See internal/config for details.
//
// Usage:
//
//	# Start with defaults (embedded vector store)
//	ideabankd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9180 VECTORSTORE_BACKEND=qdrant ideabankd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ideabank/internal/config"
	"github.com/fyrsmithlabs/ideabank/internal/dedup"
	"github.com/fyrsmithlabs/ideabank/internal/embeddings"
	"github.com/fyrsmithlabs/ideabank/internal/extract"
	"github.com/fyrsmithlabs/ideabank/internal/harmonize"
	ibhttp "github.com/fyrsmithlabs/ideabank/internal/http"
	"github.com/fyrsmithlabs/ideabank/internal/library"
	"github.com/fyrsmithlabs/ideabank/internal/llm"
	"github.com/fyrsmithlabs/ideabank/internal/logging"
	"github.com/fyrsmithlabs/ideabank/internal/rank"
	"github.com/fyrsmithlabs/ideabank/internal/run"
	"github.com/fyrsmithlabs/ideabank/internal/search"
	"github.com/fyrsmithlabs/ideabank/internal/telemetry"
	"github.com/fyrsmithlabs/ideabank/internal/vectorstore"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/ideabank/config.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ideabankd %s (%s, built %s)\n", version, gitCommit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := runDaemon(ctx, *configPath); err != nil {
		log.Fatalf("ideabankd: %v", err)
	}
}

func runDaemon(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Fields: map[string]string{"service": cfg.Observability.ServiceName},
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting ideabankd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Backend),
	)

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
		}
	}()

	store, err := vectorstore.New(vectorstore.Options{
		Backend:    cfg.VectorStore.Backend,
		Path:       cfg.VectorStore.Path,
		Host:       cfg.VectorStore.Host,
		Port:       cfg.VectorStore.Port,
		VectorSize: cfg.VectorStore.VectorSize,
	}, logger.Underlying())
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer func() { _ = store.Close() }()

	embedder, err := embeddings.New(embeddings.Config{
		Provider: cfg.Embedding.Provider,
		BaseURL:  cfg.Embedding.BaseURL,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.APIKey,
	})
	if err != nil {
		return fmt.Errorf("initializing embedder: %w", err)
	}

	client, err := llm.NewAnthropicClient(llm.AnthropicConfig{
		Model:      cfg.Generation.Model,
		APIKey:     cfg.Generation.APIKey,
		BaseURL:    cfg.Generation.BaseURL,
		Timeout:    cfg.Generation.Timeout,
		MaxRetries: cfg.Generation.MaxRetries,
		RateLimit:  cfg.Generation.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("initializing generation client: %w", err)
	}

	searcher, err := search.NewOrchestrator(embedder, store, searchConfig(cfg.Pipeline), logger)
	if err != nil {
		return fmt.Errorf("initializing search orchestrator: %w", err)
	}

	lib, err := library.NewService(store, cfg.VectorStore.VectorSize, logger)
	if err != nil {
		return fmt.Errorf("initializing library: %w", err)
	}

	controller, err := run.NewController(run.Dependencies{
		Searcher:   searcher,
		Generator:  extract.NewGenerator(client, logger),
		Dedup:      dedup.New(embedder, cfg.Pipeline.MinEmbedChars, logger),
		Ranker:     rank.NewRanker(client, cfg.Pipeline.JudgeTemperature, logger),
		Harmonizer: harmonize.NewHarmonizer(lib, logger),
		Library:    lib,
		Cache:      run.NewCache(cfg.Pipeline.CacheTTL, cfg.Pipeline.CacheMaxEntries, nil),
		Pipeline:   cfg.Pipeline,
		Generation: cfg.Generation,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("initializing run controller: %w", err)
	}

	var publisher *ibhttp.EventPublisher
	if cfg.Events.NATSURL != "" {
		nc, err := nats.Connect(cfg.Events.NATSURL)
		if err != nil {
			logger.Warn(ctx, "nats unavailable, event mirror disabled",
				zap.String("url", cfg.Events.NATSURL),
				zap.Error(err),
			)
		} else {
			defer nc.Close()
			publisher = ibhttp.NewEventPublisher(nc, logger)
			logger.Info(ctx, "nats event mirror enabled", zap.String("url", cfg.Events.NATSURL))
		}
	}

	srv, err := ibhttp.NewServer(controller, lib, publisher, logger, cfg.Server)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	logger.Info(ctx, "shutdown complete")
	return nil
}

// searchConfig maps pipeline settings onto the search orchestrator.
// Similarity scores are float32 end to end in the vector store.
func searchConfig(cfg config.PipelineConfig) search.Config {
	return search.Config{
		Concurrency:   cfg.SearchConcurrency,
		Timeout:       cfg.SearchTimeout,
		K:             cfg.SearchK,
		MinSimilarity: float32(cfg.SearchMinSimilarity),
	}
}
