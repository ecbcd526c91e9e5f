package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facerecog/internal/batch"
	"github.com/kozaktomas/facerecog/internal/cache"
	"github.com/kozaktomas/facerecog/internal/config"
	"github.com/kozaktomas/facerecog/internal/embedder"
	"github.com/kozaktomas/facerecog/internal/index"
	"github.com/kozaktomas/facerecog/internal/lifecycle"
	"github.com/kozaktomas/facerecog/internal/metrics"
	"github.com/kozaktomas/facerecog/internal/recognition"
	"github.com/kozaktomas/facerecog/internal/store"
	"github.com/kozaktomas/facerecog/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recognition HTTP server",
	Long: `Start the face recognition service: the embedder adapter, descriptor
store, vector index, result cache, recognition coordinator, and batch
engine, fronted by the HTTP API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Server.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Server.Host = host
	}

	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if cfg.Recognition.Profile != "" {
		profiles, err := recognition.LoadProfiles()
		if err != nil {
			return fmt.Errorf("loading recognition profiles: %w", err)
		}
		p, ok := profiles[recognition.ProfileName(cfg.Recognition.Profile)]
		if !ok {
			return fmt.Errorf("unknown RECOGNITION_PROFILE %q", cfg.Recognition.Profile)
		}
		fmt.Printf("Applying recognition profile %q (confidence threshold %.2f)\n", p.Name, p.ConfidenceThreshold)
		cfg.Recognition.ConfidenceThreshold = p.ConfidenceThreshold
	}

	fmt.Println("Connecting to descriptor store...")
	pool, err := store.NewPool(store.PoolConfig{
		URL:         cfg.Database.URL,
		MinIdle:     cfg.Database.MinIdleConns,
		MaxOpen:     cfg.Database.MaxOpenConns,
		IdleTimeout: cfg.Database.IdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("connecting to descriptor store: %w", err)
	}
	descriptorStore := store.New(pool)

	embedderClient, err := embedder.NewHTTPClient(cfg.Embedder.URL)
	if err != nil {
		return fmt.Errorf("building embedder client: %w", err)
	}

	vectorIndex := index.New(index.Config{
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
		MaxElements:    cfg.Index.MaxElements,
		IndexPath:      cfg.Index.Path,
		MetaPath:       cfg.Index.MetaPath,
	})

	resultCache := cache.New(cache.Config{
		RedisURL:      cfg.Redis.URL,
		DefaultTTL:    cfg.Cache.TTL,
		MaxMemoryKeys: cfg.Cache.MaxSize,
	})

	recorder := metrics.NewRecorder()

	coordinator := recognition.New(embedderClient, descriptorStore, resultCache, vectorIndex, recorder, recognition.Options{
		ConfidenceThreshold: cfg.Recognition.ConfidenceThreshold,
		MinFaceSize:         cfg.Recognition.MinFaceSize,
		MaxFaceSize:         cfg.Recognition.MaxFaceSize,
		DetectionConfidence: cfg.Recognition.DetectionConfidence,
		CacheEnabled:        true,
		CacheTTL:            cfg.Cache.TTL,
	})

	batchEngine := batch.New(coordinator, descriptorStore, recorder, batch.Config{
		MaxBatchSize: cfg.Batch.MaxBatchSize,
		Concurrency:  cfg.Batch.Concurrency,
		JobTTL:       cfg.Batch.JobTTL,
	})

	ctx := context.Background()
	deps := lifecycle.Deps{
		Pool:     pool,
		Store:    descriptorStore,
		Embedder: embedderClient,
		Index:    vectorIndex,
		Cache:    resultCache,
		Metrics:  recorder,
	}
	if err := lifecycle.Start(ctx, deps); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}

	batchEngine.StartEvictionLoop(ctx)

	server := web.NewServer(cfg.Server.Host, cfg.Server.Port, web.Deps{
		Coordinator: coordinator,
		Batch:       batchEngine,
		Index:       vectorIndex,
		Store:       descriptorStore,
		Metrics:     recorder,
	})
	deps.Server = server.HTTPServer()

	shutdownDone := make(chan struct{})
	go func() {
		lifecycle.WaitForSignal(ctx, deps)
		close(shutdownDone)
	}()

	fmt.Printf("Starting recognition server on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	// Start returns once Shutdown has closed the listener; wait for the rest
	// of the shutdown sequence (index persist, cache and pool close).
	<-shutdownDone
	return nil
}
