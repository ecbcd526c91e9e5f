package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facerecog/internal/config"
	"github.com/kozaktomas/facerecog/internal/index"
	"github.com/kozaktomas/facerecog/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print descriptor store and vector index statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	pool, err := store.NewPool(store.PoolConfig{URL: cfg.Database.URL})
	if err != nil {
		return fmt.Errorf("connecting to descriptor store: %w", err)
	}
	defer pool.Close()

	descriptorStore := store.New(pool)
	ctx := context.Background()

	activeCount, err := descriptorStore.CountActive(ctx)
	if err != nil {
		return fmt.Errorf("counting active users: %w", err)
	}

	vectorIndex := index.New(index.Config{
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
		MaxElements:    cfg.Index.MaxElements,
		IndexPath:      cfg.Index.Path,
		MetaPath:       cfg.Index.MetaPath,
	})
	if err := vectorIndex.Init(); err != nil {
		return fmt.Errorf("initializing index: %w", err)
	}

	s := vectorIndex.Stats()
	fmt.Printf("Active users:     %d\n", activeCount)
	fmt.Printf("Index size:       %d\n", s.Size)
	fmt.Printf("HNSW M:           %d\n", s.M)
	fmt.Printf("HNSW efSearch:    %d\n", s.EfSearch)
	fmt.Printf("Max elements:     %d\n", s.MaxElements)
	if s.LastRebuildAt != "" {
		fmt.Printf("Last rebuild:     %s\n", s.LastRebuildAt)
	}
	return nil
}
