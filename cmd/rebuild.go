package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facerecog/internal/config"
	"github.com/kozaktomas/facerecog/internal/index"
	"github.com/kozaktomas/facerecog/internal/store"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the vector index from the descriptor store",
	Long: `Loads every active user from the descriptor store and reinserts their
descriptors into a fresh vector index, the same operation the
POST /recognition/index/rebuild endpoint triggers, run synchronously from
the command line with progress output.`,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
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

	users, err := descriptorStore.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing active users: %w", err)
	}
	fmt.Printf("Loaded %d active users\n", len(users))

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

	bar := progressbar.Default(int64(len(users)), "rebuilding index")
	inputs := make([]index.RebuildInput, 0, len(users))
	for _, u := range users {
		inputs = append(inputs, index.RebuildInput{
			UserID:      u.UserID,
			ExternalID:  u.ExternalID,
			DisplayName: u.DisplayName,
			ClientRef:   u.ClientRef,
			Descriptor:  u.Descriptor,
		})
		_ = bar.Add(1)
	}

	if err := vectorIndex.Rebuild(inputs); err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	fmt.Printf("Rebuilt index with %d vectors, persisted to %s\n", vectorIndex.Size(), cfg.Index.Path)
	return nil
}
