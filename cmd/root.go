package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "facerecog",
	Short: "A face recognition service: embedding, vector search, and batch identification",
	Long: `facerecog runs the recognition core described in its design docs: an
embedder adapter, a descriptor store, an HNSW vector index, a two-tier
result cache, and a batch engine, fronted by an HTTP API.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
