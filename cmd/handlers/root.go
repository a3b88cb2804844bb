// Package handlers wires the CLI commands to the pipeline.
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"primetime/internal/citations"
	"primetime/internal/clustering"
	"primetime/internal/config"
	"primetime/internal/embed"
	"primetime/internal/ingest"
	"primetime/internal/logger"
	"primetime/internal/mesh"
	"primetime/internal/persistence"
	"primetime/internal/pipeline"
	"primetime/internal/pubmed"
	"primetime/internal/scoring"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "primetime",
	Short: "primetime finds under-explored research opportunities in the literature",
	Long: `primetime searches the biomedical literature for a research idea,
enriches the hits with citation data and semantic embeddings, clusters the
corpus, and scores the idea for novelty, citation velocity, and recency.

Typical flow:
  primetime migrate up
  primetime search "crispr; base editing" --idea "safer in-vivo gene editing"
  primetime score 1`,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	rootCmd.AddCommand(NewSearchCmd())
	rootCmd.AddCommand(NewScoreCmd())
	rootCmd.AddCommand(NewSearchesCmd())
	rootCmd.AddCommand(NewArticlesCmd())
	rootCmd.AddCommand(NewClustersCmd())
	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewStatsCmd())
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func openStore(cfg *config.Config) (*persistence.PostgresStore, error) {
	store, err := persistence.NewPostgresStore(cfg.Database.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return store, nil
}

// buildCoordinator assembles the full pipeline. The embedder falls back to a
// deterministic local generator when no API key is configured.
func buildCoordinator(ctx context.Context, cfg *config.Config, store persistence.Store) (*pipeline.Coordinator, error) {
	var embedder embed.Generator
	apiKey := cfg.Embedding.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey != "" {
		g, err := embed.NewGeminiGenerator(ctx, apiKey, cfg.Embedding.Model,
			cfg.Embedding.Dim, cfg.Timeouts.EmbedderTimeout())
		if err != nil {
			return nil, err
		}
		embedder = g
	} else {
		logger.Warn("No embedding API key configured, using local hash embedder")
		embedder = &embed.HashGenerator{Dims: cfg.Embedding.Dim}
	}

	chain := citations.NewChain(
		citations.NewCrossRefClient(cfg.Timeouts.CitationsTimeout()),
		citations.NewOpenAlexClient(cfg.Timeouts.CitationsTimeout()),
		cfg.Timeouts.CitationsTimeout(),
	)
	ingestor := ingest.NewIngestor(store,
		pubmed.NewClient(cfg.Timeouts.PubMedTimeout()),
		mesh.NewClient(cfg.Timeouts.MeshTimeout()),
		chain, embedder,
		cfg.Ingest.Concurrency, cfg.Ingest.MaxResultsCap)

	manager := clustering.NewManager(store,
		clustering.NewClusterer(cfg.Cluster.MinSize, cfg.Cluster.RandomSeed))
	scorer := scoring.NewScorer(store, scoring.Weights{
		Novelty:  cfg.Scoring.NoveltyWeight,
		Velocity: cfg.Scoring.VelocityWeight,
		Recency:  cfg.Scoring.RecencyWeight,
	}, cfg.Scoring.RecencyTauYears)

	return pipeline.NewCoordinator(store, ingestor, manager, scorer, 1), nil
}
