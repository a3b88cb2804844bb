package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"primetime/internal/core"
	"primetime/internal/persistence"
)

// NewSearchesCmd creates the searches listing command.
func NewSearchesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searches",
		Short: "List past searches",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return runSearches(cmd.Context(), limit)
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of searches to show")
	return cmd
}

func runSearches(ctx context.Context, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	searches, err := store.Searches().List(ctx, persistence.ListOptions{Limit: limit})
	if err != nil {
		return err
	}
	if len(searches) == 0 {
		fmt.Println("No searches yet. Run one with: primetime search \"keyword one; keyword two\"")
		return nil
	}

	for _, s := range searches {
		fmt.Printf("%d  %s  [%s]  max=%d\n",
			s.ID, s.CreatedAt.Format("2006-01-02 15:04"), s.Keywords, s.MaxResults)
		if s.IdeaText != "" {
			fmt.Printf("   idea: %s\n", s.IdeaText)
		}
	}
	return nil
}

// NewArticlesCmd creates the articles listing command.
func NewArticlesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "articles [search-id]",
		Short: "List stored articles, optionally for one search",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			searchID := int64(0)
			if len(args) == 1 {
				if _, err := fmt.Sscanf(args[0], "%d", &searchID); err != nil {
					return fmt.Errorf("invalid search id %q", args[0])
				}
			}
			return runArticles(cmd.Context(), searchID, limit)
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of articles to show")
	return cmd
}

func runArticles(ctx context.Context, searchID int64, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var articles []core.Article
	if searchID != 0 {
		articles, err = store.Searches().Articles(ctx, searchID)
	} else {
		articles, err = store.Articles().List(ctx, persistence.ListOptions{Limit: limit})
	}
	if err != nil {
		return err
	}
	if len(articles) == 0 {
		fmt.Println("No articles found.")
		return nil
	}

	for _, a := range articles {
		date := "unknown date"
		if a.PubDate != nil {
			date = a.PubDate.Format("2006-01-02")
		}
		fmt.Printf("PMID %s  %s  %s\n", a.PMID, date, a.Title)
		if a.Journal != "" {
			fmt.Printf("   %s\n", a.Journal)
		}
	}
	return nil
}

// NewClustersCmd creates the clusters listing command.
func NewClustersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clusters",
		Short: "List the current semantic clusters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClusters(cmd.Context())
		},
	}
}

func runClusters(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	clusters, err := store.Clusters().List(ctx)
	if err != nil {
		return err
	}
	if len(clusters) == 0 {
		fmt.Println("No clusters yet. They are built after the first scored search.")
		return nil
	}

	for _, c := range clusters {
		fmt.Printf("cluster %d: %d articles, velocity %.2f, updated %s\n",
			c.Label, c.Size, c.Velocity, c.LastUpdated.Format("2006-01-02 15:04"))
	}
	return nil
}

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context())
		},
	}
}

func runStats(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Articles: %d\n", stats.Articles)
	fmt.Printf("Searches: %d\n", stats.Searches)
	fmt.Printf("Vectors:  %d\n", stats.Vectors)
	fmt.Printf("Clusters: %d\n", stats.Clusters)
	return nil
}
