package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"primetime/internal/core"
	"primetime/internal/ingest"
	"primetime/internal/pipeline"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [keywords]",
		Short: "Run a literature search and score the research opportunity",
		Long: `Search the literature for semicolon-separated keywords, ingest the
results, and compute the opportunity score in the background.

Example:
  primetime search "crispr; base editing" --idea "safer in-vivo gene editing"
  primetime search "long covid; fatigue" --max 50 --from 2020-01-01
  primetime search "psilocybin; depression" --wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idea, _ := cmd.Flags().GetString("idea")
			maxResults, _ := cmd.Flags().GetInt("max")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			wait, _ := cmd.Flags().GetBool("wait")
			return runSearch(cmd.Context(), args[0], idea, maxResults, from, to, wait)
		},
	}
	cmd.Flags().String("idea", "", "Free-text research idea behind the search")
	cmd.Flags().Int("max", 0, "Maximum number of results (0 uses the configured cap)")
	cmd.Flags().String("from", "", "Earliest publication date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Latest publication date (YYYY-MM-DD)")
	cmd.Flags().Bool("wait", false, "Block until the score is computed")
	return cmd
}

func runSearch(ctx context.Context, keywords, idea string, maxResults int, from, to string, wait bool) error {
	dates, err := parseDateRange(from, to)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	coord, err := buildCoordinator(ctx, cfg, store)
	if err != nil {
		return err
	}

	result, err := coord.RunSearch(ctx, ingest.Request{
		IdeaText:   idea,
		Keywords:   keywords,
		MaxResults: maxResults,
		DateRange:  dates,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Search %d: %d articles found, %d ingested, %d failed\n",
		result.Search.ID, result.ArticlesFound, result.ArticlesIngested, result.ArticlesFailed)

	if wait {
		score, err := waitForScore(ctx, coord, result.Search.ID)
		if err != nil {
			return err
		}
		printScore(score)
	} else {
		fmt.Printf("Scoring runs in the background; check with: primetime score %d\n", result.Search.ID)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return coord.Shutdown(shutdownCtx)
}

func waitForScore(ctx context.Context, coord *pipeline.Coordinator, searchID int64) (*core.OpportunityScore, error) {
	return waitForScoreAfter(ctx, coord, searchID, time.Time{})
}

// waitForScoreAfter polls until a score computed after the given time exists.
// A nonzero after skips a stale row left by a previous scoring run.
func waitForScoreAfter(ctx context.Context, coord *pipeline.Coordinator, searchID int64, after time.Time) (*core.OpportunityScore, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		score, err := coord.GetScore(ctx, searchID)
		if err == nil && score.ComputedAt.After(after) {
			return score, nil
		}
		if err != nil && !errors.Is(err, pipeline.ErrScoreNotReady) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func parseDateRange(from, to string) (core.DateRange, error) {
	var dates core.DateRange
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return dates, fmt.Errorf("invalid --from date %q: %w", from, err)
		}
		dates.Start = t
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return dates, fmt.Errorf("invalid --to date %q: %w", to, err)
		}
		dates.End = t
	}
	return dates, nil
}

func printScore(score *core.OpportunityScore) {
	fmt.Printf("Opportunity score for search %d:\n", score.SearchID)
	fmt.Printf("  Novelty:  %.3f\n", score.Novelty)
	fmt.Printf("  Velocity: %.3f\n", score.Velocity)
	fmt.Printf("  Recency:  %.3f\n", score.Recency)
	fmt.Printf("  Overall:  %.3f\n", score.Overall)
	fmt.Printf("  Computed: %s\n", score.ComputedAt.Format("2006-01-02 15:04:05"))
}
