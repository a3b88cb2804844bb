package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"primetime/internal/pipeline"
)

// NewScoreCmd creates the score command.
func NewScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score [search-id]",
		Short: "Show or recompute the opportunity score of a search",
		Long: `Show the opportunity score computed for a past search.

With --rescore the score is recomputed against the current corpus and
history, which also re-runs clustering.

Example:
  primetime score 1
  primetime score 1 --rescore`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			searchID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid search id %q", args[0])
			}
			rescore, _ := cmd.Flags().GetBool("rescore")
			return runScore(cmd.Context(), searchID, rescore)
		},
	}
	cmd.Flags().Bool("rescore", false, "Recompute the score before showing it")
	return cmd
}

func runScore(ctx context.Context, searchID int64, rescore bool) error {
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

	if rescore {
		// Remember the current row so polling does not return it as the
		// recomputed score.
		var prev time.Time
		if existing, err := coord.GetScore(ctx, searchID); err == nil {
			prev = existing.ComputedAt
		} else if !errors.Is(err, pipeline.ErrScoreNotReady) {
			return err
		}
		if err := coord.Rescore(ctx, searchID); err != nil {
			return err
		}
		score, err := waitForScoreAfter(ctx, coord, searchID, prev)
		if err != nil {
			return err
		}
		printScore(score)
	} else {
		score, err := coord.GetScore(ctx, searchID)
		if errors.Is(err, pipeline.ErrScoreNotReady) {
			fmt.Printf("Search %d exists but has not been scored yet.\n", searchID)
			fmt.Printf("Recompute with: primetime score %d --rescore\n", searchID)
		} else if err != nil {
			return err
		} else {
			printScore(score)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return coord.Shutdown(shutdownCtx)
}
