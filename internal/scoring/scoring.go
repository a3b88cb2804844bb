// Package scoring computes opportunity scores for searches: how novel,
// fast-moving, and recent the retrieved literature is.
package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"primetime/internal/core"
	"primetime/internal/logger"
	"primetime/internal/persistence"
	"primetime/internal/trajectory"
)

// Weights splits the overall score across the three sub-scores. The three
// values must sum to 1.
type Weights struct {
	Novelty  float64
	Velocity float64
	Recency  float64
}

// Scorer computes and persists opportunity scores.
type Scorer struct {
	store   persistence.Store
	weights Weights
	tau     float64 // Recency decay constant, in years

	// now is stubbed in tests.
	now func() time.Time
}

// NewScorer creates a scorer. tauYears controls how fast recency decays.
func NewScorer(store persistence.Store, weights Weights, tauYears float64) *Scorer {
	return &Scorer{
		store:   store,
		weights: weights,
		tau:     tauYears,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Score computes the opportunity score for a search and persists it together
// with the raw measurements. Re-scoring the same search overwrites the score
// and appends another raw history row.
func (s *Scorer) Score(ctx context.Context, searchID int64) (*core.OpportunityScore, error) {
	raw, err := s.rawScores(ctx, searchID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.Scores().RawHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load score history: %w", err)
	}
	// The current measurement joins the reference distribution before
	// ranking, so the very first search lands at 1.0 rather than dividing
	// by zero.
	history = append(history, *raw)

	score := &core.OpportunityScore{
		SearchID:   searchID,
		Novelty:    percentile(raw.Novelty, history, func(r core.RawScores) float64 { return r.Novelty }),
		Velocity:   percentile(raw.Velocity, history, func(r core.RawScores) float64 { return r.Velocity }),
		Recency:    percentile(raw.Recency, history, func(r core.RawScores) float64 { return r.Recency }),
		ComputedAt: s.now(),
	}
	score.Overall = clamp01(s.weights.Novelty*score.Novelty +
		s.weights.Velocity*score.Velocity +
		s.weights.Recency*score.Recency)

	if err := s.store.Scores().Put(ctx, *score, *raw); err != nil {
		return nil, fmt.Errorf("failed to persist score: %w", err)
	}

	logger.Info("Scored search", "search_id", searchID,
		"novelty", score.Novelty, "velocity", score.Velocity,
		"recency", score.Recency, "overall", score.Overall)
	return score, nil
}

func (s *Scorer) rawScores(ctx context.Context, searchID int64) (*core.RawScores, error) {
	searchVectors, err := s.store.Vectors().OfSearch(ctx, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load search vectors: %w", err)
	}
	allVectors, err := s.store.Vectors().ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus vectors: %w", err)
	}
	articles, err := s.store.Searches().Articles(ctx, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load search articles: %w", err)
	}

	velocity, err := s.rawVelocity(ctx, articles)
	if err != nil {
		return nil, err
	}

	return &core.RawScores{
		SearchID: searchID,
		Novelty:  rawNovelty(searchVectors, allVectors),
		Velocity: velocity,
		Recency:  s.rawRecency(articles),
	}, nil
}

// rawNovelty is the mean distance from each search vector to its nearest
// neighbor in the rest of the corpus. A search too small to measure, or a
// corpus with nothing outside the search, is maximally novel.
func rawNovelty(searchVectors, allVectors []core.ArticleVector) float64 {
	if len(searchVectors) < 2 {
		return 1.0
	}

	inSearch := make(map[int64]bool, len(searchVectors))
	for _, v := range searchVectors {
		inSearch[v.ArticleID] = true
	}
	var complement []core.ArticleVector
	for _, v := range allVectors {
		if !inSearch[v.ArticleID] {
			complement = append(complement, v)
		}
	}
	if len(complement) == 0 {
		return 1.0
	}

	var sum float64
	for _, v := range searchVectors {
		nearest := math.Inf(1)
		for _, other := range complement {
			if d := cosineDistance(v.Vector, other.Vector); d < nearest {
				nearest = d
			}
		}
		sum += nearest
	}
	return sum / float64(len(searchVectors))
}

// rawVelocity is the mean forward citation slope across the search's
// articles, floored at zero: decaying fields score no worse than static ones.
func (s *Scorer) rawVelocity(ctx context.Context, articles []core.Article) (float64, error) {
	if len(articles) == 0 {
		return 0, nil
	}
	series := make([][]core.YearlyCitations, 0, len(articles))
	for _, a := range articles {
		yearly, err := s.store.Citations().Yearly(ctx, a.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to load citation series for article %d: %w", a.ID, err)
		}
		series = append(series, yearly)
	}
	slope := trajectory.MeanForwardSlope(series)
	if slope < 0 {
		return 0, nil
	}
	return slope, nil
}

// rawRecency is the mean exponential age decay over the search's articles.
// Articles without a publication date contribute zero.
func (s *Scorer) rawRecency(articles []core.Article) float64 {
	if len(articles) == 0 {
		return 0
	}
	now := s.now()
	var sum float64
	for _, a := range articles {
		if a.PubDate == nil {
			continue
		}
		ageYears := now.Sub(*a.PubDate).Hours() / (24 * 365.25)
		if ageYears < 0 {
			ageYears = 0
		}
		sum += math.Exp(-ageYears / s.tau)
	}
	return sum / float64(len(articles))
}

// percentile is the empirical CDF of value against the reference history:
// the fraction of historical measurements at or below it.
func percentile(value float64, history []core.RawScores, field func(core.RawScores) float64) float64 {
	if len(history) == 0 {
		return 0
	}
	atOrBelow := 0
	for _, h := range history {
		if field(h) <= value {
			atOrBelow++
		}
	}
	return clamp01(float64(atOrBelow) / float64(len(history)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// cosineDistance is 1 - cosine similarity, clamped for floating point error.
func cosineDistance(x1, x2 []float64) float64 {
	if len(x1) != len(x2) {
		return 1.0
	}
	var dot, mag1, mag2 float64
	for i := range x1 {
		dot += x1[i] * x2[i]
		mag1 += x1[i] * x1[i]
		mag2 += x2[i] * x2[i]
	}
	if mag1 == 0 || mag2 == 0 {
		return 1.0
	}
	similarity := dot / (math.Sqrt(mag1) * math.Sqrt(mag2))
	if similarity > 1.0 {
		similarity = 1.0
	} else if similarity < -1.0 {
		similarity = -1.0
	}
	return 1.0 - similarity
}
