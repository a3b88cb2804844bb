package clustering

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"primetime/internal/core"
	"primetime/internal/logger"
	"primetime/internal/persistence"
	"primetime/internal/trajectory"
)

// Manager reclusters the whole vector corpus and persists the result. Runs
// are serialized: concurrent callers queue behind the mutex so labels and
// cluster rows never interleave.
type Manager struct {
	store     persistence.Store
	clusterer *Clusterer
	mu        sync.Mutex
}

// NewManager creates a clustering manager over the given store.
func NewManager(store persistence.Store, clusterer *Clusterer) *Manager {
	return &Manager{store: store, clusterer: clusterer}
}

// Recluster reassigns every stored vector, recomputes cluster velocities from
// member citation trajectories, and atomically replaces the cluster table.
func (m *Manager) Recluster(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	vectors, err := m.store.Vectors().ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load vectors: %w", err)
	}
	if len(vectors) == 0 {
		logger.Info("No vectors to cluster")
		return m.store.Clusters().ReplaceAll(ctx, nil)
	}

	assignment, err := m.clusterer.Assign(vectors)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	clusters := make([]core.Cluster, 0, len(assignment.Clusters))
	for _, members := range assignment.Clusters {
		velocity, err := m.memberVelocity(ctx, members.ArticleIDs)
		if err != nil {
			return err
		}
		clusters = append(clusters, core.Cluster{
			Label:       members.Label,
			Centroid:    members.Centroid,
			Size:        len(members.ArticleIDs),
			Velocity:    velocity,
			LastUpdated: now,
		})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Label < clusters[j].Label })

	if err := m.store.Vectors().SetLabels(ctx, assignment.Labels); err != nil {
		return fmt.Errorf("failed to persist cluster labels: %w", err)
	}
	if err := m.store.Clusters().ReplaceAll(ctx, clusters); err != nil {
		return fmt.Errorf("failed to persist clusters: %w", err)
	}

	noise := 0
	for _, label := range assignment.Labels {
		if label == core.NoiseLabel {
			noise++
		}
	}
	logger.Info("Reclustering completed",
		"vectors", len(vectors), "clusters", len(clusters), "noise", noise)
	return nil
}

// memberVelocity is the mean forward citation slope across cluster members.
func (m *Manager) memberVelocity(ctx context.Context, articleIDs []int64) (float64, error) {
	series := make([][]core.YearlyCitations, 0, len(articleIDs))
	for _, articleID := range articleIDs {
		yearly, err := m.store.Citations().Yearly(ctx, articleID)
		if err != nil {
			return 0, fmt.Errorf("failed to load citation series for article %d: %w", articleID, err)
		}
		series = append(series, yearly)
	}
	return trajectory.MeanForwardSlope(series), nil
}
