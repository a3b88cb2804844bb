// Package clustering assigns article embeddings to semantic clusters with
// HDBSCAN and maintains the persisted cluster table.
package clustering

import (
	"fmt"
	"math"
	"math/rand"
	"reflect"

	"github.com/humilityai/hdbscan"

	"primetime/internal/core"
)

// Clusterer runs density-based clustering over article vectors.
type Clusterer struct {
	MinClusterSize int
	RandomSeed     int64
}

// NewClusterer creates a clusterer. minSize is the smallest member count that
// forms a cluster; seed makes repeated runs over the same vectors reproducible.
func NewClusterer(minSize int, seed int64) *Clusterer {
	return &Clusterer{MinClusterSize: minSize, RandomSeed: seed}
}

// Assignment is the outcome of one clustering run: a label per article and
// the surviving clusters. Noise points carry core.NoiseLabel.
type Assignment struct {
	Labels   map[int64]int
	Clusters []clusterMembers
}

type clusterMembers struct {
	Label      int
	Centroid   []float64
	ArticleIDs []int64
}

// Assign clusters the vectors. Fewer vectors than MinClusterSize means no
// cluster can form, so everything is labeled noise.
func (c *Clusterer) Assign(vectors []core.ArticleVector) (*Assignment, error) {
	labels := make(map[int64]int, len(vectors))
	for _, v := range vectors {
		labels[v.ArticleID] = core.NoiseLabel
	}
	out := &Assignment{Labels: labels}

	if len(vectors) < c.MinClusterSize {
		return out, nil
	}

	dataPoints := make([][]float64, len(vectors))
	for i, v := range vectors {
		dataPoints[i] = v.Vector
	}

	// The library draws from the global source during sampling.
	rand.Seed(c.RandomSeed)

	clustering, err := hdbscan.NewClustering(dataPoints, c.MinClusterSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create clustering: %w", err)
	}
	clustering = clustering.OutlierDetection()

	// Cosine distance, not Euclidean: high-dimensional embeddings collapse
	// under Euclidean distance. Sequential run keeps results reproducible.
	if err := clustering.Run(cosineDistance, hdbscan.VarianceScore, false); err != nil {
		return nil, fmt.Errorf("clustering failed: %w", err)
	}

	for label, data := range extractClusterData(clustering) {
		members := clusterMembers{Label: label, Centroid: data.Centroid}
		for _, pointIdx := range data.Points {
			v := vectors[pointIdx]
			labels[v.ArticleID] = label
			members.ArticleIDs = append(members.ArticleIDs, v.ArticleID)
		}
		if len(members.Centroid) == 0 {
			members.Centroid = centroidOf(vectors, data.Points)
		}
		out.Clusters = append(out.Clusters, members)
	}
	return out, nil
}

// cosineDistance is 1 - cosine similarity, clamped for floating point error.
// Range [0, 2]; zero vectors and mismatched dimensions map to 1.
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

func centroidOf(vectors []core.ArticleVector, points []int) []float64 {
	if len(points) == 0 {
		return nil
	}
	dim := len(vectors[points[0]].Vector)
	centroid := make([]float64, dim)
	for _, idx := range points {
		for i, val := range vectors[idx].Vector {
			centroid[i] += val
		}
	}
	for i := range centroid {
		centroid[i] /= float64(len(points))
	}
	return centroid
}

type clusterData struct {
	Centroid []float64
	Points   []int
}

// extractClusterData reads cluster assignments out of the library's
// unexported Clusters field via reflection; the library does not expose them.
func extractClusterData(clustering *hdbscan.Clustering) []clusterData {
	v := reflect.ValueOf(clustering).Elem()
	clustersField := v.FieldByName("Clusters")
	if !clustersField.IsValid() {
		return nil
	}

	result := make([]clusterData, clustersField.Len())
	for i := 0; i < clustersField.Len(); i++ {
		clusterPtr := clustersField.Index(i)
		if clusterPtr.Kind() == reflect.Ptr {
			clusterPtr = clusterPtr.Elem()
		}

		centroidField := clusterPtr.FieldByName("Centroid")
		if centroidField.IsValid() && centroidField.Kind() == reflect.Slice {
			centroid := make([]float64, centroidField.Len())
			for j := 0; j < centroidField.Len(); j++ {
				centroid[j] = centroidField.Index(j).Float()
			}
			result[i].Centroid = centroid
		}

		pointsField := clusterPtr.FieldByName("Points")
		if pointsField.IsValid() && pointsField.Kind() == reflect.Slice {
			points := make([]int, pointsField.Len())
			for j := 0; j < pointsField.Len(); j++ {
				points[j] = int(pointsField.Index(j).Int())
			}
			result[i].Points = points
		}
	}
	return result
}
