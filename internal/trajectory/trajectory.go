// Package trajectory estimates citation momentum from yearly citation series.
package trajectory

import (
	"sort"

	"primetime/internal/core"
)

// ForwardSlope estimates the per-year citation trend of one article.
//
// Fewer than two points carry no trend and return 0. Short series (under four
// points) use the mean annual delta; anything longer gets an ordinary
// least-squares fit of count against year, which tolerates gap years.
func ForwardSlope(series []core.YearlyCitations) float64 {
	if len(series) < 2 {
		return 0
	}

	pts := append([]core.YearlyCitations(nil), series...)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Year < pts[j].Year })

	if len(pts) < 4 {
		span := float64(pts[len(pts)-1].Year - pts[0].Year)
		if span <= 0 {
			return 0
		}
		return float64(pts[len(pts)-1].Count-pts[0].Count) / span
	}

	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(pts))
	for _, p := range pts {
		x, y := float64(p.Year), float64(p.Count)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// MeanForwardSlope averages ForwardSlope over several articles' series.
// An empty input returns 0.
func MeanForwardSlope(series [][]core.YearlyCitations) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, s := range series {
		sum += ForwardSlope(s)
	}
	return sum / float64(len(series))
}
