package trajectory

import (
	"math"
	"testing"

	"primetime/internal/core"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestForwardSlopeTooFewPoints(t *testing.T) {
	if got := ForwardSlope(nil); got != 0 {
		t.Errorf("empty series slope = %f, want 0", got)
	}
	if got := ForwardSlope([]core.YearlyCitations{{Year: 2023, Count: 10}}); got != 0 {
		t.Errorf("single point slope = %f, want 0", got)
	}
}

func TestForwardSlopeShortSeriesUsesMeanDelta(t *testing.T) {
	series := []core.YearlyCitations{
		{Year: 2020, Count: 2},
		{Year: 2022, Count: 8},
	}
	// (8-2)/(2022-2020) = 3 per year.
	if got := ForwardSlope(series); !almostEqual(got, 3) {
		t.Errorf("slope = %f, want 3", got)
	}
}

func TestForwardSlopeOLS(t *testing.T) {
	// Perfectly linear: count = 5*(year-2019).
	series := []core.YearlyCitations{
		{Year: 2020, Count: 5},
		{Year: 2021, Count: 10},
		{Year: 2022, Count: 15},
		{Year: 2023, Count: 20},
	}
	if got := ForwardSlope(series); !almostEqual(got, 5) {
		t.Errorf("slope = %f, want 5", got)
	}
}

func TestForwardSlopeUnsortedInput(t *testing.T) {
	sorted := []core.YearlyCitations{
		{Year: 2020, Count: 1}, {Year: 2021, Count: 4},
		{Year: 2022, Count: 9}, {Year: 2023, Count: 16},
	}
	shuffled := []core.YearlyCitations{
		{Year: 2022, Count: 9}, {Year: 2020, Count: 1},
		{Year: 2023, Count: 16}, {Year: 2021, Count: 4},
	}
	if a, b := ForwardSlope(sorted), ForwardSlope(shuffled); !almostEqual(a, b) {
		t.Errorf("order should not matter: %f vs %f", a, b)
	}
}

func TestForwardSlopeDecliningSeries(t *testing.T) {
	series := []core.YearlyCitations{
		{Year: 2020, Count: 20},
		{Year: 2021, Count: 15},
		{Year: 2022, Count: 10},
		{Year: 2023, Count: 5},
	}
	if got := ForwardSlope(series); !almostEqual(got, -5) {
		t.Errorf("declining slope = %f, want -5", got)
	}
}

func TestForwardSlopeDuplicateYear(t *testing.T) {
	series := []core.YearlyCitations{
		{Year: 2022, Count: 3},
		{Year: 2022, Count: 5},
	}
	if got := ForwardSlope(series); got != 0 {
		t.Errorf("zero year span should yield 0, got %f", got)
	}
}

func TestMeanForwardSlope(t *testing.T) {
	if got := MeanForwardSlope(nil); got != 0 {
		t.Errorf("empty input = %f, want 0", got)
	}

	series := [][]core.YearlyCitations{
		{{Year: 2020, Count: 0}, {Year: 2022, Count: 4}}, // slope 2
		nil, // slope 0
	}
	if got := MeanForwardSlope(series); !almostEqual(got, 1) {
		t.Errorf("mean slope = %f, want 1", got)
	}
}
