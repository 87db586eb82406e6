package series

import (
	"math"
	"sort"

	"github.com/lox/mpawatch/internal/models"
)

const (
	MinTrendBuckets         = 6
	StableThresholdPercent  = 5.0
	HighConfidenceBuckets   = 24
	MediumConfidenceBuckets = 12
)

// EstimateTrend fits an ordinary least-squares line through the buckets using
// the bucket index as x. This is a heuristic direction label, not a
// significance test.
//
// ChangePercent is the fitted slope relative to the series mean (percent per
// bucket). The label is decided on the change projected across the whole
// series (ChangePercent times the bucket count) so that a steady monthly
// drift over several years is not reported as stable.
func EstimateTrend(buckets []models.MonthlyBucket) models.Trend {
	n := len(buckets)
	if n < MinTrendBuckets {
		return models.Trend{
			Label:      models.TrendInsufficientData,
			Confidence: models.ConfidenceLow,
		}
	}

	sorted := make([]models.MonthlyBucket, n)
	copy(sorted, buckets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Month < sorted[j].Month })

	slope, mean := linearFit(Values(sorted))

	var changePercent float64
	if mean != 0 {
		changePercent = slope / mean * 100
	}

	return models.Trend{
		Label:         classify(changePercent * float64(n)),
		ChangePercent: changePercent,
		Slope:         slope,
		Confidence:    confidenceFor(n),
	}
}

// linearFit returns the OLS slope of y against 0..n-1 and the mean of y.
func linearFit(y []float64) (slope, mean float64) {
	n := float64(len(y))
	if n == 0 {
		return 0, 0
	}

	xMean := (n - 1) / 2
	for _, v := range y {
		mean += v
	}
	mean /= n

	var num, den float64
	for i, v := range y {
		dx := float64(i) - xMean
		num += dx * (v - mean)
		den += dx * dx
	}
	if den == 0 {
		return 0, mean
	}
	return num / den, mean
}

func classify(projectedPercent float64) models.TrendLabel {
	switch {
	case math.Abs(projectedPercent) < StableThresholdPercent:
		return models.TrendStable
	case projectedPercent > 0:
		return models.TrendIncreasing
	default:
		return models.TrendDecreasing
	}
}

func confidenceFor(n int) models.Confidence {
	switch {
	case n >= HighConfidenceBuckets:
		return models.ConfidenceHigh
	case n >= MediumConfidenceBuckets:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
