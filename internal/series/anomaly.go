package series

import (
	"math"

	"github.com/lox/mpawatch/internal/models"
)

const (
	MinAnomalyPoints = 10
	AnomalyZScore    = 2.0
	MediumZScore     = 2.5
	HighZScore       = 3.0
	DirectionSpike   = "spike"
	DirectionDrop    = "drop"
)

// DetectAnomalies flags points whose population z-score exceeds 2. Series
// shorter than MinAnomalyPoints, or with zero spread, yield nothing.
func DetectAnomalies(values []float64) []models.Anomaly {
	if len(values) < MinAnomalyPoints {
		return nil
	}

	mean, stdDev := meanStdDev(values)
	if stdDev == 0 {
		return nil
	}

	var anomalies []models.Anomaly
	for i, v := range values {
		z := math.Abs(v-mean) / stdDev
		if z <= AnomalyZScore {
			continue
		}

		a := models.Anomaly{
			Index:     i,
			Value:     v,
			ZScore:    z,
			Severity:  severityFor(z),
			Direction: DirectionDrop,
		}
		if v > mean {
			a.Direction = DirectionSpike
		}
		anomalies = append(anomalies, a)
	}
	return anomalies
}

// DetectBucketAnomalies runs DetectAnomalies over bucket values and labels
// each anomaly with its month.
func DetectBucketAnomalies(buckets []models.MonthlyBucket) []models.Anomaly {
	anomalies := DetectAnomalies(Values(buckets))
	for i := range anomalies {
		anomalies[i].Date = buckets[anomalies[i].Index].Month
	}
	return anomalies
}

func severityFor(z float64) models.Severity {
	switch {
	case z > HighZScore:
		return models.SeverityHigh
	case z > MediumZScore:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func meanStdDev(values []float64) (mean, stdDev float64) {
	n := float64(len(values))
	for _, v := range values {
		mean += v
	}
	mean /= n

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= n

	return mean, math.Sqrt(variance)
}
