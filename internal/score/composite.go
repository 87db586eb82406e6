// Package score combines independently available sub-scores into a single
// 0-100 region health score.
package score

import (
	"sort"
	"time"

	"github.com/lox/mpawatch/internal/models"
)

// Sub-score source names.
const (
	Biodiversity  = "biodiversity"
	WaterQuality  = "waterQuality"
	ThermalStress = "thermalStress"
	HabitatUse    = "habitatUse"
)

// Weights is the declared weight table, in percent. It sums to 100.
var Weights = map[string]float64{
	Biodiversity:  35,
	WaterQuality:  25,
	ThermalStress: 20,
	HabitatUse:    20,
}

// Confidence thresholds on the fraction of sources available.
const (
	HighConfidenceRatio   = 1.0
	MediumConfidenceRatio = 0.5
)

// Input is one source's contribution. A source missing from the input map
// counts as unavailable.
type Input struct {
	Score     float64
	Available bool
}

// Scorer renormalizes weighted scores over whichever sources are available.
type Scorer struct {
	weights map[string]float64
	now     func() time.Time
}

func NewScorer(weights map[string]float64) *Scorer {
	if weights == nil {
		weights = Weights
	}
	return &Scorer{weights: weights, now: time.Now}
}

// Compute returns sum(score*weight)/sum(weight) over available sources so an
// unavailable source never drags the result down. With nothing available the
// score is 0 with low confidence.
func (s *Scorer) Compute(inputs map[string]Input) models.CompositeHealthScore {
	names := make([]string, 0, len(s.weights))
	for name := range s.weights {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if s.weights[names[i]] != s.weights[names[j]] {
			return s.weights[names[i]] > s.weights[names[j]]
		}
		return names[i] < names[j]
	})

	result := models.CompositeHealthScore{
		TotalSources: len(names),
		ComputedAt:   s.now(),
	}

	var weightedSum, weightSum float64
	for _, name := range names {
		weight := s.weights[name]
		in, ok := inputs[name]
		available := ok && in.Available

		sub := models.SubScore{Name: name, Weight: weight, Available: available}
		if available {
			sub.Score = clamp(in.Score)
			weightedSum += sub.Score * weight
			weightSum += weight
			result.AvailableSources++
		}
		result.SubScores = append(result.SubScores, sub)
	}

	if result.AvailableSources == 0 || weightSum == 0 {
		result.Confidence = models.ConfidenceLow
		return result
	}

	result.Score = weightedSum / weightSum
	result.Confidence = ConfidenceFor(result.AvailableSources, result.TotalSources)
	return result
}

// ConfidenceFor grades a score by the share of sources that contributed.
func ConfidenceFor(available, total int) models.Confidence {
	if total == 0 || available == 0 {
		return models.ConfidenceLow
	}
	ratio := float64(available) / float64(total)
	switch {
	case ratio >= HighConfidenceRatio:
		return models.ConfidenceHigh
	case ratio >= MediumConfidenceRatio:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
