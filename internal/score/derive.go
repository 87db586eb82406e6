package score

import (
	"math"

	"github.com/lox/mpawatch/internal/models"
	"github.com/lox/mpawatch/internal/series"
)

// Points awarded per environmental threshold status.
var StatusScores = map[models.ThresholdStatus]float64{
	models.StatusNormal:   100,
	models.StatusWarning:  60,
	models.StatusCritical: 20,
}

// ThermalPenaltyPerDegree is subtracted from 100 for every degree the current
// temperature sits above its historical average.
const ThermalPenaltyPerDegree = 25.0

// FromSummaries derives the sub-score inputs from whichever summaries are
// present. Nil summaries leave their sources unavailable.
func FromSummaries(ab *models.AbundanceSummary, env *models.EnvironmentalSummary, tr *models.TrackingSummary) map[string]Input {
	inputs := make(map[string]Input, len(Weights))
	if ab != nil {
		inputs[Biodiversity] = BiodiversityScore(ab.SpeciesTrends)
	}
	if env != nil {
		inputs[WaterQuality] = WaterQualityScore(env.Parameters)
		inputs[ThermalStress] = ThermalStressScore(env.Parameters)
	}
	if tr != nil {
		inputs[HabitatUse] = HabitatUseScore(tr.Paths)
	}
	return inputs
}

// BiodiversityScore is 50 plus half the net share of increasing species among
// those with a classified trend.
func BiodiversityScore(trends []models.SpeciesTrend) Input {
	var increasing, decreasing, classified int
	for _, t := range trends {
		switch t.Label {
		case models.TrendIncreasing:
			increasing++
		case models.TrendDecreasing:
			decreasing++
		case models.TrendStable:
		default:
			continue
		}
		classified++
	}
	if classified == 0 {
		return Input{}
	}
	return Input{
		Score:     50 + 50*float64(increasing-decreasing)/float64(classified),
		Available: true,
	}
}

func WaterQualityScore(params []models.EnvironmentalParameter) Input {
	var total float64
	var n int
	for _, p := range params {
		s, ok := StatusScores[p.Status]
		if !ok {
			continue
		}
		total += s
		n++
	}
	if n == 0 {
		return Input{}
	}
	return Input{Score: total / float64(n), Available: true}
}

func ThermalStressScore(params []models.EnvironmentalParameter) Input {
	temp, ok := series.Parameter(params, series.ParamTemperature)
	if !ok {
		return Input{}
	}
	excess := math.Max(0, temp.CurrentValue-temp.HistoricalAvg)
	return Input{Score: clamp(100 - ThermalPenaltyPerDegree*excess), Available: true}
}

func HabitatUseScore(paths []models.TrackingPath) Input {
	if len(paths) == 0 {
		return Input{}
	}
	var total float64
	for _, p := range paths {
		total += p.PercentTimeInRegion
	}
	return Input{Score: total / float64(len(paths)), Available: true}
}
