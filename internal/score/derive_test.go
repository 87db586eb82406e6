package score

import (
	"testing"

	"github.com/lox/mpawatch/internal/models"
	"github.com/lox/mpawatch/internal/series"
	"github.com/stretchr/testify/assert"
)

func trend(label models.TrendLabel) models.SpeciesTrend {
	return models.SpeciesTrend{Trend: models.Trend{Label: label}}
}

func TestBiodiversityScore(t *testing.T) {
	assert.False(t, BiodiversityScore(nil).Available)
	assert.False(t, BiodiversityScore([]models.SpeciesTrend{trend(models.TrendInsufficientData)}).Available)

	got := BiodiversityScore([]models.SpeciesTrend{
		trend(models.TrendIncreasing),
		trend(models.TrendIncreasing),
		trend(models.TrendIncreasing),
		trend(models.TrendDecreasing),
		trend(models.TrendStable),
		trend(models.TrendInsufficientData),
	})
	assert.True(t, got.Available)
	assert.InDelta(t, 50+50*2.0/5, got.Score, 1e-9)
}

func TestWaterQualityScore(t *testing.T) {
	assert.False(t, WaterQualityScore([]models.EnvironmentalParameter{{Name: "depth"}}).Available)

	got := WaterQualityScore([]models.EnvironmentalParameter{
		{Name: "temperature", Status: models.StatusNormal},
		{Name: "ph", Status: models.StatusWarning},
		{Name: "oxygen", Status: models.StatusCritical},
		{Name: "depth"},
	})
	assert.True(t, got.Available)
	assert.InDelta(t, 60.0, got.Score, 1e-9)
}

func TestThermalStressScore(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		avg     float64
		want    float64
	}{
		{"cooler than usual", 24, 26, 100},
		{"one degree warm", 27, 26, 75},
		{"five degrees warm", 31, 26, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ThermalStressScore([]models.EnvironmentalParameter{
				{Name: series.ParamTemperature, CurrentValue: tt.current, HistoricalAvg: tt.avg},
			})
			assert.True(t, got.Available)
			assert.InDelta(t, tt.want, got.Score, 1e-9)
		})
	}

	assert.False(t, ThermalStressScore([]models.EnvironmentalParameter{{Name: series.ParamPH}}).Available)
}

func TestHabitatUseScore(t *testing.T) {
	assert.False(t, HabitatUseScore(nil).Available)
	got := HabitatUseScore([]models.TrackingPath{{PercentTimeInRegion: 40}, {PercentTimeInRegion: 80}})
	assert.InDelta(t, 60.0, got.Score, 1e-9)
}

func TestFromSummaries(t *testing.T) {
	inputs := FromSummaries(nil, nil, nil)
	assert.Empty(t, inputs)

	ab := &models.AbundanceSummary{SpeciesTrends: []models.SpeciesTrend{trend(models.TrendStable)}}
	tr := &models.TrackingSummary{}
	inputs = FromSummaries(ab, nil, tr)

	assert.Equal(t, Input{Score: 50, Available: true}, inputs[Biodiversity])
	assert.False(t, inputs[HabitatUse].Available)
	_, ok := inputs[WaterQuality]
	assert.False(t, ok)

	got := NewScorer(nil).Compute(inputs)
	assert.Equal(t, 50.0, got.Score)
	assert.Equal(t, 1, got.AvailableSources)
}
