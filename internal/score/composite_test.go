package score

import (
	"testing"
	"time"

	"github.com/lox/mpawatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightsSumTo100(t *testing.T) {
	var sum float64
	for _, w := range Weights {
		sum += w
	}
	assert.Equal(t, 100.0, sum)
}

func TestComputeAllAvailable(t *testing.T) {
	s := NewScorer(nil)
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	got := s.Compute(map[string]Input{
		Biodiversity:  {Score: 80, Available: true},
		WaterQuality:  {Score: 60, Available: true},
		ThermalStress: {Score: 100, Available: true},
		HabitatUse:    {Score: 40, Available: true},
	})

	want := (80*35 + 60*25 + 100*20 + 40*20) / 100.0
	assert.InDelta(t, want, got.Score, 1e-9)
	assert.Equal(t, models.ConfidenceHigh, got.Confidence)
	assert.Equal(t, 4, got.AvailableSources)
	assert.Equal(t, 4, got.TotalSources)
	assert.Equal(t, fixed, got.ComputedAt)

	require.Len(t, got.SubScores, 4)
	assert.Equal(t, Biodiversity, got.SubScores[0].Name)
	assert.Equal(t, WaterQuality, got.SubScores[1].Name)
}

func TestComputeRenormalizesOverAvailable(t *testing.T) {
	s := NewScorer(nil)

	base := map[string]Input{
		Biodiversity: {Score: 80, Available: true},
		WaterQuality: {Score: 60, Available: true},
		HabitatUse:   {Score: 40, Available: true},
	}
	want := (80*35 + 60*25 + 40*20) / 80.0

	for _, thermal := range []Input{
		{Score: 0, Available: false},
		{Score: 100, Available: false},
		{Score: -5000, Available: false},
	} {
		inputs := map[string]Input{ThermalStress: thermal}
		for k, v := range base {
			inputs[k] = v
		}
		got := s.Compute(inputs)
		assert.InDelta(t, want, got.Score, 1e-9)
		assert.Equal(t, models.ConfidenceMedium, got.Confidence)
		assert.Equal(t, 3, got.AvailableSources)
	}

	// omitted entirely behaves like unavailable
	assert.InDelta(t, want, s.Compute(base).Score, 1e-9)
}

func TestComputeNothingAvailable(t *testing.T) {
	got := NewScorer(nil).Compute(nil)
	assert.Equal(t, 0.0, got.Score)
	assert.Equal(t, models.ConfidenceLow, got.Confidence)
	assert.Equal(t, 0, got.AvailableSources)
	assert.Len(t, got.SubScores, 4)
}

func TestComputeClampsScores(t *testing.T) {
	got := NewScorer(nil).Compute(map[string]Input{
		Biodiversity: {Score: 150, Available: true},
	})
	assert.Equal(t, 100.0, got.Score)
	assert.Equal(t, models.ConfidenceLow, got.Confidence)
}

func TestComputeCustomWeights(t *testing.T) {
	s := NewScorer(map[string]float64{"a": 1, "b": 3})
	got := s.Compute(map[string]Input{
		"a": {Score: 100, Available: true},
		"b": {Score: 0, Available: true},
	})
	assert.InDelta(t, 25.0, got.Score, 1e-9)
	assert.Equal(t, "b", got.SubScores[0].Name)
}

func TestConfidenceFor(t *testing.T) {
	tests := []struct {
		available, total int
		want             models.Confidence
	}{
		{4, 4, models.ConfidenceHigh},
		{3, 4, models.ConfidenceMedium},
		{2, 4, models.ConfidenceMedium},
		{1, 4, models.ConfidenceLow},
		{0, 4, models.ConfidenceLow},
		{0, 0, models.ConfidenceLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConfidenceFor(tt.available, tt.total), "%d/%d", tt.available, tt.total)
	}
}
