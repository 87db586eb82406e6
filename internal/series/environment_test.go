package series

import (
	"testing"

	"github.com/lox/mpawatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalParameter(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Sea surface temperature", ParamTemperature, true},
		{"Temperature of the water body", ParamTemperature, true},
		{"SST", ParamTemperature, true},
		{"Practical salinity", ParamSalinity, true},
		{"Sampling depth", ParamDepth, true},
		{"pH", ParamPH, true},
		{"Dissolved oxygen", ParamOxygen, true},
		{"Chlorophyll-a concentration", ParamChlorophyll, true},
		{"Phosphate", "", false},
		{"Length", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := CanonicalParameter(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestThresholdEvaluate(t *testing.T) {
	tests := []struct {
		param string
		value float64
		want  models.ThresholdStatus
	}{
		{ParamTemperature, 24, models.StatusNormal},
		{ParamTemperature, 28.5, models.StatusWarning},
		{ParamTemperature, 31, models.StatusCritical},
		{ParamOxygen, 6, models.StatusNormal},
		{ParamOxygen, 3, models.StatusWarning},
		{ParamOxygen, 1.5, models.StatusCritical},
		{ParamPH, 8.1, models.StatusNormal},
		{ParamPH, 7.8, models.StatusWarning},
		{ParamPH, 8.5, models.StatusWarning},
		{ParamPH, 7.6, models.StatusCritical},
		{ParamPH, 8.7, models.StatusCritical},
		{ParamSalinity, 35, models.StatusNormal},
		{ParamSalinity, 39, models.StatusWarning},
		{ParamSalinity, 24, models.StatusCritical},
		{ParamChlorophyll, 2, models.StatusNormal},
		{ParamChlorophyll, 6, models.StatusWarning},
		{ParamChlorophyll, 11, models.StatusCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultThresholds[tt.param].Evaluate(tt.value), "%s=%v", tt.param, tt.value)
	}
}

func TestParseMeasurementValue(t *testing.T) {
	v, ok := ParseMeasurementValue(" 23.5 ")
	assert.True(t, ok)
	assert.Equal(t, 23.5, v)

	for _, bad := range []string{"", "n/a", "NaN", "Inf", "12 C"} {
		_, ok := ParseMeasurementValue(bad)
		assert.False(t, ok, bad)
	}
}

func TestBuildParameters(t *testing.T) {
	obs := []models.RawObservation{
		{EventDate: "2023-01-10", Measurements: []models.Measurement{
			{Type: "Sea surface temperature", Value: "26", Unit: "degC"},
			{Type: "pH", Value: "8.1"},
		}},
		{EventDate: "2023-01-20", Measurements: []models.Measurement{
			{Type: "Sea surface temperature", Value: "28"},
			{Type: "Body length", Value: "12"},
		}},
		{EventDate: "2023-02-05", Measurements: []models.Measurement{
			{Type: "Sea surface temperature", Value: "31"},
			{Type: "pH", Value: "not measured"},
		}},
		{EventDate: "", Measurements: []models.Measurement{
			{Type: "Sea surface temperature", Value: "40"},
		}},
	}

	params, skipped := BuildParameters(obs, DefaultThresholds)
	assert.Equal(t, 3, skipped)
	require.Len(t, params, 2)

	temp := params[0]
	assert.Equal(t, ParamTemperature, temp.Name)
	assert.Equal(t, "degC", temp.Unit)
	assert.Equal(t, 31.0, temp.CurrentValue)
	assert.InDelta(t, 85.0/3, temp.HistoricalAvg, 1e-9)
	assert.Equal(t, 26.0, temp.Min)
	assert.Equal(t, 31.0, temp.Max)
	require.Len(t, temp.DataPoints, 2)
	assert.Equal(t, 27.0, temp.DataPoints[0].Value)
	assert.Equal(t, models.TrendInsufficientData, temp.Trend.Label)
	assert.Equal(t, models.StatusCritical, temp.Status)

	ph := params[1]
	assert.Equal(t, ParamPH, ph.Name)
	assert.Equal(t, "", ph.Unit)
	assert.Equal(t, models.StatusNormal, ph.Status)

	p, ok := Parameter(params, ParamPH)
	assert.True(t, ok)
	assert.Equal(t, 8.1, p.CurrentValue)
	_, ok = Parameter(params, ParamOxygen)
	assert.False(t, ok)
}

func TestBuildParametersWithoutThresholds(t *testing.T) {
	obs := []models.RawObservation{
		{EventDate: "2023-01-10", Measurements: []models.Measurement{{Type: "Depth", Value: "12"}}},
	}
	params, _ := BuildParameters(obs, nil)
	require.Len(t, params, 1)
	assert.Equal(t, "m", params[0].Unit)
	assert.Empty(t, params[0].Status)
}
