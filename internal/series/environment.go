package series

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/lox/mpawatch/internal/models"
)

// Canonical environmental parameter names.
const (
	ParamTemperature = "temperature"
	ParamSalinity    = "salinity"
	ParamDepth       = "depth"
	ParamPH          = "ph"
	ParamOxygen      = "oxygen"
	ParamChlorophyll = "chlorophyll"
)

// parameterOrder is the output order of BuildParameters and the match
// priority of CanonicalParameter.
var parameterOrder = []string{
	ParamTemperature,
	ParamSalinity,
	ParamDepth,
	ParamPH,
	ParamOxygen,
	ParamChlorophyll,
}

var defaultUnits = map[string]string{
	ParamTemperature: "°C",
	ParamSalinity:    "PSU",
	ParamDepth:       "m",
	ParamPH:          "",
	ParamOxygen:      "mg/L",
	ParamChlorophyll: "mg/m³",
}

var parameterKeywords = map[string][]string{
	ParamTemperature: {"temperature", "temp", "sst"},
	ParamSalinity:    {"salinity", "psal"},
	ParamDepth:       {"depth"},
	ParamPH:          {"ph"},
	ParamOxygen:      {"oxygen", "o2", "doxy"},
	ParamChlorophyll: {"chlorophyll", "chla", "chl"},
}

// CanonicalParameter maps an upstream measurement type such as
// "Sea surface temperature" to a canonical parameter name. Matching is on
// whole words so that "phosphate" is not read as pH.
func CanonicalParameter(measurementType string) (string, bool) {
	words := strings.FieldsFunc(strings.ToLower(measurementType), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return "", false
	}

	for _, name := range parameterOrder {
		for _, kw := range parameterKeywords[name] {
			for _, w := range words {
				if w == kw {
					return name, true
				}
			}
		}
	}
	return "", false
}

// Threshold holds warning and critical bounds for one parameter. A NaN bound
// is not checked.
type Threshold struct {
	WarnBelow float64
	WarnAbove float64
	CritBelow float64
	CritAbove float64
}

var nan = math.NaN()

// DefaultThresholds are the status bounds applied to each parameter's current
// value. Parameters without an entry carry no status.
var DefaultThresholds = map[string]Threshold{
	ParamTemperature: {WarnBelow: nan, WarnAbove: 28, CritBelow: nan, CritAbove: 30},
	ParamOxygen:      {WarnBelow: 4, WarnAbove: nan, CritBelow: 2, CritAbove: nan},
	ParamPH:          {WarnBelow: 7.9, WarnAbove: 8.4, CritBelow: 7.7, CritAbove: 8.6},
	ParamSalinity:    {WarnBelow: 30, WarnAbove: 38, CritBelow: 25, CritAbove: 40},
	ParamChlorophyll: {WarnBelow: nan, WarnAbove: 5, CritBelow: nan, CritAbove: 10},
}

func (t Threshold) Evaluate(v float64) models.ThresholdStatus {
	switch {
	case below(v, t.CritBelow) || above(v, t.CritAbove):
		return models.StatusCritical
	case below(v, t.WarnBelow) || above(v, t.WarnAbove):
		return models.StatusWarning
	default:
		return models.StatusNormal
	}
}

func below(v, bound float64) bool { return !math.IsNaN(bound) && v < bound }
func above(v, bound float64) bool { return !math.IsNaN(bound) && v > bound }

// ParseMeasurementValue parses an upstream measurement value. Blank,
// non-numeric and non-finite values are rejected.
func ParseMeasurementValue(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

type paramAccumulator struct {
	unit  string
	agg   *Aggregator
	sum   float64
	count int
	min   float64
	max   float64
}

// BuildParameters groups every numeric measurement attached to the
// observations by canonical parameter and summarizes each one. It returns the
// parameters in a fixed order and the number of measurements skipped because
// their type was unknown or their value was not numeric or undated.
func BuildParameters(obs []models.RawObservation, thresholds map[string]Threshold) ([]models.EnvironmentalParameter, int) {
	accs := make(map[string]*paramAccumulator)
	skipped := 0

	for _, o := range obs {
		for _, m := range o.Measurements {
			name, ok := CanonicalParameter(m.Type)
			if !ok {
				skipped++
				continue
			}
			v, ok := ParseMeasurementValue(m.Value)
			if !ok {
				skipped++
				continue
			}

			acc, exists := accs[name]
			if !exists {
				acc = &paramAccumulator{
					unit: defaultUnits[name],
					agg:  NewMeanAggregator(),
					min:  math.Inf(1),
					max:  math.Inf(-1),
				}
				accs[name] = acc
			}
			if !acc.agg.Add(o.EventDate, v) {
				skipped++
				continue
			}
			if m.Unit != "" {
				acc.unit = m.Unit
			}
			acc.sum += v
			acc.count++
			acc.min = math.Min(acc.min, v)
			acc.max = math.Max(acc.max, v)
		}
	}

	var params []models.EnvironmentalParameter
	for _, name := range parameterOrder {
		acc, ok := accs[name]
		if !ok || acc.count == 0 {
			continue
		}

		buckets := acc.agg.Buckets()
		p := models.EnvironmentalParameter{
			Name:          name,
			Unit:          acc.unit,
			CurrentValue:  buckets[len(buckets)-1].Value,
			HistoricalAvg: acc.sum / float64(acc.count),
			Min:           acc.min,
			Max:           acc.max,
			Trend:         EstimateTrend(buckets),
			DataPoints:    buckets,
			Anomalies:     DetectBucketAnomalies(buckets),
		}
		if t, ok := thresholds[name]; ok {
			p.Status = t.Evaluate(p.CurrentValue)
		}
		params = append(params, p)
	}
	return params, skipped
}

// Parameter returns the named parameter from a list, or false.
func Parameter(params []models.EnvironmentalParameter, name string) (models.EnvironmentalParameter, bool) {
	for _, p := range params {
		if p.Name == name {
			return p, true
		}
	}
	return models.EnvironmentalParameter{}, false
}
