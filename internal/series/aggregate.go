// Package series turns raw records into monthly time series and derives
// trend and anomaly statistics from them.
package series

import (
	"sort"
	"time"

	"github.com/lox/mpawatch/internal/models"
)

// Record-count thresholds for bucket quality tiers.
const (
	HighQualityRecords   = 10
	MediumQualityRecords = 5
)

func QualityFor(recordCount int) models.Quality {
	switch {
	case recordCount >= HighQualityRecords:
		return models.QualityHigh
	case recordCount >= MediumQualityRecords:
		return models.QualityMedium
	default:
		return models.QualityLow
	}
}

// MonthKey returns the YYYY-MM prefix of an ISO-8601 date, or false when the
// first seven characters are not a valid year-month.
func MonthKey(date string) (string, bool) {
	if len(date) < 7 {
		return "", false
	}
	key := date[:7]
	if _, err := time.Parse("2006-01", key); err != nil {
		return "", false
	}
	return key, true
}

// Aggregator buckets values by month. In sum mode a bucket's value is the
// total of everything added; in mean mode it is the average.
type Aggregator struct {
	mean    bool
	buckets map[string]*models.MonthlyBucket
}

func NewAggregator() *Aggregator {
	return &Aggregator{buckets: make(map[string]*models.MonthlyBucket)}
}

func NewMeanAggregator() *Aggregator {
	return &Aggregator{mean: true, buckets: make(map[string]*models.MonthlyBucket)}
}

// Add merges one record into its month. Records without a parseable date are
// dropped and Add reports false.
func (a *Aggregator) Add(date string, value float64) bool {
	key, ok := MonthKey(date)
	if !ok {
		return false
	}

	b, exists := a.buckets[key]
	if !exists {
		b = &models.MonthlyBucket{Month: key}
		a.buckets[key] = b
	}
	b.Value += value
	b.RecordCount++
	b.Quality = QualityFor(b.RecordCount)
	return true
}

func (a *Aggregator) Len() int {
	return len(a.buckets)
}

// Buckets returns the months in chronological order.
func (a *Aggregator) Buckets() []models.MonthlyBucket {
	out := make([]models.MonthlyBucket, 0, len(a.buckets))
	for _, b := range a.buckets {
		bucket := *b
		if a.mean && bucket.RecordCount > 0 {
			bucket.Value /= float64(bucket.RecordCount)
		}
		out = append(out, bucket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// BucketObservations sums each observation's quantity into monthly buckets.
// It returns the buckets and the number of records dropped for lack of a date.
func BucketObservations(obs []models.RawObservation) ([]models.MonthlyBucket, int) {
	agg := NewAggregator()
	dropped := 0
	for _, o := range obs {
		if !agg.Add(o.EventDate, o.Quantity()) {
			dropped++
		}
	}
	return agg.Buckets(), dropped
}

// Values extracts bucket values in order.
func Values(buckets []models.MonthlyBucket) []float64 {
	values := make([]float64, len(buckets))
	for i, b := range buckets {
		values[i] = b.Value
	}
	return values
}
