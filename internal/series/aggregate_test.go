package series

import (
	"fmt"
	"testing"

	"github.com/lox/mpawatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func count(v float64) *float64 { return &v }

func TestMonthKey(t *testing.T) {
	tests := []struct {
		date string
		want string
		ok   bool
	}{
		{"2021-03-14", "2021-03", true},
		{"2021-03-14T10:00:00Z", "2021-03", true},
		{"2021-03", "2021-03", true},
		{"2019-05-01/2019-06-01", "2019-05", true},
		{"2021-13-01", "", false},
		{"2021", "", false},
		{"", "", false},
		{"March 2021", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			got, ok := MonthKey(tt.date)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQualityFor(t *testing.T) {
	assert.Equal(t, models.QualityLow, QualityFor(1))
	assert.Equal(t, models.QualityLow, QualityFor(4))
	assert.Equal(t, models.QualityMedium, QualityFor(5))
	assert.Equal(t, models.QualityMedium, QualityFor(9))
	assert.Equal(t, models.QualityHigh, QualityFor(10))
}

func TestBucketObservations(t *testing.T) {
	obs := []models.RawObservation{
		{EventDate: "2022-01-03", IndividualCount: count(4)},
		{EventDate: "2022-01-20", OrganismQuantity: count(2.5)},
		{EventDate: "2022-01-21"},
		{EventDate: "2021-12-31", IndividualCount: count(1), OrganismQuantity: count(99)},
		{EventDate: "unknown"},
		{EventDate: ""},
	}

	buckets, dropped := BucketObservations(obs)
	require.Len(t, buckets, 2)
	assert.Equal(t, 2, dropped)

	assert.Equal(t, "2021-12", buckets[0].Month)
	assert.Equal(t, 1.0, buckets[0].Value)
	assert.Equal(t, 1, buckets[0].RecordCount)

	assert.Equal(t, "2022-01", buckets[1].Month)
	assert.Equal(t, 7.5, buckets[1].Value)
	assert.Equal(t, 3, buckets[1].RecordCount)
	assert.Equal(t, models.QualityLow, buckets[1].Quality)
}

func TestBucketObservationsRecordCountMatchesParseable(t *testing.T) {
	var obs []models.RawObservation
	parseable := 0
	for i := 0; i < 200; i++ {
		date := fmt.Sprintf("20%02d-%02d-15", 10+i%7, 1+i%12)
		if i%9 == 0 {
			date = "n/a"
		} else {
			parseable++
		}
		obs = append(obs, models.RawObservation{EventDate: date, IndividualCount: count(float64(i % 5))})
	}

	buckets, dropped := BucketObservations(obs)

	total := 0
	for i, b := range buckets {
		total += b.RecordCount
		assert.Equal(t, QualityFor(b.RecordCount), b.Quality)
		if i > 0 {
			assert.Less(t, buckets[i-1].Month, b.Month)
		}
	}
	assert.Equal(t, parseable, total)
	assert.Equal(t, len(obs)-parseable, dropped)
}

func TestMeanAggregator(t *testing.T) {
	agg := NewMeanAggregator()
	agg.Add("2023-06-01", 20)
	agg.Add("2023-06-15", 22)
	agg.Add("2023-07-01", 25)

	buckets := agg.Buckets()
	require.Len(t, buckets, 2)
	assert.Equal(t, 21.0, buckets[0].Value)
	assert.Equal(t, 2, buckets[0].RecordCount)
	assert.Equal(t, 25.0, buckets[1].Value)
}

func TestQualityRecomputedOnInsert(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < 10; i++ {
		agg.Add("2020-02-02", 1)
		b := agg.Buckets()[0]
		assert.Equal(t, QualityFor(i+1), b.Quality)
	}
	assert.Equal(t, models.QualityHigh, agg.Buckets()[0].Quality)
}
