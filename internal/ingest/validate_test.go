package ingest

import (
	"math"
	"testing"
	"time"

	"github.com/lox/mpawatch/internal/models"
	"github.com/stretchr/testify/assert"
)

func ptr(v float64) *float64 { return &v }

func TestValidateObservation(t *testing.T) {
	valid := models.RawObservation{
		EventDate:      "2022-05-01",
		Lat:            -18.3,
		Lng:            147.6,
		HasCoordinates: true,
	}

	tests := []struct {
		name   string
		modify func(o *models.RawObservation)
		want   []string
	}{
		{"valid", func(o *models.RawObservation) {}, nil},
		{"no coordinates", func(o *models.RawObservation) { o.HasCoordinates = false }, []string{FlagMissingCoordinates}},
		{"lat out of range", func(o *models.RawObservation) { o.Lat = 91 }, []string{FlagLatOutOfRange}},
		{"lng out of range", func(o *models.RawObservation) { o.Lng = -181 }, []string{FlagLngOutOfRange}},
		{"null island", func(o *models.RawObservation) { o.Lat, o.Lng = 0, 0 }, []string{FlagNullIsland}},
		{"bad date", func(o *models.RawObservation) { o.EventDate = "sometime" }, []string{FlagDateUnparseable}},
		{"bad date with timestamp", func(o *models.RawObservation) {
			o.EventDate = ""
			o.Timestamp = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
		}, nil},
		{"negative count", func(o *models.RawObservation) { o.IndividualCount = ptr(-2) }, []string{FlagCountNegative}},
		{"nan quantity", func(o *models.RawObservation) { o.OrganismQuantity = ptr(math.NaN()) }, []string{FlagCountInvalid}},
		{"zero count is fine", func(o *models.RawObservation) { o.IndividualCount = ptr(0) }, nil},
		{"multiple", func(o *models.RawObservation) {
			o.HasCoordinates = false
			o.EventDate = ""
		}, []string{FlagMissingCoordinates, FlagDateUnparseable}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid
			tt.modify(&o)
			assert.Equal(t, tt.want, ValidateObservation(&o))
		})
	}
}

func TestUsable(t *testing.T) {
	obs := []models.RawObservation{
		{EventDate: "2022-05-01", Lat: 1, Lng: 1, HasCoordinates: true},
		{EventDate: "2022-05-01"},
		{EventDate: "bad", Lat: 1, Lng: 1, HasCoordinates: true},
		{EventDate: "2022-06-01", Lat: 2, Lng: 2, HasCoordinates: true},
	}

	kept, dropped := Usable(obs)
	assert.Len(t, kept, 2)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, "2022-06-01", kept[1].EventDate)
}
