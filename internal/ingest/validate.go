package ingest

import (
	"math"

	"github.com/lox/mpawatch/internal/models"
	"github.com/lox/mpawatch/internal/series"
)

const (
	FlagMissingCoordinates = "missing_coordinates"
	FlagLatOutOfRange      = "lat_out_of_range"
	FlagLngOutOfRange      = "lng_out_of_range"
	FlagNullIsland         = "null_island"
	FlagDateUnparseable    = "date_unparseable"
	FlagCountNegative      = "count_negative"
	FlagCountInvalid       = "count_invalid"
)

// ValidateObservation returns quality flags for a record. A record with any
// flag is unusable for aggregation.
func ValidateObservation(obs *models.RawObservation) []string {
	var flags []string

	if !obs.HasCoordinates {
		flags = append(flags, FlagMissingCoordinates)
	} else {
		if obs.Lat < -90 || obs.Lat > 90 || math.IsNaN(obs.Lat) {
			flags = append(flags, FlagLatOutOfRange)
		}
		if obs.Lng < -180 || obs.Lng > 180 || math.IsNaN(obs.Lng) {
			flags = append(flags, FlagLngOutOfRange)
		}
		if obs.Lat == 0 && obs.Lng == 0 {
			flags = append(flags, FlagNullIsland)
		}
	}

	if obs.Timestamp.IsZero() {
		if _, ok := series.MonthKey(obs.EventDate); !ok {
			flags = append(flags, FlagDateUnparseable)
		}
	}

	for _, c := range []*float64{obs.IndividualCount, obs.OrganismQuantity} {
		if c == nil {
			continue
		}
		if math.IsNaN(*c) || math.IsInf(*c, 0) {
			flags = append(flags, FlagCountInvalid)
		} else if *c < 0 {
			flags = append(flags, FlagCountNegative)
		}
	}

	return flags
}

// Usable filters obs down to records that pass validation, returning the
// kept records and the number dropped.
func Usable(obs []models.RawObservation) ([]models.RawObservation, int) {
	kept := make([]models.RawObservation, 0, len(obs))
	for i := range obs {
		if len(ValidateObservation(&obs[i])) > 0 {
			continue
		}
		kept = append(kept, obs[i])
	}
	return kept, len(obs) - len(kept)
}
