// Package tracking rebuilds per-individual movement paths from telemetry
// fixes and measures how each path relates to a region.
package tracking

import (
	"sort"
	"time"

	"github.com/lox/mpawatch/internal/geo"
	"github.com/lox/mpawatch/internal/models"
)

// MinPathPoints is the fewest fixes an individual needs to form a path.
const MinPathPoints = 2

// Reconstruct groups fixes by individual, orders each group by time and
// classifies every fix against the region. Individuals with fewer than
// MinPathPoints usable fixes are dropped. Paths are ordered by individual id.
//
// ResidencyTimeHours is the time between the first and last fix inside the
// region. It depends on fix density and is not true dwell time: an animal
// that leaves and returns between those fixes is still counted as resident.
func Reconstruct(obs []models.RawObservation, region models.Region) []models.TrackingPath {
	type group struct {
		scientificName string
		studyID        string
		points         []models.TrackPoint
	}

	groups := make(map[string]*group)
	for _, o := range obs {
		if o.IndividualID == "" {
			continue
		}
		ts := FixTime(o)
		if ts.IsZero() {
			continue
		}

		g, ok := groups[o.IndividualID]
		if !ok {
			g = &group{}
			groups[o.IndividualID] = g
		}
		if g.scientificName == "" {
			g.scientificName = o.ScientificName
		}
		if g.studyID == "" {
			g.studyID = o.StudyID
		}
		g.points = append(g.points, models.TrackPoint{
			Timestamp: ts,
			Lat:       o.Lat,
			Lng:       o.Lng,
		})
	}

	paths := make([]models.TrackingPath, 0, len(groups))
	for id, g := range groups {
		if len(g.points) < MinPathPoints {
			continue
		}
		path := buildPath(g.points, region)
		path.IndividualID = id
		path.ScientificName = g.scientificName
		path.StudyID = g.studyID
		paths = append(paths, path)
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i].IndividualID < paths[j].IndividualID })
	return paths
}

// FixTime returns the observation's timestamp, parsing EventDate when the
// upstream client did not set one. Zero means the fix is unusable.
func FixTime(o models.RawObservation) time.Time {
	if !o.Timestamp.IsZero() {
		return o.Timestamp
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.000", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, o.EventDate); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func buildPath(points []models.TrackPoint, region models.Region) models.TrackingPath {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })

	var (
		inside      int
		crossings   int
		distanceKm  float64
		firstInside time.Time
		lastInside  time.Time
	)

	for i := range points {
		p := models.LatLng{Lat: points[i].Lat, Lng: points[i].Lng}
		points[i].InRegion = geo.InRegion(p, region)

		if points[i].InRegion {
			inside++
			if firstInside.IsZero() {
				firstInside = points[i].Timestamp
			}
			lastInside = points[i].Timestamp
		}
		if i > 0 {
			prev := points[i-1]
			if prev.InRegion != points[i].InRegion {
				crossings++
			}
			distanceKm += geo.HaversineKm(models.LatLng{Lat: prev.Lat, Lng: prev.Lng}, p)
		}
	}

	path := models.TrackingPath{
		Points:              points,
		BoundaryCrossings:   crossings,
		PercentTimeInRegion: float64(inside) / float64(len(points)) * 100,
		TotalDistanceKm:     distanceKm,
		FirstSighting:       points[0].Timestamp,
		LastSighting:        points[len(points)-1].Timestamp,
	}
	if inside > 0 {
		path.FirstSighting = firstInside
		path.LastSighting = lastInside
		path.ResidencyTimeHours = lastInside.Sub(firstInside).Hours()
	}

	last := points[len(points)-1]
	if region.HasBoundary() {
		path.LastBoundaryDistanceKm = geo.NearestBoundaryDistanceKm(models.LatLng{Lat: last.Lat, Lng: last.Lng}, region.Boundary)
	}
	return path
}

// Positions flattens every fix of every path, for heatmaps.
func Positions(paths []models.TrackingPath) []models.LatLng {
	var out []models.LatLng
	for _, p := range paths {
		for _, pt := range p.Points {
			out = append(out, models.LatLng{Lat: pt.Lat, Lng: pt.Lng})
		}
	}
	return out
}
