// Package geo holds the spatial helpers used to scope upstream records to a
// marine protected area: bounding boxes, WKT query polygons, great-circle
// distance, polygon containment and grid binning for heatmaps.
package geo

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/lox/mpawatch/internal/models"
)

const (
	EarthRadiusKm = 6371.0
	KmPerDegree   = 111.0
)

type BBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Contains reports whether p lies inside the box, edges inclusive.
func (b BBox) Contains(p models.LatLng) bool {
	return p.Lat <= b.North && p.Lat >= b.South && p.Lng <= b.East && p.Lng >= b.West
}

// BoundingBox converts a radius around center into a lat/lng box. The
// longitude delta widens with latitude; one degree is taken as 111 km.
func BoundingBox(center models.LatLng, radiusKm float64) BBox {
	latDelta := radiusKm / KmPerDegree
	lngDelta := radiusKm / (KmPerDegree * math.Cos(center.Lat*math.Pi/180))

	return BBox{
		North: center.Lat + latDelta,
		South: center.Lat - latDelta,
		East:  center.Lng + lngDelta,
		West:  center.Lng - lngDelta,
	}
}

// WKT renders the box as a closed POLYGON ring in lng/lat order:
// west-south, east-south, east-north, west-north, west-south.
func (b BBox) WKT() string {
	return fmt.Sprintf("POLYGON((%s %s, %s %s, %s %s, %s %s, %s %s))",
		ftoa(b.West), ftoa(b.South),
		ftoa(b.East), ftoa(b.South),
		ftoa(b.East), ftoa(b.North),
		ftoa(b.West), ftoa(b.North),
		ftoa(b.West), ftoa(b.South),
	)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(p1, p2 models.LatLng) float64 {
	dLat := (p2.Lat - p1.Lat) * math.Pi / 180
	dLng := (p2.Lng - p1.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(p1.Lat*math.Pi/180)*math.Cos(p2.Lat*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// PointInPolygon is a ray-casting test over a single ring. The ring may be
// open or closed; holes are not supported.
func PointInPolygon(p models.LatLng, ring []models.LatLng) bool {
	if len(ring) < 3 {
		return false
	}

	inside := false
	j := len(ring) - 1
	for i := range ring {
		yi, xi := ring[i].Lat, ring[i].Lng
		yj, xj := ring[j].Lat, ring[j].Lng

		if (yi > p.Lat) != (yj > p.Lat) &&
			p.Lng < (xj-xi)*(p.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// NearestBoundaryDistanceKm returns the distance from p to the closest
// boundary vertex. This is vertex distance, not distance to an edge, so it
// overestimates between sparse vertices. Returns +Inf for an empty boundary.
func NearestBoundaryDistanceKm(p models.LatLng, boundary []models.LatLng) float64 {
	nearest := math.Inf(1)
	for _, v := range boundary {
		if d := HaversineKm(p, v); d < nearest {
			nearest = d
		}
	}
	return nearest
}

// GridBin snaps points to the nearest multiple of cellSizeDeg and returns one
// cell per occupied grid square, with intensity normalised by the busiest
// cell. Cells are ordered by latitude then longitude.
func GridBin(points []models.LatLng, cellSizeDeg float64) []models.HeatmapCell {
	if len(points) == 0 || cellSizeDeg <= 0 {
		return nil
	}

	type cellKey struct{ lat, lng int64 }
	counts := make(map[cellKey]int)
	maxCount := 0

	for _, p := range points {
		k := cellKey{
			lat: int64(math.Round(p.Lat / cellSizeDeg)),
			lng: int64(math.Round(p.Lng / cellSizeDeg)),
		}
		counts[k]++
		if counts[k] > maxCount {
			maxCount = counts[k]
		}
	}

	cells := make([]models.HeatmapCell, 0, len(counts))
	for k, n := range counts {
		cells = append(cells, models.HeatmapCell{
			Lat:       float64(k.lat) * cellSizeDeg,
			Lng:       float64(k.lng) * cellSizeDeg,
			Count:     n,
			Intensity: float64(n) / float64(maxCount),
		})
	}

	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Lat != cells[j].Lat {
			return cells[i].Lat < cells[j].Lat
		}
		return cells[i].Lng < cells[j].Lng
	})
	return cells
}

// InRegion scopes a point to a region: polygon containment when the region
// has a boundary, otherwise distance from the center.
func InRegion(p models.LatLng, region models.Region) bool {
	if region.HasBoundary() {
		return PointInPolygon(p, region.Boundary)
	}
	return HaversineKm(region.Center, p) <= region.RadiusKm
}

// Bounds returns the smallest box containing every point. The zero BBox is
// returned for no points.
func Bounds(points []models.LatLng) BBox {
	if len(points) == 0 {
		return BBox{}
	}
	b := BBox{North: points[0].Lat, South: points[0].Lat, East: points[0].Lng, West: points[0].Lng}
	for _, p := range points[1:] {
		b.North = math.Max(b.North, p.Lat)
		b.South = math.Min(b.South, p.Lat)
		b.East = math.Max(b.East, p.Lng)
		b.West = math.Min(b.West, p.Lng)
	}
	return b
}

// Centroid is the vertex mean of a ring, adequate for small convex MPAs.
func Centroid(ring []models.LatLng) models.LatLng {
	if len(ring) == 0 {
		return models.LatLng{}
	}
	var c models.LatLng
	for _, p := range ring {
		c.Lat += p.Lat
		c.Lng += p.Lng
	}
	n := float64(len(ring))
	return models.LatLng{Lat: c.Lat / n, Lng: c.Lng / n}
}
