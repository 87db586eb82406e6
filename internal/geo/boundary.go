package geo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	geojson "github.com/paulmach/go.geojson"
	"github.com/tidwall/gjson"

	"github.com/lox/mpawatch/internal/models"
)

var ErrNoPolygon = errors.New("no polygon geometry found")

// LoadBoundary reads an MPA boundary ring from a .geojson/.json or .shp file.
func LoadBoundary(path string) ([]models.LatLng, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return LoadShapefileBoundary(path)
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read boundary: %w", err)
		}
		return ParseGeoJSONBoundary(data)
	default:
		return nil, fmt.Errorf("unsupported boundary file %q", filepath.Base(path))
	}
}

// ParseGeoJSONBoundary extracts the outer ring of a Polygon, MultiPolygon,
// GeometryCollection, Feature or FeatureCollection. For multi-part
// geometries the ring with the most vertices wins.
func ParseGeoJSONBoundary(data []byte) ([]models.LatLng, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("decode geojson: invalid json")
	}

	var geoms []*geojson.Geometry
	switch typ := gjson.GetBytes(data, "type").String(); typ {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("decode feature collection: %w", err)
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("decode feature: %w", err)
		}
		geoms = append(geoms, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s geometry: %w", typ, err)
		}
		geoms = append(geoms, g)
	}

	var best []models.LatLng
	for _, g := range geoms {
		collectRings(g, &best)
	}
	if len(best) < 3 {
		return nil, ErrNoPolygon
	}
	return best, nil
}

func collectRings(g *geojson.Geometry, best *[]models.LatLng) {
	if g == nil {
		return
	}
	switch {
	case g.IsPolygon():
		keepLargest(g.Polygon, best)
	case g.IsMultiPolygon():
		for _, rings := range g.MultiPolygon {
			keepLargest(rings, best)
		}
	case g.IsCollection():
		for _, child := range g.Geometries {
			collectRings(child, best)
		}
	}
}

// keepLargest considers only the outer ring (index 0); holes are ignored.
func keepLargest(rings [][][]float64, best *[]models.LatLng) {
	if len(rings) == 0 || len(rings[0]) <= len(*best) {
		return
	}
	ring := make([]models.LatLng, 0, len(rings[0]))
	for _, c := range rings[0] {
		if len(c) < 2 {
			continue
		}
		// GeoJSON is [lng, lat]
		ring = append(ring, models.LatLng{Lat: c[1], Lng: c[0]})
	}
	if len(ring) > len(*best) {
		*best = ring
	}
}
