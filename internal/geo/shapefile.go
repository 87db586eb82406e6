package geo

import (
	"fmt"

	"github.com/jonas-p/go-shp"

	"github.com/lox/mpawatch/internal/models"
)

// LoadShapefileBoundary reads the first polygon record of an ESRI shapefile.
// Multi-part polygons keep only their largest part, which for protected-area
// datasets is the outer boundary.
func LoadShapefileBoundary(path string) ([]models.LatLng, error) {
	shape, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer shape.Close()

	for shape.Next() {
		_, p := shape.Shape()
		polygon, ok := p.(*shp.Polygon)
		if !ok || len(polygon.Parts) == 0 {
			continue
		}
		return largestPart(polygon), nil
	}
	return nil, ErrNoPolygon
}

func largestPart(polygon *shp.Polygon) []models.LatLng {
	bestStart, bestEnd := 0, 0
	for i := range polygon.Parts {
		start := int(polygon.Parts[i])
		end := len(polygon.Points)
		if i+1 < len(polygon.Parts) {
			end = int(polygon.Parts[i+1])
		}
		if end-start > bestEnd-bestStart {
			bestStart, bestEnd = start, end
		}
	}

	ring := make([]models.LatLng, 0, bestEnd-bestStart)
	for _, pt := range polygon.Points[bestStart:bestEnd] {
		ring = append(ring, models.LatLng{Lat: pt.Y, Lng: pt.X})
	}
	return ring
}
