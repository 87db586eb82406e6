package pipeline

import (
	"context"
	"time"

	"github.com/lox/mpawatch/internal/geo"
	"github.com/lox/mpawatch/internal/ingest"
	"github.com/lox/mpawatch/internal/models"
	"github.com/lox/mpawatch/internal/tracking"
	"go.uber.org/zap"
)

// FetchTrackingSummary returns movement paths of tracked animals measured
// against boundary.
func (s *Service) FetchTrackingSummary(ctx context.Context, regionID string, boundary []models.LatLng) (*models.TrackingSummary, error) {
	if regionID == "" {
		return nil, ErrMissingRegionID
	}
	if len(boundary) < 3 {
		return nil, ErrEmptyBoundary
	}
	region := models.Region{
		ID:       regionID,
		Name:     regionID,
		Center:   geo.Centroid(boundary),
		Boundary: boundary,
	}
	if known, err := s.Region(regionID); err == nil {
		region.Name = known.Name
	}
	return s.Tracking(ctx, region, false)
}

// Tracking returns the region's tracking summary. Regions without a boundary
// are measured against their radius.
func (s *Service) Tracking(ctx context.Context, region models.Region, refresh bool) (*models.TrackingSummary, error) {
	if err := validateRegion(region); err != nil {
		return nil, err
	}
	return load(ctx, s, cacheKey(KindTracking, region.ID), refresh, func(ctx context.Context) (*models.TrackingSummary, time.Duration) {
		return s.buildTracking(ctx, region)
	})
}

func (s *Service) buildTracking(ctx context.Context, region models.Region) (*models.TrackingSummary, time.Duration) {
	start, end := s.window()

	run := s.startRun(ctx, ingest.MovebankAPI, KindTracking, region.ID)
	res, studies := s.movebank.FetchRegion(ctx, searchBox(region), start, end, s.opts.MaxStudies)

	usable, dropped := ingest.Usable(res.Records)
	paths := tracking.Reconstruct(usable, region)

	inside, kept := 0, 0
	var percentSum float64
	crossings := 0
	speciesCounts := make(map[string]int)
	for _, p := range paths {
		kept += len(p.Points)
		for _, pt := range p.Points {
			if pt.InRegion {
				inside++
			}
		}
		percentSum += p.PercentTimeInRegion
		crossings += p.BoundaryCrossings
		name := p.ScientificName
		if name == "" {
			name = "unknown"
		}
		speciesCounts[name]++
	}
	s.finishRun(ctx, run, res, kept)

	var avgPercent float64
	if len(paths) > 0 {
		avgPercent = percentSum / float64(len(paths))
	}
	if studies == nil {
		studies = []models.Study{}
	}

	now := s.now()
	ttl := s.effectiveTTL(KindTracking, res)
	summary := &models.TrackingSummary{
		RegionID:               region.ID,
		Paths:                  paths,
		Studies:                studies,
		IndividualsTracked:     len(paths),
		AvgPercentTimeInRegion: avgPercent,
		TotalBoundaryCrossings: crossings,
		SpeciesCounts:          speciesCounts,
		Heatmap:                geo.GridBin(tracking.Positions(paths), HeatmapCellDeg),
		DataQuality:            dataQuality(res, inside, dropped, start, end, now),
		CachedAt:               now,
		ExpiresAt:              now.Add(ttl),
	}

	s.logger.Info("tracking summary built",
		zap.String("region", region.ID),
		zap.Int("fixes", len(res.Records)),
		zap.Int("studies", len(studies)),
		zap.Int("individuals", len(paths)),
		zap.Bool("complete", res.Complete))
	return summary, ttl
}
