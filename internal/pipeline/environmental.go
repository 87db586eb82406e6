package pipeline

import (
	"context"
	"time"

	"github.com/lox/mpawatch/internal/ingest"
	"github.com/lox/mpawatch/internal/models"
	"github.com/lox/mpawatch/internal/series"
	"go.uber.org/zap"
)

// FetchEnvironmentalSummary returns measurement statistics for the circle
// around center. A catalog region with the same id contributes its boundary.
func (s *Service) FetchEnvironmentalSummary(ctx context.Context, regionID string, center models.LatLng, radiusKm float64) (*models.EnvironmentalSummary, error) {
	return s.Environmental(ctx, s.adHocRegion(regionID, center, radiusKm), false)
}

func (s *Service) Environmental(ctx context.Context, region models.Region, refresh bool) (*models.EnvironmentalSummary, error) {
	if err := validateRegion(region); err != nil {
		return nil, err
	}
	return load(ctx, s, cacheKey(KindEnvironmental, region.ID), refresh, func(ctx context.Context) (*models.EnvironmentalSummary, time.Duration) {
		return s.buildEnvironmental(ctx, region)
	})
}

func (s *Service) buildEnvironmental(ctx context.Context, region models.Region) (*models.EnvironmentalSummary, time.Duration) {
	start, end := s.window()
	q := ingest.OccurrenceQuery{
		Geometry:     searchBox(region).WKT(),
		StartDate:    start.Format(time.DateOnly),
		EndDate:      end.Format(time.DateOnly),
		Measurements: true,
	}

	run := s.startRun(ctx, ingest.OBISAPI, KindEnvironmental, region.ID)
	res := s.obis.FetchOccurrences(ctx, q)

	usable, dropped := ingest.Usable(res.Records)
	inRegion := filterRegion(usable, region)
	s.finishRun(ctx, run, res, len(inRegion))

	params, skipped := series.BuildParameters(inRegion, s.opts.Thresholds)
	if skipped > 0 {
		s.logger.Debug("skipped unusable measurements", zap.String("region", region.ID), zap.Int("skipped", skipped))
	}

	now := s.now()
	ttl := s.effectiveTTL(KindEnvironmental, res)
	summary := &models.EnvironmentalSummary{
		RegionID:    region.ID,
		Parameters:  params,
		DataQuality: dataQuality(res, len(inRegion), dropped, start, end, now),
		CachedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}

	s.logger.Info("environmental summary built",
		zap.String("region", region.ID),
		zap.Int("records", len(res.Records)),
		zap.Int("in_region", len(inRegion)),
		zap.Int("parameters", len(params)),
		zap.Bool("complete", res.Complete))
	return summary, ttl
}
