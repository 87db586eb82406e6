package pipeline

import (
	"context"
	"time"

	"github.com/lox/mpawatch/internal/geo"
	"github.com/lox/mpawatch/internal/ingest"
	"github.com/lox/mpawatch/internal/models"
	"github.com/lox/mpawatch/internal/series"
	"go.uber.org/zap"
)

// FetchAbundanceSummary returns species abundance for the circle around
// center. A catalog region with the same id contributes its boundary.
func (s *Service) FetchAbundanceSummary(ctx context.Context, regionID string, center models.LatLng, radiusKm float64) (*models.AbundanceSummary, error) {
	return s.Abundance(ctx, s.adHocRegion(regionID, center, radiusKm), false)
}

// Abundance returns the region's abundance summary, bypassing the cache read
// when refresh is set.
func (s *Service) Abundance(ctx context.Context, region models.Region, refresh bool) (*models.AbundanceSummary, error) {
	if err := validateRegion(region); err != nil {
		return nil, err
	}
	return load(ctx, s, cacheKey(KindAbundance, region.ID), refresh, func(ctx context.Context) (*models.AbundanceSummary, time.Duration) {
		return s.buildAbundance(ctx, region)
	})
}

func (s *Service) buildAbundance(ctx context.Context, region models.Region) (*models.AbundanceSummary, time.Duration) {
	start, end := s.window()
	q := ingest.OccurrenceQuery{
		Geometry:  searchBox(region).WKT(),
		StartDate: start.Format(time.DateOnly),
		EndDate:   end.Format(time.DateOnly),
	}

	run := s.startRun(ctx, ingest.OBISAPI, KindAbundance, region.ID)
	res := s.obis.FetchOccurrences(ctx, q)

	usable, dropped := ingest.Usable(res.Records)
	inRegion := filterRegion(usable, region)
	s.finishRun(ctx, run, res, len(inRegion))

	trends := series.BuildSpeciesTrends(inRegion)
	totals, undated := series.BucketObservations(inRegion)

	now := s.now()
	ttl := s.effectiveTTL(KindAbundance, res)
	summary := &models.AbundanceSummary{
		RegionID:         region.ID,
		SpeciesTrends:    trends,
		MonthlyTotals:    totals,
		Anomalies:        series.DetectBucketAnomalies(totals),
		UniqueSpecies:    len(trends),
		ShannonDiversity: series.ShannonDiversity(trends),
		TopSpecies:       series.TopSpecies(trends, series.TopSpeciesLimit),
		Heatmap:          geo.GridBin(positions(inRegion), HeatmapCellDeg),
		DataQuality:      dataQuality(res, len(inRegion), dropped+undated, start, end, now),
		CachedAt:         now,
		ExpiresAt:        now.Add(ttl),
	}

	s.logger.Info("abundance summary built",
		zap.String("region", region.ID),
		zap.Int("records", len(res.Records)),
		zap.Int("in_region", len(inRegion)),
		zap.Int("dropped", dropped),
		zap.Int("species", summary.UniqueSpecies),
		zap.Bool("complete", res.Complete))
	return summary, ttl
}

// adHocRegion builds a radius region, borrowing the boundary of a catalog
// region with the same id.
func (s *Service) adHocRegion(regionID string, center models.LatLng, radiusKm float64) models.Region {
	region := models.Region{ID: regionID, Name: regionID, Center: center, RadiusKm: radiusKm}
	if known, err := s.Region(regionID); err == nil {
		region.Name = known.Name
		region.Boundary = known.Boundary
	}
	return region
}
