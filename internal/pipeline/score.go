package pipeline

import (
	"context"
	"fmt"

	"github.com/lox/mpawatch/internal/metrics"
	"github.com/lox/mpawatch/internal/models"
	"github.com/lox/mpawatch/internal/score"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ComputeCompositeHealthScore combines sub-score inputs keyed by source name.
func (s *Service) ComputeCompositeHealthScore(regionID string, inputs map[string]score.Input) models.CompositeHealthScore {
	sc := s.scorer.Compute(inputs)
	sc.RegionID = regionID
	return sc
}

// RegionScore gathers all three summaries for a catalog region and scores
// them. The score is exported as a gauge and kept in score history.
func (s *Service) RegionScore(ctx context.Context, regionID string) (models.CompositeHealthScore, error) {
	region, err := s.Region(regionID)
	if err != nil {
		return models.CompositeHealthScore{}, err
	}
	return s.scoreRegion(ctx, region, false)
}

// RefreshRegion rebuilds every summary for region from upstream and rescores
// it.
func (s *Service) RefreshRegion(ctx context.Context, region models.Region) error {
	_, err := s.scoreRegion(ctx, region, true)
	return err
}

func (s *Service) scoreRegion(ctx context.Context, region models.Region, refresh bool) (models.CompositeHealthScore, error) {
	var (
		ab  *models.AbundanceSummary
		env *models.EnvironmentalSummary
		tr  *models.TrackingSummary
	)

	// Abundance and environmental share the OBIS limiter and still queue
	// behind each other; tracking runs alongside on the Movebank limiter.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ab, err = s.Abundance(gctx, region, refresh)
		return err
	})
	g.Go(func() (err error) {
		env, err = s.Environmental(gctx, region, refresh)
		return err
	})
	g.Go(func() (err error) {
		tr, err = s.Tracking(gctx, region, refresh)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.CompositeHealthScore{}, fmt.Errorf("score region %s: %w", region.ID, err)
	}

	sc := s.ComputeCompositeHealthScore(region.ID, score.FromSummaries(ab, env, tr))
	metrics.HealthScore.WithLabelValues(region.ID).Set(sc.Score)

	if s.scores != nil {
		if err := s.scores.InsertScore(context.WithoutCancel(ctx), sc); err != nil {
			s.logger.Warn("failed to record score", zap.String("region", region.ID), zap.Error(err))
		}
	}

	s.logger.Info("region scored",
		zap.String("region", region.ID),
		zap.Float64("score", sc.Score),
		zap.String("confidence", string(sc.Confidence)),
		zap.Int("available", sc.AvailableSources))
	return sc, nil
}

// ScoreAll scores every catalog region with at most concurrency regions in
// flight. Results follow catalog order; a region that fails is logged and
// left out.
func (s *Service) ScoreAll(ctx context.Context, concurrency int) []models.CompositeHealthScore {
	regions := s.Regions()
	results := make([]*models.CompositeHealthScore, len(regions))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, region := range regions {
		g.Go(func() error {
			sc, err := s.scoreRegion(ctx, region, false)
			if err != nil {
				s.logger.Error("region score failed", zap.String("region", region.ID), zap.Error(err))
				return nil
			}
			results[i] = &sc
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.CompositeHealthScore, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// CachedEntries reports how many summaries the cache currently holds.
func (s *Service) CachedEntries(ctx context.Context) (int, error) {
	return s.cache.Len(ctx)
}

// DropRegion deletes every cached summary for regionID.
func (s *Service) DropRegion(ctx context.Context, regionID string) error {
	if regionID == "" {
		return ErrMissingRegionID
	}
	for _, kind := range Kinds {
		if err := s.cache.Delete(ctx, cacheKey(kind, regionID)); err != nil {
			return err
		}
	}
	return nil
}
