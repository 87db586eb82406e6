package ingest

import (
	"context"
	"time"

	"github.com/lox/mpawatch/internal/logging"
	"github.com/lox/mpawatch/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRefreshInterval    = 6 * time.Hour
	DefaultRefreshConcurrency = 4
)

// Refresher rebuilds every cached summary for one region.
type Refresher interface {
	RefreshRegion(ctx context.Context, region models.Region) error
}

// Scheduler refreshes all regions once at start and then on every tick.
// Regions run concurrently; upstream calls still queue on the shared
// per-API limiters.
type Scheduler struct {
	refresher   Refresher
	regions     []models.Region
	interval    time.Duration
	concurrency int
	logger      *zap.Logger
}

func NewScheduler(refresher Refresher, regions []models.Region, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Scheduler{
		refresher:   refresher,
		regions:     regions,
		interval:    interval,
		concurrency: DefaultRefreshConcurrency,
		logger:      logging.OrNop(logger),
	}
}

// SetConcurrency bounds how many regions refresh at once.
func (s *Scheduler) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.RefreshAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return
		case <-ticker.C:
			s.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every region and returns how many failed. One
// region's failure does not stop the others.
func (s *Scheduler) RefreshAll(ctx context.Context) int {
	start := time.Now()
	s.logger.Info("refreshing regions", zap.Int("regions", len(s.regions)))

	failed := make([]bool, len(s.regions))
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, region := range s.regions {
		g.Go(func() error {
			if err := s.refresher.RefreshRegion(ctx, region); err != nil {
				s.logger.Error("region refresh failed", zap.String("region", region.ID), zap.Error(err))
				failed[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	s.logger.Info("refresh complete",
		zap.Int("regions", len(s.regions)),
		zap.Int("failed", n),
		zap.Duration("elapsed", time.Since(start)))
	return n
}
