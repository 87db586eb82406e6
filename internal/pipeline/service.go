// Package pipeline turns upstream records into cached region summaries and
// composite health scores.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lox/mpawatch/internal/cache"
	"github.com/lox/mpawatch/internal/geo"
	"github.com/lox/mpawatch/internal/ingest"
	"github.com/lox/mpawatch/internal/logging"
	"github.com/lox/mpawatch/internal/models"
	"github.com/lox/mpawatch/internal/score"
	"github.com/lox/mpawatch/internal/series"
	"github.com/lox/mpawatch/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Summary kinds double as cache namespaces.
const (
	KindAbundance     = "abundance"
	KindEnvironmental = "environmental"
	KindTracking      = "tracking"
)

// Kinds lists every cached summary kind.
var Kinds = []string{KindAbundance, KindEnvironmental, KindTracking}

// SchemaVersions tags cache keys per kind. Bump a kind's version whenever its
// summary shape changes.
var SchemaVersions = map[string]int{
	KindAbundance:     1,
	KindEnvironmental: 1,
	KindTracking:      1,
}

const (
	HeatmapCellDeg       = 0.1
	DefaultLookbackYears = 5
	DefaultAbundanceTTL  = 24 * time.Hour
	DefaultTrackingTTL   = 12 * time.Hour

	// fetchTimeout bounds one shared upstream build.
	fetchTimeout = 5 * time.Minute

	// DefaultErrorTTL caps how long a summary whose fetch ended on an
	// upstream error stays cached.
	DefaultErrorTTL = 15 * time.Minute
)

var (
	ErrMissingRegionID = errors.New("pipeline: region id is required")
	ErrInvalidRadius   = errors.New("pipeline: radius must be positive")
	ErrEmptyBoundary   = errors.New("pipeline: boundary needs at least 3 vertices")
	ErrUnknownRegion   = errors.New("pipeline: unknown region")
)

// OccurrenceSource is the biodiversity API.
type OccurrenceSource interface {
	FetchOccurrences(ctx context.Context, q ingest.OccurrenceQuery) ingest.FetchResult[models.RawObservation]
}

// TrackingSource is the animal tracking API.
type TrackingSource interface {
	FetchRegion(ctx context.Context, bbox geo.BBox, from, to time.Time, maxStudies int) (ingest.FetchResult[models.RawObservation], []models.Study)
}

// Auditor records one row per upstream fetch.
type Auditor interface {
	StartIngestRun(ctx context.Context, api, kind, regionID string) (*store.IngestRun, error)
	CompleteIngestRun(ctx context.Context, run *store.IngestRun) error
}

// ScoreRecorder keeps computed scores.
type ScoreRecorder interface {
	InsertScore(ctx context.Context, sc models.CompositeHealthScore) error
}

type Options struct {
	LookbackYears    int
	AbundanceTTL     time.Duration
	EnvironmentalTTL time.Duration
	TrackingTTL      time.Duration
	ErrorTTL         time.Duration
	MaxStudies       int
	Thresholds       map[string]series.Threshold
	Weights          map[string]float64
}

func (o Options) withDefaults() Options {
	if o.LookbackYears <= 0 {
		o.LookbackYears = DefaultLookbackYears
	}
	if o.AbundanceTTL <= 0 {
		o.AbundanceTTL = DefaultAbundanceTTL
	}
	if o.EnvironmentalTTL <= 0 {
		o.EnvironmentalTTL = DefaultAbundanceTTL
	}
	if o.TrackingTTL <= 0 {
		o.TrackingTTL = DefaultTrackingTTL
	}
	if o.ErrorTTL <= 0 {
		o.ErrorTTL = DefaultErrorTTL
	}
	if o.MaxStudies <= 0 {
		o.MaxStudies = ingest.DefaultMaxStudies
	}
	if o.Thresholds == nil {
		o.Thresholds = series.DefaultThresholds
	}
	return o
}

func (o Options) ttl(kind string) time.Duration {
	switch kind {
	case KindEnvironmental:
		return o.EnvironmentalTTL
	case KindTracking:
		return o.TrackingTTL
	default:
		return o.AbundanceTTL
	}
}

// Service runs the fetch, aggregate and score pipeline behind a read-through
// cache. Identical concurrent requests share one upstream fetch.
type Service struct {
	obis     OccurrenceSource
	movebank TrackingSource
	cache    *cache.ExpiringCache
	audit    Auditor
	scores   ScoreRecorder
	scorer   *score.Scorer
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
	flight   singleflight.Group

	mu      sync.RWMutex
	regions map[string]models.Region
}

func New(obis OccurrenceSource, movebank TrackingSource, c *cache.ExpiringCache, opts Options, logger *zap.Logger) *Service {
	opts = opts.withDefaults()
	return &Service{
		obis:     obis,
		movebank: movebank,
		cache:    c,
		scorer:   score.NewScorer(opts.Weights),
		opts:     opts,
		logger:   logging.OrNop(logger),
		now:      time.Now,
		regions:  make(map[string]models.Region),
	}
}

// SetAuditor enables ingest run auditing.
func (s *Service) SetAuditor(a Auditor) {
	s.audit = a
}

// SetScoreRecorder enables score history.
func (s *Service) SetScoreRecorder(r ScoreRecorder) {
	s.scores = r
}

// SetClock replaces the time source for date windows and cache stamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetRegions replaces the region catalog.
func (s *Service) SetRegions(regions []models.Region) {
	m := make(map[string]models.Region, len(regions))
	for _, r := range regions {
		m[r.ID] = r
	}
	s.mu.Lock()
	s.regions = m
	s.mu.Unlock()
}

// Regions returns the catalog sorted by id.
func (s *Service) Regions() []models.Region {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Region, 0, len(s.regions))
	for _, r := range s.regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Service) Region(id string) (models.Region, error) {
	if id == "" {
		return models.Region{}, ErrMissingRegionID
	}
	s.mu.RLock()
	r, ok := s.regions[id]
	s.mu.RUnlock()
	if !ok {
		return models.Region{}, fmt.Errorf("%w: %q", ErrUnknownRegion, id)
	}
	return r, nil
}

func validateRegion(r models.Region) error {
	if r.ID == "" {
		return ErrMissingRegionID
	}
	if r.HasBoundary() {
		return nil
	}
	if len(r.Boundary) > 0 {
		return ErrEmptyBoundary
	}
	if r.RadiusKm <= 0 || math.IsNaN(r.RadiusKm) || math.IsInf(r.RadiusKm, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidRadius, r.RadiusKm)
	}
	return nil
}

// searchBox is the upstream query box for a region: the boundary's extent
// when it has one, otherwise the radius box.
func searchBox(r models.Region) geo.BBox {
	if r.HasBoundary() {
		return geo.Bounds(r.Boundary)
	}
	return geo.BoundingBox(r.Center, r.RadiusKm)
}

// window is the [start, end] query range ending today.
func (s *Service) window() (time.Time, time.Time) {
	end := s.now().UTC()
	return end.AddDate(-s.opts.LookbackYears, 0, 0), end
}

func cacheKey(kind, regionID string) cache.Key {
	return cache.Key{Namespace: kind, EntityID: regionID, SchemaVersion: SchemaVersions[kind]}
}

// load serves key from the cache unless refresh is set, otherwise builds,
// stores and returns a fresh value. Cache failures are logged and never
// fail the request.
//
// The build runs detached from ctx, bounded by fetchTimeout, so a caller
// that goes away does not truncate the fetch other callers are waiting on.
// Each caller still stops waiting when its own ctx ends.
func load[T any](ctx context.Context, s *Service, key cache.Key, refresh bool, build func(context.Context) (*T, time.Duration)) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !refresh {
		var hit T
		_, ok, err := s.cache.Get(ctx, key, &hit)
		if err != nil {
			s.logger.Warn("cache read failed, fetching", zap.String("key", key.String()), zap.Error(err))
		} else if ok {
			return &hit, nil
		}
	}

	ch := s.flight.DoChan(key.String(), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		fresh, ttl := build(fctx)
		if ttl <= 0 {
			return fresh, nil
		}
		if _, err := s.cache.Put(fctx, key, fresh, ttl); err != nil {
			s.logger.Warn("cache write failed", zap.String("key", key.String()), zap.Error(err))
		}
		return fresh, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*T), nil
	}
}

// effectiveTTL shortens the TTL of results that ended on an upstream error
// so the next request retries soon. A fetch cut short by its own deadline or
// cancellation is not cached at all.
func (s *Service) effectiveTTL(kind string, res ingest.FetchResult[models.RawObservation]) time.Duration {
	if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
		return 0
	}
	ttl := s.opts.ttl(kind)
	if res.Err != nil && s.opts.ErrorTTL < ttl {
		return s.opts.ErrorTTL
	}
	return ttl
}

func (s *Service) startRun(ctx context.Context, api, kind, regionID string) *store.IngestRun {
	if s.audit == nil {
		return nil
	}
	run, err := s.audit.StartIngestRun(ctx, api, kind, regionID)
	if err != nil {
		s.logger.Warn("failed to start ingest run", zap.String("region", regionID), zap.String("kind", kind), zap.Error(err))
		return nil
	}
	return run
}

func (s *Service) finishRun(ctx context.Context, run *store.IngestRun, res ingest.FetchResult[models.RawObservation], kept int) {
	if s.audit == nil || run == nil {
		return
	}
	run.PagesAttempted = sql.NullInt64{Int64: int64(res.PagesAttempted), Valid: true}
	run.RecordsParsed = sql.NullInt64{Int64: int64(len(res.Records)), Valid: true}
	run.RecordsKept = sql.NullInt64{Int64: int64(kept), Valid: true}
	run.Complete = res.Complete
	run.Success = res.Err == nil
	if res.Err != nil {
		run.ErrorMessage = sql.NullString{String: res.Err.Error(), Valid: true}
	}

	// The audit row is written even when the request was cancelled.
	if err := s.audit.CompleteIngestRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("failed to complete ingest run", zap.String("run", run.ID), zap.Error(err))
	}
}

// filterRegion keeps observations inside the region.
func filterRegion(obs []models.RawObservation, region models.Region) []models.RawObservation {
	out := make([]models.RawObservation, 0, len(obs))
	for _, o := range obs {
		if geo.InRegion(o.Position(), region) {
			out = append(out, o)
		}
	}
	return out
}

func positions(obs []models.RawObservation) []models.LatLng {
	out := make([]models.LatLng, len(obs))
	for i, o := range obs {
		out[i] = o.Position()
	}
	return out
}

func dataQuality(res ingest.FetchResult[models.RawObservation], inRegion, dropped int, start, end, now time.Time) models.DataQuality {
	return models.DataQuality{
		TotalRecords:    len(res.Records),
		RecordsInRegion: inRegion,
		DroppedRecords:  dropped,
		PagesAttempted:  res.PagesAttempted,
		Complete:        res.Complete,
		StartDate:       start.Format(time.DateOnly),
		EndDate:         end.Format(time.DateOnly),
		LastUpdated:     now,
	}
}
