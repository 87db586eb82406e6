package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lox/mpawatch/internal/cache"
	"github.com/lox/mpawatch/internal/config"
	"github.com/lox/mpawatch/internal/httputil"
	"github.com/lox/mpawatch/internal/ingest"
	"github.com/lox/mpawatch/internal/logging"
	"github.com/lox/mpawatch/internal/models"
	"github.com/lox/mpawatch/internal/pipeline"
	"github.com/lox/mpawatch/internal/store"
)

// app holds everything a command needs, wired from config.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	cache    *cache.ExpiringCache
	pipeline *pipeline.Service
	regions  []models.Region
	closers  []func() error
}

func newApp(ctx context.Context, g *Globals) (*app, error) {
	cfg, err := config.LoadWithOverrides(g.Config, map[string]any{
		"database":             g.DB,
		"log_level":            g.LogLevel,
		"log_format":           g.LogFormat,
		"cache.backend":        g.CacheBackend,
		"cache.redis_addr":     g.RedisAddr,
		"cache.redis_password": g.RedisPassword,
		"movebank.user":        g.MovebankUser,
		"movebank.password":    g.MovebankPassword,
	})
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	regions, err := cfg.LoadRegions()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, regions: regions}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	if dir := filepath.Dir(cfg.Database); cfg.Database != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	st, err := store.Open(cfg.Database, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)
	logger.Debug("database ready", zap.String("path", cfg.Database))

	kv, err := a.cacheStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cache = cache.New(kv, logger.Named("cache"))

	// One limiter per upstream API, shared by every region.
	client := httputil.NewClient()
	obis := ingest.NewOBISClient(
		httputil.NewLimiter(ingest.OBISAPI, cfg.OBIS.MinInterval),
		ingest.OBISOptions{
			BaseURL: cfg.OBIS.BaseURL,
			Client:  client,
			Pages:   ingest.PageOptions{PageSize: cfg.OBIS.PageSize, MaxPages: cfg.OBIS.MaxPages},
		},
		logger.Named("obis"))
	movebank := ingest.NewMovebankClient(
		httputil.NewLimiter(ingest.MovebankAPI, cfg.Movebank.MinInterval),
		ingest.MovebankOptions{
			BaseURL:  cfg.Movebank.BaseURL,
			Client:   client,
			User:     cfg.Movebank.User,
			Password: cfg.Movebank.Password,
		},
		logger.Named("movebank"))
	if cfg.Movebank.User == "" {
		logger.Info("no Movebank credentials, tracking is limited to public studies")
	}

	a.pipeline = pipeline.New(obis, movebank, a.cache, pipeline.Options{
		LookbackYears:    cfg.LookbackYears,
		AbundanceTTL:     cfg.Cache.TTL.Abundance,
		EnvironmentalTTL: cfg.Cache.TTL.Environmental,
		TrackingTTL:      cfg.Cache.TTL.Tracking,
		MaxStudies:       cfg.Movebank.MaxStudies,
	}, logger.Named("pipeline"))
	a.pipeline.SetAuditor(st)
	a.pipeline.SetScoreRecorder(st)
	a.pipeline.SetRegions(regions)

	logger.Info("configured",
		zap.Int("regions", len(regions)),
		zap.String("cache", cfg.Cache.Backend))
	return a, nil
}

func (a *app) cacheStore(ctx context.Context) (cache.Store, error) {
	switch a.cfg.Cache.Backend {
	case config.CacheMemory:
		return cache.NewMemoryStore(), nil
	case config.CacheRedis:
		rs, err := cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr:     a.cfg.Cache.RedisAddr,
			Password: a.cfg.Cache.RedisPassword,
			DB:       a.cfg.Cache.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs.Close)
		return rs, nil
	default:
		return a.store, nil
	}
}

func (a *app) scheduler(regions []models.Region) *ingest.Scheduler {
	return ingest.NewScheduler(a.pipeline, regions, a.cfg.RefreshInterval, a.logger.Named("scheduler"))
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
