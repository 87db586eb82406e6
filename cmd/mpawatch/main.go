package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"go.uber.org/zap"

	"github.com/lox/mpawatch/internal/api"
	"github.com/lox/mpawatch/internal/ingest"
	"github.com/lox/mpawatch/internal/models"
	"github.com/lox/mpawatch/internal/pipeline"
)

// Globals are flags shared by every command. Flags win over the config file.
type Globals struct {
	EnvFile          kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Load environment variables from this file.'"`
	Config           string                   `help:"Config file with the region catalog." type:"path" env:"MPAWATCH_CONFIG"`
	DB               string                   `help:"SQLite database path." env:"MPAWATCH_DB"`
	LogLevel         string                   `help:"Log level (debug, info, warn, error)." env:"MPAWATCH_LOG_LEVEL"`
	LogFormat        string                   `help:"Log format (console, json)." env:"MPAWATCH_LOG_FORMAT"`
	CacheBackend     string                   `help:"Summary cache backend (sqlite, memory, redis)." env:"MPAWATCH_CACHE_BACKEND"`
	RedisAddr        string                   `help:"Redis address for the redis cache backend." env:"REDIS_ADDR"`
	RedisPassword    string                   `help:"Redis password." env:"REDIS_PASSWORD"`
	MovebankUser     string                   `help:"Movebank account name." env:"MOVEBANK_USER"`
	MovebankPassword string                   `help:"Movebank password." env:"MOVEBANK_PASSWORD"`
}

type CLI struct {
	Globals `embed:""`

	Serve   ServeCmd   `cmd:"" help:"Serve the JSON API and refresh regions in the background."`
	Summary SummaryCmd `cmd:"" help:"Print one region summary as JSON."`
	Score   ScoreCmd   `cmd:"" help:"Score regions and print the results as JSON."`
	Refresh RefreshCmd `cmd:"" help:"Refetch every summary for the given regions, or all regions."`
	Cache   CacheCmd   `cmd:"" help:"Cache maintenance."`
}

type ServeCmd struct {
	Listen    string `help:"Listen address." env:"MPAWATCH_LISTEN_ADDR"`
	NoRefresh bool   `help:"Disable background refresh (server only, for local dev)."`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	if !c.NoRefresh {
		go a.scheduler(a.regions).Run(ctx)
	} else {
		a.logger.Info("background refresh disabled (--no-refresh)")
	}

	addr := a.cfg.ListenAddr
	if c.Listen != "" {
		addr = c.Listen
	}
	server := api.NewServer(a.pipeline, a.store, addr, a.logger.Named("api"))
	return server.Run(ctx)
}

type SummaryCmd struct {
	Region  string `arg:"" help:"Region id."`
	Kind    string `arg:"" enum:"abundance,environmental,tracking" help:"Summary kind (abundance, environmental, tracking)."`
	Refresh bool   `help:"Ignore any cached summary."`
}

func (c *SummaryCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	region, err := a.pipeline.Region(c.Region)
	if err != nil {
		return err
	}

	var out any
	switch c.Kind {
	case pipeline.KindAbundance:
		out, err = a.pipeline.Abundance(ctx, region, c.Refresh)
	case pipeline.KindEnvironmental:
		out, err = a.pipeline.Environmental(ctx, region, c.Refresh)
	case pipeline.KindTracking:
		out, err = a.pipeline.Tracking(ctx, region, c.Refresh)
	}
	if err != nil {
		return err
	}
	return printJSON(out)
}

type ScoreCmd struct {
	Regions     []string `arg:"" optional:"" help:"Region ids; all regions when omitted."`
	Concurrency int      `help:"Regions scored at once." default:"4"`
}

func (c *ScoreCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(c.Regions) == 0 {
		return printJSON(a.pipeline.ScoreAll(ctx, c.Concurrency))
	}

	scores := make([]models.CompositeHealthScore, 0, len(c.Regions))
	for _, id := range c.Regions {
		sc, err := a.pipeline.RegionScore(ctx, id)
		if err != nil {
			return err
		}
		scores = append(scores, sc)
	}
	return printJSON(scores)
}

type RefreshCmd struct {
	Regions     []string `arg:"" optional:"" help:"Region ids; all regions when omitted."`
	Concurrency int      `help:"Regions refreshed at once." default:"4"`
}

func (c *RefreshCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	regions := a.regions
	if len(c.Regions) > 0 {
		regions = regions[:0:0]
		for _, id := range c.Regions {
			r, err := a.pipeline.Region(id)
			if err != nil {
				return err
			}
			regions = append(regions, r)
		}
	}

	sched := a.scheduler(regions)
	sched.SetConcurrency(c.Concurrency)
	if failed := sched.RefreshAll(ctx); failed > 0 {
		return fmt.Errorf("%d of %d regions failed to refresh", failed, len(regions))
	}
	return nil
}

type CacheCmd struct {
	Purge CachePurgeCmd `cmd:"" help:"Delete expired summaries."`
	Drop  CacheDropCmd  `cmd:"" help:"Delete every cached summary for a region."`
}

type CachePurgeCmd struct{}

func (c *CachePurgeCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.cache.Purge(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("purged expired summaries", zap.Int("removed", n))
	return nil
}

type CacheDropCmd struct {
	Region string `arg:"" help:"Region id."`
}

func (c *CacheDropCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.pipeline.DropRegion(ctx, c.Region); err != nil {
		return err
	}
	a.logger.Info("dropped cached summaries", zap.String("region", c.Region))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("mpawatch"),
		kong.Description("Marine protected area ecological monitoring: biodiversity, environment, tracking and health scores."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}

// The pipeline drives the refresh scheduler.
var _ ingest.Refresher = (*pipeline.Service)(nil)
