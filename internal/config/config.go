// Package config loads the region catalog and runtime settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lox/mpawatch/internal/geo"
	"github.com/lox/mpawatch/internal/models"
	"github.com/spf13/viper"
)

var ErrNoRegions = errors.New("config: no regions configured")

const (
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	ListenAddr      string         `mapstructure:"listen_addr"`
	LogLevel        string         `mapstructure:"log_level"`
	LogFormat       string         `mapstructure:"log_format"`
	Database        string         `mapstructure:"database"`
	LookbackYears   int            `mapstructure:"lookback_years"`
	RefreshInterval time.Duration  `mapstructure:"refresh_interval"`
	Cache           CacheConfig    `mapstructure:"cache"`
	OBIS            OBISConfig     `mapstructure:"obis"`
	Movebank        MovebankConfig `mapstructure:"movebank"`
	Regions         []RegionConfig `mapstructure:"regions"`

	dir string
}

type CacheConfig struct {
	Backend       string    `mapstructure:"backend"` // "sqlite", "memory" or "redis"
	RedisAddr     string    `mapstructure:"redis_addr"`
	RedisPassword string    `mapstructure:"redis_password"`
	RedisDB       int       `mapstructure:"redis_db"`
	TTL           TTLConfig `mapstructure:"ttl"`
}

type TTLConfig struct {
	Abundance     time.Duration `mapstructure:"abundance"`
	Environmental time.Duration `mapstructure:"environmental"`
	Tracking      time.Duration `mapstructure:"tracking"`
}

type OBISConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	PageSize    int           `mapstructure:"page_size"`
	MaxPages    int           `mapstructure:"max_pages"`
}

type MovebankConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	MaxStudies  int           `mapstructure:"max_studies"`
}

// RegionConfig is one protected area. Boundary vertices are [lat, lng]
// pairs; BoundaryFile is a .geojson or .shp path relative to the config file.
type RegionConfig struct {
	ID           string       `mapstructure:"id"`
	Name         string       `mapstructure:"name"`
	Center       *PointConfig `mapstructure:"center"`
	RadiusKm     float64      `mapstructure:"radius_km"`
	Boundary     [][]float64  `mapstructure:"boundary"`
	BoundaryFile string       `mapstructure:"boundary_file"`
}

type PointConfig struct {
	Lat float64 `mapstructure:"lat"`
	Lng float64 `mapstructure:"lng"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("database", "data/mpawatch.db")
	v.SetDefault("lookback_years", 5)
	v.SetDefault("refresh_interval", "6h")

	v.SetDefault("cache.backend", CacheSQLite)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl.abundance", "24h")
	v.SetDefault("cache.ttl.environmental", "24h")
	v.SetDefault("cache.ttl.tracking", "12h")

	v.SetDefault("obis.base_url", "https://api.obis.org/v3")
	v.SetDefault("obis.min_interval", "1500ms")
	v.SetDefault("obis.page_size", 1000)
	v.SetDefault("obis.max_pages", 5)

	v.SetDefault("movebank.base_url", "https://www.movebank.org/movebank/service")
	v.SetDefault("movebank.user", "")
	v.SetDefault("movebank.password", "")
	v.SetDefault("movebank.min_interval", "1s")
	v.SetDefault("movebank.max_studies", 5)
}

// Load reads configuration from path, falling back to $MPAWATCH_CONFIG and
// then ./mpawatch.yaml. Environment variables prefixed MPAWATCH_ override
// scalar settings (MPAWATCH_CACHE_BACKEND, MPAWATCH_MOVEBANK_USER, ...).
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides is Load with explicit values, keyed like the YAML
// ("cache.redis_addr"), taking precedence over the file and environment.
// Empty strings are ignored so unset flags fall through.
func LoadWithOverrides(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("MPAWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("MPAWATCH_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("mpawatch")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	for key, val := range overrides {
		if str, ok := val.(string); ok && str == "" {
			continue
		}
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if used := v.ConfigFileUsed(); used != "" {
		cfg.dir = filepath.Dir(used)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is complete and correct.
func (c *Config) Validate() error {
	if len(c.Regions) == 0 {
		return ErrNoRegions
	}

	seen := make(map[string]bool, len(c.Regions))
	for i, r := range c.Regions {
		if r.ID == "" {
			return fmt.Errorf("region[%d]: id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("region %q: duplicate id", r.ID)
		}
		seen[r.ID] = true

		if r.Center == nil {
			return fmt.Errorf("region %q: center is required", r.ID)
		}
		if r.Center.Lat < -90 || r.Center.Lat > 90 || r.Center.Lng < -180 || r.Center.Lng > 180 {
			return fmt.Errorf("region %q: center out of range", r.ID)
		}
		if r.RadiusKm <= 0 {
			return fmt.Errorf("region %q: radius_km must be positive", r.ID)
		}
		if len(r.Boundary) > 0 && r.BoundaryFile != "" {
			return fmt.Errorf("region %q: set boundary or boundary_file, not both", r.ID)
		}
		for j, p := range r.Boundary {
			if len(p) != 2 {
				return fmt.Errorf("region %q: boundary[%d] must be [lat, lng]", r.ID, j)
			}
		}
		if n := len(r.Boundary); n > 0 && n < 3 {
			return fmt.Errorf("region %q: boundary needs at least 3 vertices, got %d", r.ID, n)
		}
	}

	switch c.Cache.Backend {
	case CacheSQLite, CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.OBIS.PageSize <= 0 || c.OBIS.MaxPages <= 0 {
		return fmt.Errorf("obis.page_size and obis.max_pages must be positive")
	}
	return nil
}

// LoadRegions resolves the configured regions, reading boundary files.
func (c *Config) LoadRegions() ([]models.Region, error) {
	regions := make([]models.Region, 0, len(c.Regions))
	for _, rc := range c.Regions {
		r := models.Region{
			ID:       rc.ID,
			Name:     rc.Name,
			Center:   models.LatLng{Lat: rc.Center.Lat, Lng: rc.Center.Lng},
			RadiusKm: rc.RadiusKm,
		}
		if r.Name == "" {
			r.Name = r.ID
		}

		for _, p := range rc.Boundary {
			r.Boundary = append(r.Boundary, models.LatLng{Lat: p[0], Lng: p[1]})
		}

		if rc.BoundaryFile != "" {
			path := rc.BoundaryFile
			if !filepath.IsAbs(path) && c.dir != "" {
				path = filepath.Join(c.dir, path)
			}
			boundary, err := geo.LoadBoundary(path)
			if err != nil {
				return nil, fmt.Errorf("region %q: %w", rc.ID, err)
			}
			r.Boundary = boundary
		}

		regions = append(regions, r)
	}
	return regions, nil
}
