// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServiceParams is the dispatch engine's tunable parameter set (spec §6).
// Optional knobs that the source leaves unset by default (insertion window
// narrowing, max ride time) are modeled as pointers so "unset" is explicit.
type ServiceParams struct {
	BatchSeconds    float64 `mapstructure:"batch_seconds"`
	ServiceTimeSec  float64 `mapstructure:"service_time_sec"`
	VehicleCapacity int     `mapstructure:"vehicle_capacity"`

	PickupEarlySec float64 `mapstructure:"pickup_early_sec"`
	PickupLateSec  float64 `mapstructure:"pickup_late_sec"`
	DetourRatioMax float64 `mapstructure:"detour_ratio_max"`

	UseOSRM     bool    `mapstructure:"use_osrm"`
	OSRMBaseURL string  `mapstructure:"osrm_base_url"`
	OSRMProfile string  `mapstructure:"osrm_profile"`
	AvgSpeedKmh float64 `mapstructure:"avg_speed_kmh"`

	InsertPickWindow *int `mapstructure:"insert_pick_window"`
	InsertDropWindow *int `mapstructure:"insert_drop_window"`

	EnableRebalance bool `mapstructure:"enable_rebalance"`

	MaxRetries           int     `mapstructure:"max_retries"`
	WaitBonusPerRetrySec float64 `mapstructure:"wait_bonus_per_retry_sec"`
	WaitBonusCapSec      float64 `mapstructure:"wait_bonus_cap_sec"`
	DetourBonusPerRetry  float64 `mapstructure:"detour_bonus_per_retry"`
	DetourBonusCap       float64 `mapstructure:"detour_bonus_cap"`

	FleetSize       int     `mapstructure:"fleet_size"`
	BigM            float64 `mapstructure:"big_m"`
	TailFlushMaxSec float64 `mapstructure:"tail_flush_max_sec"`

	MaxRideTimeSec *float64 `mapstructure:"max_ride_time_sec"`
}

// Oracle groups the OSRM-compatible routing adapter's own operational knobs,
// distinct from the dispatch-level UseOSRM/OSRMBaseURL toggles on ServiceParams.
type Oracle struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CacheEnabled   bool          `mapstructure:"cache_enabled"`
	RatePerSec     float64       `mapstructure:"rate_per_sec"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

// RedisCache configures the optional shared routing-oracle cache.
type RedisCache struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	TTL         time.Duration `mapstructure:"ttl"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Observability mirrors the teacher's metrics/log/tracing knobs, trimmed to
// what this dispatcher actually exercises.
type Observability struct {
	MetricsPort int           `mapstructure:"metrics_port"`
	LogLevel    string        `mapstructure:"log_level"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

type TracingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Endpoint         string  `mapstructure:"endpoint"`
	Environment      string  `mapstructure:"environment"`
	SamplingStrategy string  `mapstructure:"sampling_strategy"`
	SamplingRate     float64 `mapstructure:"sampling_rate"`
}

// AdminAPI configures the optional read-only introspection HTTP server.
type AdminAPI struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// EventBus configures the optional NATS publish of dispatch events.
type EventBus struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// Ingest configures parquet request loading.
type Ingest struct {
	Path         string   `mapstructure:"path"`
	IncludeGlobs []string `mapstructure:"include_globs"`
	ExcludeGlobs []string `mapstructure:"exclude_globs"`
	SimStartSec  *float64 `mapstructure:"sim_start_sec"`
	SimEndSec    *float64 `mapstructure:"sim_end_sec"`
	LimitN       *int     `mapstructure:"limit_n"`
	LimitRandom  bool     `mapstructure:"limit_random"`
	LimitSeed    *int64   `mapstructure:"limit_seed"`
}

// Fleet configures initial vehicle placement.
type Fleet struct {
	Seed              int64   `mapstructure:"seed"`
	FromRequestSpread bool    `mapstructure:"from_request_spread"`
	LonMin            float64 `mapstructure:"lon_min"`
	LonMax            float64 `mapstructure:"lon_max"`
	LatMin            float64 `mapstructure:"lat_min"`
	LatMax            float64 `mapstructure:"lat_max"`
}

// Output configures the JSON export streams.
type Output struct {
	Dir  string `mapstructure:"dir"`
	Gzip bool   `mapstructure:"gzip"`
}

// Config is the top-level, file+env loaded configuration.
type Config struct {
	Params        ServiceParams `mapstructure:"params"`
	Oracle        Oracle        `mapstructure:"oracle"`
	RedisCache    RedisCache    `mapstructure:"redis_cache"`
	Observability Observability `mapstructure:"observability"`
	AdminAPI      AdminAPI      `mapstructure:"admin_api"`
	EventBus      EventBus      `mapstructure:"event_bus"`
	Ingest        Ingest        `mapstructure:"ingest"`
	Fleet         Fleet         `mapstructure:"fleet"`
	Output        Output        `mapstructure:"output"`
}

func defaultConfig() *Config {
	return &Config{
		Params: ServiceParams{
			BatchSeconds:         60,
			ServiceTimeSec:       60,
			VehicleCapacity:      4,
			PickupEarlySec:       0,
			PickupLateSec:        600,
			DetourRatioMax:       2.0,
			UseOSRM:              false,
			OSRMBaseURL:          "http://127.0.0.1:5000",
			OSRMProfile:          "driving",
			AvgSpeedKmh:          30,
			EnableRebalance:      true,
			MaxRetries:           2,
			WaitBonusPerRetrySec: 180,
			WaitBonusCapSec:      600,
			DetourBonusPerRetry:  0.25,
			DetourBonusCap:       3.0,
			FleetSize:            50,
			BigM:                 1e12,
			TailFlushMaxSec:      3600,
		},
		Oracle: Oracle{
			RequestTimeout: 30 * time.Second,
			CacheEnabled:   true,
			RatePerSec:     20,
			RateBurst:      40,
		},
		RedisCache: RedisCache{
			Enabled:     false,
			Addr:        "localhost:6379",
			KeyPrefix:   "drt:osrm:",
			TTL:         30 * time.Minute,
			DialTimeout: 5 * time.Second,
		},
		Observability: Observability{
			MetricsPort: 9090,
			LogLevel:    "info",
			Tracing:     TracingConfig{Enabled: false, SamplingStrategy: "probabilistic", SamplingRate: 0.1},
		},
		AdminAPI: AdminAPI{
			Enabled: false,
			Addr:    ":8089",
		},
		EventBus: EventBus{
			Enabled: false,
			Subject: "drt.dispatch.events",
		},
		Ingest: Ingest{
			IncludeGlobs: []string{"**/*.parquet"},
			ExcludeGlobs: []string{"**/*.tmp"},
		},
		Fleet: Fleet{
			Seed:   42,
			LonMin: 127.130,
			LonMax: 127.160,
			LatMin: 37.470,
			LatMax: 37.490,
		},
		Output: Output{
			Dir:  "./out",
			Gzip: false,
		},
	}
}

// Load reads configuration from a YAML file (if present) with environment
// overrides, falling back to defaultConfig for anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DRT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("params.batch_seconds", def.Params.BatchSeconds)
	v.SetDefault("params.service_time_sec", def.Params.ServiceTimeSec)
	v.SetDefault("params.vehicle_capacity", def.Params.VehicleCapacity)
	v.SetDefault("params.pickup_early_sec", def.Params.PickupEarlySec)
	v.SetDefault("params.pickup_late_sec", def.Params.PickupLateSec)
	v.SetDefault("params.detour_ratio_max", def.Params.DetourRatioMax)
	v.SetDefault("params.use_osrm", def.Params.UseOSRM)
	v.SetDefault("params.osrm_base_url", def.Params.OSRMBaseURL)
	v.SetDefault("params.osrm_profile", def.Params.OSRMProfile)
	v.SetDefault("params.avg_speed_kmh", def.Params.AvgSpeedKmh)
	v.SetDefault("params.enable_rebalance", def.Params.EnableRebalance)
	v.SetDefault("params.max_retries", def.Params.MaxRetries)
	v.SetDefault("params.wait_bonus_per_retry_sec", def.Params.WaitBonusPerRetrySec)
	v.SetDefault("params.wait_bonus_cap_sec", def.Params.WaitBonusCapSec)
	v.SetDefault("params.detour_bonus_per_retry", def.Params.DetourBonusPerRetry)
	v.SetDefault("params.detour_bonus_cap", def.Params.DetourBonusCap)
	v.SetDefault("params.fleet_size", def.Params.FleetSize)
	v.SetDefault("params.big_m", def.Params.BigM)
	v.SetDefault("params.tail_flush_max_sec", def.Params.TailFlushMaxSec)

	v.SetDefault("oracle.request_timeout", def.Oracle.RequestTimeout)
	v.SetDefault("oracle.cache_enabled", def.Oracle.CacheEnabled)
	v.SetDefault("oracle.rate_per_sec", def.Oracle.RatePerSec)
	v.SetDefault("oracle.rate_burst", def.Oracle.RateBurst)

	v.SetDefault("redis_cache.enabled", def.RedisCache.Enabled)
	v.SetDefault("redis_cache.addr", def.RedisCache.Addr)
	v.SetDefault("redis_cache.key_prefix", def.RedisCache.KeyPrefix)
	v.SetDefault("redis_cache.ttl", def.RedisCache.TTL)
	v.SetDefault("redis_cache.dial_timeout", def.RedisCache.DialTimeout)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.sampling_strategy", def.Observability.Tracing.SamplingStrategy)
	v.SetDefault("observability.tracing.sampling_rate", def.Observability.Tracing.SamplingRate)

	v.SetDefault("admin_api.enabled", def.AdminAPI.Enabled)
	v.SetDefault("admin_api.addr", def.AdminAPI.Addr)

	v.SetDefault("event_bus.enabled", def.EventBus.Enabled)
	v.SetDefault("event_bus.subject", def.EventBus.Subject)

	v.SetDefault("ingest.include_globs", def.Ingest.IncludeGlobs)
	v.SetDefault("ingest.exclude_globs", def.Ingest.ExcludeGlobs)
	v.SetDefault("ingest.limit_random", def.Ingest.LimitRandom)

	v.SetDefault("fleet.seed", def.Fleet.Seed)
	v.SetDefault("fleet.from_request_spread", def.Fleet.FromRequestSpread)
	v.SetDefault("fleet.lon_min", def.Fleet.LonMin)
	v.SetDefault("fleet.lon_max", def.Fleet.LonMax)
	v.SetDefault("fleet.lat_min", def.Fleet.LatMin)
	v.SetDefault("fleet.lat_max", def.Fleet.LatMax)

	v.SetDefault("output.dir", def.Output.Dir)
	v.SetDefault("output.gzip", def.Output.Gzip)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Params.VehicleCapacity < 1 {
		return fmt.Errorf("params.vehicle_capacity must be >= 1")
	}
	if cfg.Params.BatchSeconds <= 0 {
		return fmt.Errorf("params.batch_seconds must be > 0")
	}
	if cfg.Params.DetourRatioMax <= 0 {
		return fmt.Errorf("params.detour_ratio_max must be > 0")
	}
	if cfg.Params.BigM < 1e12 {
		return fmt.Errorf("params.big_m must be >= 1e12")
	}
	if cfg.Params.MaxRetries < 0 {
		return fmt.Errorf("params.max_retries must be >= 0")
	}
	if cfg.Params.FleetSize < 0 {
		return fmt.Errorf("params.fleet_size must be >= 0")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	if cfg.Oracle.RequestTimeout <= 0 {
		return fmt.Errorf("oracle.request_timeout must be > 0")
	}
	return nil
}
