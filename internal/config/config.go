package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Veraticus/leakscan/internal/common"
	"github.com/Veraticus/leakscan/internal/engine"
	"github.com/Veraticus/leakscan/internal/ingest"
)

// Configuration keys.
const (
	KeyEnforceDeterminism     = "engine.enforce_determinism"
	KeyDuplicateWindowDays    = "detection.duplicate.time_window_days"
	KeyDuplicateMinAmount     = "detection.duplicate.min_amount"
	KeyRecurringToleranceDays = "detection.recurring.interval_tolerance_days"
	KeyMediumThreshold        = "scoring.medium_threshold"
	KeyHighThreshold          = "scoring.high_threshold"
	KeyMaterialityThreshold   = "scoring.materiality_escalation_threshold"
	KeyMinMateriality         = "scoring.min_materiality"
	KeyWeightFlaggedRatio     = "ranking.weights.flagged_ratio"
	KeyWeightVolatility       = "ranking.weights.volatility"
	KeyWeightDuplicateDensity = "ranking.weights.duplicate_density"
	KeyWeightRecurring        = "ranking.weights.recurring"
	KeyIngestTimezone         = "ingest.timezone"
	KeyServerAddr             = "server.addr"
	KeyServerMaxBodyBytes     = "server.max_body_bytes"
	KeyLogLevel               = "logging.level"
	KeyLogFormat              = "logging.format"
)

const (
	defaultServerAddr         = ":8080"
	defaultServerMaxBodyBytes = int64(32 << 20)
	defaultIngestTimezone     = "UTC"
)

// Config is the validated application configuration.
type Config struct {
	Engine  engine.Config
	Ingest  IngestConfig
	Server  ServerConfig
	Logging LoggingConfig
}

// IngestConfig controls how sources are read.
type IngestConfig struct {
	Location *time.Location // Applied to dates without an offset
	Timezone string
}

// ServerConfig controls the HTTP endpoint.
type ServerConfig struct {
	Addr         string
	MaxBodyBytes int64
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// SetDefaults registers the default value of every engine, ingest, server and
// logging key.
func SetDefaults(v *viper.Viper) {
	def := engine.DefaultConfig()

	v.SetDefault(KeyEnforceDeterminism, def.EnforceDeterminism)
	v.SetDefault(KeyDuplicateWindowDays, def.Detection.Duplicate.TimeWindowDays)
	v.SetDefault(KeyDuplicateMinAmount, def.Detection.Duplicate.MinAmount.String())
	v.SetDefault(KeyRecurringToleranceDays, def.Detection.Recurring.IntervalToleranceDays)
	v.SetDefault(KeyMediumThreshold, def.Scoring.MediumThreshold.String())
	v.SetDefault(KeyHighThreshold, def.Scoring.HighThreshold.String())
	v.SetDefault(KeyMaterialityThreshold, def.Scoring.MaterialityThreshold.String())
	v.SetDefault(KeyMinMateriality, def.Scoring.MinMateriality.String())
	v.SetDefault(KeyWeightFlaggedRatio, def.Ranking.Weights.FlaggedRatio.String())
	v.SetDefault(KeyWeightVolatility, def.Ranking.Weights.Volatility.String())
	v.SetDefault(KeyWeightDuplicateDensity, def.Ranking.Weights.DuplicateDensity.String())
	v.SetDefault(KeyWeightRecurring, def.Ranking.Weights.Recurring.String())
	v.SetDefault(KeyIngestTimezone, defaultIngestTimezone)
	v.SetDefault(KeyServerAddr, defaultServerAddr)
	v.SetDefault(KeyServerMaxBodyBytes, defaultServerMaxBodyBytes)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	setSheetsDefaults(v)
}

// Load reads and validates the configuration held by v. Keys that are unset
// fall back to the built-in defaults.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	cfg := Config{
		Engine: engine.DefaultConfig(),
		Ingest: IngestConfig{Timezone: v.GetString(KeyIngestTimezone)},
		Server: ServerConfig{
			Addr:         v.GetString(KeyServerAddr),
			MaxBodyBytes: v.GetInt64(KeyServerMaxBodyBytes),
		},
		Logging: LoggingConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}

	e := &cfg.Engine
	e.EnforceDeterminism = v.GetBool(KeyEnforceDeterminism)
	e.Detection.Duplicate.TimeWindowDays = v.GetInt(KeyDuplicateWindowDays)
	e.Detection.Recurring.IntervalToleranceDays = v.GetInt(KeyRecurringToleranceDays)

	decimals := []struct {
		dst *decimal.Decimal
		key string
	}{
		{&e.Detection.Duplicate.MinAmount, KeyDuplicateMinAmount},
		{&e.Scoring.MediumThreshold, KeyMediumThreshold},
		{&e.Scoring.HighThreshold, KeyHighThreshold},
		{&e.Scoring.MaterialityThreshold, KeyMaterialityThreshold},
		{&e.Scoring.MinMateriality, KeyMinMateriality},
		{&e.Ranking.Weights.FlaggedRatio, KeyWeightFlaggedRatio},
		{&e.Ranking.Weights.Volatility, KeyWeightVolatility},
		{&e.Ranking.Weights.DuplicateDensity, KeyWeightDuplicateDensity},
		{&e.Ranking.Weights.Recurring, KeyWeightRecurring},
	}
	for _, d := range decimals {
		value, err := decimal.NewFromString(v.GetString(d.key))
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %q is not a decimal", common.ErrInvalidConfig, d.key, v.GetString(d.key))
		}
		*d.dst = value
	}

	loc, err := ingest.LoadLocation(cfg.Ingest.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", common.ErrInvalidConfig, KeyIngestTimezone, err)
	}
	cfg.Ingest.Location = loc

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the ranges the engine depends on.
func (c Config) Validate() error {
	e := c.Engine
	one := decimal.NewFromInt(1)

	switch {
	case e.Detection.Duplicate.TimeWindowDays < 0:
		return invalid(KeyDuplicateWindowDays, "must not be negative")
	case e.Detection.Duplicate.MinAmount.IsNegative():
		return invalid(KeyDuplicateMinAmount, "must not be negative")
	case e.Detection.Recurring.IntervalToleranceDays < 0:
		return invalid(KeyRecurringToleranceDays, "must not be negative")
	case !e.Scoring.MediumThreshold.IsPositive():
		return invalid(KeyMediumThreshold, "must be positive")
	case e.Scoring.HighThreshold.LessThanOrEqual(e.Scoring.MediumThreshold):
		return invalid(KeyHighThreshold, "must be greater than "+KeyMediumThreshold)
	case !e.Scoring.MaterialityThreshold.IsPositive() || e.Scoring.MaterialityThreshold.GreaterThan(one):
		return invalid(KeyMaterialityThreshold, "must be in (0, 1]")
	case e.Scoring.MinMateriality.IsNegative():
		return invalid(KeyMinMateriality, "must not be negative")
	}

	weights := map[string]decimal.Decimal{
		KeyWeightFlaggedRatio:     e.Ranking.Weights.FlaggedRatio,
		KeyWeightVolatility:       e.Ranking.Weights.Volatility,
		KeyWeightDuplicateDensity: e.Ranking.Weights.DuplicateDensity,
		KeyWeightRecurring:        e.Ranking.Weights.Recurring,
	}
	for key, w := range weights {
		if w.IsNegative() {
			return invalid(key, "must not be negative")
		}
	}

	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return invalid(KeyLogLevel, err.Error())
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return invalid(KeyLogFormat, "must be console or json")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return invalid(KeyServerMaxBodyBytes, "must be positive")
	}
	return nil
}

func invalid(key, reason string) error {
	return fmt.Errorf("%w: %s %s", common.ErrInvalidConfig, key, reason)
}
