package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/broker-verify/internal/verify"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Redis       RedisConfig       `yaml:"redis" mapstructure:"redis"`
	SerpAPI     SerpAPIConfig     `yaml:"serpapi" mapstructure:"serpapi"`
	Scrape      ScrapeConfig      `yaml:"scrape" mapstructure:"scrape"`
	Regulatory  RegulatoryConfig  `yaml:"regulatory" mapstructure:"regulatory"`
	Reliability ReliabilityConfig `yaml:"reliability" mapstructure:"reliability"`
	Verify      VerifyConfig      `yaml:"verify" mapstructure:"verify"`
	Alert       AlertConfig       `yaml:"alert" mapstructure:"alert"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the shared cache. Empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// SerpAPIConfig holds search API settings.
type SerpAPIConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinIntervalMs   int    `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	MaxRetries      int    `yaml:"max_retries" mapstructure:"max_retries"`
	CacheTTLHours   int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	CacheMaxEntries int    `yaml:"cache_max_entries" mapstructure:"cache_max_entries"`
}

// ScrapeConfig configures page fetching.
type ScrapeConfig struct {
	TimeoutSecs         int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConcurrent       int      `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	RespectRobots       bool     `yaml:"respect_robots" mapstructure:"respect_robots"`
	ExcludePaths        []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
	BreakerThreshold    int      `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int      `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// RegulatoryConfig configures regulator checks.
type RegulatoryConfig struct {
	CheckIntervalMs int `yaml:"check_interval_ms" mapstructure:"check_interval_ms"`
	CacheTTLHours   int `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	CacheMaxEntries int `yaml:"cache_max_entries" mapstructure:"cache_max_entries"`
	// RegistersFile replaces the embedded register table when set.
	RegistersFile string `yaml:"registers_file" mapstructure:"registers_file"`
}

// ReliabilityConfig configures source scoring.
type ReliabilityConfig struct {
	// TableFile replaces the embedded source defaults when set.
	TableFile string `yaml:"table_file" mapstructure:"table_file"`
}

// VerifyConfig holds the default run options and scoring weights.
type VerifyConfig struct {
	Fields              []string       `yaml:"fields" mapstructure:"fields"`
	SkipRegulatory      bool           `yaml:"skip_regulatory" mapstructure:"skip_regulatory"`
	MaxSources          int            `yaml:"max_sources" mapstructure:"max_sources"`
	ConfidenceThreshold float64        `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	EnableAlerts        bool           `yaml:"enable_alerts" mapstructure:"enable_alerts"`
	SaveDiscrepancies   bool           `yaml:"save_discrepancies" mapstructure:"save_discrepancies"`
	Weights             verify.Weights `yaml:"weights" mapstructure:"weights"`
}

// Options converts the section to run options.
func (c VerifyConfig) Options() verify.Options {
	return verify.Options{
		Fields:              c.Fields,
		SkipRegulatory:      c.SkipRegulatory,
		MaxSources:          c.MaxSources,
		ConfidenceThreshold: c.ConfidenceThreshold,
		EnableAlerts:        c.EnableAlerts,
		SaveDiscrepancies:   c.SaveDiscrepancies,
	}
}

// AlertConfig configures alert delivery. Empty WebhookURL logs alerts only.
type AlertConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BatchConfig configures batch verification.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	DelayMs     int `yaml:"delay_ms" mapstructure:"delay_ms"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Seconds converts a config value in seconds to a duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Millis converts a config value in milliseconds to a duration.
func Millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Hours converts a config value in hours to a duration.
func Hours(n int) time.Duration { return time.Duration(n) * time.Hour }

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BROKERVERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "broker-verify.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	// Empty defaults register the keys so env overrides are picked up.
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "brokerverify:")
	v.SetDefault("serpapi.key", "")
	v.SetDefault("serpapi.base_url", "https://serpapi.com")
	v.SetDefault("serpapi.timeout_secs", 10)
	v.SetDefault("serpapi.min_interval_ms", 1000)
	v.SetDefault("serpapi.max_retries", 3)
	v.SetDefault("serpapi.cache_ttl_hours", 24)
	v.SetDefault("serpapi.cache_max_entries", 100)
	v.SetDefault("scrape.timeout_secs", 15)
	v.SetDefault("scrape.max_concurrent", 5)
	v.SetDefault("scrape.respect_robots", true)
	v.SetDefault("scrape.breaker_threshold", 3)
	v.SetDefault("scrape.breaker_cooldown_secs", 300)
	v.SetDefault("regulatory.check_interval_ms", 1000)
	v.SetDefault("regulatory.cache_ttl_hours", 24)
	v.SetDefault("regulatory.cache_max_entries", 200)
	v.SetDefault("regulatory.registers_file", "")
	v.SetDefault("reliability.table_file", "")

	opts := verify.DefaultOptions()
	v.SetDefault("verify.fields", opts.Fields)
	v.SetDefault("verify.skip_regulatory", opts.SkipRegulatory)
	v.SetDefault("verify.max_sources", opts.MaxSources)
	v.SetDefault("verify.confidence_threshold", opts.ConfidenceThreshold)
	v.SetDefault("verify.enable_alerts", opts.EnableAlerts)
	v.SetDefault("verify.save_discrepancies", opts.SaveDiscrepancies)

	w := verify.DefaultWeights()
	v.SetDefault("verify.weights.rank_reliability", w.RankReliability)
	v.SetDefault("verify.weights.rank_confidence", w.RankConfidence)
	v.SetDefault("verify.weights.rank_relevance", w.RankRelevance)
	v.SetDefault("verify.weights.agg_reliability", w.AggReliability)
	v.SetDefault("verify.weights.agg_confidence", w.AggConfidence)
	v.SetDefault("verify.weights.penalty_critical", w.PenaltyCritical)
	v.SetDefault("verify.weights.penalty_high", w.PenaltyHigh)
	v.SetDefault("verify.weights.penalty_medium", w.PenaltyMedium)
	v.SetDefault("verify.weights.penalty_low", w.PenaltyLow)
	v.SetDefault("verify.weights.min_source_confidence", w.MinSourceConfidence)
	v.SetDefault("verify.weights.update_confidence", w.UpdateConfidence)
	v.SetDefault("verify.weights.review_confidence", w.ReviewConfidence)
	v.SetDefault("verify.weights.max_high", w.MaxHigh)
	v.SetDefault("verify.weights.alert.max_high", w.Alert.MaxHigh)
	v.SetDefault("verify.weights.alert.min_confidence", w.Alert.MinConfidence)

	v.SetDefault("alert.webhook_url", "")
	v.SetDefault("alert.timeout_secs", 10)
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("batch.delay_ms", 1000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the settings a command mode depends on. Missing API keys
// and database credentials are not errors; those components degrade.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "verify", "batch", "sources", "migrate":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres", "none", "":
	default:
		errs = append(errs, "store.driver must be one of sqlite, postgres, none")
	}
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 20 {
		errs = append(errs, "batch.concurrency must be between 1 and 20")
	}
	if c.Batch.DelayMs < 0 {
		errs = append(errs, "batch.delay_ms must be >= 0")
	}
	if c.Scrape.MaxConcurrent < 1 {
		errs = append(errs, "scrape.max_concurrent must be >= 1")
	}
	if err := verify.ValidateOptions(c.Verify.Options()); err != nil {
		errs = append(errs, err.Error())
	}
	w := c.Verify.Weights
	for _, f := range []float64{
		w.RankReliability, w.RankConfidence, w.RankRelevance,
		w.AggReliability, w.AggConfidence,
		w.PenaltyCritical, w.PenaltyHigh, w.PenaltyMedium, w.PenaltyLow,
	} {
		if f < 0 {
			errs = append(errs, "verify.weights values must be >= 0")
			break
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
