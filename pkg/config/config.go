// Package config loads the analyzer's YAML configuration, applies QA_*
// environment overrides on top, and validates the yield thresholds.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	Platforms PlatformsConfig `yaml:"platforms"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// ClientRateLimit caps analyze requests per client per minute; 0 disables it.
	ClientRateLimit int           `yaml:"clientRateLimit"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Database         string        `yaml:"database"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	SSLMode          string        `yaml:"sslMode"`
	MaxOpenConns     int           `yaml:"maxOpenConns"`
	MaxIdleConns     int           `yaml:"maxIdleConns"`
	ConnMaxLifetime  time.Duration `yaml:"connMaxLifetime"`
	// SnapshotInterval is how often aggregated stats are persisted; 0 disables it.
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalysisEvents string `yaml:"analysisEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// AnalyzerConfig controls the yield thresholds, the identifier sample bound
// and how many leaf fetches run at once.
type AnalyzerConfig struct {
	LowerLimit    int    `yaml:"lowerLimit"`
	LowerOptimum  int    `yaml:"lowerOptimum"`
	UpperOptimum  int    `yaml:"upperOptimum"`
	UpperLimit    int    `yaml:"upperLimit"`
	SampleSize    int    `yaml:"sampleSize"`
	MaxConcurrent int    `yaml:"maxConcurrent"`
	Syntax        string `yaml:"syntax"`
}

// PlatformsConfig holds per-platform adapter settings.
type PlatformsConfig struct {
	PubMed   PlatformConfig `yaml:"pubmed"`
	Crossref PlatformConfig `yaml:"crossref"`
}

// PlatformConfig controls a single search platform adapter.
type PlatformConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BaseURL           string        `yaml:"baseUrl"`
	APIKey            string        `yaml:"apiKey"`
	Mailto            string        `yaml:"mailto"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond int           `yaml:"requestsPerSecond"`
	MaxAttempts       int           `yaml:"maxAttempts"`
	FailureThreshold  int           `yaml:"failureThreshold"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// analysis results.
func (c *Config) Validate() error {
	a := c.Analyzer
	if !(a.LowerLimit < a.LowerOptimum && a.LowerOptimum < a.UpperOptimum && a.UpperOptimum < a.UpperLimit) {
		return fmt.Errorf("analyzer thresholds must be strictly increasing, got %d < %d < %d < %d",
			a.LowerLimit, a.LowerOptimum, a.UpperOptimum, a.UpperLimit)
	}
	if a.LowerLimit < 0 {
		return fmt.Errorf("analyzer lowerLimit must be non-negative, got %d", a.LowerLimit)
	}
	if a.SampleSize <= 0 {
		return fmt.Errorf("analyzer sampleSize must be positive, got %d", a.SampleSize)
	}
	return nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			ClientRateLimit: 60,
			AllowOrigins:    []string{"*"},
		},
		Postgres: PostgresConfig{
			Host:             "localhost",
			Port:             5432,
			Database:         "queryanalyzer",
			User:             "queryanalyzer",
			Password:         "localdev",
			SSLMode:          "disable",
			MaxOpenConns:     10,
			MaxIdleConns:     2,
			ConnMaxLifetime:  5 * time.Minute,
			SnapshotInterval: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "queryanalyzer-group",
			Topics: KafkaTopics{
				AnalysisEvents: "analysis-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 24 * time.Hour,
		},
		Analyzer: AnalyzerConfig{
			LowerLimit:    50,
			LowerOptimum:  200,
			UpperOptimum:  2000,
			UpperLimit:    2500,
			SampleSize:    200,
			MaxConcurrent: 4,
			Syntax:        "pubmed",
		},
		Platforms: PlatformsConfig{
			PubMed: PlatformConfig{
				Enabled:           true,
				BaseURL:           "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
				Timeout:           15 * time.Second,
				RequestsPerSecond: 3,
				MaxAttempts:       3,
				FailureThreshold:  5,
			},
			Crossref: PlatformConfig{
				Enabled:           true,
				BaseURL:           "https://api.crossref.org",
				Timeout:           20 * time.Second,
				RequestsPerSecond: 5,
				MaxAttempts:       3,
				FailureThreshold:  5,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// override binds one QA_* variable to a config field.
type override struct {
	name string
	set  func(v string) error
}

// overrides lists the environment variables Load honours. Secrets and
// deployment-specific addresses are the usual candidates.
func overrides(c *Config) []override {
	return []override{
		{"QA_SERVER_PORT", intVar(&c.Server.Port)},
		{"QA_SERVER_CLIENT_RATE_LIMIT", intVar(&c.Server.ClientRateLimit)},
		{"QA_POSTGRES_ENABLED", boolVar(&c.Postgres.Enabled)},
		{"QA_POSTGRES_HOST", stringVar(&c.Postgres.Host)},
		{"QA_POSTGRES_PORT", intVar(&c.Postgres.Port)},
		{"QA_POSTGRES_DATABASE", stringVar(&c.Postgres.Database)},
		{"QA_POSTGRES_USER", stringVar(&c.Postgres.User)},
		{"QA_POSTGRES_PASSWORD", stringVar(&c.Postgres.Password)},
		{"QA_POSTGRES_SNAPSHOT_INTERVAL", durationVar(&c.Postgres.SnapshotInterval)},
		{"QA_KAFKA_ENABLED", boolVar(&c.Kafka.Enabled)},
		{"QA_KAFKA_BROKERS", listVar(&c.Kafka.Brokers)},
		{"QA_REDIS_ENABLED", boolVar(&c.Redis.Enabled)},
		{"QA_REDIS_ADDR", stringVar(&c.Redis.Addr)},
		{"QA_REDIS_PASSWORD", stringVar(&c.Redis.Password)},
		{"QA_REDIS_CACHE_TTL", durationVar(&c.Redis.CacheTTL)},
		{"QA_ANALYZER_SAMPLE_SIZE", intVar(&c.Analyzer.SampleSize)},
		{"QA_ANALYZER_SYNTAX", stringVar(&c.Analyzer.Syntax)},
		{"QA_PUBMED_API_KEY", stringVar(&c.Platforms.PubMed.APIKey)},
		{"QA_CROSSREF_MAILTO", stringVar(&c.Platforms.Crossref.Mailto)},
		{"QA_LOGGING_LEVEL", stringVar(&c.Logging.Level)},
		{"QA_LOGGING_FORMAT", stringVar(&c.Logging.Format)},
	}
}

// applyEnvOverrides sets every field whose variable is non-empty. A value
// that does not parse is an error rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	for _, o := range overrides(cfg) {
		v := os.Getenv(o.name)
		if v == "" {
			continue
		}
		if err := o.set(v); err != nil {
			return fmt.Errorf("environment %s=%q: %w", o.name, v, err)
		}
	}
	return nil
}

func stringVar(p *string) func(string) error {
	return func(v string) error {
		*p = v
		return nil
	}
}

func intVar(p *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*p = n
		return nil
	}
}

func boolVar(p *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*p = b
		return nil
	}
}

func durationVar(p *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*p = d
		return nil
	}
}

func listVar(p *[]string) func(string) error {
	return func(v string) error {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*p = out
		return nil
	}
}
