// Package config loads brewmap configuration from the environment, an
// optional .env file and an optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Env       string `env:"BREWMAP_ENV,default=development"`
	Port      int    `env:"PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
	// ConfigFile points at the YAML overlay.
	ConfigFile string `env:"BREWMAP_CONFIG"`

	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseAnonKey    string `env:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY"`
	SupabaseJWTSecret  string `env:"SUPABASE_JWT_SECRET"`

	AdminUserIDsRaw string `env:"ADMIN_USER_IDS"`
	CORSOriginsRaw  string `env:"CORS_ALLOWED_ORIGINS,default=*"`
	RateLimitRPS    int    `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst  int    `env:"RATE_LIMIT_BURST,default=40"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`
	SessionFile string `env:"BREWMAP_SESSION_FILE"`

	Supabase SupabaseConfig `yaml:"supabase"`
	Tables   TablesConfig   `yaml:"tables"`
	Storage  StorageConfig  `yaml:"storage"`
	Feed     FeedConfig     `yaml:"feed"`
	Cache    CacheConfig    `yaml:"cache"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

// SupabaseConfig holds client tuning read from the overlay.
type SupabaseConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
}

// RetryConfig enables retries for idempotent platform reads.
type RetryConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MaxRetries       int           `yaml:"max_retries"`
	InitialBackoff   time.Duration `yaml:"initial_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// TablesConfig names the hosted tables that differ between deployments.
type TablesConfig struct {
	Upvotes   string `yaml:"upvotes"`
	Downvotes string `yaml:"downvotes"`
}

// StorageConfig names the submission image bucket.
type StorageConfig struct {
	Bucket string `yaml:"bucket"`
}

// FeedConfig bounds feed pages.
type FeedConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// CacheConfig configures public read caching.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// JobsConfig configures background maintenance.
type JobsConfig struct {
	TallySchedule string `yaml:"tally_schedule"`
}

// Default returns the built-in defaults for the overlay sections.
func Default() *Config {
	return &Config{
		Env:            "development",
		Port:           8080,
		LogLevel:       "info",
		LogFormat:      "json",
		CORSOriginsRaw: "*",
		RateLimitRPS:   20,
		RateLimitBurst: 40,
		Supabase: SupabaseConfig{
			Timeout: 15 * time.Second,
			Retry: RetryConfig{
				MaxRetries:       3,
				InitialBackoff:   100 * time.Millisecond,
				MaxBackoff:       2 * time.Second,
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
			},
		},
		Tables:  TablesConfig{Upvotes: "user_upvotes", Downvotes: "user_downvotes"},
		Storage: StorageConfig{Bucket: "cafe-images"},
		Feed:    FeedConfig{DefaultLimit: 20, MaxLimit: 50},
		Cache:   CacheConfig{TTL: time.Minute},
		Jobs:    JobsConfig{TallySchedule: "@every 15m"},
	}
}

// Load reads .env (when present), the environment and the YAML overlay
// named by BREWMAP_CONFIG. It does not validate; callers pick the checks
// they need.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Default()
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var overlay struct {
		Supabase *SupabaseConfig `yaml:"supabase"`
		Tables   *TablesConfig   `yaml:"tables"`
		Storage  *StorageConfig  `yaml:"storage"`
		Feed     *FeedConfig     `yaml:"feed"`
		Cache    *CacheConfig    `yaml:"cache"`
		Jobs     *JobsConfig     `yaml:"jobs"`
	}
	// Point at the current sections so omitted keys keep their defaults.
	overlay.Supabase = &c.Supabase
	overlay.Tables = &c.Tables
	overlay.Storage = &c.Storage
	overlay.Feed = &c.Feed
	overlay.Cache = &c.Cache
	overlay.Jobs = &c.Jobs
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Tables.Upvotes == "" {
		c.Tables.Upvotes = d.Tables.Upvotes
	}
	if c.Tables.Downvotes == "" {
		c.Tables.Downvotes = d.Tables.Downvotes
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = d.Storage.Bucket
	}
	if c.Feed.DefaultLimit <= 0 {
		c.Feed.DefaultLimit = d.Feed.DefaultLimit
	}
	if c.Feed.MaxLimit <= 0 {
		c.Feed.MaxLimit = d.Feed.MaxLimit
	}
	if c.Feed.DefaultLimit > c.Feed.MaxLimit {
		c.Feed.DefaultLimit = c.Feed.MaxLimit
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = d.Cache.TTL
	}
	if c.Supabase.Timeout <= 0 {
		c.Supabase.Timeout = d.Supabase.Timeout
	}
	if c.Jobs.TallySchedule == "" {
		c.Jobs.TallySchedule = d.Jobs.TallySchedule
	}
}

// Validate checks what every brewmap process needs to reach the platform.
func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	u, err := url.Parse(c.SupabaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("SUPABASE_URL %q is not an absolute URL", c.SupabaseURL)
	}
	if c.SupabaseAnonKey == "" {
		return fmt.Errorf("SUPABASE_ANON_KEY is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.Tables.Upvotes == c.Tables.Downvotes {
		return fmt.Errorf("tables.upvotes and tables.downvotes must differ")
	}
	return nil
}

// ValidateServer adds the checks only the API server needs.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.SupabaseJWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.CORSOrigins()) == 1 && c.CORSOrigins()[0] == "*" {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS must be explicit in production")
	}
	return nil
}

// IsProduction reports whether BREWMAP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// AdminUserIDs returns the admin allowlist.
func (c *Config) AdminUserIDs() map[string]struct{} {
	return parseCSVSet(c.AdminUserIDsRaw)
}

// CORSOrigins returns the allowed origins.
func (c *Config) CORSOrigins() []string {
	set := parseCSVList(c.CORSOriginsRaw)
	if len(set) == 0 {
		return []string{"*"}
	}
	return set
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func parseCSVSet(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, part := range parseCSVList(raw) {
		out[part] = struct{}{}
	}
	return out
}

func parseCSVList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
