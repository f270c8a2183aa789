package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ChunkerConfig controls how documents are split into sections.
type ChunkerConfig struct {
	Budget    int    `yaml:"budget"`
	Estimator string `yaml:"estimator"` // words or bytes
}

// SearchConfig controls result limits and the query cache.
type SearchConfig struct {
	CacheSize    int           `yaml:"cache_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	DefaultLimit int           `yaml:"default_limit"`
	MaxLimit     int           `yaml:"max_limit"`
}

// CrawlConfig controls domain ingestion.
type CrawlConfig struct {
	MaxDepth    int           `yaml:"max_depth"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	UserAgent   string        `yaml:"user_agent"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // json or text
}

// Config is the root application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Chunker  ChunkerConfig  `yaml:"chunker"`
	Search   SearchConfig   `yaml:"search"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: defaultDatabasePath()},
		Chunker:  ChunkerConfig{Budget: 8000, Estimator: "words"},
		Search: SearchConfig{
			CacheSize:    1000,
			CacheTTL:     time.Hour,
			DefaultLimit: 10,
			MaxLimit:     50,
		},
		Crawl: CrawlConfig{
			MaxDepth:    3,
			Concurrency: 10,
			Timeout:     30 * time.Second,
			MaxRetries:  3,
			UserAgent:   "tome/1.0",
		},
		Server: ServerConfig{HTTPAddr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a config from path, applies TOME_* environment overrides and
// validates the result. A missing file yields the defaults. An empty path
// skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	cfg.Database.Path = expandHome(cfg.Database.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every field holds a usable value.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Chunker.Budget <= 0 {
		return fmt.Errorf("chunker.budget must be positive, got %d", c.Chunker.Budget)
	}
	switch c.Chunker.Estimator {
	case "words", "bytes":
	default:
		return fmt.Errorf("chunker.estimator must be words or bytes, got %q", c.Chunker.Estimator)
	}
	if c.Search.CacheSize <= 0 {
		return fmt.Errorf("search.cache_size must be positive, got %d", c.Search.CacheSize)
	}
	if c.Search.CacheTTL <= 0 {
		return fmt.Errorf("search.cache_ttl must be positive, got %s", c.Search.CacheTTL)
	}
	if c.Search.MaxLimit <= 0 {
		return fmt.Errorf("search.max_limit must be positive, got %d", c.Search.MaxLimit)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit must be between 1 and %d, got %d", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if c.Crawl.MaxDepth < 0 || c.Crawl.MaxDepth > 5 {
		return fmt.Errorf("crawl.max_depth must be between 0 and 5, got %d", c.Crawl.MaxDepth)
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be positive, got %d", c.Crawl.Concurrency)
	}
	if c.Crawl.Timeout <= 0 {
		return fmt.Errorf("crawl.timeout must be positive, got %s", c.Crawl.Timeout)
	}
	if c.Crawl.MaxRetries <= 0 {
		return fmt.Errorf("crawl.max_retries must be positive, got %d", c.Crawl.MaxRetries)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Database.Path = envOr("TOME_DB_PATH", cfg.Database.Path)

	cfg.Chunker.Budget = envInt("TOME_CHUNK_BUDGET", cfg.Chunker.Budget)
	cfg.Chunker.Estimator = envOr("TOME_CHUNK_ESTIMATOR", cfg.Chunker.Estimator)

	cfg.Search.CacheSize = envInt("TOME_CACHE_SIZE", cfg.Search.CacheSize)
	cfg.Search.CacheTTL = envDuration("TOME_CACHE_TTL", cfg.Search.CacheTTL)
	cfg.Search.DefaultLimit = envInt("TOME_SEARCH_DEFAULT_LIMIT", cfg.Search.DefaultLimit)
	cfg.Search.MaxLimit = envInt("TOME_SEARCH_MAX_LIMIT", cfg.Search.MaxLimit)

	cfg.Crawl.MaxDepth = envInt("TOME_CRAWL_MAX_DEPTH", cfg.Crawl.MaxDepth)
	cfg.Crawl.Concurrency = envInt("TOME_CRAWL_CONCURRENCY", cfg.Crawl.Concurrency)
	cfg.Crawl.Timeout = envDuration("TOME_CRAWL_TIMEOUT", cfg.Crawl.Timeout)
	cfg.Crawl.MaxRetries = envInt("TOME_CRAWL_MAX_RETRIES", cfg.Crawl.MaxRetries)
	cfg.Crawl.UserAgent = envOr("TOME_USER_AGENT", cfg.Crawl.UserAgent)

	cfg.Server.HTTPAddr = envOr("TOME_HTTP_ADDR", cfg.Server.HTTPAddr)

	cfg.Log.Level = envOr("TOME_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOr("TOME_LOG_FORMAT", cfg.Log.Format)
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".tome", "tome.db")
	}
	return filepath.Join(home, ".tome", "tome.db")
}

// expandHome replaces a leading ~ with the user's home directory
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
