package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the twix-saver services
type Config struct {
	// Database holds document store settings
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Browser holds browser automation settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Scraper holds scraping engine settings
	Scraper ScraperConfig `yaml:"scraper" json:"scraper"`

	// Ingest holds ingestion pipeline settings
	Ingest IngestConfig `yaml:"ingest" json:"ingest"`

	// Blob holds binary media storage settings
	Blob BlobConfig `yaml:"blob" json:"blob"`

	// Articles holds article extraction settings
	Articles ArticlesConfig `yaml:"articles" json:"articles"`

	// Jobs holds job retention settings
	Jobs JobsConfig `yaml:"jobs" json:"jobs"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DatabaseConfig holds document store connection settings
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" json:"driver"` // "sqlite" or "postgres"
	Path            string        `yaml:"path" json:"path"`     // sqlite file path
	DSN             string        `yaml:"dsn" json:"dsn"`       // postgres DSN
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate" json:"auto_migrate"`
}

// BrowserConfig holds browser session settings
type BrowserConfig struct {
	Headless    bool          `yaml:"headless" json:"headless"`
	SessionsDir string        `yaml:"sessions_dir" json:"sessions_dir"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent"`
	NavTimeout  time.Duration `yaml:"nav_timeout" json:"nav_timeout"`
	WaitTimeout time.Duration `yaml:"wait_timeout" json:"wait_timeout"`
	ProxyServer string        `yaml:"proxy_server" json:"proxy_server"`
}

// ScraperConfig holds scraping engine settings
type ScraperConfig struct {
	ChunkDir          string        `yaml:"chunk_dir" json:"chunk_dir"`
	ChunkSize         int           `yaml:"chunk_size" json:"chunk_size"`
	SyncWindow        time.Duration `yaml:"sync_window" json:"sync_window"`
	SyncPollInterval  time.Duration `yaml:"sync_poll_interval" json:"sync_poll_interval"`
	SyncGracePeriod   time.Duration `yaml:"sync_grace_period" json:"sync_grace_period"`
	MaxConsecutiveErr int           `yaml:"max_consecutive_errors" json:"max_consecutive_errors"`
	LoginMaxAttempts  int           `yaml:"login_max_attempts" json:"login_max_attempts"`
}

// IngestConfig holds ingestion pipeline settings
type IngestConfig struct {
	BatchSize           int           `yaml:"batch_size" json:"batch_size"`
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	MaxRetries          int           `yaml:"max_retries" json:"max_retries"`
	MaxMediaBytes       int64         `yaml:"max_media_bytes" json:"max_media_bytes"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RequestsPerMinute   int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// BlobConfig holds binary media storage settings
type BlobConfig struct {
	Backend   string `yaml:"backend" json:"backend"` // "fs" or "s3"
	Dir       string `yaml:"dir" json:"dir"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
}

// ArticlesConfig holds article extraction settings
type ArticlesConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
	UserAgent    string        `yaml:"user_agent" json:"user_agent"`
}

// JobsConfig holds job retention settings
type JobsConfig struct {
	RetentionDays int `yaml:"retention_days" json:"retention_days"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "./data/twix.db",
			MaxIdleConns:    2,
			MaxOpenConns:    10,
			ConnMaxLifetime: time.Hour,
			AutoMigrate:     true,
		},
		Browser: BrowserConfig{
			Headless:    true,
			SessionsDir: "./data/sessions",
			UserAgent:   defaultUserAgent,
			NavTimeout:  30 * time.Second,
			WaitTimeout: 30 * time.Second,
		},
		Scraper: ScraperConfig{
			ChunkDir:          "./data/raw",
			ChunkSize:         20,
			SyncWindow:        10 * time.Second,
			SyncPollInterval:  500 * time.Millisecond,
			SyncGracePeriod:   time.Second,
			MaxConsecutiveErr: 3,
			LoginMaxAttempts:  3,
		},
		Ingest: IngestConfig{
			BatchSize:           10,
			ConcurrentDownloads: 5,
			MaxRetries:          3,
			MaxMediaBytes:       10 * 1024 * 1024,
			DownloadTimeout:     30 * time.Second,
			RequestsPerMinute:   120,
		},
		Blob: BlobConfig{
			Backend: "fs",
			Dir:     "./data/images",
		},
		Articles: ArticlesConfig{
			Enabled:      true,
			FetchTimeout: 20 * time.Second,
			UserAgent:    defaultUserAgent,
		},
		Jobs: JobsConfig{
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in that order of precedence (env wins).
func Load(path string) (*Config, error) {
	// A .env file is optional; ignore a missing one
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file. An empty path falls back
// to the default locations; a missing file is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for a config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".twix-saver.yaml",
		".twix-saver.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "twix-saver", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "twix-saver", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// LoadFromEnv loads configuration overrides from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("TWIX_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("TWIX_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("TWIX_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("TWIX_CHUNK_DIR"); v != "" {
		c.Scraper.ChunkDir = v
	}
	if v := os.Getenv("TWIX_SESSIONS_DIR"); v != "" {
		c.Browser.SessionsDir = v
	}
	if v := os.Getenv("TWIX_HEADLESS"); v != "" {
		c.Browser.Headless = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("TWIX_PROXY_SERVER"); v != "" {
		c.Browser.ProxyServer = v
	}
	if v := os.Getenv("TWIX_BLOB_BACKEND"); v != "" {
		c.Blob.Backend = v
	}
	if v := os.Getenv("TWIX_BLOB_DIR"); v != "" {
		c.Blob.Dir = v
	}
	if v := os.Getenv("TWIX_S3_BUCKET"); v != "" {
		c.Blob.Bucket = v
	}
	if v := os.Getenv("TWIX_S3_REGION"); v != "" {
		c.Blob.Region = v
	}
	if v := os.Getenv("TWIX_S3_ENDPOINT"); v != "" {
		c.Blob.Endpoint = v
	}
	if v := os.Getenv("TWIX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TWIX_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("TWIX_CONCURRENT_DOWNLOADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.ConcurrentDownloads = n
		}
	}
	if v := os.Getenv("TWIX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.BatchSize = n
		}
	}
	if v := os.Getenv("TWIX_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Jobs.RetentionDays = n
		}
	}
	return nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("postgres driver requires a DSN")
	}

	switch c.Blob.Backend {
	case "fs":
	case "s3":
		if c.Blob.Bucket == "" {
			return fmt.Errorf("s3 blob backend requires a bucket")
		}
	default:
		return fmt.Errorf("unknown blob backend: %s", c.Blob.Backend)
	}

	if c.Scraper.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Ingest.ConcurrentDownloads <= 0 {
		return fmt.Errorf("concurrent downloads must be positive")
	}
	if c.Ingest.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}
