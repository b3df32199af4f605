package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is read when CONFIG_PATH is not set.
const DefaultConfigPath = "config.yaml"

// PostgresConfig locates the optional API token table.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Config holds every setting of the service.
type Config struct {
	Server struct {
		Host        string `yaml:"host"`
		Port        string `yaml:"port"`
		Prefork     bool   `yaml:"prefork"`
		BodyLimitMB int    `yaml:"body_limit_mb"`
	} `yaml:"server"`

	Limits struct {
		MaxUploadBytes int64 `yaml:"max_upload_bytes"`
		MaxDimension   int   `yaml:"max_dimension"`
		MaxPDFPages    int   `yaml:"max_pdf_pages"`
	} `yaml:"limits"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Cache struct {
		RedisHost           string        `yaml:"redis_host"`
		RateLimitDB         int           `yaml:"redis_rate_db"`
		ArchiveDB           int           `yaml:"redis_archive_db"`
		ArchiveCacheEnabled bool          `yaml:"archive_cache_enabled"`
		ArchiveCacheTTL     time.Duration `yaml:"archive_cache_ttl"`
	} `yaml:"cache"`

	Auth struct {
		Postgres       PostgresConfig `yaml:"postgres"`
		ReloadInterval time.Duration  `yaml:"reload_interval"`
	} `yaml:"auth"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
		UserLimit         int           `yaml:"user_limit"`
	} `yaml:"rate_limiter"`

	PDF struct {
		Renderer       string        `yaml:"renderer"`
		DPI            int           `yaml:"dpi"`
		Workers        int           `yaml:"workers"`
		AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	} `yaml:"pdf"`

	Pipeline struct {
		AllowPDFInput    bool   `yaml:"allow_pdf_input"`
		AllowPDFAssembly bool   `yaml:"allow_pdf_assembly"`
		ArchiveName      string `yaml:"archive_name"`
		JPEGQuality      int    `yaml:"jpeg_quality"`
		ResampleFilter   string `yaml:"resample_filter"`
	} `yaml:"pipeline"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// Default returns the built-in configuration used when no file is present.
func Default() Config {
	var cfg Config
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = ":5000"
	cfg.Server.BodyLimitMB = 64

	cfg.Limits.MaxUploadBytes = 4.5 * 1024 * 1024
	cfg.Limits.MaxDimension = 8000
	cfg.Limits.MaxPDFPages = 200

	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 10
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 7

	cfg.Cache.ArchiveDB = 1
	cfg.Cache.ArchiveCacheTTL = 10 * time.Minute

	cfg.Auth.ReloadInterval = time.Minute

	cfg.RateLimiter.Interval = time.Minute

	cfg.PDF.Renderer = "pdfium"
	cfg.PDF.DPI = 150
	cfg.PDF.Workers = 1
	cfg.PDF.AcquireTimeout = 30 * time.Second

	cfg.Pipeline.AllowPDFInput = true
	cfg.Pipeline.AllowPDFAssembly = true
	cfg.Pipeline.ArchiveName = "resized_output.zip"
	cfg.Pipeline.JPEGQuality = 95
	cfg.Pipeline.ResampleFilter = "lanczos"

	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	return cfg
}

// Load reads the file named by CONFIG_PATH (or config.yaml). A missing file
// yields the defaults; an unreadable or invalid one panics.
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		applyEnv(&cfg)
		mustValidate(cfg)
		return cfg
	}
	return LoadFrom(path)
}

// LoadFrom overlays the YAML file at path onto the defaults and panics on
// unreadable files or invalid values.
func LoadFrom(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		panic(fmt.Sprintf("config: parse %s: %v", path, err))
	}
	applyEnv(&cfg)
	mustValidate(cfg)
	return cfg
}

// applyEnv lets the PORT variable select the listening port.
func applyEnv(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Server.Port = ":" + strings.TrimPrefix(port, ":")
	}
}

func mustValidate(cfg Config) {
	if err := cfg.Validate(); err != nil {
		panic("config: " + err.Error())
	}
}

// Validate reports the first invalid value.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.Server.Port, ":") {
		return fmt.Errorf("server.port must look like \":5000\", got %q", c.Server.Port)
	}
	if _, err := strconv.Atoi(strings.TrimPrefix(c.Server.Port, ":")); err != nil {
		return fmt.Errorf("server.port is not numeric: %q", c.Server.Port)
	}
	if c.Server.BodyLimitMB <= 0 {
		return fmt.Errorf("server.body_limit_mb must be positive")
	}
	if c.Limits.MaxUploadBytes <= 0 {
		return fmt.Errorf("limits.max_upload_bytes must be positive")
	}
	if c.Limits.MaxDimension < 0 || c.Limits.MaxPDFPages < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	switch c.PDF.Renderer {
	case "pdfium", "fitz":
	default:
		return fmt.Errorf("pdf.renderer must be pdfium or fitz, got %q", c.PDF.Renderer)
	}
	if c.PDF.DPI <= 0 || c.PDF.Workers <= 0 {
		return fmt.Errorf("pdf.dpi and pdf.workers must be positive")
	}
	if c.Pipeline.JPEGQuality < 1 || c.Pipeline.JPEGQuality > 100 {
		return fmt.Errorf("pipeline.jpeg_quality must be between 1 and 100")
	}
	if !strings.HasSuffix(c.Pipeline.ArchiveName, ".zip") {
		return fmt.Errorf("pipeline.archive_name must end with .zip")
	}
	if c.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter.user_limit must not be negative")
	}
	if c.RateLimiter.Interval <= 0 {
		return fmt.Errorf("rate_limiter.interval must be positive")
	}
	if c.Cache.ArchiveCacheEnabled && c.Cache.RedisHost == "" {
		return fmt.Errorf("cache.archive_cache_enabled requires cache.redis_host")
	}
	if c.Auth.Postgres.Host != "" && c.Auth.ReloadInterval <= 0 {
		return fmt.Errorf("auth.reload_interval must be positive")
	}
	return nil
}

// AuthEnabled reports whether API tokens are loaded from Postgres.
func (c Config) AuthEnabled() bool {
	return c.Auth.Postgres.Host != ""
}

// ListenAddr joins host and port for fiber.App.Listen.
func (c Config) ListenAddr() string {
	return c.Server.Host + c.Server.Port
}
