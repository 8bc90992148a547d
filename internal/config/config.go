// Package config loads auditview settings from the environment, an optional
// .env file and an optional YAML overlay.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	auditview "github.com/kafeiih/go-auditview"
)

// Source kinds.
const (
	SourceHTTP     = "http"
	SourcePostgres = "postgres"
)

// Config holds the settings for the log source, the console and logging.
type Config struct {
	// Log source
	Source      string        `yaml:"source"`
	APIBaseURL  string        `yaml:"apiBaseUrl"`
	APIToken    string        `yaml:"apiToken"`
	DatabaseURL string        `yaml:"databaseUrl"`
	HTTPTimeout time.Duration `yaml:"httpTimeout"`

	// Outgoing rate limiting
	RateLimitRPS   float64 `yaml:"rateLimitRps"`
	RateLimitBurst int     `yaml:"rateLimitBurst"`

	// Console behaviour
	ListenAddr      string               `yaml:"listenAddr"`
	PageSize        int                  `yaml:"pageSize"`
	RefreshInterval time.Duration        `yaml:"refreshInterval"`
	AutoRefresh     bool                 `yaml:"autoRefresh"`
	Timezone        string               `yaml:"timezone"`
	DefaultFilter   auditview.FilterSpec `yaml:"defaultFilter"`

	// Application settings
	LogLevel string `yaml:"logLevel"`
}

// Load reads configuration from a .env file (if present), the environment
// and, when AUDITVIEW_CONFIG names one, a YAML file whose values override
// the environment.
func Load() (*Config, error) {
	// Load .env file if exists (not required in production)
	_ = godotenv.Load()

	cfg := fromEnv()

	if path := os.Getenv("AUDITVIEW_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		Source:          getEnv("AUDITVIEW_SOURCE", SourceHTTP),
		APIBaseURL:      getEnv("AUDITVIEW_API_URL", ""),
		APIToken:        getEnv("AUDITVIEW_API_TOKEN", ""),
		DatabaseURL:     getEnv("AUDITVIEW_DATABASE_URL", ""),
		HTTPTimeout:     getEnvAsDuration("AUDITVIEW_HTTP_TIMEOUT", 30*time.Second),
		RateLimitRPS:    getEnvAsFloat("AUDITVIEW_RATE_LIMIT_RPS", 5),
		RateLimitBurst:  getEnvAsInt("AUDITVIEW_RATE_LIMIT_BURST", 5),
		ListenAddr:      getEnv("AUDITVIEW_LISTEN_ADDR", "127.0.0.1:8088"),
		PageSize:        getEnvAsInt("AUDITVIEW_PAGE_SIZE", auditview.DefaultPageSize),
		RefreshInterval: getEnvAsDuration("AUDITVIEW_REFRESH_INTERVAL", 60*time.Second),
		AutoRefresh:     getEnvAsBool("AUDITVIEW_AUTO_REFRESH", false),
		Timezone:        getEnv("AUDITVIEW_TIMEZONE", "Local"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

// overlayFile decodes a YAML file on top of c; keys absent from the file
// keep their current values.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Validate ensures the selected source is fully configured.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceHTTP:
		if c.APIBaseURL == "" {
			return fmt.Errorf("AUDITVIEW_API_URL is required for the http source")
		}
		u, err := url.Parse(c.APIBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("AUDITVIEW_API_URL must be an absolute http(s) url")
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("AUDITVIEW_DATABASE_URL is required for the postgres source")
		}
	default:
		return fmt.Errorf("unknown AUDITVIEW_SOURCE %q (want %s or %s)", c.Source, SourceHTTP, SourcePostgres)
	}

	if c.PageSize <= 0 {
		return fmt.Errorf("AUDITVIEW_PAGE_SIZE must be positive")
	}
	if c.RefreshInterval < time.Second {
		return fmt.Errorf("AUDITVIEW_REFRESH_INTERVAL must be at least 1s")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("AUDITVIEW_RATE_LIMIT_RPS must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone; "Local" and "" mean the process time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("AUDITVIEW_TIMEZONE: %w", err)
	}
	return loc, nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return l, nil
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
