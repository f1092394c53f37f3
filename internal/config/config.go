// Package config loads runtime settings from defaults, an optional YAML file,
// a .env file and the process environment, in that order of precedence.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Europe/Warsaw on hosts without zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"house-prices/internal/scraper"
)

// Fetch modes
const (
	FetchHTTP        = "http"
	FetchBrowser     = "browser"
	FetchScrapingBee = "scrapingbee"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	Server   ServerConfig   `yaml:"server"`
	Timezone string         `yaml:"timezone"`
}

// DatabaseConfig selects the storage backend
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite and a connection string for postgres
	DSN string `yaml:"dsn"`
}

// ScraperConfig drives the pipeline
type ScraperConfig struct {
	SearchURLs      []string      `yaml:"search_urls"`
	MaxPage         int           `yaml:"max_page"`
	RequestInterval time.Duration `yaml:"request_interval"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	UserAgent       string        `yaml:"user_agent"`
	Fetch           string        `yaml:"fetch"`
	Headless        bool          `yaml:"headless"`
	// ScrapingBeeKey is only read from the environment
	ScrapingBeeKey string `yaml:"-"`
}

// ServerConfig configures the read API
type ServerConfig struct {
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

// Default returns the built-in settings
func Default() *Config {
	pipeline := scraper.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "data/houses.db",
		},
		Scraper: ScraperConfig{
			SearchURLs:      pipeline.SearchURLs,
			MaxPage:         pipeline.MaxPage,
			RequestInterval: 2 * time.Second,
			HTTPTimeout:     30 * time.Second,
			Fetch:           FetchHTTP,
			Headless:        true,
		},
		Server: ServerConfig{
			Port:      8080,
			StaticDir: "web/static",
		},
		Timezone: "Europe/Warsaw",
	}
}

// Load builds the configuration. path names an optional YAML file; an empty
// path skips it. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.Driver = getEnv("HOUSES_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DATABASE_URL", c.Database.DSN)

	if urls := getEnv("HOUSES_SEARCH_URLS", ""); urls != "" {
		c.Scraper.SearchURLs = splitList(urls)
	}
	c.Scraper.MaxPage = getEnvInt("HOUSES_MAX_PAGE", c.Scraper.MaxPage)
	c.Scraper.RequestInterval = getEnvDuration("HOUSES_REQUEST_INTERVAL", c.Scraper.RequestInterval)
	c.Scraper.HTTPTimeout = getEnvDuration("HOUSES_HTTP_TIMEOUT", c.Scraper.HTTPTimeout)
	c.Scraper.UserAgent = getEnv("HOUSES_USER_AGENT", c.Scraper.UserAgent)
	c.Scraper.Fetch = getEnv("HOUSES_FETCH_MODE", c.Scraper.Fetch)
	c.Scraper.Headless = getEnvBool("HOUSES_HEADLESS", c.Scraper.Headless)
	c.Scraper.ScrapingBeeKey = getEnv("SCRAPINGBEE_API_KEY", c.Scraper.ScrapingBeeKey)

	c.Server.Port = getEnvInt("HOUSES_PORT", c.Server.Port)
	c.Server.StaticDir = getEnv("HOUSES_STATIC_DIR", c.Server.StaticDir)
	c.Timezone = getEnv("HOUSES_TIMEZONE", c.Timezone)
}

// Validate checks the settings commands rely on
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is empty")
	}
	switch c.Scraper.Fetch {
	case FetchHTTP, FetchBrowser:
	case FetchScrapingBee:
		if c.Scraper.ScrapingBeeKey == "" {
			return fmt.Errorf("fetch mode %q needs SCRAPINGBEE_API_KEY", FetchScrapingBee)
		}
	default:
		return fmt.Errorf("unknown fetch mode %q", c.Scraper.Fetch)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the timezone listing dates are interpreted in
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
		log.Printf("Ignoring %s=%q: %v", key, val, err)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
		log.Printf("Ignoring %s=%q: %v", key, val, err)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
		log.Printf("Ignoring %s=%q: %v", key, val, err)
	}
	return fallback
}
