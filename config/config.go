package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/aluiziolira/bookshelf-etl/models"
	"gopkg.in/yaml.v3"
)

// Supported store drivers.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Selectors locates a listing item and its fields inside the catalog page.
type Selectors struct {
	Item   string `yaml:"item"`
	Title  string `yaml:"title"`
	Author string `yaml:"author"`
	Price  string `yaml:"price"`
	Link   string `yaml:"link"`
}

// StoreConfig holds destination database settings.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	Table    string `yaml:"table"`
}

// Config holds pipeline configuration. It is built once per run and passed
// to every stage.
type Config struct {
	SourceURL     string            `yaml:"source_url"`
	UserAgent     string            `yaml:"user_agent"`
	Headers       map[string]string `yaml:"headers"`
	Timeout       time.Duration     `yaml:"timeout"`
	MaxItems      int               `yaml:"max_items"`
	Selectors     Selectors         `yaml:"selectors"`
	Store         StoreConfig       `yaml:"store"`
	Retries       int               `yaml:"retries"`
	RetryDelay    time.Duration     `yaml:"retry_delay"`
	RetryDelayMax time.Duration     `yaml:"retry_delay_max"`
	HandoffDir    string            `yaml:"handoff_dir"`
	MetricsAddr   string            `yaml:"metrics_addr"`
	Verbose       bool              `yaml:"verbose"`
}

// DefaultConfig returns the defaults for the book catalog target.
func DefaultConfig() *Config {
	return &Config{
		SourceURL: "https://www.amazon.com/s?k=books",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
		Headers: map[string]string{
			"Accept-Language": "en-US,en;q=0.9",
		},
		Timeout:  15 * time.Second,
		MaxItems: models.MaxBatchSize,
		Selectors: Selectors{
			Item:   ".s-result-item",
			Title:  "h2",
			Author: ".a-color-secondary .a-row .a-size-base",
			Price:  ".a-price .a-offscreen",
			Link:   "h2 a",
		},
		Store: StoreConfig{
			Driver:   DriverPostgres,
			Host:     "postgres",
			Port:     5432,
			Database: "amazon_book",
			User:     "airflow",
			Password: "airflow",
			SSLMode:  "disable",
			Table:    "amazon_books",
		},
		Retries:    1,
		RetryDelay: time.Minute,
		HandoffDir: "",
	}
}

// LoadFile overlays a YAML file onto cfg. Keys absent from the file keep
// their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (s StoreConfig) DSN() string {
	if s.Driver == DriverSQLite {
		return s.Database
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.User, s.Password),
		Host:   fmt.Sprintf("%s:%d", s.Host, s.Port),
		Path:   "/" + s.Database,
	}
	if s.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {s.SSLMode}}.Encode()
	}
	return u.String()
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.SourceURL == "" {
		return fmt.Errorf("source URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.SourceURL)
	if err != nil {
		return fmt.Errorf("invalid source URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("source URL must include a host")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxItems <= 0 || c.MaxItems > models.MaxBatchSize {
		return fmt.Errorf("max items must be between 1 and %d", models.MaxBatchSize)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if strings.TrimSpace(c.Selectors.Item) == "" {
		return fmt.Errorf("item selector cannot be empty")
	}

	if c.Retries < 0 {
		return fmt.Errorf("retries cannot be negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.RetryDelayMax < 0 {
		return fmt.Errorf("retry delay max cannot be negative")
	}
	if c.RetryDelayMax > 0 && c.RetryDelay > c.RetryDelayMax {
		return fmt.Errorf("retry delay (%s) cannot exceed retry delay max (%s)", c.RetryDelay, c.RetryDelayMax)
	}

	return c.Store.Validate()
}

// Validate checks the store settings.
func (s StoreConfig) Validate() error {
	switch s.Driver {
	case DriverPostgres:
		if s.Host == "" {
			return fmt.Errorf("store host cannot be empty")
		}
		if s.Port <= 0 || s.Port > 65535 {
			return fmt.Errorf("store port out of range")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("store driver must be %s or %s", DriverPostgres, DriverSQLite)
	}
	if s.Database == "" {
		return fmt.Errorf("store database cannot be empty")
	}
	if !identifierPattern.MatchString(s.Table) {
		return fmt.Errorf("store table %q is not a valid identifier", s.Table)
	}
	return nil
}
