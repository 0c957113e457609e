package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/beekhof/upcoming/internal/report"
)

// Defaults.
const (
	DefaultCredentialsPath = "credentials.json"
	DefaultTokenPath       = "token.json"
	DefaultDays            = 5
	DefaultMaxResults      = 10
	DefaultConcurrency     = 4
	DefaultFormat          = report.FormatText
	DefaultCallbackAddr    = "127.0.0.1:8080"
	DefaultAuthTimeout     = 5 * time.Minute

	// maxResultsLimit is the largest page the events endpoint accepts.
	maxResultsLimit = 2500
)

// Environment variable names.
const (
	EnvCredentialsPath = "UPCOMING_CREDENTIALS_PATH"
	EnvTokenPath       = "UPCOMING_TOKEN_PATH"
	EnvDays            = "UPCOMING_DAYS"
	EnvMaxResults      = "UPCOMING_MAX_RESULTS"
	EnvConcurrency     = "UPCOMING_CONCURRENCY"
	EnvFormat          = "UPCOMING_FORMAT"
	EnvNoBrowser       = "UPCOMING_NO_BROWSER"
	EnvCallbackAddr    = "UPCOMING_CALLBACK_ADDR"
	EnvAuthTimeout     = "UPCOMING_AUTH_TIMEOUT"
)

// Config holds the configuration for upcoming.
type Config struct {
	CredentialsPath string        `yaml:"credentials_path,omitempty"` // Google OAuth client secret JSON
	TokenPath       string        `yaml:"token_path,omitempty"`       // Cached credential file
	Days            int           `yaml:"days,omitempty"`             // Horizon in days from now
	MaxResults      int64         `yaml:"max_results,omitempty"`      // Events requested per calendar
	Concurrency     int           `yaml:"concurrency,omitempty"`      // Simultaneous calendar requests
	Format          string        `yaml:"format,omitempty"`           // text, json or ics
	NoBrowser       bool          `yaml:"no_browser,omitempty"`       // Paste the code instead of a local callback
	CallbackAddr    string        `yaml:"callback_addr,omitempty"`
	AuthTimeout     time.Duration `yaml:"auth_timeout,omitempty"`
	Verbose         bool          `yaml:"verbose,omitempty"`
}

// Horizon returns the aggregation window.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.Days) * 24 * time.Hour
}

// Overrides holds values given on the command line. Zero values mean unset.
type Overrides struct {
	CredentialsPath string
	TokenPath       string
	Days            int
	MaxResults      int64
	Concurrency     int
	Format          string
	NoBrowser       bool
	CallbackAddr    string
	AuthTimeout     time.Duration
	Verbose         bool
}

// LoadConfigFromFile loads configuration from a YAML file. JSON files are
// accepted as well.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
func LoadConfig(configFile string, flags Overrides) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	if err := applyEnv(&config); err != nil {
		return nil, err
	}

	// Step 3: Override with command-line flags (highest priority)
	if flags.CredentialsPath != "" {
		config.CredentialsPath = flags.CredentialsPath
	}
	if flags.TokenPath != "" {
		config.TokenPath = flags.TokenPath
	}
	if flags.Days != 0 {
		config.Days = flags.Days
	}
	if flags.MaxResults != 0 {
		config.MaxResults = flags.MaxResults
	}
	if flags.Concurrency != 0 {
		config.Concurrency = flags.Concurrency
	}
	if flags.Format != "" {
		config.Format = flags.Format
	}
	if flags.NoBrowser {
		config.NoBrowser = true
	}
	if flags.CallbackAddr != "" {
		config.CallbackAddr = flags.CallbackAddr
	}
	if flags.AuthTimeout != 0 {
		config.AuthTimeout = flags.AuthTimeout
	}
	if flags.Verbose {
		config.Verbose = true
	}

	// Step 4: Apply defaults and validate
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyEnv(config *Config) error {
	if v := os.Getenv(EnvCredentialsPath); v != "" {
		config.CredentialsPath = v
	}
	if v := os.Getenv(EnvTokenPath); v != "" {
		config.TokenPath = v
	}
	if v := os.Getenv(EnvDays); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", EnvDays, err)
		}
		config.Days = days
	}
	if v := os.Getenv(EnvMaxResults); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", EnvMaxResults, err)
		}
		config.MaxResults = n
	}
	if v := os.Getenv(EnvConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", EnvConcurrency, err)
		}
		config.Concurrency = n
	}
	if v := os.Getenv(EnvFormat); v != "" {
		config.Format = strings.ToLower(v)
	}
	if v := os.Getenv(EnvNoBrowser); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", EnvNoBrowser, err)
		}
		config.NoBrowser = b
	}
	if v := os.Getenv(EnvCallbackAddr); v != "" {
		config.CallbackAddr = v
	}
	if v := os.Getenv(EnvAuthTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", EnvAuthTimeout, err)
		}
		config.AuthTimeout = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.CredentialsPath == "" {
		c.CredentialsPath = DefaultCredentialsPath
	}
	if c.TokenPath == "" {
		c.TokenPath = DefaultTokenPath
	}
	if c.Days == 0 {
		c.Days = DefaultDays
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if c.CallbackAddr == "" {
		c.CallbackAddr = DefaultCallbackAddr
	}
	if c.AuthTimeout == 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Days < 1 {
		return fmt.Errorf("days must be at least 1, got %d", c.Days)
	}
	if c.MaxResults < 1 || c.MaxResults > maxResultsLimit {
		return fmt.Errorf("max_results must be between 1 and %d, got %d", maxResultsLimit, c.MaxResults)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if !report.ValidFormat(c.Format) {
		return fmt.Errorf("format must be one of %s, got %q", strings.Join(report.Formats, ", "), c.Format)
	}
	if c.AuthTimeout < 0 {
		return fmt.Errorf("auth_timeout must not be negative, got %s", c.AuthTimeout)
	}
	return nil
}
