package config

import (
	"fmt"
	"time"
)

// PageStat selects the per-page sales statistic driving the smart-stop rule.
type PageStat string

const (
	// StatMin stops on the lowest sales volume seen on a page. Search results
	// are rank-ordered by relevance, so the page minimum marks the tail.
	StatMin PageStat = "min"
	// StatAvg stops on the page average instead.
	StatAvg PageStat = "avg"
)

// Config holds pipeline configuration for one invocation.
type Config struct {
	Keyword   string
	BatchFile string

	CountryCode    string
	MaxPages       int
	SalesThreshold int
	StopStat       PageStat

	TopCategories int
	CategoryPages int

	AIFilter bool
	AILimit  int

	SalesCeiling int
	CacheTTLDays int

	DBPath      string
	ExportDir   string
	MetricsAddr string

	Timeout         time.Duration
	UserAgent       string
	Delay           time.Duration
	RandomDelay     time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	Verbose         bool
}

// DefaultConfig returns the defaults used by the command-line driver.
func DefaultConfig() *Config {
	return &Config{
		CountryCode:     "us",
		MaxPages:        100,
		SalesThreshold:  10,
		StopStat:        StatMin,
		TopCategories:   3,
		CategoryPages:   50,
		AIFilter:        true,
		AILimit:         100,
		SalesCeiling:    100,
		CacheTTLDays:    20,
		DBPath:          "data/nichescout.db",
		ExportDir:       "outputs",
		Timeout:         30 * time.Second,
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Delay:           time.Second,
		RandomDelay:     500 * time.Millisecond,
		MaxRetries:      3,
		RetryBackoff:    500 * time.Millisecond,
		RetryBackoffMax: 5 * time.Second,
	}
}

// Validate ensures all configuration values are coherent. It runs before any
// external call is issued.
func (c *Config) Validate() error {
	if c.Keyword == "" && c.BatchFile == "" {
		return fmt.Errorf("a keyword or a batch file is required")
	}
	if c.Keyword != "" && c.BatchFile != "" {
		return fmt.Errorf("keyword and batch file are mutually exclusive")
	}
	if c.CountryCode == "" {
		return fmt.Errorf("country code cannot be empty")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.SalesThreshold < 0 {
		return fmt.Errorf("sales threshold cannot be negative")
	}
	if c.StopStat != StatMin && c.StopStat != StatAvg {
		return fmt.Errorf("stop statistic must be %q or %q", StatMin, StatAvg)
	}
	if c.TopCategories < 0 {
		return fmt.Errorf("top categories cannot be negative")
	}
	if c.CategoryPages <= 0 {
		return fmt.Errorf("category pages must be positive")
	}
	if c.AILimit <= 0 {
		return fmt.Errorf("ai limit must be positive")
	}
	if c.SalesCeiling <= 0 {
		return fmt.Errorf("sales ceiling must be positive")
	}
	if c.CacheTTLDays <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	return nil
}

// Credentials carries provider secrets bound from the environment.
// The Gemini key is only required when the AI filter is enabled.
type Credentials struct {
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	GeminiModel   string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	GeminiBaseURL string `envconfig:"GEMINI_BASE_URL"`
}
