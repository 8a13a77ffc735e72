// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Search    SearchConfig    `mapstructure:"search"`
	AISearch  AISearchConfig  `mapstructure:"ai_search"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Contract  ContractConfig  `mapstructure:"contract"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Store     StoreConfig     `mapstructure:"store"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Publisher PublisherConfig `mapstructure:"publisher"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SearchConfig governs the keyword web-search resolver and page scanner.
type SearchConfig struct {
	// EndpointURL is the HTML results endpoint scraped for links.
	EndpointURL string `mapstructure:"endpoint_url"`
	UserAgent   string `mapstructure:"user_agent"`
	// CourtesyDelayMs is the fixed delay between calls to the same external
	// service. Preserved from the search contract; do not set to zero in
	// production.
	CourtesyDelayMs  int `mapstructure:"courtesy_delay_ms"`
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	DownloadTimeout  int `mapstructure:"download_timeout_seconds"`
	MaxResults       int `mapstructure:"max_results"`
	ScanPagesPerPass int `mapstructure:"scan_pages_per_pass"`
}

// AISearchConfig configures the AI-assisted resolver tier. An empty APIKey
// disables the tier entirely.
type AISearchConfig struct {
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	ScanTopPages int    `mapstructure:"scan_top_pages"`
}

// ExtractConfig configures the warranty text-extraction service.
type ExtractConfig struct {
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	PageTextMax  int    `mapstructure:"page_text_max"`
	PagesPerTerm int    `mapstructure:"pages_per_term"`
}

// ContractConfig configures contract-PDF product extraction.
type ContractConfig struct {
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	Model           string `mapstructure:"model"`
	MaxTokens       int    `mapstructure:"max_tokens"`
}

// CacheConfig governs the Cache Gate.
type CacheConfig struct {
	// FreshnessWindowHours suppresses re-search of a recently confirmed
	// not-found model.
	FreshnessWindowHours int `mapstructure:"freshness_window_hours"`
	SignedURLTTLHours    int `mapstructure:"signed_url_ttl_hours"`
}

// JobsConfig sizes the background job worker pool.
type JobsConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	QueueDepth  int `mapstructure:"queue_depth"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Provider string `mapstructure:"provider"` // memory | postgres
	DSN      string `mapstructure:"dsn"`
}

// BlobConfig selects the blob store backend.
type BlobConfig struct {
	Provider  string `mapstructure:"provider"` // memory | local | gcs
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// PublisherConfig selects the resolution-event publisher.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"` // noop | pubsub
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MANUALFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("logging.development", true)

	v.SetDefault("search.endpoint_url", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("search.courtesy_delay_ms", 1000)
	v.SetDefault("search.timeout_seconds", 15)
	v.SetDefault("search.download_timeout_seconds", 30)
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.scan_pages_per_pass", 4)

	v.SetDefault("ai_search.model", "gemini-2.5-flash")
	v.SetDefault("ai_search.scan_top_pages", 3)

	v.SetDefault("extract.model", "gemini-2.5-flash")
	v.SetDefault("extract.page_text_max", 8000)
	v.SetDefault("extract.pages_per_term", 3)

	v.SetDefault("contract.model", "claude-sonnet-4-20250514")
	v.SetDefault("contract.max_tokens", 4096)

	v.SetDefault("cache.freshness_window_hours", 168)
	v.SetDefault("cache.signed_url_ttl_hours", 24*365)

	v.SetDefault("jobs.concurrency", 2)
	v.SetDefault("jobs.queue_depth", 32)

	v.SetDefault("store.provider", "memory")
	v.SetDefault("blob.provider", "memory")
	v.SetDefault("publisher.provider", "noop")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Jobs.Concurrency <= 0 {
		return fmt.Errorf("jobs.concurrency must be > 0")
	}
	if c.Cache.FreshnessWindowHours <= 0 {
		return fmt.Errorf("cache.freshness_window_hours must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Store.Provider == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn must be set when store.provider is postgres")
	}
	if c.Blob.Provider == "gcs" && c.Blob.GCSBucket == "" {
		return fmt.Errorf("blob.gcs_bucket must be set when blob.provider is gcs")
	}
	if c.Blob.Provider == "local" && c.Blob.LocalDir == "" {
		return fmt.Errorf("blob.local_dir must be set when blob.provider is local")
	}
	if c.Publisher.Provider == "pubsub" && (c.Publisher.ProjectID == "" || c.Publisher.Topic == "") {
		return fmt.Errorf("publisher.project_id and publisher.topic must be set when publisher.provider is pubsub")
	}
	return nil
}

// CourtesyDelay returns the inter-call delay as a duration.
func (c SearchConfig) CourtesyDelay() time.Duration {
	return time.Duration(c.CourtesyDelayMs) * time.Millisecond
}

// FreshnessWindow returns the not-found suppression window as a duration.
func (c CacheConfig) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessWindowHours) * time.Hour
}

// SignedURLTTL returns the retrieval-link lifetime as a duration.
func (c CacheConfig) SignedURLTTL() time.Duration {
	return time.Duration(c.SignedURLTTLHours) * time.Hour
}
