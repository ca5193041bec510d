package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the intelligence engine.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Feedback  FeedbackConfig  `mapstructure:"feedback"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug             bool          `mapstructure:"debug"`
	LogLevel          string        `mapstructure:"log_level"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
	MaxProcessingTime time.Duration `mapstructure:"max_processing_time"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig configures the external text-generation capability.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SearchConfig configures the external evidence-search capability.
type SearchConfig struct {
	Provider      string        `mapstructure:"provider"` // brave or serper
	APIKey        string        `mapstructure:"api_key"`
	MaxResults    int           `mapstructure:"max_results"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// FetchConfig controls the content fetch cycle.
type FetchConfig struct {
	FetcherType       string        `mapstructure:"fetcher_type"` // static or chromedp
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxItemsPerSource int           `mapstructure:"max_items_per_source"`
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	MaxChars          int           `mapstructure:"max_chars"`
	DedupWindow       time.Duration `mapstructure:"dedup_window"`
	RefreshCron       string        `mapstructure:"refresh_cron"`
}

// PipelineConfig bounds synthesis and query concurrency.
type PipelineConfig struct {
	MaxConcurrentQueries int      `mapstructure:"max_concurrent_queries"`
	PremiumThreshold     float64  `mapstructure:"premium_threshold"`
	RarityThreshold      float64  `mapstructure:"rarity_threshold"`
	MaxPremiumInsights   int      `mapstructure:"max_premium_insights"`
	MaxCrossDomain       int      `mapstructure:"max_cross_domain_insights"`
	MaxContrarian        int      `mapstructure:"max_contrarian_insights"`
	DefaultPlatforms     []string `mapstructure:"default_platforms"`
}

// FeedbackConfig controls the learning loop.
type FeedbackConfig struct {
	Stream               string  `mapstructure:"stream"`
	Group                string  `mapstructure:"group"`
	CredibilityStep      float64 `mapstructure:"credibility_step"`
	HighEngagementRate   float64 `mapstructure:"high_engagement_rate"`
	HighTotalEngagement  int64   `mapstructure:"high_total_engagement"`
	MediumEngagementRate float64 `mapstructure:"medium_engagement_rate"`
	MediumTotalEngagement int64  `mapstructure:"medium_total_engagement"`
}

// SourcesConfig points at the curated source descriptor file.
type SourcesConfig struct {
	File string `mapstructure:"file"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN assembles the postgres connection string.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// TelemetryConfig contains monitoring settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", 30*time.Second)
	viper.SetDefault("general.max_processing_time", 5*time.Minute)
	viper.SetDefault("server.address", ":10002")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.4)
	viper.SetDefault("llm.max_tokens", 2048)
	viper.SetDefault("llm.timeout", 45*time.Second)
	viper.SetDefault("search.provider", "brave")
	viper.SetDefault("search.max_results", 5)
	viper.SetDefault("search.timeout", 15*time.Second)
	viper.SetDefault("search.rate_per_second", 2.0)
	viper.SetDefault("search.burst", 4)
	viper.SetDefault("fetch.fetcher_type", "static")
	viper.SetDefault("fetch.timeout", 15*time.Second)
	viper.SetDefault("fetch.max_items_per_source", 10)
	viper.SetDefault("fetch.max_concurrent", 5)
	viper.SetDefault("fetch.max_chars", 20000)
	viper.SetDefault("fetch.dedup_window", 48*time.Hour)
	viper.SetDefault("fetch.refresh_cron", "0 */6 * * *")
	viper.SetDefault("pipeline.max_concurrent_queries", 4)
	viper.SetDefault("pipeline.premium_threshold", 0.8)
	viper.SetDefault("pipeline.rarity_threshold", 0.2)
	viper.SetDefault("pipeline.max_premium_insights", 5)
	viper.SetDefault("pipeline.max_cross_domain_insights", 3)
	viper.SetDefault("pipeline.max_contrarian_insights", 2)
	viper.SetDefault("pipeline.default_platforms", []string{"linkedin"})
	viper.SetDefault("feedback.stream", "prosora:performance")
	viper.SetDefault("feedback.group", "learners")
	viper.SetDefault("feedback.credibility_step", 0.02)
	viper.SetDefault("feedback.high_engagement_rate", 0.05)
	viper.SetDefault("feedback.high_total_engagement", 50)
	viper.SetDefault("feedback.medium_engagement_rate", 0.02)
	viper.SetDefault("feedback.medium_total_engagement", 20)
	viper.SetDefault("sources.file", "sources.yaml")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("PROSORA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	return &config
}
