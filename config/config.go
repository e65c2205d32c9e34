// Package config holds all configuration for the sentiment service, loaded
// via viper from a yaml file with FINSENT_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	Server      ServerConfig      `mapstructure:"server"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Classifier  ClassifierConfig  `mapstructure:"classifier"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Sources     SourcesConfig     `mapstructure:"sources"`
	Storage     StorageConfig     `mapstructure:"storage"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address            string   `mapstructure:"address"`
	JWTSecret          string   `mapstructure:"jwt_secret"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// PipelineConfig bounds the preprocessing pipeline.
type PipelineConfig struct {
	MinTextLength int `mapstructure:"min_text_length"`
	MaxTextLength int `mapstructure:"max_text_length"`
	MaxUploadRows int `mapstructure:"max_upload_rows"`
}

func (p PipelineConfig) Validate() error {
	if p.MinTextLength < 1 {
		return fmt.Errorf("pipeline.min_text_length must be >= 1")
	}
	if p.MaxTextLength < 1 {
		return fmt.Errorf("pipeline.max_text_length must be >= 1")
	}
	if p.MaxUploadRows < 1 {
		return fmt.Errorf("pipeline.max_upload_rows must be >= 1")
	}
	return nil
}

// ClassifierConfig selects and tunes the classifier adapter.
type ClassifierConfig struct {
	Backend   string        `mapstructure:"backend"` // mock or remote
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	BatchSize int           `mapstructure:"batch_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"` // 0 disables the redis cache
}

func (c ClassifierConfig) Validate() error {
	switch c.Backend {
	case "mock":
	case "remote":
		if strings.TrimSpace(c.BaseURL) == "" {
			return fmt.Errorf("classifier.base_url is required for the remote backend")
		}
	default:
		return fmt.Errorf("classifier.backend must be mock or remote, got %q", c.Backend)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("classifier.batch_size must be >= 1")
	}
	return nil
}

// AggregationConfig holds dashboard query defaults.
type AggregationConfig struct {
	DefaultWindow time.Duration `mapstructure:"default_window"`
	TopN          int           `mapstructure:"top_n"`
}

func (a AggregationConfig) Validate() error {
	if a.DefaultWindow <= 0 {
		return fmt.Errorf("aggregation.default_window must be positive")
	}
	if a.TopN < 1 {
		return fmt.Errorf("aggregation.top_n must be >= 1")
	}
	return nil
}

// SourcesConfig contains ingestion source settings.
type SourcesConfig struct {
	Enabled  []string     `mapstructure:"enabled"`
	PollCron string       `mapstructure:"poll_cron"`
	News     NewsConfig   `mapstructure:"news"`
	Reddit   RedditConfig `mapstructure:"reddit"`
}

// NewsConfig contains NewsAPI settings.
type NewsConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Endpoint      string `mapstructure:"endpoint"`
	FetchFullText bool   `mapstructure:"fetch_full_text"`
}

// RedditConfig contains the reddit listing client settings.
type RedditConfig struct {
	Endpoint   string   `mapstructure:"endpoint"`
	UserAgent  string   `mapstructure:"user_agent"`
	Subreddits []string `mapstructure:"subreddits"`
}

// EnabledSources returns the requested sources whose credentials are present.
// Requested-but-unusable sources are disabled with a warning, never an error,
// so a missing key degrades the deployment instead of stopping it.
func (s SourcesConfig) EnabledSources(logger *log.Logger) []string {
	var enabled []string
	for _, name := range s.Enabled {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "news":
			if s.News.APIKey == "" {
				logger.Printf("news source requested but sources.news.api_key is missing; disabling")
				continue
			}
			enabled = append(enabled, "news")
		case "reddit":
			if s.Reddit.UserAgent == "" {
				logger.Printf("reddit source requested but sources.reddit.user_agent is missing; disabling")
				continue
			}
			enabled = append(enabled, "reddit")
		case "":
		default:
			logger.Printf("unknown source %q requested; ignoring", name)
		}
	}
	return enabled
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig describes the documents database.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN assembles the postgres connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig describes the cache/lock redis instance.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port, empty when redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if err := c.Classifier.Validate(); err != nil {
		return err
	}
	return c.Aggregation.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.cors_allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("pipeline.min_text_length", 1)
	v.SetDefault("pipeline.max_text_length", 5000)
	v.SetDefault("pipeline.max_upload_rows", 10000)
	v.SetDefault("classifier.backend", "mock")
	v.SetDefault("classifier.timeout", 30*time.Second)
	v.SetDefault("classifier.batch_size", 16)
	v.SetDefault("classifier.cache_ttl", time.Duration(0))
	v.SetDefault("aggregation.default_window", 24*time.Hour)
	v.SetDefault("aggregation.top_n", 10)
	v.SetDefault("sources.enabled", []string{"news", "reddit"})
	v.SetDefault("sources.poll_cron", "@hourly")
	v.SetDefault("sources.news.endpoint", "https://newsapi.org/v2/everything")
	v.SetDefault("sources.reddit.endpoint", "https://www.reddit.com")
	v.SetDefault("sources.reddit.subreddits", []string{"stocks", "wallstreetbets"})
	v.SetDefault("storage.postgres.sslmode", "disable")
}

// LoadConfig reads configuration from path (or the default search locations
// when path is empty) and validates it. A missing config file is not an
// error: defaults plus environment variables carry a full mock deployment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("FINSENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
