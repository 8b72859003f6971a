package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/bookrisk/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Ranking  RankingConfig  `mapstructure:"ranking"`
	Display  DisplayConfig  `mapstructure:"display"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Server   ServerConfig   `mapstructure:"server"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// APIConfig holds the risk analytics backend configuration
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	StreamBaseURL string        `mapstructure:"stream_base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RateLimit     float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Burst         int           `mapstructure:"burst"`
}

// APIBase picks the backend base for a UI route. Routes under /stream read
// the streaming backend when one is configured.
func (c APIConfig) APIBase(route string) string {
	if strings.HasPrefix(route, "/stream") && c.StreamBaseURL != "" {
		return strings.TrimRight(c.StreamBaseURL, "/")
	}
	return strings.TrimRight(c.BaseURL, "/")
}

// RankingConfig holds the ranked list defaults and focus window
type RankingConfig struct {
	Field           string        `mapstructure:"field"`
	Descending      bool          `mapstructure:"descending"`
	Signed          bool          `mapstructure:"signed"`
	RequireBookRisk bool          `mapstructure:"require_book_risk"`
	ExcludeStale    bool          `mapstructure:"exclude_stale"`
	Lookback        time.Duration `mapstructure:"lookback"`
	Window          time.Duration `mapstructure:"window"`
	IncludeInPlay   bool          `mapstructure:"include_in_play"`
	Limit           int           `mapstructure:"limit"`
}

// SortState returns the configured default sort state.
func (c RankingConfig) SortState() models.SortState {
	field, ok := models.ParseSortField(c.Field)
	if !ok {
		field = models.DefaultSortState().Field
	}
	return models.SortState{Field: field, Descending: c.Descending, Signed: c.Signed}
}

// DisplayConfig holds formatting thresholds
type DisplayConfig struct {
	ExtremeOdds float64       `mapstructure:"extreme_odds"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
}

// MonitorConfig holds the Book Risk digest configuration
type MonitorConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	TopK               int           `mapstructure:"top_k"`
	CooldownMultiplier int           `mapstructure:"cooldown_multiplier"`
}

// ServerConfig holds the HTTP view server configuration
type ServerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken   string `mapstructure:"bot_token"`
	ChatID     string `mapstructure:"chat_id"`
	Enabled    bool   `mapstructure:"enabled"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	Backend     string `mapstructure:"backend"` // sqlite, redis, memory
	DBPath      string `mapstructure:"db_path"`
	RedisURL    string `mapstructure:"redis_url"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	MaxAlerts   int    `mapstructure:"max_alerts"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Load reads configuration from file and environment variables.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	// BOOKRISK_TELEGRAM_BOT_TOKEN overrides telegram.bot_token
	v.SetEnvPrefix("BOOKRISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000/api")
	v.SetDefault("api.stream_base_url", "http://localhost:8000/api/stream")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.retry_delay", "1s")
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("api.burst", 5)

	def := models.DefaultSortState()
	v.SetDefault("ranking.field", string(def.Field))
	v.SetDefault("ranking.descending", def.Descending)
	v.SetDefault("ranking.signed", def.Signed)
	v.SetDefault("ranking.require_book_risk", true)
	v.SetDefault("ranking.exclude_stale", false)
	v.SetDefault("ranking.lookback", "2h")
	v.SetDefault("ranking.window", "24h")
	v.SetDefault("ranking.include_in_play", true)
	v.SetDefault("ranking.limit", 500)

	v.SetDefault("display.extreme_odds", 1000.0)
	v.SetDefault("display.stale_after", "120m")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.poll_interval", "15m")
	v.SetDefault("monitor.top_k", 10)
	v.SetDefault("monitor.cooldown_multiplier", 4)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("telegram.max_retries", 3)

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.redis_prefix", "bookrisk:")
	v.SetDefault("storage.max_alerts", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_age_days", 14)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must not be negative")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}
	if c.API.RateLimit > 0 && c.API.Burst < 1 {
		return fmt.Errorf("api.burst must be at least 1 when rate_limit is set")
	}

	if _, ok := models.ParseSortField(c.Ranking.Field); !ok {
		return fmt.Errorf("ranking.field must be one of: %s", models.SortFieldList())
	}
	if c.Ranking.Lookback < 0 {
		return fmt.Errorf("ranking.lookback must not be negative")
	}
	if c.Ranking.Window < 15*time.Minute {
		return fmt.Errorf("ranking.window must be at least 15 minutes")
	}
	if c.Ranking.Limit < 1 || c.Ranking.Limit > 5000 {
		return fmt.Errorf("ranking.limit must be between 1 and 5000")
	}

	if c.Display.ExtremeOdds <= 1.0 {
		return fmt.Errorf("display.extreme_odds must be greater than 1.0")
	}
	if c.Display.StaleAfter <= 0 {
		return fmt.Errorf("display.stale_after must be positive")
	}

	if c.Monitor.Enabled {
		if c.Monitor.PollInterval < 1*time.Minute {
			return fmt.Errorf("monitor.poll_interval must be at least 1 minute")
		}
		if c.Monitor.TopK < 1 {
			return fmt.Errorf("monitor.top_k must be at least 1")
		}
		if c.Monitor.CooldownMultiplier < 1 {
			return fmt.Errorf("monitor.cooldown_multiplier must be at least 1")
		}
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when server is enabled")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	switch c.Storage.Backend {
	case "sqlite", "memory":
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required when storage.backend is redis")
		}
	default:
		return fmt.Errorf("storage.backend must be one of: sqlite, redis, memory")
	}
	if c.Storage.MaxAlerts < 1 {
		return fmt.Errorf("storage.max_alerts must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Cooldown is how long a notified market is suppressed.
func (c MonitorConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMultiplier) * c.PollInterval
}
