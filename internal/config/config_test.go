package config

import (
	"os"
	"testing"
	"time"

	"github.com/rewired-gh/bookrisk/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: "https://risk.example.com/api"
  stream_base_url: "https://risk.example.com/api/stream"
  rate_limit: 2

ranking:
  field: book_risk_away
  descending: false
  signed: false
  window: 12h

monitor:
  poll_interval: 10m
  top_k: 5
  cooldown_multiplier: 3

telegram:
  bot_token: "test_token"
  chat_id: "test_chat_id"
  enabled: true

storage:
  backend: memory

logging:
  level: "debug"
  format: "text"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.BaseURL != "https://risk.example.com/api" {
		t.Errorf("Unexpected base url: %s", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("Unexpected default timeout: %v", cfg.API.Timeout)
	}
	if cfg.Ranking.Window != 12*time.Hour {
		t.Errorf("Unexpected ranking window: %v", cfg.Ranking.Window)
	}
	if cfg.Display.ExtremeOdds != 1000 {
		t.Errorf("Unexpected extreme odds default: %v", cfg.Display.ExtremeOdds)
	}
	want := models.SortState{Field: models.SortBookRiskAway}
	if got := cfg.Ranking.SortState(); got != want {
		t.Errorf("SortState() = %+v, want %+v", got, want)
	}
	if got := cfg.Monitor.Cooldown(); got != 30*time.Minute {
		t.Errorf("Cooldown() = %v, want 30m", got)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "telegram:\n  chat_id: \"file\"\n")
	t.Setenv("BOOKRISK_TELEGRAM_CHAT_ID", "env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Telegram.ChatID != "env" {
		t.Errorf("chat_id = %q, want env override", cfg.Telegram.ChatID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestAPIBase(t *testing.T) {
	c := APIConfig{BaseURL: "http://h/api/", StreamBaseURL: "http://h/api/stream"}
	tests := []struct {
		route string
		want  string
	}{
		{"/", "http://h/api"},
		{"/events/1.23", "http://h/api"},
		{"/stream", "http://h/api/stream"},
		{"/stream/events/1.23", "http://h/api/stream"},
	}
	for _, tt := range tests {
		if got := c.APIBase(tt.route); got != tt.want {
			t.Errorf("APIBase(%q) = %q, want %q", tt.route, got, tt.want)
		}
	}

	c.StreamBaseURL = ""
	if got := c.APIBase("/stream"); got != "http://h/api" {
		t.Errorf("APIBase without stream base = %q", got)
	}
}

func validConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "http://localhost:8000/api",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RateLimit:  5,
			Burst:      5,
		},
		Ranking: RankingConfig{
			Field:  "bookRiskHome",
			Window: 24 * time.Hour,
			Limit:  500,
		},
		Display: DisplayConfig{ExtremeOdds: 1000, StaleAfter: 2 * time.Hour},
		Monitor: MonitorConfig{
			Enabled:            true,
			PollInterval:       15 * time.Minute,
			TopK:               10,
			CooldownMultiplier: 4,
		},
		Server:  ServerConfig{Enabled: true, Addr: ":8080"},
		Storage: StorageConfig{Backend: "sqlite", MaxAlerts: 100},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing base url", func(c *Config) { c.API.BaseURL = "" }, true},
		{"rate limit without burst", func(c *Config) { c.API.Burst = 0 }, true},
		{"unlimited rate needs no burst", func(c *Config) { c.API.RateLimit = 0; c.API.Burst = 0 }, false},
		{"unknown sort field", func(c *Config) { c.Ranking.Field = "profit" }, true},
		{"window too short", func(c *Config) { c.Ranking.Window = time.Minute }, true},
		{"extreme odds at 1", func(c *Config) { c.Display.ExtremeOdds = 1 }, true},
		{"poll interval too short", func(c *Config) { c.Monitor.PollInterval = time.Second }, true},
		{"disabled monitor skips checks", func(c *Config) { c.Monitor = MonitorConfig{} }, false},
		{"missing telegram token when enabled", func(c *Config) { c.Telegram = TelegramConfig{Enabled: true, ChatID: "1"} }, true},
		{"redis without url", func(c *Config) { c.Storage.Backend = "redis" }, true},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
