package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the presentation pipeline service
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Redis      RedisConfig      `mapstructure:"redis"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Corpus     CorpusConfig     `mapstructure:"corpus"`
	Preview    PreviewConfig    `mapstructure:"preview"`
	Events     EventsConfig     `mapstructure:"events"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Listen       string `mapstructure:"listen"`
	ArtifactsDir string `mapstructure:"artifacts_dir"`
	Debug        bool   `mapstructure:"debug"`
	LogLevel     string `mapstructure:"log_level"`
}

// CheckpointConfig selects and configures the durable run store.
// Backend is "sqlite" (embedded, default) or "postgres" (client-server).
type CheckpointConfig struct {
	Backend    string         `mapstructure:"backend"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
}

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

// DSN builds a postgres connection string from URL or discrete fields.
func (p PostgresConfig) DSN() (string, error) {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (checkpoint.postgres.host/dbname or url)")
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

// RedisConfig contains the optional event fan-out bus settings.
// An empty URL selects the in-process no-op bus.
type RedisConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LLMConfig contains language-model provider configuration
type LLMConfig struct {
	Provider    string            `mapstructure:"provider"` // mock, openai, openrouter
	APIKey      string            `mapstructure:"api_key"`
	BaseURL     string            `mapstructure:"base_url"`
	Model       string            `mapstructure:"model"`
	Models      map[string]string `mapstructure:"models"` // per-agent overrides
	Temperature float64           `mapstructure:"temperature"`
	MaxTokens   int               `mapstructure:"max_tokens"`
	Timeout     time.Duration     `mapstructure:"timeout"`
}

// ModelFor returns the model configured for an agent, falling back to the default.
func (l LLMConfig) ModelFor(agent string) string {
	if m, ok := l.Models[agent]; ok && m != "" {
		return m
	}
	return l.Model
}

// CorpusConfig points at the local evidence corpus directory
type CorpusConfig struct {
	Dir string `mapstructure:"dir"`
}

// PreviewConfig controls slide preview image rendering
type PreviewConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Width   int  `mapstructure:"width"`
	Height  int  `mapstructure:"height"`
}

// EventsConfig bounds the in-memory event store
type EventsConfig struct {
	MaxPerRun int `mapstructure:"max_per_run"`
}

// LoadConfig loads config from file, environment, and defaults.
// Unlike a hard-required config file, missing files are tolerated so the
// service runs offline with the embedded sqlite backend and mock provider.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	v.SetDefault("general.listen", ":8000")
	v.SetDefault("general.artifacts_dir", "artifacts")
	v.SetDefault("general.log_level", "info")
	v.SetDefault("checkpoint.backend", "sqlite")
	v.SetDefault("checkpoint.sqlite_path", "checkpoints.db")
	v.SetDefault("checkpoint.postgres.timeout", 10*time.Second)
	v.SetDefault("redis.timeout", 5*time.Second)
	v.SetDefault("llm.provider", "mock")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("corpus.dir", "corpus")
	v.SetDefault("preview.enabled", true)
	v.SetDefault("preview.width", 1280)
	v.SetDefault("preview.height", 720)
	v.SetDefault("events.max_per_run", 500)

	if path == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("SLIDESMITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			if path != "" {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Checkpoint.Backend != "sqlite" && cfg.Checkpoint.Backend != "postgres" {
		return nil, fmt.Errorf("unknown checkpoint backend: %s", cfg.Checkpoint.Backend)
	}
	if cfg.Events.MaxPerRun <= 0 {
		cfg.Events.MaxPerRun = 500
	}
	return &cfg, nil
}
