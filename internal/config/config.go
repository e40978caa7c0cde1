package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Roblox  RobloxConfig  `yaml:"roblox"`
	LLM     LLMConfig     `yaml:"llm"`
	Game    GameConfig    `yaml:"game"`
	Session SessionConfig `yaml:"session"`
	Kafka   KafkaConfig   `yaml:"kafka"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" env:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RobloxConfig holds the Roblox API endpoints and the profile cache budget.
// BadgePageSize, MaxBadgePages and BadgePageTimeout bound the badge scan;
// the reported badge count is a lower bound once the budget is hit.
type RobloxConfig struct {
	UsersBaseURL     string        `yaml:"users_base_url" env:"ROBLOX_USERS_URL"`
	BadgesBaseURL    string        `yaml:"badges_base_url" env:"ROBLOX_BADGES_URL"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	BadgePageSize    int           `yaml:"badge_page_size"`
	MaxBadgePages    int           `yaml:"max_badge_pages"`
	BadgePageTimeout time.Duration `yaml:"badge_page_timeout"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries  int           `yaml:"cache_max_entries"`
}

// LLMConfig selects and configures the language model provider
type LLMConfig struct {
	Provider     string        `yaml:"provider" env:"LLM_PROVIDER"`
	OpenAIKey    string        `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	OpenAIURL    string        `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
	GeminiKey    string        `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	ChatModel    string        `yaml:"chat_model" env:"LLM_CHAT_MODEL"`
	MemeModel    string        `yaml:"meme_model"`
	ImageModel   string        `yaml:"image_model"`
	ImageSize    string        `yaml:"image_size"`
	Timeout      time.Duration `yaml:"timeout"`
	ImageTimeout time.Duration `yaml:"image_timeout"`
}

// GameConfig points at the base game document
type GameConfig struct {
	// BasePath overrides the embedded dino game when set.
	BasePath string `yaml:"base_path" env:"GAME_BASE_PATH"`
}

// SessionConfig bounds the in-memory session store
type SessionConfig struct {
	MaxSessions   int           `yaml:"max_sessions"`
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepEnabled  bool          `yaml:"sweep_enabled"`
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	Topic        string        `yaml:"topic"`
	GroupID      string        `yaml:"group_id"`
	Enabled      bool          `yaml:"enabled" env:"KAFKA_ENABLED"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// Load reads configuration from a YAML file, then applies .env and
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables
		data = []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		cfg.Session.SweepEnabled = true
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// image generation routinely takes longer than the default
		c.Server.WriteTimeout = 90 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Roblox defaults
	if c.Roblox.UsersBaseURL == "" {
		c.Roblox.UsersBaseURL = "https://users.roblox.com"
	}
	if c.Roblox.BadgesBaseURL == "" {
		c.Roblox.BadgesBaseURL = "https://badges.roblox.com"
	}
	if c.Roblox.RequestTimeout == 0 {
		c.Roblox.RequestTimeout = 10 * time.Second
	}
	if c.Roblox.BadgePageSize == 0 {
		c.Roblox.BadgePageSize = 100
	}
	if c.Roblox.MaxBadgePages == 0 {
		c.Roblox.MaxBadgePages = 3
	}
	if c.Roblox.BadgePageTimeout == 0 {
		c.Roblox.BadgePageTimeout = 5 * time.Second
	}
	if c.Roblox.CacheTTL == 0 {
		c.Roblox.CacheTTL = 60 * time.Second
	}
	if c.Roblox.CacheMaxEntries == 0 {
		c.Roblox.CacheMaxEntries = 100
	}

	// LLM defaults
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAIURL == "" {
		c.LLM.OpenAIURL = "https://api.openai.com"
	}
	if c.LLM.ChatModel == "" {
		if c.LLM.Provider == "gemini" {
			c.LLM.ChatModel = "gemini-1.5-flash"
		} else {
			c.LLM.ChatModel = "gpt-4o-mini"
		}
	}
	if c.LLM.MemeModel == "" {
		c.LLM.MemeModel = c.LLM.ChatModel
	}
	if c.LLM.ImageModel == "" {
		c.LLM.ImageModel = "dall-e-3"
	}
	if c.LLM.ImageSize == "" {
		c.LLM.ImageSize = "1024x1024"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 30 * time.Second
	}
	if c.LLM.ImageTimeout == 0 {
		c.LLM.ImageTimeout = 60 * time.Second
	}

	// Session defaults
	if c.Session.MaxSessions == 0 {
		c.Session.MaxSessions = 1000
	}
	if c.Session.IdleTTL == 0 {
		c.Session.IdleTTL = 2 * time.Hour
	}
	if c.Session.SweepInterval == 0 {
		c.Session.SweepInterval = 10 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "game-edit-intents"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "game-edit-consumer"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 50
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Session.SweepEnabled = true
	return cfg
}
