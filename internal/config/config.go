package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config store backends
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"

	DispatchDiscord = "discord"
	DispatchLog     = "log"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Discord
	DiscordToken   string
	DiscordGuildID string // empty registers commands globally

	// Notion
	NotionToken      string
	NotionBaseURL    string
	NotionAPIVersion string

	// Channel config storage
	ConfigBackend string
	ConfigPath    string

	// Webhook intake
	WebhookQueueSize int
	WebhookRateLimit int // requests per minute per client IP, 0 disables
	DispatchMode     string

	// Interactive sessions
	WizardTimeout time.Duration

	// Database
	DatabaseURL string
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// Redis config, empty host and URL disable it
	RedisURL      string
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// AI / OpenAI config
	AIEnabled    bool   // Enable thread summaries on /card
	OpenAIAPIKey string // OpenAI API key
	OpenAIModel  string // Model to use (default: gpt-4o-mini)
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first when
// present; variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		NotionBaseURL:    "https://api.notion.com",
		NotionAPIVersion: "2022-06-28",

		ConfigBackend: BackendFile,
		ConfigPath:    "configs.json",

		WebhookQueueSize: 100,
		DispatchMode:     DispatchDiscord,
		WizardTimeout:    300 * time.Second,

		// Local postgres defaults
		DBHost:    "localhost",
		DBPort:    5432,
		DBUser:    "postgres",
		DBName:    "cardbot",
		DBSSLMode: "disable",

		RedisPort: 6379,

		OpenAIModel: "gpt-4o-mini",
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Discord
	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.DiscordGuildID = os.Getenv("DISCORD_GUILD_ID")

	// Notion
	cfg.NotionToken = os.Getenv("NOTION_TOKEN")

	if url := os.Getenv("NOTION_BASE_URL"); url != "" {
		cfg.NotionBaseURL = url
	}

	if version := os.Getenv("NOTION_API_VERSION"); version != "" {
		cfg.NotionAPIVersion = version
	}

	// Storage
	if mode := os.Getenv("DISPATCH_MODE"); mode != "" {
		cfg.DispatchMode = mode
	}

	if backend := os.Getenv("CONFIG_BACKEND"); backend != "" {
		cfg.ConfigBackend = backend
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		cfg.ConfigPath = path
	}

	// Webhook intake
	if size := os.Getenv("WEBHOOK_QUEUE_SIZE"); size != "" {
		s, err := strconv.Atoi(size)
		if err != nil {
			return nil, fmt.Errorf("invalid WEBHOOK_QUEUE_SIZE: %w", err)
		}
		cfg.WebhookQueueSize = s
	}

	if limit := os.Getenv("WEBHOOK_RATE_LIMIT"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid WEBHOOK_RATE_LIMIT: %w", err)
		}
		cfg.WebhookRateLimit = l
	}

	if timeout := os.Getenv("WIZARD_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid WIZARD_TIMEOUT: %w", err)
		}
		cfg.WizardTimeout = time.Duration(t) * time.Second
	}

	// Database config
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.RedisHost = os.Getenv("REDIS_HOST")

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// AI config
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAIAPIKey = key
		cfg.AIEnabled = true
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.OpenAIModel = model
	}

	return cfg, nil
}

// Validate checks the settings the bot cannot start without.
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is required")
	}
	if c.NotionToken == "" {
		return errors.New("NOTION_TOKEN is required")
	}
	switch c.ConfigBackend {
	case BackendFile, BackendPostgres:
	default:
		return fmt.Errorf("invalid CONFIG_BACKEND %q: must be %s or %s", c.ConfigBackend, BackendFile, BackendPostgres)
	}
	switch c.DispatchMode {
	case DispatchDiscord, DispatchLog:
	default:
		return fmt.Errorf("invalid DISPATCH_MODE %q: must be %s or %s", c.DispatchMode, DispatchDiscord, DispatchLog)
	}
	if c.WebhookQueueSize <= 0 {
		return fmt.Errorf("WEBHOOK_QUEUE_SIZE must be positive, got %d", c.WebhookQueueSize)
	}
	if c.WizardTimeout <= 0 {
		return fmt.Errorf("WIZARD_TIMEOUT must be positive, got %s", c.WizardTimeout)
	}
	return nil
}
