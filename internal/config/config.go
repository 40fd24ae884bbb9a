package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for the application.
type Config struct {
	DatabasePath       string
	EmbeddingCachePath string

	GroqAPIKey   string
	GroqModel    string
	GroqStream   bool
	GeminiAPIKey string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	AdminTelegramID        int64

	// Remote plan service; when PlanAPIURL is empty plans live in SQLite.
	PlanAPIURL string
	PlanAPIKey string

	RedisURL       string
	PendingSwapTTL time.Duration

	GhostURL        string
	GhostContentKey string

	APIAddr string
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	cfg := &Config{
		DatabasePath:       getenv("DATABASE_PATH", "data/meal-plan.db"),
		EmbeddingCachePath: getenv("EMBEDDING_CACHE_PATH", "data/embeddings_cache.json"),
		GroqAPIKey:         os.Getenv("GROQ_API_KEY"),
		GroqModel:          getenv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL: os.Getenv("TELEGRAM_WEBHOOK_URL"),
		PlanAPIURL:         strings.TrimRight(os.Getenv("PLAN_API_URL"), "/"),
		PlanAPIKey:         os.Getenv("PLAN_API_KEY"),
		RedisURL:           os.Getenv("REDIS_URL"),
		GhostURL:           strings.TrimRight(os.Getenv("GHOST_API_URL"), "/"),
		GhostContentKey:    os.Getenv("GHOST_CONTENT_API_KEY"),
	}

	if v := os.Getenv("GROQ_STREAM"); v != "" {
		stream, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("GROQ_STREAM must be a boolean: %w", err)
		}
		cfg.GroqStream = stream
	}

	ids, err := parseIDList(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_ALLOWED_USER_IDS: %w", err)
	}
	cfg.TelegramAllowedUserIDs = ids

	if v := os.Getenv("ADMIN_TELEGRAM_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID must be numeric: %w", err)
		}
		cfg.AdminTelegramID = id
	}

	ttl := 900
	if v := os.Getenv("PENDING_SWAP_TTL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("PENDING_SWAP_TTL_SECONDS must be a positive integer")
		}
		ttl = n
	}
	cfg.PendingSwapTTL = time.Duration(ttl) * time.Second

	if cfg.PlanAPIURL != "" && cfg.PlanAPIKey == "" {
		return nil, fmt.Errorf("PLAN_API_KEY environment variable not set")
	}
	if cfg.GhostURL != "" && cfg.GhostContentKey == "" {
		return nil, fmt.Errorf("GHOST_CONTENT_API_KEY environment variable not set")
	}

	cfg.APIAddr = os.Getenv("API_ADDR")
	if cfg.APIAddr == "" {
		cfg.APIAddr = ":" + getenv("PORT", "8080")
	}

	return cfg, nil
}

// RequireAssistant checks that at least one language model is configured.
func (c *Config) RequireAssistant() error {
	if c.GroqAPIKey == "" && c.GeminiAPIKey == "" {
		return fmt.Errorf("GROQ_API_KEY environment variable not set")
	}
	return nil
}

// RequireTelegram checks the settings needed to run the bot.
func (c *Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	return nil
}

// IsAllowedUser reports whether a Telegram user may talk to the bot. An empty
// allow list admits everyone.
func (c *Config) IsAllowedUser(id int64) bool {
	if len(c.TelegramAllowedUserIDs) == 0 {
		return true
	}
	for _, allowed := range c.TelegramAllowedUserIDs {
		if allowed == id {
			return true
		}
	}
	return false
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
