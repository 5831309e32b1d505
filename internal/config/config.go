package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// FallbackPolicy controls when keyword search runs after vector search.
type FallbackPolicy string

const (
	// FallbackOnEmpty runs keyword search only when vector search returned
	// nothing. This is the conservative default.
	FallbackOnEmpty FallbackPolicy = "empty"
	// FallbackOnUnderfill runs keyword search whenever vector search
	// returned fewer results than the requested limit.
	FallbackOnUnderfill FallbackPolicy = "underfill"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// OpenAI-compatible AI endpoint; production deployments point this at
	// DashScope's compatible mode.
	AIAPIKey  string `envconfig:"AI_API_KEY"`
	AIBaseURL string `envconfig:"AI_BASE_URL" default:"https://dashscope.aliyuncs.com/compatible-mode/v1"`

	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-v4"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1024"`
	ChatModel           string `envconfig:"CHAT_MODEL" default:"qwen-max"`

	// Retrieval defaults. The /search endpoint uses SearchThreshold; the
	// chat pipeline uses the stricter ChatSearchThreshold with ChatSearchLimit.
	SearchThreshold     float64 `envconfig:"SEARCH_THRESHOLD" default:"0.3"`
	SearchLimit         int     `envconfig:"SEARCH_LIMIT" default:"5"`
	ChatSearchThreshold float64 `envconfig:"CHAT_SEARCH_THRESHOLD" default:"0.75"`
	ChatSearchLimit     int     `envconfig:"CHAT_SEARCH_LIMIT" default:"3"`

	FallbackPolicy string `envconfig:"FALLBACK_POLICY" default:"empty"`

	AdminToken string `envconfig:"ADMIN_TOKEN"`

	BackfillInterval  time.Duration `envconfig:"BACKFILL_INTERVAL" default:"0"`
	BackfillBatchSize int           `envconfig:"BACKFILL_BATCH_SIZE" default:"10"`
	// Pacing between embedding calls during backfill, to respect upstream
	// rate limits.
	BackfillPaceDelay time.Duration `envconfig:"BACKFILL_PACE_DELAY" default:"200ms"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DIVINER", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasAI() bool {
	return c.AIAPIKey != ""
}

func (c *Config) HasAdminToken() bool {
	return c.AdminToken != ""
}

// Fallback returns the parsed fallback policy, defaulting to FallbackOnEmpty
// for unknown values.
func (c *Config) Fallback() FallbackPolicy {
	if FallbackPolicy(c.FallbackPolicy) == FallbackOnUnderfill {
		return FallbackOnUnderfill
	}
	return FallbackOnEmpty
}
