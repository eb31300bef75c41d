package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/cloo-solutions/kbase/internal/chunker"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderHash   = "hash"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	// APITokens guards the HTTP API when set, as token:caller pairs.
	APITokens   []string `envconfig:"API_TOKENS"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS"`

	Store       string `envconfig:"STORE" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	Migrations  string `envconfig:"MIGRATIONS" default:"file://migrations"`

	S3Endpoint    string `envconfig:"S3_ENDPOINT"`
	S3AccessKey   string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey   string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket      string `envconfig:"S3_BUCKET" default:"kbase-documents"`
	S3Region      string `envconfig:"S3_REGION" default:"us-east-1"`
	S3InlineLimit int    `envconfig:"S3_INLINE_LIMIT" default:"65536"`

	EmbeddingProvider   string `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`
	GeminiAPIKey        string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	QueryCacheSize      int    `envconfig:"QUERY_CACHE_SIZE" default:"1024"`

	TokenEncoding      string `envconfig:"TOKEN_ENCODING" default:"cl100k_base"`
	ChunkMinTokens     int    `envconfig:"CHUNK_MIN_TOKENS" default:"500"`
	ChunkMaxTokens     int    `envconfig:"CHUNK_MAX_TOKENS" default:"1000"`
	ChunkOverlapTokens int    `envconfig:"CHUNK_OVERLAP_TOKENS" default:"150"`

	EmbedMaxAttempts int           `envconfig:"EMBED_MAX_ATTEMPTS" default:"5"`
	EmbedBaseDelay   time.Duration `envconfig:"EMBED_BASE_DELAY" default:"1s"`
	EmbedMaxDelay    time.Duration `envconfig:"EMBED_MAX_DELAY" default:"60s"`
	EmbedTimeout     time.Duration `envconfig:"EMBED_TIMEOUT" default:"30s"`
	EmbedConcurrency int           `envconfig:"EMBED_CONCURRENCY" default:"4"`
	ChunkConcurrency int           `envconfig:"CHUNK_CONCURRENCY" default:"2"`
	ChunkMaxAttempts int           `envconfig:"CHUNK_MAX_ATTEMPTS" default:"3"`
	PollInterval     time.Duration `envconfig:"POLL_INTERVAL" default:"2s"`
	StaleJobAfter    time.Duration `envconfig:"STALE_JOB_AFTER" default:"10m"`

	RetrieveMaxContexts int     `envconfig:"RETRIEVE_MAX_CONTEXTS" default:"6"`
	RetrieveLambda      float64 `envconfig:"RETRIEVE_LAMBDA" default:"0.65"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("KBASE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("KBASE_DATABASE_URL is required when KBASE_STORE=postgres")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	switch c.EmbeddingProvider {
	case ProviderOpenAI, ProviderGemini, ProviderHash:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.EmbeddingProvider)
	}

	if err := c.ChunkerConfig().Validate(); err != nil {
		return fmt.Errorf("invalid chunk bounds: %w", err)
	}
	if c.EmbedMaxAttempts < 1 || c.ChunkMaxAttempts < 1 {
		return errors.New("max attempts must be at least 1")
	}
	if c.EmbedBaseDelay <= 0 || c.EmbedMaxDelay < c.EmbedBaseDelay {
		return errors.New("embed delays must satisfy 0 < base <= max")
	}
	if c.RetrieveMaxContexts < 1 {
		return errors.New("retrieve max contexts must be at least 1")
	}
	if c.RetrieveLambda < 0 || c.RetrieveLambda > 1 {
		return fmt.Errorf("retrieve lambda %v must be within [0, 1]", c.RetrieveLambda)
	}
	return nil
}

// ChunkerConfig returns the chunk window bounds.
func (c *Config) ChunkerConfig() chunker.Config {
	return chunker.Config{
		MinTokens:     c.ChunkMinTokens,
		MaxTokens:     c.ChunkMaxTokens,
		OverlapTokens: c.ChunkOverlapTokens,
	}
}

// Tokens parses APITokens into a token to caller map. A bare token is named
// after its position.
func (c *Config) Tokens() map[string]string {
	if len(c.APITokens) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.APITokens))
	for i, entry := range c.APITokens {
		token, caller, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if token == "" {
			continue
		}
		if !ok || caller == "" {
			caller = fmt.Sprintf("token-%d", i+1)
		}
		out[token] = caller
	}
	return out
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// HasEmbeddings reports whether the configured provider has credentials.
func (c *Config) HasEmbeddings() bool {
	switch c.EmbeddingProvider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey != ""
	case ProviderGemini:
		return c.GeminiAPIKey != ""
	case ProviderHash:
		return true
	}
	return false
}
