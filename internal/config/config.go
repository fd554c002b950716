package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the analysis service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Records  RecordsConfig
	AI       AIConfig
	Jobs     JobsConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	LogLevel          slog.Level
	HTTPRatePerMinute int
}

type DatabaseConfig struct {
	URL             string
	MigrationsDir   string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// ConnectTimeout bounds the startup wait for the database.
	ConnectTimeout time.Duration
}

// RedisConfig is optional. An empty URL disables the cache; every cache-backed
// component then falls back to its in-process equivalent.
type RedisConfig struct {
	URL string
}

// RecordsConfig selects the source record reader. An empty BaseURL reads
// learning records from the service's own database.
type RecordsConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type AIConfig struct {
	Provider           string
	MockMode           bool
	InferenceTimeout   time.Duration
	DefaultTemperature float64
	DefaultMaxTokens   int
	// BreakerFailures consecutive failed calls open the circuit breaker for
	// BreakerCooldown. Zero disables the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration
	Ollama          OllamaConfig
	VLLM            VLLMConfig
	OpenAI          OpenAIConfig
	Anthropic       AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

// JobsConfig tunes the generation pipeline.
type JobsConfig struct {
	MaxConcurrency   int
	QueueSize        int
	RateLimitRPS     int
	DedupLockTTL     time.Duration
	RetryMaxAttempts int
	RetryBackoff     time.Duration
	CacheTTL         time.Duration
	UseQueue         bool
	QueueName        string
	JobTimeout       time.Duration
	SyncPathLock     bool
}

type AuthConfig struct {
	// APIKeyHash is the bcrypt hash of the shared service key. Empty disables auth.
	APIKeyHash string
}

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("AIANALYSIS_PORT", 8080),
			Env:               envString("AIANALYSIS_ENV", "development"),
			LogLevel:          envLogLevel("LOG_LEVEL", slog.LevelInfo),
			HTTPRatePerMinute: envInt("HTTP_RATE_LIMIT_PER_MIN", 120),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnectTimeout:  envDuration("DATABASE_CONNECT_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Records: RecordsConfig{
			BaseURL: strings.TrimRight(os.Getenv("RECORDS_BASE_URL"), "/"),
			Token:   os.Getenv("RECORDS_API_TOKEN"),
			Timeout: envDuration("RECORDS_TIMEOUT", 10*time.Second),
		},
		AI: AIConfig{
			Provider:           os.Getenv("AI_PROVIDER"),
			MockMode:           envBool("AI_MOCK_MODE", false),
			InferenceTimeout:   envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			DefaultTemperature: envFloat("AI_DEFAULT_TEMPERATURE", 0.2),
			DefaultMaxTokens:   envInt("AI_DEFAULT_MAX_TOKENS", 800),
			BreakerFailures:    envInt("AI_BREAKER_FAILURES", 5),
			BreakerCooldown:    envDurationSecs("AI_BREAKER_COOLDOWN_SECS", 30*time.Second),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
		Jobs: JobsConfig{
			MaxConcurrency:   envInt("AI_MAX_CONCURRENCY", 3),
			QueueSize:        envInt("AI_QUEUE_SIZE", 100),
			RateLimitRPS:     envInt("AI_RATE_LIMIT_RPS", 2),
			DedupLockTTL:     envDurationSecs("AI_DEDUP_LOCK_TTL", 300*time.Second),
			RetryMaxAttempts: envInt("AI_RETRY_MAX_ATTEMPTS", 2),
			RetryBackoff:     envFloatSecs("AI_RETRY_BACKOFF_SECONDS", 2*time.Second),
			CacheTTL:         envDurationSecs("AI_CACHE_TTL_SECONDS", 7*24*time.Hour),
			UseQueue:         envBool("AI_USE_QUEUE", envBool("AI_USE_RQ", false)),
			QueueName:        envString("AI_QUEUE_NAME", "ai-analysis"),
			JobTimeout:       envDurationSecs("AI_JOB_TIMEOUT_SECONDS", 900*time.Second),
			SyncPathLock:     envBool("AI_SYNC_PATH_LOCK", false),
		},
		Auth: AuthConfig{
			APIKeyHash: os.Getenv("SERVICE_API_KEY_HASH"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Records.BaseURL != "" &&
		!strings.HasPrefix(c.Records.BaseURL, "http://") && !strings.HasPrefix(c.Records.BaseURL, "https://") {
		return fmt.Errorf("RECORDS_BASE_URL must start with http:// or https://, got %q", c.Records.BaseURL)
	}

	if !c.AI.MockMode {
		if c.AI.Provider == "" {
			return fmt.Errorf("AI_PROVIDER is required unless AI_MOCK_MODE is enabled")
		}
		if !validProviders[c.AI.Provider] {
			return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
		}
		if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
		}
		if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
		}
		if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
			return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
		}
	}

	if c.Jobs.MaxConcurrency < 1 {
		return fmt.Errorf("AI_MAX_CONCURRENCY must be at least 1, got %d", c.Jobs.MaxConcurrency)
	}
	if c.Jobs.QueueSize < 1 {
		return fmt.Errorf("AI_QUEUE_SIZE must be at least 1, got %d", c.Jobs.QueueSize)
	}
	if c.Jobs.RateLimitRPS < 1 {
		return fmt.Errorf("AI_RATE_LIMIT_RPS must be at least 1, got %d", c.Jobs.RateLimitRPS)
	}
	if c.Jobs.RetryMaxAttempts < 0 {
		return fmt.Errorf("AI_RETRY_MAX_ATTEMPTS must not be negative, got %d", c.Jobs.RetryMaxAttempts)
	}
	if c.Jobs.DedupLockTTL <= 0 {
		return fmt.Errorf("AI_DEDUP_LOCK_TTL must be positive")
	}
	if c.Jobs.UseQueue && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required when AI_USE_QUEUE is enabled")
	}

	return nil
}

// loadEnvFiles reads ENV_FILE when set, otherwise .env if present. Variables
// already in the environment win.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

// envFloatSecs accepts fractional seconds such as "0.01".
func envFloatSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 || math.IsInf(secs, 0) || math.IsNaN(secs) {
		return defaultVal
	}
	return time.Duration(secs * float64(time.Second))
}

func envLogLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return lvl
}
