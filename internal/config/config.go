package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Storage    StorageConfig
	TTS        TTSConfig
	Summary    SummaryConfig
	Generation GenerationSettings
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type StorageConfig struct {
	SupabaseURL string
	SupabaseKey string
	Bucket      string
	AudioPrefix string
}

type TTSConfig struct {
	OpenAIKey       string
	OpenAIBaseURL   string
	OpenAIModel     string // default: "tts-1"
	ElevenLabsKey   string
	ElevenLabsURL   string
	ElevenLabsModel string // default: "eleven_multilingual_v2"
	RequestTimeout  time.Duration
}

type SummaryConfig struct {
	Enabled      bool
	AnthropicKey string
	Model        string // default: "claude-3-5-haiku-latest"
	MaxTokens    int
}

// GenerationSettings drives the auto-generation queue. It is read once at
// startup and passed by value into the scheduler and pipeline; nothing
// reads it ambiently after that.
type GenerationSettings struct {
	AutoGenerateEnabled bool
	AutoGenerateDelay   time.Duration // wait after publish before the first tick
	RateLimit           time.Duration // minimum spacing between generations, clamped [30s,300s]
	MaxPerHour          int           // rolling-hour cap, clamped [1,120]
	DisabledCategoryIDs map[int64]bool
	DefaultProvider     string // "openai" or "elevenlabs"
	DefaultMethod       string // "single" or "chunked"
	DefaultVoice        string
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	ttsTimeout, err := getEnvInt("TTS_REQUEST_TIMEOUT_SECONDS", 45)
	if err != nil {
		return nil, fmt.Errorf("invalid TTS_REQUEST_TIMEOUT_SECONDS: %w", err)
	}

	summaryMaxTokens, err := getEnvInt("SUMMARY_MAX_TOKENS", 300)
	if err != nil {
		return nil, fmt.Errorf("invalid SUMMARY_MAX_TOKENS: %w", err)
	}

	gen, err := loadGeneration()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Storage: StorageConfig{
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:      getEnv("STORAGE_BUCKET", "audio"),
			AudioPrefix: getEnv("STORAGE_AUDIO_PREFIX", "tts/"),
		},
		TTS: TTSConfig{
			OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:   getEnv("TTS_OPENAI_BASE_URL", ""),
			OpenAIModel:     getEnv("TTS_OPENAI_MODEL", "tts-1"),
			ElevenLabsKey:   getEnv("ELEVENLABS_API_KEY", ""),
			ElevenLabsURL:   getEnv("ELEVENLABS_BASE_URL", ""),
			ElevenLabsModel: getEnv("ELEVENLABS_MODEL", "eleven_multilingual_v2"),
			RequestTimeout:  time.Duration(ttsTimeout) * time.Second,
		},
		Summary: SummaryConfig{
			Enabled:      getEnvBool("SUMMARY_ENABLED", false),
			AnthropicKey: getEnv("ANTHROPIC_API_KEY", ""),
			Model:        getEnv("SUMMARY_MODEL", "claude-3-5-haiku-latest"),
			MaxTokens:    summaryMaxTokens,
		},
		Generation: gen,
	}

	return cfg, nil
}

func loadGeneration() (GenerationSettings, error) {
	delay, err := getEnvInt("AUTO_GENERATE_DELAY_SECONDS", 120)
	if err != nil {
		return GenerationSettings{}, fmt.Errorf("invalid AUTO_GENERATE_DELAY_SECONDS: %w", err)
	}

	rateLimit, err := getEnvInt("RATE_LIMIT_SECONDS", 60)
	if err != nil {
		return GenerationSettings{}, fmt.Errorf("invalid RATE_LIMIT_SECONDS: %w", err)
	}

	maxPerHour, err := getEnvInt("MAX_PER_HOUR", 30)
	if err != nil {
		return GenerationSettings{}, fmt.Errorf("invalid MAX_PER_HOUR: %w", err)
	}

	disabled, err := parseIDSet(getEnv("DISABLED_CATEGORY_IDS", ""))
	if err != nil {
		return GenerationSettings{}, fmt.Errorf("invalid DISABLED_CATEGORY_IDS: %w", err)
	}

	return GenerationSettings{
		AutoGenerateEnabled: getEnvBool("AUTO_GENERATE_ENABLED", true),
		AutoGenerateDelay:   time.Duration(delay) * time.Second,
		RateLimit:           time.Duration(Clamp(rateLimit, 30, 300)) * time.Second,
		MaxPerHour:          Clamp(maxPerHour, 1, 120),
		DisabledCategoryIDs: disabled,
		DefaultProvider:     getEnv("DEFAULT_TTS_PROVIDER", "openai"),
		DefaultMethod:       getEnv("DEFAULT_GENERATION_METHOD", "single"),
		DefaultVoice:        getEnv("DEFAULT_TTS_VOICE", "alloy"),
	}, nil
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func parseIDSet(s string) (map[int64]bool, error) {
	out := make(map[int64]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}
