package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Roster   RosterConfig
	Proxy    ProxyConfig
	Redis    RedisConfig
	Auth     AuthConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Sessions SessionConfig
	Cards    CardsConfig
}

// RosterConfig points at the upstream users-list API.
type RosterConfig struct {
	BaseURL        string
	Token          string
	CacheTTL       time.Duration
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// ProxyConfig governs the same-origin image proxy.
type ProxyConfig struct {
	PrimaryHost    string
	SecondaryHost  string
	TokenHeader    string
	FetchTimeout   time.Duration
	MaxBytes       int64
	DefaultQuality int
	CacheTTL       time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig configures the operator login gate.
type AuthConfig struct {
	Enabled      bool
	PasswordHash string
	Password     string
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SessionConfig bounds the lifetime of volatile selection sessions.
type SessionConfig struct {
	TTL time.Duration
}

// CardsConfig tunes card rendering and asynchronous batches.
type CardsConfig struct {
	LayoutFile        string
	FilenamePrefix    string
	PhotoConcurrency  int
	PhotoTimeout      time.Duration
	PhotoSize         int
	AsyncEnabled      bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Roster = RosterConfig{
		BaseURL:        strings.TrimRight(v.GetString("ROSTER_API_URL"), "/"),
		Token:          v.GetString("ROSTER_API_TOKEN"),
		CacheTTL:       parseDuration(v.GetString("ROSTER_CACHE_TTL"), 10*time.Minute),
		Timeout:        parseDuration(v.GetString("ROSTER_TIMEOUT"), 30*time.Second),
		RetryAttempts:  v.GetInt("ROSTER_RETRY_ATTEMPTS"),
		RetryBaseDelay: parseDuration(v.GetString("ROSTER_RETRY_BASE_DELAY"), time.Second),
		RetryMaxDelay:  parseDuration(v.GetString("ROSTER_RETRY_MAX_DELAY"), 30*time.Second),
	}

	maxBytes := v.GetInt64("PROXY_MAX_BYTES")
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	cfg.Proxy = ProxyConfig{
		PrimaryHost:    strings.ToLower(v.GetString("PROXY_PRIMARY_HOST")),
		SecondaryHost:  strings.ToLower(v.GetString("PROXY_SECONDARY_HOST")),
		TokenHeader:    v.GetString("PROXY_TOKEN_HEADER"),
		FetchTimeout:   parseDuration(v.GetString("PROXY_FETCH_TIMEOUT"), 15*time.Second),
		MaxBytes:       maxBytes,
		DefaultQuality: v.GetInt("PROXY_DEFAULT_QUALITY"),
		CacheTTL:       parseDuration(v.GetString("PROXY_CACHE_TTL"), 24*time.Hour),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Auth = AuthConfig{
		Enabled:      v.GetBool("AUTH_ENABLED"),
		PasswordHash: v.GetString("AUTH_PASSWORD_HASH"),
		Password:     v.GetString("AUTH_PASSWORD"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sessions = SessionConfig{
		TTL: parseDuration(v.GetString("SESSION_TTL"), 12*time.Hour),
	}

	cfg.Cards = CardsConfig{
		LayoutFile:        v.GetString("CARDS_LAYOUT_FILE"),
		FilenamePrefix:    v.GetString("CARDS_FILENAME_PREFIX"),
		PhotoConcurrency:  v.GetInt("CARDS_PHOTO_CONCURRENCY"),
		PhotoTimeout:      parseDuration(v.GetString("CARDS_PHOTO_TIMEOUT"), 20*time.Second),
		PhotoSize:         v.GetInt("CARDS_PHOTO_SIZE"),
		AsyncEnabled:      v.GetBool("CARDS_ASYNC_ENABLED"),
		StorageDir:        v.GetString("CARDS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("CARDS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("CARDS_SIGNED_URL_TTL"), time.Hour),
		CleanupInterval:   parseDuration(v.GetString("CARDS_CLEANUP_INTERVAL"), 15*time.Minute),
		WorkerConcurrency: v.GetInt("CARDS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("CARDS_WORKER_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("ROSTER_API_URL", "")
	v.SetDefault("ROSTER_API_TOKEN", "")
	v.SetDefault("ROSTER_CACHE_TTL", "10m")
	v.SetDefault("ROSTER_TIMEOUT", "30s")
	v.SetDefault("ROSTER_RETRY_ATTEMPTS", 3)
	v.SetDefault("ROSTER_RETRY_BASE_DELAY", "1s")
	v.SetDefault("ROSTER_RETRY_MAX_DELAY", "30s")

	v.SetDefault("PROXY_PRIMARY_HOST", "student-admin.harbour.space")
	v.SetDefault("PROXY_SECONDARY_HOST", "digitaloceanspaces.com")
	v.SetDefault("PROXY_TOKEN_HEADER", "Access-Token")
	v.SetDefault("PROXY_FETCH_TIMEOUT", "15s")
	v.SetDefault("PROXY_MAX_BYTES", 10*1024*1024)
	v.SetDefault("PROXY_DEFAULT_QUALITY", 80)
	v.SetDefault("PROXY_CACHE_TTL", "24h")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_ENABLED", true)
	v.SetDefault("AUTH_PASSWORD_HASH", "")
	v.SetDefault("AUTH_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SESSION_TTL", "12h")

	v.SetDefault("CARDS_LAYOUT_FILE", "")
	v.SetDefault("CARDS_FILENAME_PREFIX", "Harbour_Space")
	v.SetDefault("CARDS_PHOTO_CONCURRENCY", 8)
	v.SetDefault("CARDS_PHOTO_TIMEOUT", "20s")
	v.SetDefault("CARDS_PHOTO_SIZE", 600)
	v.SetDefault("CARDS_ASYNC_ENABLED", true)
	v.SetDefault("CARDS_STORAGE_DIR", "./exports")
	v.SetDefault("CARDS_SIGNED_URL_SECRET", "dev_cards_secret")
	v.SetDefault("CARDS_SIGNED_URL_TTL", "1h")
	v.SetDefault("CARDS_CLEANUP_INTERVAL", "15m")
	v.SetDefault("CARDS_WORKER_CONCURRENCY", 2)
	v.SetDefault("CARDS_WORKER_RETRIES", 2)
}

// isMissingFile reports a missing .env, which viper surfaces as a plain fs error
// when SetConfigFile is used instead of a search path.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory") ||
		strings.Contains(err.Error(), "cannot find the file")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
