package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	// DevTokenSecret is refused when APP_ENV=production.
	DevTokenSecret = "dev-insecure-token-secret-change-me"

	minProductionSecretLen = 32
)

type Config struct {
	Env                string
	LogLevel           string
	HTTP               HTTPConfig
	DatabaseURL        string
	Redis              RedisConfig
	Auth               AuthConfig
	CORSAllowedOrigins []string
	FrontendDistDir    string
	AuditLogFile       string
	SigninStateFile    string
	Notion             UpstreamConfig
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	TokenSecret       string
	SessionTTL        time.Duration
	PruneInterval     time.Duration
	SessionStateFile  string
	UserStateFile     string
	SeedUsersFile     string
	GuardVerifyTokens bool
}

type UpstreamConfig struct {
	URL     string
	Timeout time.Duration
}

func (c Config) Production() bool {
	return c.Env == EnvProduction
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. An empty path tries ./.env and
// ignores its absence.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func Load() (Config, error) {
	cfg := Config{
		Env:      strings.ToLower(getEnv("APP_ENV", EnvDevelopment)),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:     time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SEC", 10)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SEC", 35)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("HTTP_SHUTDOWN_TIMEOUT_SEC", 20)) * time.Second,
		},
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			TokenSecret:       getEnv("AUTH_TOKEN_SECRET", DevTokenSecret),
			SessionTTL:        time.Duration(getEnvInt("AUTH_SESSION_TTL_SEC", 604800)) * time.Second,
			PruneInterval:     time.Duration(getEnvInt("AUTH_PRUNE_INTERVAL_SEC", 300)) * time.Second,
			SessionStateFile:  getEnv("AUTH_SESSION_STATE_FILE", "./data/auth_sessions.json"),
			UserStateFile:     getEnv("AUTH_USER_STATE_FILE", "./data/auth_users.json"),
			SeedUsersFile:     getEnv("AUTH_SEED_USERS_FILE", ""),
			GuardVerifyTokens: getEnvBool("AUTH_GUARD_VERIFY_TOKENS", false),
		},
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		FrontendDistDir:    getEnv("FRONTEND_DIST_DIR", "./web/dist"),
		AuditLogFile:       getEnv("AUDIT_LOG_FILE", "./data/audit.log"),
		SigninStateFile:    getEnv("SIGNIN_STATE_FILE", "./data/signin_tasks.json"),
		Notion: UpstreamConfig{
			URL:     getEnv("NOTION_SERVICE_URL", "http://localhost:3005"),
			Timeout: time.Duration(getEnvInt("NOTION_TIMEOUT_SEC", 30)) * time.Second,
		},
	}

	if cfg.Env != EnvProduction && cfg.Env != EnvDevelopment && cfg.Env != "test" {
		return Config{}, fmt.Errorf("APP_ENV must be development, test, or production")
	}
	if cfg.HTTP.Addr == "" {
		return Config{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.Auth.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("AUTH_SESSION_TTL_SEC must be > 0")
	}
	if cfg.Auth.PruneInterval <= 0 {
		return Config{}, fmt.Errorf("AUTH_PRUNE_INTERVAL_SEC must be > 0")
	}
	if cfg.Auth.TokenSecret == "" {
		return Config{}, fmt.Errorf("AUTH_TOKEN_SECRET must not be empty")
	}
	if cfg.Production() {
		if cfg.Auth.TokenSecret == DevTokenSecret {
			return Config{}, fmt.Errorf("AUTH_TOKEN_SECRET must be set in production")
		}
		if len(cfg.Auth.TokenSecret) < minProductionSecretLen {
			return Config{}, fmt.Errorf("AUTH_TOKEN_SECRET must be at least %d bytes in production", minProductionSecretLen)
		}
	}
	if cfg.Auth.SessionStateFile == "" {
		return Config{}, fmt.Errorf("AUTH_SESSION_STATE_FILE must not be empty")
	}
	if cfg.Auth.UserStateFile == "" {
		return Config{}, fmt.Errorf("AUTH_USER_STATE_FILE must not be empty")
	}
	if cfg.FrontendDistDir == "" {
		return Config{}, fmt.Errorf("FRONTEND_DIST_DIR must not be empty")
	}
	if cfg.SigninStateFile == "" {
		return Config{}, fmt.Errorf("SIGNIN_STATE_FILE must not be empty")
	}
	if cfg.Notion.URL == "" {
		return Config{}, fmt.Errorf("NOTION_SERVICE_URL must not be empty")
	}
	if cfg.Notion.Timeout <= 0 {
		return Config{}, fmt.Errorf("NOTION_TIMEOUT_SEC must be > 0")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
