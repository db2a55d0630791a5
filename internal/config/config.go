package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver          string
	DBUser            string
	DBPassword        string
	DBName            string
	DBHost            string
	DBPort            string
	SQLitePath        string
	RedisEnabled      bool
	RedisHost         string
	RedisPort         string
	RedisPassword     string
	BotToken          string
	HTTPAddr          string
	AdminAllowedCIDRs []string
	SystemMemberIDs   []string
	MaxAssignAttempts int
	AssignLockTTL     time.Duration
	ProofWindow       time.Duration
	ConfirmWindow     time.Duration
	SweepInterval     time.Duration
	LogLevel          string
	LogFormat         string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using system environment variables")
	}

	return &Config{
		DBDriver:          getEnv("DB_DRIVER", "postgres"),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "sendhelp"),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		SQLitePath:        getEnv("SQLITE_PATH", "sendhelp.sqlite"),
		RedisEnabled:      getEnvBool("REDIS_ENABLED", true),
		RedisHost:         getEnv("REDIS_HOST", "localhost"),
		RedisPort:         getEnv("REDIS_PORT", "6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		BotToken:          getEnv("TELEGRAM_BOT_TOKEN", ""),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		AdminAllowedCIDRs: getEnvList("ADMIN_ALLOWED_CIDRS", []string{"127.0.0.0/8", "::1/128"}),
		SystemMemberIDs:   getEnvList("SYSTEM_MEMBER_IDS", []string{"SYSTEM", "ADMIN"}),
		MaxAssignAttempts: getEnvInt("MAX_ASSIGN_ATTEMPTS", 3),
		AssignLockTTL:     getEnvDuration("ASSIGN_LOCK_TTL", 10*time.Second),
		ProofWindow:       getEnvDuration("PROOF_WINDOW", 24*time.Hour),
		ConfirmWindow:     getEnvDuration("CONFIRM_WINDOW", 48*time.Hour),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", 15*time.Minute),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("invalid boolean in environment, using default", "key", key, "value", value)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", value)
		return fallback
	}
	return d
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// SlogLevel maps the configured name to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
