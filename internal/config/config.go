package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	SessionBackendMemory = "memory"
	SessionBackendFile   = "file"
	SessionBackendRedis  = "redis"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	BackendURL            string
	RequestTimeoutSeconds int
	SessionBackend        string
	SessionPath           string
	SessionKey            string
	SessionTTLHours       int
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	TerminalID            string
	LogLevel              string
	LogDevelopment        bool
	BreakerFailures       int
	BreakerOpenSeconds    int
}

// Load reads the process environment. A .env file in the working directory,
// when present, fills in variables that are not already set.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	timeout := positiveInt("REQUEST_TIMEOUT_SECONDS", 15)
	sessionTTL, err := strconv.Atoi(getEnv("SESSION_TTL_HOURS", "0"))
	if err != nil || sessionTTL < 0 {
		sessionTTL = 0
	}
	devLogging, _ := strconv.ParseBool(getEnv("LOG_DEVELOPMENT", "false"))

	cfg := Config{
		Port:                  getEnv("PORT", "8090"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		BackendURL:            strings.TrimRight(strings.TrimSpace(getEnv("BACKEND_URL", "http://127.0.0.1:5000")), "/"),
		RequestTimeoutSeconds: timeout,
		SessionBackend:        strings.ToLower(getEnv("SESSION_BACKEND", SessionBackendFile)),
		SessionPath:           getEnv("SESSION_PATH", "pos-session.json"),
		SessionKey:            strings.TrimSpace(os.Getenv("SESSION_KEY")),
		SessionTTLHours:       sessionTTL,
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		TerminalID:            getEnv("TERMINAL_ID", "terminal-1"),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogDevelopment:        devLogging,
		BreakerFailures:       positiveInt("BREAKER_FAILURES", 5),
		BreakerOpenSeconds:    positiveInt("BREAKER_OPEN_SECONDS", 30),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
