package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const DefaultSessionTimeoutMinutes = 30

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Presence
	SessionTimeoutMinutes int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                  getEnvOrDefault("PORT", "8080"),
		Env:                   getEnvOrDefault("ENV", "development"),
		DatabaseURL:           mustGetEnv("DATABASE_URL"),
		RedisURL:              mustGetEnv("REDIS_URL"),
		JWTSecret:             mustGetEnv("JWT_SECRET"),
		SessionTimeoutMinutes: getEnvAsPositiveIntOrDefault("SESSION_TIMEOUT_MINUTES", DefaultSessionTimeoutMinutes),
		FrontendURL:           getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvAsPositiveIntOrDefault falls back for missing, non-numeric, and
// non-positive values. Session reconstruction requires a positive timeout, so
// the invalid-config case is normalized here rather than checked downstream.
func getEnvAsPositiveIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
