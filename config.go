package main

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every runtime setting the backend reads from the
// environment. Values are loaded once at startup and never mutated.
type Config struct {
	DatabaseURL string
	JWTSecret   string
	Port        int
	LogLevel    string
	LogFormat   string
}

// loadConfig reads configuration from a .env file (if present) with a
// fallback to plain environment variables.
func loadConfig() Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	return Config{
		DatabaseURL: getEnv("DATABASE_URL", "user=admin password=password dbname=wandermatch sslmode=disable"),
		JWTSecret:   getEnv("JWT_SECRET", "your_secret_key_please_change_in_production"),
		Port:        getEnvInt("PORT", 8080),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
