package config

import (
	"os"
)

// Config holds the application configuration
type Config struct {
	Port          string
	Environment   string
	APIKey        string
	AdminUsername string
	AdminPassword string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	XAIEndpoint string
	XAIAPIKey   string
	XAIModel    string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		APIKey:        getEnv("API_KEY", ""),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "smartcart"),

		XAIEndpoint: getEnv("XAI_ENDPOINT", "https://api.x.ai"),
		XAIAPIKey:   getEnv("XAI_API_KEY", ""),
		XAIModel:    getEnv("XAI_MODEL", "grok-2-latest"),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
