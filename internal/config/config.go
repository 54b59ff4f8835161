package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port            string
	StorefrontURL   string
	CredentialsPath string
	JWTSecret       string
	AllowedOrigins  string
	SearchDebounce  time.Duration
	DedupWindow     time.Duration
	RequestTimeout  time.Duration
	Environment     string // development, staging, production
}

// Load loads configuration from environment variables and validates for production
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		StorefrontURL:   getEnv("STOREFRONT_API_URL", "http://localhost:8080"),
		CredentialsPath: getEnv("CREDENTIALS_PATH", defaultCredentialsPath()),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		SearchDebounce:  getEnvDuration("SEARCH_DEBOUNCE_MS", 500*time.Millisecond),
		DedupWindow:     getEnvDuration("DEDUP_WINDOW_MS", 2000*time.Millisecond),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT_MS", 10*time.Second),
		Environment:     getEnv("ENVIRONMENT", "development"),
	}

	// Validate production configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

// Validate checks configuration for security and correctness
func (c *Config) Validate() error {
	if c.SearchDebounce <= 0 {
		return fmt.Errorf("SEARCH_DEBOUNCE_MS must be positive")
	}
	if c.DedupWindow <= 0 {
		return fmt.Errorf("DEDUP_WINDOW_MS must be positive")
	}

	// Production environment requires strong secrets
	if c.IsProduction() {
		if c.JWTSecret == "" || c.JWTSecret == "change-this-in-production" {
			return fmt.Errorf("JWT_SECRET must be set to a strong random value in production")
		}

		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production (got %d)", len(c.JWTSecret))
		}

		// Warn about non-HTTPS origins in production
		if c.AllowedOrigins != "" {
			log.Println("WARNING: Ensure ALLOWED_ORIGINS uses HTTPS in production")
		}
	} else if c.JWTSecret == "" {
		// Development/staging: provide default if not set
		c.JWTSecret = "dev-secret-not-for-production"
		log.Println("Using default JWT_SECRET for development")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

func defaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".storefront-credentials.json"
	}
	return home + "/.storefront-credentials.json"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration reads a millisecond value from the environment.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	ms, err := strconv.Atoi(value)
	if err != nil || ms <= 0 {
		log.Printf("Invalid %s=%q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}
