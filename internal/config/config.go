package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"epub-reader-session/internal/domain"
)

// AppConfig implements the domain.Config interface
type AppConfig struct {
	ServerPort     string
	LogLevel       string
	SupabaseURL    string
	SupabaseKey    string
	IndexCachePath string

	EchoTolerancePercent float64
	IndexWaitTimeout     time.Duration
	SaveDebounce         time.Duration

	AllowedOrigins []string
}

// NewConfig creates a new configuration instance with default values
func NewConfig() domain.Config {
	return &AppConfig{
		// Cloud Run (and many PaaS) provide the listening port via PORT.
		// Keep SERVER_PORT for local/dev compatibility.
		ServerPort:     getEnvOrDefault("PORT", getEnvOrDefault("SERVER_PORT", "8080")),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		SupabaseURL:    getEnvOrDefault("SUPABASE_URL", ""),
		SupabaseKey:    getEnvOrDefault("SUPABASE_ANON_KEY", ""),
		IndexCachePath: getEnvOrDefault("INDEX_CACHE_PATH", "./data/location-index"),

		// Tolerance within which an echoed relocation may differ from the
		// requested locator. Empirical, per rendering engine.
		EchoTolerancePercent: getEnvFloatOrDefault("ECHO_TOLERANCE_PERCENT", 3),

		// How long the percentage fallback waits for the location index
		// before degrading to the document start.
		IndexWaitTimeout: getEnvDurationOrDefault("INDEX_WAIT_TIMEOUT", 2*time.Second),

		SaveDebounce: getEnvDurationOrDefault("SAVE_DEBOUNCE", 2*time.Second),

		AllowedOrigins: getEnvListOrDefault("ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:4173",
			"http://localhost:3000",
		}),
	}
}

// GetServerPort returns the server port
func (c *AppConfig) GetServerPort() string {
	return c.ServerPort
}

// GetLogLevel returns the logging level
func (c *AppConfig) GetLogLevel() string {
	return c.LogLevel
}

// GetSupabaseURL returns the Supabase URL
func (c *AppConfig) GetSupabaseURL() string {
	return c.SupabaseURL
}

// GetSupabaseKey returns the Supabase anon key
func (c *AppConfig) GetSupabaseKey() string {
	return c.SupabaseKey
}

// GetIndexCachePath returns the directory for the location index cache
func (c *AppConfig) GetIndexCachePath() string {
	return c.IndexCachePath
}

// GetEchoTolerancePercent returns the echo suppression tolerance band
func (c *AppConfig) GetEchoTolerancePercent() float64 {
	return c.EchoTolerancePercent
}

// GetIndexWaitTimeout returns the bounded wait for index readiness
func (c *AppConfig) GetIndexWaitTimeout() time.Duration {
	return c.IndexWaitTimeout
}

// GetSaveDebounce returns the progress persistence debounce interval
func (c *AppConfig) GetSaveDebounce() time.Duration {
	return c.SaveDebounce
}

// GetAllowedOrigins returns the origins allowed for CORS and websockets
func (c *AppConfig) GetAllowedOrigins() []string {
	return c.AllowedOrigins
}

// Helper functions for environment variable handling
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
