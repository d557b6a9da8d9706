package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string

	// Security settings
	JWTSecret string

	// Institution site (scraping target)
	InstitutionBaseURL string
	// Optional comma-separated AJAX URL templates for historical closes.
	// Placeholders: {history_url}, {page}.
	CloseAjaxTemplates []string
	ClosePageLimit     int

	// Market data provider
	YahooBaseURLs []string
	OpenFIGIURL   string
	OpenFIGIKey   string

	// Cache policy
	TodayPriceMaxAge time.Duration

	// Outbound HTTP
	HTTPTimeout time.Duration
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	// 1. Try loading from the current directory (standard behavior)
	errEnv := godotenv.Load()
	if errEnv != nil {
		// 2. Fallback for tests or different working directories
		errEnv = godotenv.Load("../.env")
		if errEnv != nil {
			log.Println("INFO: .env file not found, relying on environment variables")
		}
	}

	Cfg = &AppConfig{
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./wertfolio.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		InstitutionBaseURL: strings.TrimRight(getEnv("INSTITUTION_BASE_URL", "https://www.wealthmanagement.bnpparibas.de"), "/"),
		CloseAjaxTemplates: getEnvList("CLOSE_AJAX_URLS"),
		ClosePageLimit:     getEnvInt("CLOSE_PAGE_LIMIT", 80),
		YahooBaseURLs: []string{
			"https://query1.finance.yahoo.com",
			"https://query2.finance.yahoo.com",
		},
		OpenFIGIURL:      getEnv("OPENFIGI_URL", "https://api.openfigi.com/v3/mapping"),
		OpenFIGIKey:      getEnv("OPENFIGI_API_KEY", ""),
		TodayPriceMaxAge: getEnvDuration("TODAY_PRICE_MAX_AGE", 30*time.Minute),
		HTTPTimeout:      getEnvDuration("HTTP_TIMEOUT", 20*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("WARN: invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("WARN: invalid duration for %s, using default %s", key, fallback)
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
