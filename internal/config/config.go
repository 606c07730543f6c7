// Package config loads razfaz settings from RAZFAZ_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/razfaz/razfaz/internal/logger"
	"github.com/razfaz/razfaz/internal/relay"
	"github.com/razfaz/razfaz/internal/scraper"
)

const envPrefix = "RAZFAZ_"

// Store backends
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StoreCouch    = "couch"
	StorePostgres = "postgres"
)

// DefaultDataDir is where the file store keeps documents
const DefaultDataDir = "~/.local/share/razfaz"

// Config stores runtime configuration
type Config struct {
	LogLevel logger.Level

	Store       string `validate:"oneof=file memory couch postgres"`
	DataDir     string `validate:"required_if=Store file"`
	CouchURL    string `validate:"required_if=Store couch,omitempty,url"`
	CouchDB     string `validate:"required_if=Store couch"`
	PostgresURL string `validate:"required_if=Store postgres"`

	HTTPAddr           string `validate:"required"`
	CORSAllowedOrigins []string

	LeagueURLTemplate string `validate:"required,contains=%s"`
	CORSProxy         string
	FetchTimeout      time.Duration `validate:"gt=0"`
	FetchRetries      int           `validate:"gte=0,lte=10"`

	DetailWorkers  int `validate:"gte=1,lte=64"`
	InitialHash    string
	PersistScraped bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the environment and validates the result
func Load() (Config, error) {
	level, err := logger.ParseLevel(getEnv("LOG_LEVEL", string(logger.LevelInfo)))
	if err != nil {
		return Config{}, fmt.Errorf("parse %sLOG_LEVEL: %w", envPrefix, err)
	}

	fetchTimeout, err := time.ParseDuration(getEnv("FETCH_TIMEOUT", scraper.Timeout.String()))
	if err != nil {
		return Config{}, fmt.Errorf("parse %sFETCH_TIMEOUT: %w", envPrefix, err)
	}

	fetchRetries, err := getEnvAsInt("FETCH_RETRIES", scraper.DefaultMaxRetries)
	if err != nil {
		return Config{}, fmt.Errorf("parse %sFETCH_RETRIES: %w", envPrefix, err)
	}

	detailWorkers, err := getEnvAsInt("DETAIL_WORKERS", relay.DefaultDetailWorkers)
	if err != nil {
		return Config{}, fmt.Errorf("parse %sDETAIL_WORKERS: %w", envPrefix, err)
	}

	persist, err := strconv.ParseBool(getEnv("PERSIST_SCRAPED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse %sPERSIST_SCRAPED: %w", envPrefix, err)
	}

	cfg := Config{
		LogLevel:           level,
		Store:              strings.ToLower(getEnv("STORE", StoreFile)),
		DataDir:            getEnv("DATA_DIR", DefaultDataDir),
		CouchURL:           getEnv("COUCH_URL", ""),
		CouchDB:            getEnv("COUCH_DB", "razfaz"),
		PostgresURL:        getEnv("POSTGRES_URL", ""),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		LeagueURLTemplate:  getEnv("LEAGUE_URL_TEMPLATE", scraper.DefaultURLTemplate),
		CORSProxy:          getEnv("CORS_PROXY", ""),
		FetchTimeout:       fetchTimeout,
		FetchRetries:       fetchRetries,
		DetailWorkers:      detailWorkers,
		InitialHash:        getEnv("INITIAL_HASH", ""),
		PersistScraped:     persist,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges and backend requirements. Flags that
// override loaded values should be followed by another Validate.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(envPrefix + key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return strings.TrimSpace(value)
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(envPrefix + key))
	if value == "" {
		return fallback, nil
	}

	return strconv.Atoi(value)
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}
