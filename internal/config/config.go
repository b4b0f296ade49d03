package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MerchantScope/internal/database"
	"github.com/Alias1177/MerchantScope/internal/model"
)

// Data source kinds
const (
	SourceWarehouse = "warehouse"
	SourceSQLite    = "sqlite"
	SourceAPI       = "api"
	SourceMemory    = "memory"
	SourceStripe    = "stripe"
)

// Config holds all application configuration
type Config struct {
	Run model.RunConfig

	LogLevel     string
	LogFormat    string // console or json
	LogFile      string
	LogMaxSizeMB int

	// Source serves statistics and, unless DetailSource is set, details
	Source       string
	DetailSource string

	DB          database.ConnectionParams
	DBMaxConns  int
	SQLitePath  string
	FixturePath string

	APIBaseURL     string
	APIKey         string
	RequestsPerSec int
	RequestTimeout time.Duration

	StripeAPIKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	TelegramToken  string
	TelegramChatID int64

	MetricsAddr string
}

// Load initializes configuration from environment variables. Values in
// .env files are used only where the environment has none.
func Load(files ...string) (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(files...); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config
	var errs []error
	intVar := func(key string, def int) int {
		v, err := getEnvIntWithDefault(key, def)
		errs = append(errs, err)
		return v
	}
	floatVar := func(key string, def float64) float64 {
		v, err := getEnvFloatWithDefault(key, def)
		errs = append(errs, err)
		return v
	}

	def := model.DefaultRunConfig()
	cfg.Run = model.RunConfig{
		WindowDays:          intVar("WINDOW_DAYS", def.WindowDays),
		DispersionThreshold: floatVar("DISPERSION_THRESHOLD", def.DispersionThreshold),
		DeviationThreshold:  floatVar("DEVIATION_THRESHOLD", def.DeviationThreshold),
		MinSampleSize:       intVar("MIN_SAMPLE_SIZE", def.MinSampleSize),
		MaxConcurrency:      intVar("MAX_CONCURRENCY", def.MaxConcurrency),
		MaxRetries:          intVar("MAX_RETRIES", def.MaxRetries),
		TimeoutSeconds:      intVar("TIMEOUT_SECONDS", def.TimeoutSeconds),
		MinTransactionCount: int64(intVar("MIN_TRANSACTION_COUNT", int(def.MinTransactionCount))),
		DetailWindowDays:    intVar("DETAIL_WINDOW_DAYS", def.DetailWindowDays),
		MaxDetailedEntities: intVar("MAX_DETAILED_ENTITIES", def.MaxDetailedEntities),
		StatsLimit:          intVar("STATS_LIMIT", def.StatsLimit),
	}

	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getEnvWithDefault("LOG_FORMAT", "console")
	cfg.LogFile = os.Getenv("LOG_FILE")
	cfg.LogMaxSizeMB = intVar("LOG_MAX_SIZE_MB", 100)

	cfg.Source = strings.ToLower(getEnvWithDefault("SOURCE", SourceWarehouse))
	cfg.DetailSource = strings.ToLower(os.Getenv("DETAIL_SOURCE"))

	cfg.DB = database.ConnectionParams{
		Host:     getEnvWithDefault("DB_HOST", "localhost"),
		Port:     getEnvWithDefault("DB_PORT", "5432"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),
	}
	cfg.DBMaxConns = intVar("DB_MAX_CONNS", 0)
	cfg.SQLitePath = getEnvWithDefault("SQLITE_PATH", "merchantscope.db")
	cfg.FixturePath = os.Getenv("FIXTURE_PATH")

	cfg.APIBaseURL = os.Getenv("API_BASE_URL")
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.RequestsPerSec = intVar("REQUESTS_PER_SEC", 5)
	cfg.RequestTimeout = time.Duration(intVar("REQUEST_TIMEOUT", 30)) * time.Second

	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = intVar("REDIS_DB", 0)
	cfg.CacheTTL = time.Duration(intVar("CACHE_TTL_SECONDS", 900)) * time.Second

	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	chatID, err := getEnvInt64WithDefault("TELEGRAM_CHAT_ID", 0)
	errs = append(errs, err)
	cfg.TelegramChatID = chatID

	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected sources have what they need
func (c *Config) Validate() error {
	var errs []error

	switch c.Source {
	case SourceWarehouse:
		if c.DB.User == "" || c.DB.DBName == "" {
			errs = append(errs, fmt.Errorf("warehouse source requires DB_USER and DB_NAME"))
		}
	case SourceSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("sqlite source requires SQLITE_PATH"))
		}
	case SourceAPI:
		if c.APIBaseURL == "" {
			errs = append(errs, fmt.Errorf("api source requires API_BASE_URL"))
		}
	case SourceMemory:
		if c.FixturePath == "" {
			errs = append(errs, fmt.Errorf("memory source requires FIXTURE_PATH"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SOURCE %q", c.Source))
	}

	switch c.DetailSource {
	case "", SourceWarehouse, SourceSQLite, SourceAPI, SourceMemory:
		if c.DetailSource != "" && c.DetailSource != c.Source {
			errs = append(errs, fmt.Errorf("DETAIL_SOURCE %q must match SOURCE or be stripe", c.DetailSource))
		}
	case SourceStripe:
		if c.StripeAPIKey == "" {
			errs = append(errs, fmt.Errorf("stripe detail source requires STRIPE_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DETAIL_SOURCE %q", c.DetailSource))
	}

	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be console or json"))
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, fmt.Errorf("TELEGRAM_BOT_TOKEN is set but TELEGRAM_CHAT_ID is not"))
	}

	errs = append(errs, c.Run.Validate())
	return errors.Join(errs...)
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return intValue, nil
}

func getEnvInt64WithDefault(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return intValue, nil
}

func getEnvFloatWithDefault(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid number %q", key, value)
	}
	return floatValue, nil
}
