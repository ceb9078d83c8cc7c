package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"proteodiff/adapters/stats/classify"
	"proteodiff/internal/errors"

	"github.com/go-playground/validator/v10"
)

// Config represents the complete application configuration
type Config struct {
	Analysis AnalysisConfig `validate:"required"`
	Database DatabaseConfig
	Log      LogConfig `validate:"required"`
}

// AnalysisConfig holds the pipeline settings
type AnalysisConfig struct {
	FitMode      string  `validate:"oneof=ls robust"`
	FCThreshold  float64 `validate:"gte=0"`
	Alpha        float64 `validate:"gt=0,lte=1"`
	Numerator    string
	Denominator  string `validate:"omitempty,nefield=Numerator"`
	Intercept    bool
	Workers      int `validate:"gte=1"`
	Log2         bool
	GroupPattern string
}

// DatabaseConfig holds the optional results store. An empty URL disables
// persistence.
type DatabaseConfig struct {
	URL            string
	ConnectTimeout time.Duration `validate:"gt=0"`
	Migrate        bool
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `validate:"oneof=trace debug info warn warning error fatal panic off disabled"`
	Format string `validate:"oneof=console json"`
}

// Enabled reports whether a database URL was configured
func (d DatabaseConfig) Enabled() bool { return d.URL != "" }

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Analysis: loadAnalysisConfig(),
		Database: loadDatabaseConfig(),
		Log:      loadLogConfig(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Default returns the configuration Load produces with an empty environment
func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			FitMode:     "ls",
			FCThreshold: classify.DefaultFCThreshold,
			Alpha:       classify.DefaultAlpha,
			Workers:     runtime.GOMAXPROCS(0),
			Log2:        true,
		},
		Database: DatabaseConfig{ConnectTimeout: 10 * time.Second, Migrate: true},
		Log:      LogConfig{Level: "info", Format: "console"},
	}
}

func loadAnalysisConfig() AnalysisConfig {
	def := Default().Analysis
	return AnalysisConfig{
		FitMode:      strings.ToLower(getEnvOrDefault("PD_FIT_MODE", def.FitMode)),
		FCThreshold:  getEnvFloatOrDefault("PD_FC_THRESHOLD", def.FCThreshold),
		Alpha:        getEnvFloatOrDefault("PD_ALPHA", def.Alpha),
		Numerator:    getEnvOrDefault("PD_NUMERATOR", ""),
		Denominator:  getEnvOrDefault("PD_DENOMINATOR", ""),
		Intercept:    getEnvBoolOrDefault("PD_INTERCEPT", false),
		Workers:      getEnvIntOrDefault("PD_WORKERS", def.Workers),
		Log2:         getEnvBoolOrDefault("PD_LOG2", def.Log2),
		GroupPattern: getEnvOrDefault("PD_GROUP_PATTERN", ""),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	def := Default().Database
	return DatabaseConfig{
		URL:            getEnvOrDefault("DATABASE_URL", ""),
		ConnectTimeout: getEnvDurationOrDefault("PD_DB_TIMEOUT", def.ConnectTimeout),
		Migrate:        getEnvBoolOrDefault("PD_DB_MIGRATE", def.Migrate),
	}
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console")),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and returns a CONFIG_INVALID error
// naming every offending field
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.Wrap(err, "configuration validation failed")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.ConfigInvalid(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fmt.Sprint(fe.Value()))
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
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

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
