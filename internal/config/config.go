// Copyright 2024 Lesson Pack Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ErrInvalidConfigValue is returned when a configuration value is invalid
var ErrInvalidConfigValue = errors.New("invalid configuration value")

// Generation providers
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Allowance ledger backends
const (
	LedgerSQLite = "sqlite"
	LedgerRedis  = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Generation GenerationConfig `mapstructure:"generation"`
	Images     ImagesConfig     `mapstructure:"images"`
	Allowance  AllowanceConfig  `mapstructure:"allowance"`
	Store      StoreConfig      `mapstructure:"store"`
	Auth       AuthConfig       `mapstructure:"auth"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	HealthTimeout   time.Duration `mapstructure:"health_timeout"`
}

// OpenAIConfig contains OpenAI API configuration
type OpenAIConfig struct {
	APIKey   string `mapstructure:"apikey"`
	Endpoint string `mapstructure:"endpoint"`
	JSONMode bool   `mapstructure:"json_mode"`
}

// GeminiConfig contains Gemini API configuration
type GeminiConfig struct {
	APIKey   string `mapstructure:"apikey"`
	Endpoint string `mapstructure:"endpoint"`
}

// GenerationConfig contains settings shared by all generation backends.
// An empty model selects the backend default.
type GenerationConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ImagesConfig contains image resolution settings
type ImagesConfig struct {
	UnsplashAccessKey   string        `mapstructure:"unsplash_access_key"`
	UnsplashEndpoint    string        `mapstructure:"unsplash_endpoint"`
	WikimediaEnabled    bool          `mapstructure:"wikimedia_enabled"`
	WikimediaEndpoint   string        `mapstructure:"wikimedia_endpoint"`
	MaxQueryWords       int           `mapstructure:"max_query_words"`
	ProviderTimeout     time.Duration `mapstructure:"provider_timeout"`
	EnrichTimeout       time.Duration `mapstructure:"enrich_timeout"`
	Concurrency         int           `mapstructure:"concurrency"`
	FallbackPool        []string      `mapstructure:"fallback_pool"`
	BreakerMaxFailures  int           `mapstructure:"breaker_max_failures"`
	BreakerResetTimeout time.Duration `mapstructure:"breaker_reset_timeout"`
}

// AllowanceConfig contains allowance ledger settings
type AllowanceConfig struct {
	Backend         string      `mapstructure:"backend"`
	DBPath          string      `mapstructure:"db_path"`
	RefundOnFailure bool        `mapstructure:"refund_on_failure"`
	Redis           RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// StoreConfig contains pack store configuration
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// AuthConfig contains bearer token verification settings
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// CORSConfig contains cross-origin settings for the web client
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath       string
	EnableHotReload  bool
	Environment      string
	ValidateRequired bool
}

// Load loads configuration from file and environment variables
// Environment variables take precedence over config file values
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		EnableHotReload:  false,
		Environment:      getEnvironment(),
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set configuration file path
	if err := setConfigFile(v, opts.ConfigPath); err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("LESSONPACK")

	// Read configuration file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error; defaults and env vars are enough
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Set explicit environment variable mappings
	setEnvironmentMappings(v)

	// Unmarshal configuration
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if opts.ValidateRequired {
		if err := validateConfig(&config); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "180s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.health_timeout", "5s")

	// Generation backend defaults
	v.SetDefault("openai.apikey", "")
	v.SetDefault("openai.endpoint", "https://api.openai.com/v1")
	v.SetDefault("openai.json_mode", true)
	v.SetDefault("gemini.apikey", "")
	v.SetDefault("gemini.endpoint", "")

	v.SetDefault("generation.provider", ProviderOpenAI)
	v.SetDefault("generation.model", "")
	v.SetDefault("generation.max_tokens", 2500)
	v.SetDefault("generation.temperature", 0.3)
	v.SetDefault("generation.timeout", "120s")

	// Image defaults
	v.SetDefault("images.unsplash_access_key", "")
	v.SetDefault("images.unsplash_endpoint", "https://api.unsplash.com")
	v.SetDefault("images.wikimedia_enabled", true)
	v.SetDefault("images.wikimedia_endpoint", "https://commons.wikimedia.org/w/api.php")
	v.SetDefault("images.max_query_words", 3)
	v.SetDefault("images.provider_timeout", "6s")
	v.SetDefault("images.enrich_timeout", "20s")
	v.SetDefault("images.concurrency", 4)
	v.SetDefault("images.fallback_pool", []string{})
	v.SetDefault("images.breaker_max_failures", 5)
	v.SetDefault("images.breaker_reset_timeout", "60s")

	// Allowance defaults
	v.SetDefault("allowance.backend", LedgerSQLite)
	v.SetDefault("allowance.db_path", "./allowance.db")
	v.SetDefault("allowance.refund_on_failure", false)
	v.SetDefault("allowance.redis.addr", "")
	v.SetDefault("allowance.redis.password", "")
	v.SetDefault("allowance.redis.db", 0)
	v.SetDefault("allowance.redis.key_prefix", "lessonpack:allowance:")

	// Store defaults
	v.SetDefault("store.db_path", "./packs.db")

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// setConfigFile sets the configuration file path with fallback logic
func setConfigFile(v *viper.Viper, configPath string) error {
	// Check for CONFIG_PATH environment variable
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return nil
	}

	// Use provided config path
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return nil
	}

	// Default fallback locations; none of them has to exist
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	return nil
}

// setEnvironmentMappings sets explicit environment variable mappings
func setEnvironmentMappings(v *viper.Viper) {
	// Map common environment variables
	envMappings := map[string]string{
		"OPENAI_API_KEY":      "openai.apikey",
		"OPENAI_ENDPOINT":     "openai.endpoint",
		"GEMINI_API_KEY":      "gemini.apikey",
		"GENERATION_PROVIDER": "generation.provider",
		"GENERATION_MODEL":    "generation.model",
		"UNSPLASH_ACCESS_KEY": "images.unsplash_access_key",
		"AUTH_JWT_SECRET":     "auth.jwt_secret",
		"REDIS_ADDR":          "allowance.redis.addr",
		"REDIS_PASSWORD":      "allowance.redis.password",
		"ALLOWANCE_DB_PATH":   "allowance.db_path",
		"PACKS_DB_PATH":       "store.db_path",
		"LISTEN_ADDR":         "server.addr",
		"LOG_LEVEL":           "logging.level",
		"LOG_FORMAT":          "logging.format",
		"LOG_OUTPUT":          "logging.output",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

// validateConfig validates the configuration for required fields and valid values.
// Generation credentials are not required; a missing key surfaces per request.
func validateConfig(config *Config) error {
	var errors []ValidationError

	if strings.TrimSpace(config.Server.Addr) == "" {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Message: "listen address is required",
		})
	}

	// Validate enum values
	validProviders := []string{ProviderOpenAI, ProviderGemini}
	if !contains(validProviders, config.Generation.Provider) {
		errors = append(errors, ValidationError{
			Field:   "generation.provider",
			Message: fmt.Sprintf("provider must be one of: %s", strings.Join(validProviders, ", ")),
		})
	}

	// Validate numeric values
	if config.Generation.MaxTokens <= 0 {
		errors = append(errors, ValidationError{
			Field:   "generation.max_tokens",
			Message: "max_tokens must be greater than 0",
		})
	}

	if config.Generation.Temperature < 0 || config.Generation.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "generation.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if config.Generation.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "generation.timeout",
			Message: "timeout must be greater than 0",
		})
	}

	if config.Images.MaxQueryWords < 1 || config.Images.MaxQueryWords > 10 {
		errors = append(errors, ValidationError{
			Field:   "images.max_query_words",
			Message: "max_query_words must be between 1 and 10",
		})
	}

	if config.Images.Concurrency <= 0 {
		errors = append(errors, ValidationError{
			Field:   "images.concurrency",
			Message: "concurrency must be greater than 0",
		})
	}

	if config.Images.ProviderTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "images.provider_timeout",
			Message: "provider_timeout must be greater than 0",
		})
	}

	validBackends := []string{LedgerSQLite, LedgerRedis}
	if !contains(validBackends, config.Allowance.Backend) {
		errors = append(errors, ValidationError{
			Field:   "allowance.backend",
			Message: fmt.Sprintf("backend must be one of: %s", strings.Join(validBackends, ", ")),
		})
	}

	switch config.Allowance.Backend {
	case LedgerRedis:
		if strings.TrimSpace(config.Allowance.Redis.Addr) == "" {
			errors = append(errors, ValidationError{
				Field:   "allowance.redis.addr",
				Message: "Redis address is required for the redis backend. Set via config file or REDIS_ADDR environment variable",
			})
		}
	case LedgerSQLite:
		errors = append(errors, validateDBPath("allowance.db_path", config.Allowance.DBPath)...)
	}

	errors = append(errors, validateDBPath("store.db_path", config.Store.DBPath)...)

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	// Return all validation errors
	if len(errors) > 0 {
		var errorMessages []string
		for _, err := range errors {
			errorMessages = append(errorMessages, err.Error())
		}
		return fmt.Errorf("%w:\n%s", ErrInvalidConfigValue, strings.Join(errorMessages, "\n"))
	}

	return nil
}

func validateDBPath(field, path string) []ValidationError {
	if path == "" {
		return []ValidationError{{Field: field, Message: "database path is required"}}
	}
	if path == ":memory:" {
		return nil
	}
	if err := validateDirectoryExists(filepath.Dir(path)); err != nil {
		return []ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("database directory does not exist: %s", filepath.Dir(path)),
		}}
	}
	return nil
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c

	// Mask sensitive fields
	if masked.OpenAI.APIKey != "" {
		masked.OpenAI.APIKey = maskValue(masked.OpenAI.APIKey)
	}
	if masked.Gemini.APIKey != "" {
		masked.Gemini.APIKey = maskValue(masked.Gemini.APIKey)
	}
	if masked.Images.UnsplashAccessKey != "" {
		masked.Images.UnsplashAccessKey = maskValue(masked.Images.UnsplashAccessKey)
	}
	if masked.Auth.JWTSecret != "" {
		masked.Auth.JWTSecret = maskValue(masked.Auth.JWTSecret)
	}
	if masked.Allowance.Redis.Password != "" {
		masked.Allowance.Redis.Password = maskValue(masked.Allowance.Redis.Password)
	}

	return &masked
}

// maskValue masks sensitive values, showing only the first 8 characters
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateDirectoryExists checks if a directory exists
func validateDirectoryExists(path string) error {
	if path == "" || path == "." {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	return nil
}

// getEnvironment returns the current environment (development, production, etc.)
func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "development"
}

// WatchConfig reloads the configuration whenever the config file changes and
// hands every valid reload to callback. Invalid edits are logged and ignored.
func WatchConfig(configPath string, logger *zap.Logger, callback func(*Config)) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()

	// Set up configuration
	if err := setConfigFile(v, configPath); err != nil {
		return err
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("no config file to watch: %w", err)
	}

	// Enable watching
	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))

		// Reload configuration
		config, err := LoadWithOptions(LoadOptions{
			ConfigPath:       v.ConfigFileUsed(),
			EnableHotReload:  true,
			Environment:      getEnvironment(),
			ValidateRequired: true,
		})
		if err != nil {
			logger.Warn("Failed to reload config", zap.Error(err))
			return
		}

		// Call callback with new config
		callback(config)
	})
	v.WatchConfig()

	return nil
}
