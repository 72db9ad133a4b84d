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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// clearEnv blanks every variable the loader reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"CONFIG_PATH", "OPENAI_API_KEY", "OPENAI_ENDPOINT", "GEMINI_API_KEY",
		"GENERATION_PROVIDER", "GENERATION_MODEL", "UNSPLASH_ACCESS_KEY", "AUTH_JWT_SECRET",
		"REDIS_ADDR", "REDIS_PASSWORD", "ALLOWANCE_DB_PATH", "PACKS_DB_PATH", "LISTEN_ADDR",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return configPath
}

func validConfig() Config {
	return Config{
		Server:     ServerConfig{Addr: ":8080"},
		Generation: GenerationConfig{Provider: ProviderOpenAI, MaxTokens: 2500, Temperature: 0.3, Timeout: time.Minute},
		Images:     ImagesConfig{MaxQueryWords: 3, Concurrency: 4, ProviderTimeout: 5 * time.Second},
		Allowance:  AllowanceConfig{Backend: LedgerSQLite, DBPath: "./allowance.db"},
		Store:      StoreConfig{DBPath: "./packs.db"},
		Logging:    LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)

	configPath := writeConfig(t, `
openai:
  apikey: "sk-test-key"  # pragma: allowlist secret
  endpoint: "https://api.openai.com/v1"
generation:
  provider: "openai"
  model: "gpt-4.1-mini"
  max_tokens: 3000
  temperature: 0.2
  timeout: "90s"
images:
  unsplash_access_key: "unsplash-test"  # pragma: allowlist secret
  max_query_words: 4
  fallback_pool: ["https://example.com/a.jpg", "https://example.com/b.jpg"]
allowance:
  backend: "sqlite"
  db_path: ":memory:"
  refund_on_failure: true
store:
  db_path: ":memory:"
logging:
  level: "debug"
  format: "json"
  output: "stdout"
`)

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.OpenAI.APIKey != "sk-test-key" {
		t.Errorf("Expected OpenAI API key 'sk-test-key', got '%s'", config.OpenAI.APIKey)
	}

	if config.Generation.MaxTokens != 3000 {
		t.Errorf("Expected generation max_tokens 3000, got %d", config.Generation.MaxTokens)
	}

	if config.Generation.Temperature != 0.2 {
		t.Errorf("Expected generation temperature 0.2, got %f", config.Generation.Temperature)
	}

	if config.Generation.Timeout != 90*time.Second {
		t.Errorf("Expected generation timeout 90s, got %s", config.Generation.Timeout)
	}

	if config.Images.MaxQueryWords != 4 {
		t.Errorf("Expected max_query_words 4, got %d", config.Images.MaxQueryWords)
	}

	if len(config.Images.FallbackPool) != 2 {
		t.Errorf("Expected 2 fallback images, got %d", len(config.Images.FallbackPool))
	}

	if !config.Allowance.RefundOnFailure {
		t.Error("Expected refund_on_failure to be true")
	}
}

func TestLoadWithoutConfigFile(t *testing.T) {
	clearEnv(t)

	config, err := Load("")
	if err != nil {
		t.Fatalf("Expected defaults to load without a config file, got: %v", err)
	}

	if config.OpenAI.APIKey != "" {
		t.Errorf("Expected empty OpenAI key, got '%s'", config.OpenAI.APIKey)
	}

	if config.Generation.Provider != ProviderOpenAI {
		t.Errorf("Expected default provider openai, got '%s'", config.Generation.Provider)
	}
}

func TestEnvironmentVariableOverrides(t *testing.T) {
	clearEnv(t)

	configPath := writeConfig(t, `
openai:
  apikey: "sk-default-key"
images:
  unsplash_access_key: "default-unsplash"
logging:
  level: "info"
  format: "json"
`)

	t.Setenv("OPENAI_API_KEY", "sk-env-key")
	t.Setenv("GEMINI_API_KEY", "gemini-env-key")
	t.Setenv("UNSPLASH_ACCESS_KEY", "env-unsplash")
	t.Setenv("AUTH_JWT_SECRET", "env-secret")
	t.Setenv("GENERATION_PROVIDER", "gemini")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LESSONPACK_GENERATION_MAX_TOKENS", "1800")

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.OpenAI.APIKey != "sk-env-key" {
		t.Errorf("Expected OpenAI API key from env 'sk-env-key', got '%s'", config.OpenAI.APIKey)
	}

	if config.Gemini.APIKey != "gemini-env-key" {
		t.Errorf("Expected Gemini API key from env, got '%s'", config.Gemini.APIKey)
	}

	if config.Images.UnsplashAccessKey != "env-unsplash" {
		t.Errorf("Expected Unsplash key from env, got '%s'", config.Images.UnsplashAccessKey)
	}

	if config.Auth.JWTSecret != "env-secret" {
		t.Errorf("Expected JWT secret from env, got '%s'", config.Auth.JWTSecret)
	}

	if config.Generation.Provider != ProviderGemini {
		t.Errorf("Expected provider from env 'gemini', got '%s'", config.Generation.Provider)
	}

	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level from env 'debug', got '%s'", config.Logging.Level)
	}

	if config.Generation.MaxTokens != 1800 {
		t.Errorf("Expected prefixed env override 1800, got %d", config.Generation.MaxTokens)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		expectedError bool
		errorContains string
	}{
		{
			name:   "Valid configuration",
			mutate: func(*Config) {},
		},
		{
			name:   "Missing generation key is allowed",
			mutate: func(c *Config) { c.OpenAI.APIKey = "" },
		},
		{
			name:          "Unknown provider",
			mutate:        func(c *Config) { c.Generation.Provider = "llama" },
			expectedError: true,
			errorContains: "provider must be one of",
		},
		{
			name:          "Invalid max tokens",
			mutate:        func(c *Config) { c.Generation.MaxTokens = 0 },
			expectedError: true,
			errorContains: "max_tokens must be greater than 0",
		},
		{
			name:          "Invalid temperature",
			mutate:        func(c *Config) { c.Generation.Temperature = 2.5 },
			expectedError: true,
			errorContains: "temperature must be between 0 and 2",
		},
		{
			name:          "Invalid query word cap",
			mutate:        func(c *Config) { c.Images.MaxQueryWords = 0 },
			expectedError: true,
			errorContains: "max_query_words must be between 1 and 10",
		},
		{
			name:          "Redis backend without address",
			mutate:        func(c *Config) { c.Allowance.Backend = LedgerRedis },
			expectedError: true,
			errorContains: "Redis address is required",
		},
		{
			name: "Redis backend with address",
			mutate: func(c *Config) {
				c.Allowance.Backend = LedgerRedis
				c.Allowance.Redis.Addr = "localhost:6379"
				c.Allowance.DBPath = ""
			},
		},
		{
			name:          "Unknown ledger backend",
			mutate:        func(c *Config) { c.Allowance.Backend = "postgres" },
			expectedError: true,
			errorContains: "backend must be one of",
		},
		{
			name:          "Missing store path",
			mutate:        func(c *Config) { c.Store.DBPath = "" },
			expectedError: true,
			errorContains: "store.db_path",
		},
		{
			name:          "Store directory missing",
			mutate:        func(c *Config) { c.Store.DBPath = "/nonexistent/dir/packs.db" },
			expectedError: true,
			errorContains: "database directory does not exist",
		},
		{
			name:          "Invalid log level",
			mutate:        func(c *Config) { c.Logging.Level = "verbose" },
			expectedError: true,
			errorContains: "log level must be one of",
		},
		{
			name:          "Invalid log format",
			mutate:        func(c *Config) { c.Logging.Format = "xml" },
			expectedError: true,
			errorContains: "log format must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := validateConfig(&config)

			if tt.expectedError {
				if err == nil {
					t.Errorf("Expected error but got none")
					return
				}
				if !errors.Is(err, ErrInvalidConfigValue) {
					t.Errorf("Expected ErrInvalidConfigValue, got: %v", err)
				}
				if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error to contain '%s', got: %v", tt.errorContains, err)
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestValidationAggregatesErrors(t *testing.T) {
	config := validConfig()
	config.Generation.MaxTokens = -1
	config.Logging.Level = "loud"

	err := validateConfig(&config)
	if err == nil {
		t.Fatal("Expected error but got none")
	}
	if !strings.Contains(err.Error(), "generation.max_tokens") || !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("Expected both fields in error, got: %v", err)
	}
}

func TestMaskSensitiveValues(t *testing.T) {
	config := validConfig()
	config.OpenAI.APIKey = "sk-1234567890abcdef"  // pragma: allowlist secret
	config.Gemini.APIKey = "AIzaSyExampleKey1234" // pragma: allowlist secret
	config.Images.UnsplashAccessKey = "short"
	config.Auth.JWTSecret = "super-secret-signing-key" // pragma: allowlist secret

	masked := config.MaskSensitiveValues()

	if masked.OpenAI.APIKey != "sk-12345***********" {
		t.Errorf("Expected masked OpenAI key, got '%s'", masked.OpenAI.APIKey)
	}

	if !strings.HasPrefix(masked.Gemini.APIKey, "AIzaSyEx") || strings.Contains(masked.Gemini.APIKey, "1234") {
		t.Errorf("Expected masked Gemini key, got '%s'", masked.Gemini.APIKey)
	}

	if masked.Images.UnsplashAccessKey != "*****" {
		t.Errorf("Expected fully masked short key, got '%s'", masked.Images.UnsplashAccessKey)
	}

	if strings.Contains(masked.Auth.JWTSecret, "signing") {
		t.Errorf("Expected masked JWT secret, got '%s'", masked.Auth.JWTSecret)
	}

	// Original must be unchanged
	if config.OpenAI.APIKey != "sk-1234567890abcdef" {
		t.Error("Original config was modified")
	}
}

func TestConfigPathEnvironmentVariable(t *testing.T) {
	clearEnv(t)

	configPath := writeConfig(t, `
generation:
  max_tokens: 1234
`)
	t.Setenv("CONFIG_PATH", configPath)

	config, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if config.Generation.MaxTokens != 1234 {
		t.Errorf("Expected max_tokens from CONFIG_PATH file, got %d", config.Generation.MaxTokens)
	}

	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(""); err == nil {
		t.Error("Expected error for missing CONFIG_PATH file")
	}
}

func TestLoadWithOptionsSkipsValidation(t *testing.T) {
	clearEnv(t)

	configPath := writeConfig(t, `
logging:
  level: "nonsense"
`)

	if _, err := Load(configPath); err == nil {
		t.Error("Expected validation error")
	}

	config, err := LoadWithOptions(LoadOptions{ConfigPath: configPath, ValidateRequired: false})
	if err != nil {
		t.Fatalf("Expected no error with validation disabled, got: %v", err)
	}
	if config.Logging.Level != "nonsense" {
		t.Errorf("Expected raw log level, got '%s'", config.Logging.Level)
	}
}

func TestDefaultValues(t *testing.T) {
	clearEnv(t)

	config, err := LoadWithOptions(LoadOptions{ValidateRequired: false})
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Server.Addr != ":8080" {
		t.Errorf("Expected default addr ':8080', got '%s'", config.Server.Addr)
	}
	if config.Generation.MaxTokens != 2500 {
		t.Errorf("Expected default max_tokens 2500, got %d", config.Generation.MaxTokens)
	}
	if config.Generation.Temperature != 0.3 {
		t.Errorf("Expected default temperature 0.3, got %f", config.Generation.Temperature)
	}
	if config.Images.MaxQueryWords != 3 {
		t.Errorf("Expected default max_query_words 3, got %d", config.Images.MaxQueryWords)
	}
	if !config.Images.WikimediaEnabled {
		t.Error("Expected Wikimedia enabled by default")
	}
	if config.Allowance.Backend != LedgerSQLite {
		t.Errorf("Expected default ledger sqlite, got '%s'", config.Allowance.Backend)
	}
	if config.Allowance.RefundOnFailure {
		t.Error("Expected refund_on_failure off by default")
	}
	if !config.OpenAI.JSONMode {
		t.Error("Expected JSON mode on by default")
	}
}

func TestGetEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("ENV", "")
	if env := getEnvironment(); env != "development" {
		t.Errorf("Expected 'development', got '%s'", env)
	}

	t.Setenv("ENV", "staging")
	if env := getEnvironment(); env != "staging" {
		t.Errorf("Expected 'staging', got '%s'", env)
	}

	t.Setenv("ENVIRONMENT", "production")
	if env := getEnvironment(); env != "production" {
		t.Errorf("Expected 'production', got '%s'", env)
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError{Field: "test.field", Message: "test message"}
	expected := "configuration validation failed for field 'test.field': test message"
	if err.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, err.Error())
	}
}

func TestWatchConfigReloads(t *testing.T) {
	clearEnv(t)

	configPath := writeConfig(t, `
logging:
  level: "info"
`)

	var mu sync.Mutex
	var reloaded *Config
	err := WatchConfig(configPath, zaptest.NewLogger(t), func(c *Config) {
		mu.Lock()
		reloaded = c
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Failed to watch config: %v", err)
	}

	if err := os.WriteFile(configPath, []byte("logging:\n  level: \"debug\"\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := reloaded
		mu.Unlock()
		if got != nil && got.Logging.Level == "debug" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("Expected reload with debug level")
}

func TestWatchConfigWithoutFile(t *testing.T) {
	clearEnv(t)
	if err := WatchConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil, func(*Config) {}); err == nil {
		t.Error("Expected error when the config file does not exist")
	}
}
