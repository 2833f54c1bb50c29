// Package config loads broker configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig holds the credential/endpoint/model tuple for one upstream
// backend. Kind selects the client implementation ("openai" for any
// OpenAI-compatible API, "ollama" for a local Ollama server).
type ProviderConfig struct {
	Name           string `yaml:"name"`
	Kind           string `yaml:"kind"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	DefaultModel   string `yaml:"default_model"`
	ReasoningModel string `yaml:"reasoning_model"`
}

// Config holds all configuration values.
type Config struct {
	// Upstream providers, in registry order.
	Providers []ProviderConfig

	// Router
	DefaultTimeout time.Duration
	RetryAttempts  int
	RetryBackoff   time.Duration

	// Dispatch / queues
	SyncTimeoutLimit time.Duration
	DeferredTimeout  time.Duration
	DefaultQueue     string
	LongRunningQueue string

	// Worker
	WorkerConcurrency int
	WorkerTimeLimit   time.Duration
	RedeliverLimit    int
	RedeliverDelay    time.Duration

	// Grading
	GradingCheckInterval time.Duration
	ReaperInterval       time.Duration
	StaleAfter           time.Duration
	MaxContentLength     int

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// HTTP server
	ListenAddr string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
// Provider tuples come from the DS_/SF_/VC_ variable families, or from a YAML
// manifest when AIBROKER_PROVIDERS_FILE is set.
func Load() (Config, error) {
	providers, err := loadProviders()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Providers: providers,

		DefaultTimeout: getEnvDuration("AIBROKER_DEFAULT_TIMEOUT", 120*time.Second),
		RetryAttempts:  getEnvInt("AIBROKER_RETRY_ATTEMPTS", 2),
		RetryBackoff:   getEnvDuration("AIBROKER_RETRY_BACKOFF", time.Second),

		SyncTimeoutLimit: getEnvDuration("AIBROKER_SYNC_TIMEOUT_LIMIT", 60*time.Second),
		DeferredTimeout:  getEnvDuration("AIBROKER_DEFERRED_TIMEOUT", 1500*time.Second),
		DefaultQueue:     getEnv("AIBROKER_DEFAULT_QUEUE", "ai_default"),
		LongRunningQueue: getEnv("AIBROKER_LONG_RUNNING_QUEUE", "ai_long_running"),

		WorkerConcurrency: getEnvInt("AIBROKER_WORKER_CONCURRENCY", 10),
		WorkerTimeLimit:   getEnvDuration("AIBROKER_WORKER_TIME_LIMIT", 30*time.Minute),
		RedeliverLimit:    getEnvInt("AIBROKER_REDELIVER_LIMIT", 2),
		RedeliverDelay:    getEnvDuration("AIBROKER_REDELIVER_DELAY", time.Minute),

		GradingCheckInterval: getEnvDuration("AIBROKER_GRADING_CHECK_INTERVAL", 5*time.Minute),
		ReaperInterval:       getEnvDuration("AIBROKER_REAPER_INTERVAL", 10*time.Minute),
		StaleAfter:           getEnvDuration("AIBROKER_STALE_AFTER", 2*time.Hour),
		MaxContentLength:     getEnvInt("AIBROKER_MAX_CONTENT_LENGTH", 15000),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "aibroker"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "broker"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		ListenAddr: getEnv("AIBROKER_LISTEN_ADDR", ":8080"),

		LogFile:  getEnv("AIBROKER_LOG_FILE", "/tmp/aibroker.log"),
		LogLevel: parseLogLevel(getEnv("AIBROKER_LOG_LEVEL", "INFO")),
	}, nil
}

// loadProviders assembles the ordered provider set. A YAML manifest takes
// precedence; otherwise the env-var families are read. Tuples with no API
// key are returned as-is and rejected at registry build time, so a missing
// credential skips one backend instead of failing startup.
func loadProviders() ([]ProviderConfig, error) {
	if path := os.Getenv("AIBROKER_PROVIDERS_FILE"); path != "" {
		return loadProvidersFile(path)
	}

	providers := []ProviderConfig{
		{
			Name:           "DeepSeek",
			Kind:           "openai",
			APIKey:         os.Getenv("DS_API_KEY"),
			BaseURL:        getEnv("DS_BASE_URL", "https://api.deepseek.com"),
			DefaultModel:   getEnv("DS_MODEL", "deepseek-chat"),
			ReasoningModel: getEnv("DS_MODEL_R", "deepseek-reasoner"),
		},
		{
			Name:           "SiliconFlow",
			Kind:           "openai",
			APIKey:         os.Getenv("SF_API_KEY"),
			BaseURL:        getEnv("SF_BASE_URL", "https://api.siliconflow.cn/v1"),
			DefaultModel:   getEnv("SF_MODEL", "deepseek-ai/DeepSeek-V2"),
			ReasoningModel: getEnv("SF_MODEL_R", "deepseek-ai/DeepSeek-V2"),
		},
		{
			Name:           "VolcEngine",
			Kind:           "openai",
			APIKey:         os.Getenv("VC_API_KEY"),
			BaseURL:        getEnv("VC_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			DefaultModel:   getEnv("VC_MODEL", "deepseek-v2-lite-240619"),
			ReasoningModel: getEnv("VC_MODEL_R", "deepseek-v2-chat-240619"),
		},
	}

	// A local Ollama backend is optional and keyless.
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		providers = append(providers, ProviderConfig{
			Name:           "Ollama",
			Kind:           "ollama",
			BaseURL:        host,
			DefaultModel:   getEnv("OLLAMA_MODEL", "llama3"),
			ReasoningModel: getEnv("OLLAMA_MODEL_R", "llama3"),
		})
	}

	return providers, nil
}

// providersManifest is the YAML manifest layout.
type providersManifest struct {
	Providers []ProviderConfig `yaml:"providers"`
}

func loadProvidersFile(path string) ([]ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	var manifest providersManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	if len(manifest.Providers) == 0 {
		return nil, fmt.Errorf("providers file %s declares no providers", path)
	}

	for i := range manifest.Providers {
		if manifest.Providers[i].Kind == "" {
			manifest.Providers[i].Kind = "openai"
		}
	}

	return manifest.Providers, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvDuration parses a duration env var. Bare integers are taken as
// seconds for compatibility with the original deployment's settings.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
