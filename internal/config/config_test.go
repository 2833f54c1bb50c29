package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 120*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, 2, cfg.RetryAttempts)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, 60*time.Second, cfg.SyncTimeoutLimit)
	assert.Equal(t, 1500*time.Second, cfg.DeferredTimeout)
	assert.Equal(t, "ai_default", cfg.DefaultQueue)
	assert.Equal(t, "ai_long_running", cfg.LongRunningQueue)
	assert.Equal(t, 10, cfg.WorkerConcurrency)
	assert.Equal(t, 30*time.Minute, cfg.WorkerTimeLimit)
	assert.Equal(t, 2, cfg.RedeliverLimit)
	assert.Equal(t, 2*time.Hour, cfg.StaleAfter)
	assert.Equal(t, 15000, cfg.MaxContentLength)

	// The three OpenAI-compatible tuples are always present, even without
	// keys; the registry filters them later.
	require.Len(t, cfg.Providers, 3)
	assert.Equal(t, "DeepSeek", cfg.Providers[0].Name)
	assert.Equal(t, "SiliconFlow", cfg.Providers[1].Name)
	assert.Equal(t, "VolcEngine", cfg.Providers[2].Name)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AIBROKER_RETRY_ATTEMPTS", "5")
	t.Setenv("AIBROKER_SYNC_TIMEOUT_LIMIT", "90")
	t.Setenv("AIBROKER_WORKER_TIME_LIMIT", "15m")
	t.Setenv("DS_API_KEY", "sk-test")
	t.Setenv("DS_MODEL", "deepseek-v3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RetryAttempts)
	assert.Equal(t, 90*time.Second, cfg.SyncTimeoutLimit, "bare integers are seconds")
	assert.Equal(t, 15*time.Minute, cfg.WorkerTimeLimit)
	assert.Equal(t, "sk-test", cfg.Providers[0].APIKey)
	assert.Equal(t, "deepseek-v3", cfg.Providers[0].DefaultModel)
}

func TestLoad_OptionalOllama(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://localhost:11434")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 4)
	assert.Equal(t, "Ollama", cfg.Providers[3].Name)
	assert.Equal(t, "ollama", cfg.Providers[3].Kind)
	assert.Empty(t, cfg.Providers[3].APIKey)
}

func TestLoad_ProvidersManifest(t *testing.T) {
	manifest := `providers:
  - name: Primary
    kind: openai
    api_key: sk-primary
    base_url: https://api.example.com/v1
    default_model: chat-v1
    reasoning_model: reasoner-v1
  - name: Local
    kind: ollama
    base_url: http://localhost:11434
    default_model: llama3
  - name: Implicit
    api_key: sk-implicit
    base_url: https://other.example.com
    default_model: m
`
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))
	t.Setenv("AIBROKER_PROVIDERS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 3)
	assert.Equal(t, "Primary", cfg.Providers[0].Name)
	assert.Equal(t, "reasoner-v1", cfg.Providers[0].ReasoningModel)
	assert.Equal(t, "ollama", cfg.Providers[1].Kind)
	assert.Equal(t, "openai", cfg.Providers[2].Kind, "kind defaults to openai")
}

func TestLoad_ProvidersManifestErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("AIBROKER_PROVIDERS_FILE", "/nonexistent/providers.yaml")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("empty manifest", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "providers.yaml")
		require.NoError(t, os.WriteFile(path, []byte("providers: []\n"), 0644))
		t.Setenv("AIBROKER_PROVIDERS_FILE", path)
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR_SECONDS", "45")
	t.Setenv("TEST_DUR_PARSED", "2h30m")
	t.Setenv("TEST_DUR_BAD", "soon")

	assert.Equal(t, 45*time.Second, getEnvDuration("TEST_DUR_SECONDS", time.Minute))
	assert.Equal(t, 2*time.Hour+30*time.Minute, getEnvDuration("TEST_DUR_PARSED", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DUR_BAD", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DUR_UNSET", time.Minute))
}

func TestSetupLogger_WritesJSONToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "broker.log")

	logger, cleanup := SetupLogger(logFile, slog.LevelInfo)
	logger.Info("provider registered", "provider", "DeepSeek")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"provider registered"`)
	assert.Contains(t, string(data), `"provider":"DeepSeek"`)
}

func TestSetupLogger_FallsBackToStderr(t *testing.T) {
	// A directory path cannot be opened as a log file.
	logger, cleanup := SetupLogger(t.TempDir(), slog.LevelInfo)
	require.NotNil(t, logger)
	require.NoError(t, cleanup())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("nonsense"))
}
