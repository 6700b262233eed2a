package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":9090"
  timeout: 45s
proxy:
  url: "https://proxy.example.com/raw"
  timeout: 10s
  user_agent: "Custom/2.0"
cache:
  ttl: 30m
storage:
  dsn: "file:test.db?mode=rwc"
  max_open_conns: 20
refresh:
  max_workers: 8
llm:
  endpoint: "http://localhost:11434/v1"
  model: "llama3"
  temperature: 0.7
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, 45*time.Second, cfg.Server.Timeout)
	assert.Equal(t, "https://proxy.example.com/raw", cfg.Proxy.URL)
	assert.Equal(t, 10*time.Second, cfg.Proxy.Timeout)
	assert.Equal(t, "Custom/2.0", cfg.Proxy.UserAgent)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "file:test.db?mode=rwc", cfg.Storage.DSN)
	assert.Equal(t, 20, cfg.Storage.MaxOpenConns)
	assert.Equal(t, 8, cfg.Refresh.MaxWorkers)
	assert.True(t, cfg.LLM.Enabled())
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 0.001)

	// unset fields get defaults
	assert.Equal(t, 5, cfg.Storage.MaxIdleConns)
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.Equal(t, "https://api.allorigins.win/raw", cfg.Proxy.URL)
	assert.Equal(t, "Feedstream/1.0", cfg.Proxy.UserAgent)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 5, cfg.Refresh.MaxWorkers)
	assert.False(t, cfg.LLM.Enabled(), "llm disabled without an endpoint")
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "secret-key")

	cfg, err := Load(writeConfig(t, `
llm:
  endpoint: "http://localhost:11434/v1"
  model: "llama3"
  api_key: "${TEST_LLM_KEY}"
`))
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.LLM.APIKey)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "server: [not a map", "parse config"},
		{"server timeout too low", "server:\n  timeout: 100ms\n", "server timeout"},
		{"proxy timeout too low", "proxy:\n  timeout: 500ms\n", "proxy timeout"},
		{"cache ttl too low", "cache:\n  ttl: 10s\n", "cache.ttl"},
		{"llm without model", "llm:\n  endpoint: http://localhost:11434/v1\n", "llm.model is required"},
		{"llm temperature out of range", "llm:\n  endpoint: http://localhost:11434/v1\n  model: llama3\n  temperature: 3.5\n", "llm.temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)

	listen, timeout := cfg.GetServerConfig()
	assert.Equal(t, ":8080", listen)
	assert.Equal(t, 30*time.Second, timeout)

	assert.False(t, cfg.GetLLMConfig().Enabled())
}

func TestGenerateSchema(t *testing.T) {
	schema, err := GenerateSchema()
	require.NoError(t, err)

	data, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.Contains(t, string(data), "proxy")
	assert.Contains(t, string(data), "max_workers")
}

func TestVerifyAgainstEmbeddedSchema(t *testing.T) {
	cfg := Default()
	assert.NoError(t, VerifyAgainstEmbeddedSchema(cfg))
}
