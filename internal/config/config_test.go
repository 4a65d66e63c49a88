package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_MODEL", "")
	t.Setenv("RETRIEVAL_MODE", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("STORE_DSN", "")
	t.Setenv("AI_TIMEOUT", "")
	t.Setenv("RETENTION_SCHEDULE", "")
	t.Setenv("CONVERSATION_IDLE_TTL", "")
	t.Setenv("GUEST_DATA_TTL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "clinical", cfg.Policy.Variant)
	assert.Equal(t, RetrievalStatic, cfg.Retrieval.Mode)
	assert.InDelta(t, 0.78, cfg.Retrieval.Threshold, 1e-9)
	assert.Equal(t, 5, cfg.Retrieval.MatchCount)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.NotEmpty(t, cfg.Store.DSN)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
	assert.False(t, cfg.AI.Enabled())
	assert.Equal(t, "@every 5m", cfg.Retention.Schedule)
	assert.Equal(t, 30*time.Minute, cfg.Retention.ConversationIdleTTL)
	assert.Equal(t, 24*time.Hour, cfg.Retention.GuestTTL)
}

func TestProviderPrefersOpenRouterKey(t *testing.T) {
	cfg := AIConfig{OpenRouterAPIKey: "key", APIKey: "ark", Model: "m"}
	assert.Equal(t, ProviderOpenRouter, cfg.Provider())

	cfg.OpenRouterAPIKey = ""
	assert.Equal(t, ProviderArk, cfg.Provider())

	cfg.Model = ""
	assert.Equal(t, "", cfg.Provider())
}

func TestLoadRejectsPlaceholderOpenRouterKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "your_openrouter_api_key_here")

	ai, err := loadAIConfig()
	require.NoError(t, err)
	assert.Empty(t, ai.OpenRouterAPIKey)
}

func TestLoadServerConfigRejectsSpaces(t *testing.T) {
	t.Setenv("PORT", "80 80")

	_, err := loadServerConfig()
	require.Error(t, err)
}

func TestLoadRetrievalConfigRejectsUnknownMode(t *testing.T) {
	t.Setenv("RETRIEVAL_MODE", "graph")

	_, err := loadRetrievalConfig()
	require.Error(t, err)
}

func TestVectorEnabled(t *testing.T) {
	cfg := RetrievalConfig{Mode: RetrievalVector, Matcher: MatcherPostgres, GenAIAPIKey: "k"}
	assert.False(t, cfg.VectorEnabled())

	cfg.PostgresDSN = "postgres://localhost/db"
	assert.True(t, cfg.VectorEnabled())

	cfg.Mode = RetrievalStatic
	assert.False(t, cfg.VectorEnabled())
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("AI_TIMEOUT", "45s")
	d, err := parseDurationEnv("AI_TIMEOUT", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)

	t.Setenv("AI_TIMEOUT", "-1s")
	_, err = parseDurationEnv("AI_TIMEOUT", time.Second)
	require.Error(t, err)
}
