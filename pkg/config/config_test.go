package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	ResetForTest()
	dir := t.TempDir()

	require.NoError(t, LoadConfig(dir))

	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, cfg.SchemaVersion)
	assert.Equal(t, 3, cfg.Parliament.MaxExplorationRounds)
	assert.NotEmpty(t, cfg.Models.Chair)

	_, err = os.Stat(ConfigPath(dir))
	assert.NoError(t, err)
}

func TestLoadConfigIdempotent(t *testing.T) {
	ResetForTest()
	dir := t.TempDir()

	require.NoError(t, LoadConfig(dir))
	require.NoError(t, UpdateModels(&ModelsConfig{
		Expert:      "gpt-4o-mini",
		Synthesizer: "gpt-4o",
		Chair:       "claude-sonnet-4-5",
	}))

	// Second load must reuse the in-memory instance, not re-read defaults.
	require.NoError(t, LoadConfig(dir))
	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Models.Chair)
}

func TestUpdateModelsRejectsUnknownProvider(t *testing.T) {
	ResetForTest()
	require.NoError(t, LoadConfig(t.TempDir()))

	err := UpdateModels(&ModelsConfig{
		Expert:      "totally-unknown-model",
		Synthesizer: "gpt-4o",
		Chair:       "gpt-4o",
	})
	require.Error(t, err)

	// Rejected update must not change the live config.
	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Models.Expert)
}

func TestGetConfigBeforeLoad(t *testing.T) {
	ResetForTest()
	_, err := GetConfig()
	assert.Error(t, err)
}

func TestGetModelProvider(t *testing.T) {
	tests := []struct {
		model    string
		provider string
	}{
		{"claude-sonnet-4-5", ProviderAnthropic},
		{"gpt-4o", ProviderOpenAI},
		{"gemini-2.5-flash", ProviderGoogle},
		{"llama3.2", ProviderOllama},
		{"ollama:phi4", ProviderOllama},
		{"gpt-99-experimental", ProviderOpenAI}, // pattern inference
	}
	for _, tt := range tests {
		provider, err := GetModelProvider(tt.model)
		require.NoError(t, err, tt.model)
		assert.Equal(t, tt.provider, provider, tt.model)
	}

	_, err := GetModelProvider("mystery-model-x")
	assert.Error(t, err)
}

func TestGetModelInfoUnknownDefaults(t *testing.T) {
	info, known := GetModelInfo("claude-future-99")
	assert.False(t, known)
	assert.Equal(t, ProviderAnthropic, info.Provider)
	assert.Equal(t, 32000, info.MaxContextTokens)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Parliament.MaxExplorationRounds = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Models.Chair = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SchemaVersion = 99
	assert.Error(t, cfg.Validate())
}
