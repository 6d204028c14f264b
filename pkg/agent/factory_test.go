package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parliament/pkg/config"
)

func factoryConfig() config.Config {
	cfg := *config.DefaultConfig()
	cfg.Models = config.ModelsConfig{
		Expert:      "gpt-4o-mini",
		Synthesizer: "claude-sonnet-4-5",
		Chair:       "gemini-2.5-flash",
	}
	return cfg
}

func TestCreateClientPerRole(t *testing.T) {
	t.Setenv(config.SecretOpenAIAPIKey, "sk-test")
	t.Setenv(config.SecretAnthropicAPIKey, "sk-ant-test")
	t.Setenv(config.SecretGeminiAPIKey, "gm-test")

	factory := NewLLMClientFactory(factoryConfig(), nil)

	tests := []struct {
		role  Role
		model string
	}{
		{RoleExpert, "gpt-4o-mini"},
		{RoleSynthesizer, "claude-sonnet-4-5"},
		{RoleChair, "gemini-2.5-flash"},
	}
	for _, tt := range tests {
		client, err := factory.CreateClient(tt.role)
		require.NoError(t, err, tt.role)
		assert.Equal(t, tt.model, client.GetModelName(), tt.role)
	}
}

func TestCreateClientMissingKey(t *testing.T) {
	config.SetDecryptedSecrets(nil)
	t.Setenv(config.SecretOpenAIAPIKey, "")

	factory := NewLLMClientFactory(factoryConfig(), nil)
	_, err := factory.CreateClient(RoleExpert)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestCreateClientOllamaNeedsNoKey(t *testing.T) {
	cfg := factoryConfig()
	cfg.Models.Expert = "llama3.2"

	factory := NewLLMClientFactory(cfg, nil)
	client, err := factory.CreateClient(RoleExpert)
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", client.GetModelName())
}

func TestCreateClientUnknownRole(t *testing.T) {
	factory := NewLLMClientFactory(factoryConfig(), nil)
	_, err := factory.CreateClient(Role("auditor"))
	assert.Error(t, err)
}
