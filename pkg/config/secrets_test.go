package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	secrets := map[string]string{
		SecretOpenAIAPIKey:    "sk-test-123",
		SecretAnthropicAPIKey: "sk-ant-456",
	}

	require.NoError(t, EncryptSecretsFile(dir, "correct horse", secrets))
	assert.True(t, SecretsFileExists(dir))

	got, err := DecryptSecretsFile(dir, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, secrets, got)
}

func TestSecretsWrongPassword(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "right", map[string]string{"K": "v"}))

	_, err := DecryptSecretsFile(dir, "wrong")
	assert.Error(t, err)
}

func TestSecretsFilePermissions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "pw", map[string]string{"K": "v"}))

	info, err := os.Stat(filepath.Join(dir, configDirName, secretsFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSecretsCorruptedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, configDirName), 0o755))
	path := filepath.Join(dir, configDirName, secretsFileName)
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

	_, err := DecryptSecretsFile(dir, "pw")
	assert.Error(t, err)
}

func TestGetSecretPrecedence(t *testing.T) {
	SetDecryptedSecrets(map[string]string{"PARLIAMENT_TEST_SECRET": "from-file"})
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	t.Setenv("PARLIAMENT_TEST_SECRET", "from-env")

	value, err := GetSecret("PARLIAMENT_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-file", value)
}

func TestGetSecretEnvFallback(t *testing.T) {
	SetDecryptedSecrets(nil)
	t.Setenv("PARLIAMENT_ENV_ONLY", "env-value")

	value, err := GetSecret("PARLIAMENT_ENV_ONLY")
	require.NoError(t, err)
	assert.Equal(t, "env-value", value)

	_, err = GetSecret("PARLIAMENT_MISSING_SECRET")
	assert.Error(t, err)
}
