package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4o")
	require.NoError(t, err)

	assert.Equal(t, 0, tc.CountTokens(""))
	assert.Greater(t, tc.CountTokens("I keep avoiding hard conversations with my partner"), 5)
}

func TestValidateTokenLimit(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4o")
	require.NoError(t, err)

	assert.True(t, tc.ValidateTokenLimit("short", 10))
	assert.False(t, tc.ValidateTokenLimit(strings.Repeat("word ", 200), 10))
}

func TestTruncateToTokenLimit(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4o")
	require.NoError(t, err)

	short := "stays as is"
	assert.Equal(t, short, tc.TruncateToTokenLimit(short, 100))

	long := strings.Repeat("the user keeps avoiding conflict ", 100)
	truncated := tc.TruncateToTokenLimit(long, 50)
	assert.Less(t, len(truncated), len(long))
	assert.True(t, strings.HasSuffix(truncated, "..."))
	assert.LessOrEqual(t, tc.CountTokens(truncated), 60)
}
