package logx

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainFiltering(t *testing.T) {
	SetDebugConfig(true, []string{"parliament"})
	defer SetDebugConfig(false, nil)

	assert.True(t, IsDebugEnabledForDomain("parliament"))
	assert.False(t, IsDebugEnabledForDomain("webui"))
}

func TestDomainFilteringAllDomains(t *testing.T) {
	SetDebugConfig(true, nil)
	defer SetDebugConfig(false, nil)

	assert.True(t, IsDebugEnabledForDomain("parliament"))
	assert.True(t, IsDebugEnabledForDomain("anything"))
}

func TestDebugDisabled(t *testing.T) {
	SetDebugConfig(false, nil)
	assert.False(t, IsDebugEnabledForDomain("parliament"))
}

func TestLogBufferCap(t *testing.T) {
	buf := &InMemoryLogBuffer{maxSize: 3}
	for i := 0; i < 5; i++ {
		buf.AddLogEntry(&LogEntry{
			Timestamp: time.Now().UTC().Format(timestampLayout),
			Component: "test",
			Level:     string(LevelInfo),
			Message:   "entry",
		})
	}

	entries := buf.GetLogEntries("", time.Time{})
	assert.Len(t, entries, 3)
}

func TestLogBufferDomainFilter(t *testing.T) {
	buf := &InMemoryLogBuffer{maxSize: 10}
	buf.AddLogEntry(&LogEntry{Timestamp: "2026-01-01T00:00:00.000Z", Level: "DEBUG", Domain: "chair", Message: "a"})
	buf.AddLogEntry(&LogEntry{Timestamp: "2026-01-01T00:00:01.000Z", Level: "DEBUG", Domain: "session", Message: "b"})
	buf.AddLogEntry(&LogEntry{Timestamp: "2026-01-01T00:00:02.000Z", Level: "INFO", Message: "c"})

	entries := buf.GetLogEntries("chair", time.Time{})
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Message)
	// Domainless entries pass every domain filter.
	assert.Equal(t, "c", entries[1].Message)
}

func TestLogBufferSinceFilter(t *testing.T) {
	buf := &InMemoryLogBuffer{maxSize: 10}
	buf.AddLogEntry(&LogEntry{Timestamp: "2026-01-01T00:00:00.000Z", Level: "INFO", Message: "old"})
	buf.AddLogEntry(&LogEntry{Timestamp: "2026-01-02T00:00:00.000Z", Level: "INFO", Message: "new"})

	since, err := time.Parse(timestampLayout, "2026-01-01T12:00:00.000Z")
	require.NoError(t, err)

	entries := buf.GetLogEntries("", since)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Message)
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := os.ErrNotExist
	err := Wrap(cause, "reading config")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "reading config")
}

func TestInitializeLogFilePrunes(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"parliament-20250101-000000.log",
		"parliament-20250102-000000.log",
		"parliament-20250103-000000.log",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	require.NoError(t, InitializeLogFile(dir, 2, false))
	defer func() { require.NoError(t, CloseLogFile()) }()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
