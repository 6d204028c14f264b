package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parliament/pkg/session"
)

func testArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func finalizedSession(id string) *session.Session {
	return &session.Session{
		ID:             id,
		Phase:          session.PhaseFinalResponse,
		RoundNumber:    3,
		SourceQuestion: "I keep avoiding hard conversations with my partner",
		Messages: []session.Message{
			{Speaker: session.SpeakerUser, Role: "user", Content: "I keep avoiding hard conversations", Timestamp: time.Now()},
			{Speaker: session.SpeakerChair, Role: "assistant", Content: "final response", Timestamp: time.Now()},
		},
	}
}

func TestSaveAndGet(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()

	summary := map[string]any{"patternName": "The quiet retreat", "steps": []string{"one", "two"}}
	require.NoError(t, a.SaveFinalized(ctx, finalizedSession("s1"), summary, "The quiet retreat", "Change has a price."))

	got, err := a.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, "The quiet retreat", got.PatternName)
	assert.Equal(t, "Change has a price.", got.Closing)
	assert.Len(t, got.Messages, 2)
	assert.Contains(t, string(got.Summary), "quiet retreat")
}

func TestGetUnknownSession(t *testing.T) {
	a := testArchive(t)

	_, err := a.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()

	require.NoError(t, a.SaveFinalized(ctx, finalizedSession("old"), map[string]any{}, "p1", "c1"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, a.SaveFinalized(ctx, finalizedSession("new"), map[string]any{}, "p2", "c2"))

	list, err := a.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)

	limited, err := a.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
