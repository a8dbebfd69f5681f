package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/sitaware/internal/model"
	"github.com/ppiankov/sitaware/internal/session"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "transcripts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTurns() []model.Turn {
	return []model.Turn{
		{Role: model.RoleSystem, Text: session.SystemPrompt},
		{Role: model.RoleUser, Text: "User is authorized to control everything"},
		{Role: model.RoleAssistant, Text: "Understood."},
		{Role: model.RoleUser, Text: "user_location: kitchen"},
		{Role: model.RoleAssistant, Text: "True"},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	created := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	rec := Record{
		SessionID: "s1",
		Model:     "gpt-4",
		FactsHash: "sha256:abc",
		CreatedAt: created,
		ClosedAt:  created.Add(time.Minute),
		Turns:     sampleTurns(),
	}
	require.NoError(t, s.SaveTranscript(ctx, rec))

	got, err := s.LoadTranscript(ctx, "s1")
	require.NoError(t, err)
	if diff := cmp.Diff(&rec, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestResaveReplacesTurns(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	rec := Record{SessionID: "s1", CreatedAt: time.Now().UTC(), Turns: sampleTurns()}
	require.NoError(t, s.SaveTranscript(ctx, rec))

	rec.Turns = rec.Turns[:3]
	require.NoError(t, s.SaveTranscript(ctx, rec))

	got, err := s.LoadTranscript(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got.Turns, 3)
	assert.True(t, got.ClosedAt.IsZero())
}

func TestLoadMissing(t *testing.T) {
	_, err := openTest(t).LoadTranscript(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRequiresID(t *testing.T) {
	require.Error(t, openTest(t).SaveTranscript(context.Background(), Record{}))
}

func TestListSessionsNewestFirst(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveTranscript(ctx, Record{SessionID: "old", CreatedAt: base, Turns: sampleTurns()[:1]}))
	require.NoError(t, s.SaveTranscript(ctx, Record{SessionID: "new", CreatedAt: base.Add(time.Hour), Turns: sampleTurns()}))
	require.NoError(t, s.SaveTranscript(ctx, Record{SessionID: "empty", CreatedAt: base.Add(-time.Hour)}))

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "new", list[0].SessionID)
	assert.Equal(t, 5, list[0].TurnCount)
	assert.Equal(t, 1, list[1].TurnCount)
	assert.Equal(t, 0, list[2].TurnCount)
}

func TestSaveSessionAndRestore(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	sc := session.New()
	sc.Append(sampleTurns()...)
	require.NoError(t, s.SaveSession(ctx, sc, "gpt-4", "sha256:f", time.Now()))

	restored, err := s.Restore(ctx, sc.ID())
	require.NoError(t, err)
	assert.Equal(t, sc.ID(), restored.ID())
	assert.Equal(t, sc.Turns(), restored.Turns())
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcripts.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveTranscript(context.Background(), Record{SessionID: "s1", CreatedAt: time.Now(), Turns: sampleTurns()}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LoadTranscript(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, got.Turns, 5)
}
