package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbright/huddle/internal/fsm"
	"github.com/rbright/huddle/internal/session"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndRecentNewestFirst(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"s1", "s2", "s3"} {
		runID, err := store.Record(ctx, Entry{
			SessionID: id,
			GuildID:   "g",
			ChannelID: "c",
			Identity:  "primary",
			State:     "done",
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			EndedAt:   base.Add(time.Duration(i)*time.Hour + 30*time.Minute),
			Speakers:  i + 1,
		})
		require.NoError(t, err)
		require.NotEmpty(t, runID)
	}

	entries, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "s3", entries[0].SessionID)
	require.Equal(t, "s2", entries[1].SessionID)
	require.Equal(t, 3, entries[0].Speakers)
	require.True(t, entries[0].StartedAt.Equal(base.Add(2*time.Hour)))

	_, err = store.Recent(ctx, 0)
	require.Error(t, err)
}

func TestSessionEndedStoresSummary(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var observer session.Observer = store
	observer.SessionEnded(ctx, session.Summary{
		ID:          "2026-03-01_100000",
		GroupID:     "g1",
		ChannelID:   "c1",
		ChannelName: "standup",
		Identity:    "worker-1",
		State:       fsm.StateAbortedConnect,
		StartedAt:   now,
		EndedAt:     now.Add(time.Minute),
		Err:         errors.New("voice connect failed"),
	})
	observer.SessionEnded(ctx, session.Summary{
		ID:             "2026-03-01_110000",
		ChannelID:      "c1",
		State:          fsm.StateDone,
		StartedAt:      now.Add(time.Hour),
		EndedAt:        now.Add(2 * time.Hour),
		Speakers:       2,
		TranscriptPath: "/t/meeting_2026-03-01_110000.txt",
	})

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "done", entries[0].State)
	require.Equal(t, "/t/meeting_2026-03-01_110000.txt", entries[0].TranscriptPath)
	require.Empty(t, entries[0].Error)
	require.Equal(t, "aborted_connect", entries[1].State)
	require.Equal(t, "voice connect failed", entries[1].Error)
	require.Equal(t, "standup", entries[1].ChannelName)
	require.NotEqual(t, entries[0].RunID, entries[1].RunID)
}

func TestOpenFileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.sqlite")
	store, err := Open(path, nil)
	require.NoError(t, err)
	_, err = store.Record(context.Background(), Entry{SessionID: "s1", State: "done"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	entries, err := reopened.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "s1", entries[0].SessionID)
}

func TestDefaultPathUsesXDGStateHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/state")
	path, err := DefaultPath()
	require.NoError(t, err)
	require.Equal(t, "/tmp/state/huddle/history.sqlite", path)
}
