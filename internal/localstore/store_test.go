package localstore_test

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ganot/dayloop/internal/localstore"
)

func newTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := localstore.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.False(t, store.Degraded())
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetSetDelete(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("missing")
	require.ErrorIs(t, err, localstore.ErrNotFound)

	require.NoError(t, store.Set("k", "v1"))
	got, err := store.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v1", got)

	require.NoError(t, store.Set("k", "v2"))
	got, err = store.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v2", got)

	require.NoError(t, store.Delete("k"))
	_, err = store.Get("k")
	require.ErrorIs(t, err, localstore.ErrNotFound)

	require.NoError(t, store.Delete("k"), "deleting an absent key is fine")
}

func TestJSONRoundTrip(t *testing.T) {
	store := newTestStore(t)

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, store.SetJSON("p", payload{Name: "x", Count: 3}))

	var got payload
	require.NoError(t, store.GetJSON("p", &got))
	require.Equal(t, payload{Name: "x", Count: 3}, got)

	require.NoError(t, store.Set("bad", "{not json"))
	require.Error(t, store.GetJSON("bad", &got))
}

func TestBackupRoundTrip(t *testing.T) {
	store := newTestStore(t)

	data := []string{"one", "two"}
	before := time.Now().UTC()
	require.NoError(t, store.SaveBackup("activities", data))

	var got []string
	ts, err := store.LoadBackup("activities", &got)
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.False(t, ts.Before(before.Add(-time.Second)))

	_, err = store.LoadBackup("nothing", &got)
	require.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestLegacyData(t *testing.T) {
	store := newTestStore(t)
	require.False(t, store.HasLegacyData())

	require.NoError(t, store.Set(localstore.KeyCursor, "3"))
	require.True(t, store.HasLegacyData())

	require.NoError(t, store.ClearLegacyData())
	require.False(t, store.HasLegacyData())
	_, err := store.Get(localstore.KeyCursor)
	require.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestDegradedMode(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// A directory path cannot be opened as a database file.
	store := localstore.Open(t.TempDir(), logger)
	require.True(t, store.Degraded())

	require.NoError(t, store.Set("k", "v"))
	got, err := store.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)

	require.NoError(t, store.SaveBackup("history", []int{1, 2}))
	var out []int
	_, err = store.LoadBackup("history", &out)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, out)

	require.NoError(t, store.Close())
}

func TestPersistenceAcrossOpens(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "persist.db")

	first := localstore.Open(path, logger)
	require.False(t, first.Degraded())
	require.NoError(t, first.Set("k", "v"))
	require.NoError(t, first.Close())

	second := localstore.Open(path, logger)
	defer second.Close()
	got, err := second.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}
