package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, "s5")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutFlushGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, PlayerRow{Name: "Player1", Data: `{"rank":1}`, Rank: 1, Score: 1000}))
	require.NoError(t, s.Flush(ctx))

	row, found, err := s.GetPlayer(ctx, "player1", false)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "player1", row.Name)
	assert.Equal(t, 1, row.Rank)
	assert.Equal(t, int64(1000), row.Score)
}

func TestStore_GetPlayerFuzzyFallback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, PlayerRow{Name: "SomeLongHandle", Data: "{}", Rank: 2, Score: 500}))
	require.NoError(t, s.Flush(ctx))

	_, found, err := s.GetPlayer(ctx, "longhandle", false)
	require.NoError(t, err)
	assert.False(t, found)

	row, found, err := s.GetPlayer(ctx, "longhandle", true)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "somelonghandle", row.Name)
}

func TestStore_GetFlushesPendingWritesFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, PlayerRow{Name: "Unflushed", Data: "{}", Rank: 3, Score: 10}))

	row, found, err := s.GetPlayer(ctx, "unflushed", false)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "unflushed", row.Name)
}

func TestStore_BulkInsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := []PlayerRow{
		{Name: "A", Data: "{}", Rank: 1, Score: 100},
		{Name: "B", Data: "{}", Rank: 2, Score: 90},
	}
	require.NoError(t, s.BulkInsert(ctx, rows))

	n, err := s.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_DoRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := s.Do(ctx, func(tx *sql.Tx) error {
		if _, execErr := tx.ExecContext(ctx, `INSERT OR REPLACE INTO player_data
			(player_name, data, rank, score, updated_at) VALUES (?, ?, ?, ?, ?)`,
			"rollback-me", "{}", 1, 1, time.Now()); execErr != nil {
			return execErr
		}
		return sentinel
	})
	require.Error(t, err)

	_, found, getErr := s.GetPlayer(ctx, "rollback-me", false)
	require.NoError(t, getErr)
	assert.False(t, found)
}

func TestStore_BackupCreatesFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, PlayerRow{Name: "X", Data: "{}", Rank: 1, Score: 1}))
	require.NoError(t, s.Flush(ctx))

	require.NoError(t, s.Backup())

	matches, err := filepath.Glob(filepath.Join(s.backupDir, "s5_*.db"))
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestStore_FlushIsIdempotentWhenEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, s.Flush(ctx))
}
