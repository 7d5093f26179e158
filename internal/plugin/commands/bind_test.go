package commands

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thefinals-leaderboard-bot/internal/config"
	"thefinals-leaderboard-bot/internal/kvstore"
)

func newTestKV(t *testing.T) *kvstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := kvstore.New(config.KVStoreConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBindStore_SetThenGetRoundTrip(t *testing.T) {
	binds := NewBindStore(newTestKV(t))
	ctx := context.Background()

	_, ok, err := binds.Get(ctx, "user1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, binds.Set(ctx, "user1", "PlayerOne#0001"))
	id, ok, err := binds.Get(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "playerone#0001", id)
}

func TestBindStore_LockPreventsOverwrite(t *testing.T) {
	binds := NewBindStore(newTestKV(t))
	ctx := context.Background()

	require.NoError(t, binds.Set(ctx, "user1", "PlayerOne#0001"))
	require.NoError(t, binds.Lock(ctx, "user1"))

	err := binds.Set(ctx, "user1", "PlayerTwo#0002")
	assert.Error(t, err)

	id, _, _ := binds.Get(ctx, "user1")
	assert.Equal(t, "playerone#0001", id)

	require.NoError(t, binds.Unlock(ctx, "user1"))
	require.NoError(t, binds.Set(ctx, "user1", "PlayerTwo#0002"))
	id, _, _ = binds.Get(ctx, "user1")
	assert.Equal(t, "playertwo#0002", id)
}

func TestBindStore_Unset(t *testing.T) {
	binds := NewBindStore(newTestKV(t))
	ctx := context.Background()

	require.NoError(t, binds.Set(ctx, "user1", "player-one"))
	require.NoError(t, binds.Unset(ctx, "user1"))

	_, ok, err := binds.Get(ctx, "user1")
	require.NoError(t, err)
	assert.False(t, ok)
}
