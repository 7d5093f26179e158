package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thefinals-leaderboard-bot/internal/plugin"
)

func TestBindPlugin_BindUnbindLockUnlock(t *testing.T) {
	kv := newTestKV(t)
	binds := NewBindStore(kv)
	p := NewBindPlugin(binds, kv)

	d := plugin.NewDispatcher()
	require.NoError(t, d.Register(context.Background(), p))

	resp, err := d.Dispatch(context.Background(), plugin.Message{Content: "/bind PlayerX#0001", UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "PlayerX#0001")

	resp, err = d.Dispatch(context.Background(), plugin.Message{Content: "/lock", UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "locked")

	resp, err = d.Dispatch(context.Background(), plugin.Message{Content: "/bind PlayerY#0002", UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "locked")

	resp, err = d.Dispatch(context.Background(), plugin.Message{Content: "/unlock", UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "unlocked")

	resp, err = d.Dispatch(context.Background(), plugin.Message{Content: "/unbind", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "unbound", resp.Text)

	id, ok, err := binds.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)
}
