package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thefinals-leaderboard-bot/internal/plugin"
)

func TestBirdPlugin_SubmitAndRank(t *testing.T) {
	kv := newTestKV(t)
	p := NewBirdPlugin(kv)
	d := plugin.NewDispatcher()
	require.NoError(t, d.Register(context.Background(), p))

	resp, err := d.Dispatch(context.Background(), plugin.Message{Content: "/bird 42", UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "rank #1")

	resp, err = d.Dispatch(context.Background(), plugin.Message{Content: "/bird 100", UserID: "u2"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "rank #1")

	resp, err = d.Dispatch(context.Background(), plugin.Message{Content: "/bird", UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "top scores")
}

func TestBirdPlugin_EmptyLeaderboard(t *testing.T) {
	p := NewBirdPlugin(newTestKV(t))
	d := plugin.NewDispatcher()
	require.NoError(t, d.Register(context.Background(), p))

	resp, err := d.Dispatch(context.Background(), plugin.Message{Content: "/bird", UserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "no Flappy Bird scores")
}
