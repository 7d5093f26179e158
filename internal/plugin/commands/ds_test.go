package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thefinals-leaderboard-bot/internal/plugin"
	"thefinals-leaderboard-bot/internal/season"
)

func idByName(p *season.Player) string { return p.Name }

func TestDisambiguationPlugin_ListsMatches(t *testing.T) {
	seasons := season.NewManager()
	idx := seasons.Index()
	idx.Build([]*season.Player{
		{Name: "alpha-wolf"},
		{Name: "alphabet"},
		{Name: "zeta"},
	}, idByName)

	p := NewDisambiguationPlugin(seasons, newTestKV(t))
	d := plugin.NewDispatcher()
	require.NoError(t, d.Register(context.Background(), p))

	resp, err := d.Dispatch(context.Background(), plugin.Message{Content: "/ds alpha"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "alpha-wolf")
}

func TestDisambiguationPlugin_NoMatches(t *testing.T) {
	seasons := season.NewManager()
	seasons.Index().Build([]*season.Player{{Name: "zeta"}}, idByName)

	p := NewDisambiguationPlugin(seasons, newTestKV(t))
	d := plugin.NewDispatcher()
	require.NoError(t, d.Register(context.Background(), p))

	resp, err := d.Dispatch(context.Background(), plugin.Message{Content: "/ds qqqqzzz"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "no players matched")
}
