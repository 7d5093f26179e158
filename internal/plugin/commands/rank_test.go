package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thefinals-leaderboard-bot/internal/season"
)

func TestResolveIDAndSeason_ExplicitArgs(t *testing.T) {
	seasons := season.NewManager()
	id, seasonID, err := resolveIDAndSeason(context.Background(), nil, seasons, "u1", []string{"playerX", "s5"})
	require.NoError(t, err)
	assert.Equal(t, "playerX", id)
	assert.Equal(t, "s5", seasonID)
}

func TestResolveIDAndSeason_FallsBackToBoundID(t *testing.T) {
	binds := NewBindStore(newTestKV(t))
	require.NoError(t, binds.Set(context.Background(), "u1", "BoundPlayer#0001"))

	seasons := season.NewManager()
	id, _, err := resolveIDAndSeason(context.Background(), binds, seasons, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, "boundplayer#0001", id)
}

func TestResolveIDAndSeason_NoArgsNoBindErrors(t *testing.T) {
	binds := NewBindStore(newTestKV(t))
	seasons := season.NewManager()

	_, _, err := resolveIDAndSeason(context.Background(), binds, seasons, "u1", nil)
	assert.Error(t, err)
}

func TestResolveIDAndSeason_NoBindStoreErrors(t *testing.T) {
	seasons := season.NewManager()
	_, _, err := resolveIDAndSeason(context.Background(), nil, seasons, "u1", nil)
	assert.Error(t, err)
}
