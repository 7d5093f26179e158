package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thefinals-leaderboard-bot/internal/plugin"
)

func dispatchOne(t *testing.T, p *plugin.Plugin, msg plugin.Message) *plugin.Response {
	t.Helper()
	d := plugin.NewDispatcher()
	require.NoError(t, d.Register(context.Background(), p))
	resp, err := d.Dispatch(context.Background(), msg)
	require.NoError(t, err)
	return resp
}

func TestWeaponPlugin_FindsByAlias(t *testing.T) {
	p := NewWeaponPlugin(newTestKV(t))
	resp := dispatchOne(t, p, plugin.Message{Content: "/weapon smg"})
	assert.Contains(t, resp.Text, "M11")
}

func TestWeaponPlugin_FindsByExactName(t *testing.T) {
	p := NewWeaponPlugin(newTestKV(t))
	resp := dispatchOne(t, p, plugin.Message{Content: "/weapon SR-84"})
	assert.Contains(t, resp.Text, "SR-84")
}

func TestWeaponPlugin_NoMatch(t *testing.T) {
	p := NewWeaponPlugin(newTestKV(t))
	resp := dispatchOne(t, p, plugin.Message{Content: "/weapon doesnotexist"})
	assert.Contains(t, resp.Text, "no weapon found")
}

func TestWeaponPlugin_UsageWithoutArgs(t *testing.T) {
	p := NewWeaponPlugin(newTestKV(t))
	resp := dispatchOne(t, p, plugin.Message{Content: "/weapon"})
	assert.Contains(t, resp.Text, "usage")
}
