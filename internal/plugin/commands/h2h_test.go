package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"thefinals-leaderboard-bot/internal/season"
)

func TestFormatH2H_ShowsDiffs(t *testing.T) {
	self := &season.Player{Name: "alice", Rank: 5, Score: 1000}
	target := &season.Player{Name: "bob", Rank: 10, Score: 800}

	out := formatH2H(self, target)
	assert.Contains(t, out, "alice vs bob")
	assert.Contains(t, out, "5 vs 10")
	assert.Contains(t, out, "-5")
	assert.Contains(t, out, "+200")
}
