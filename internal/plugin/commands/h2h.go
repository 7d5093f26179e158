package commands

import (
	"context"
	"fmt"
	"strings"

	"thefinals-leaderboard-bot/internal/kvstore"
	"thefinals-leaderboard-bot/internal/plugin"
	"thefinals-leaderboard-bot/internal/season"
)

// NewH2HPlugin registers /h2h <target>, comparing the caller's bound id
// against target as a rank/score text diff.
func NewH2HPlugin(seasons *season.Manager, binds *BindStore, kv *kvstore.Store) *plugin.Plugin {
	b := plugin.NewBuilder("h2h", kv)

	b.RegisterCommand("h2h", "compare your bound id against another player", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		args := strings.Fields(msg.Content)
		if len(args) < 2 {
			return &plugin.Response{Text: "usage: /h2h <target id>"}, nil
		}
		targetID := args[1]

		selfID, ok, err := binds.Get(ctx, msg.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &plugin.Response{Text: "bind your id first with /bind <id>"}, nil
		}

		seasonID := seasons.CurrentSeasonID()
		self, ok, err := seasons.GetPlayerData(ctx, selfID, seasonID, true)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &plugin.Response{Text: fmt.Sprintf("your bound id %q has no data this season", selfID)}, nil
		}

		target, ok, err := seasons.GetPlayerData(ctx, targetID, seasonID, true)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &plugin.Response{Text: fmt.Sprintf("no player found matching %q", targetID)}, nil
		}

		return &plugin.Response{Text: formatH2H(self, target)}, nil
	})

	return b.Build()
}

func formatH2H(self, target *season.Player) string {
	rankDiff := self.Rank - target.Rank
	scoreDiff := self.Score - target.Score
	return fmt.Sprintf(
		"%s vs %s\nrank: %d vs %d (%+d)\nscore: %d vs %d (%+d)",
		self.Name, target.Name,
		self.Rank, target.Rank, rankDiff,
		self.Score, target.Score, scoreDiff,
	)
}
