// Package commands holds the concrete plugins registered with
// internal/plugin.Dispatcher in cmd/server/main.go — every slash command,
// keyword, and regex handler the engine serves.
package commands

import (
	"context"
	"fmt"
	"strings"

	"thefinals-leaderboard-bot/internal/imagestore"
	"thefinals-leaderboard-bot/internal/kvstore"
	"thefinals-leaderboard-bot/internal/plugin"
	"thefinals-leaderboard-bot/internal/render"
	"thefinals-leaderboard-bot/internal/season"
	"thefinals-leaderboard-bot/internal/shared/utils"
)

// RankDeps bundles the engine components the rank-lookup commands need.
type RankDeps struct {
	Seasons *season.Manager
	Render  *render.Pool
	Images  *imagestore.Store
	Binds   *BindStore
}

// NewRankPlugin registers /rank and its historical aliases, each rendering
// a rank card image for the resolved player.
func NewRankPlugin(deps RankDeps, kv *kvstore.Store) *plugin.Plugin {
	b := plugin.NewBuilder("rank", kv)

	handler := rankHandler(deps)
	b.RegisterCommand("rank", "look up a player's current rank", false, handler)
	b.RegisterCommand("r", "alias for /rank", true, handler)
	b.RegisterCommand("wt", "alias for /rank (World Tour view)", true, handler)
	b.RegisterCommand("all", "alias for /rank (all platforms)", true, handler)
	b.RegisterCommand("ps", "alias for /rank (PlayStation)", true, handler)
	b.RegisterCommand("dm", "alias for /rank (Deathmatch view)", true, handler)
	b.RegisterCommand("qc", "alias for /rank (Quick Cash view)", true, handler)

	return b.Build()
}

func rankHandler(deps RankDeps) plugin.Handler {
	return func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		args := strings.Fields(msg.Content)[1:]
		id, seasonID, err := resolveIDAndSeason(ctx, deps.Binds, deps.Seasons, msg.UserID, args)
		if err != nil {
			return &plugin.Response{Text: err.Error()}, nil
		}

		player, ok, err := deps.Seasons.GetPlayerData(ctx, id, seasonID, true)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &plugin.Response{Text: fmt.Sprintf("no player found matching %q in season %s", id, seasonID)}, nil
		}

		result, err := deps.Render.Render(ctx, render.Request{
			TemplateName: "rank_card.html",
			TemplateData: map[string]any{
				"Rank":     player.Rank,
				"Name":     player.Name,
				"Score":    player.Score,
				"SeasonID": seasonID,
			},
		})
		if err != nil {
			return &plugin.Response{Text: "failed to render rank card"}, nil
		}

		imageID, err := deps.Images.Save(result.JPEG, 0)
		if err != nil {
			return &plugin.Response{Text: "failed to save rank card image"}, nil
		}
		path, _ := deps.Images.GetPath(imageID)
		return &plugin.Response{ImagePath: path}, nil
	}
}

// resolveIDAndSeason picks the lookup id (first arg, or the caller's bound
// id) and season (second arg, or the manager's current season).
func resolveIDAndSeason(ctx context.Context, binds *BindStore, seasons *season.Manager, userID string, args []string) (string, string, error) {
	var id string
	if len(args) > 0 {
		id = args[0]
	} else if binds != nil {
		bound, ok, err := binds.Get(ctx, userID)
		if err != nil {
			return "", "", err
		}
		if !ok {
			return "", "", fmt.Errorf("no id bound — use /bind <id> or pass one directly")
		}
		id = bound
	} else {
		return "", "", fmt.Errorf("usage: /rank <id> [season]")
	}

	seasonID := seasons.CurrentSeasonID()
	if len(args) > 1 {
		v := utils.NewValidator().SeasonID("season", args[1])
		if !v.IsValid() {
			return "", "", v.Error()
		}
		seasonID = args[1]
	}
	return id, seasonID, nil
}
