package commands

import (
	"context"
	"fmt"

	"thefinals-leaderboard-bot/internal/kvstore"
	"thefinals-leaderboard-bot/internal/plugin"
	"thefinals-leaderboard-bot/internal/season"
)

const aboutText = "THE FINALS leaderboard bot — /rank, /club, /h2h, /weapon, /ds, /bind, /ask, /bird"

const whyText = "rank cards and club rosters are rendered as images because THE FINALS leaderboard data doesn't fit cleanly in a chat message; everything else is text."

// NewStatusPlugin registers /status, /about, /info and /why.
func NewStatusPlugin(seasons *season.Manager, kv *kvstore.Store) *plugin.Plugin {
	b := plugin.NewBuilder("status", kv)

	b.RegisterCommand("status", "show the currently tracked season", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		return &plugin.Response{Text: fmt.Sprintf("tracking season %s", seasons.CurrentSeasonID())}, nil
	})

	b.RegisterCommand("about", "show what this bot does", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		return &plugin.Response{Text: aboutText}, nil
	})

	b.RegisterCommand("info", "alias for /about", true, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		return &plugin.Response{Text: aboutText}, nil
	})

	b.RegisterCommand("why", "explain why lookups return images", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		return &plugin.Response{Text: whyText}, nil
	})

	return b.Build()
}
