package commands

import (
	"context"
	"fmt"
	"strings"

	"thefinals-leaderboard-bot/internal/club"
	"thefinals-leaderboard-bot/internal/imagestore"
	"thefinals-leaderboard-bot/internal/kvstore"
	"thefinals-leaderboard-bot/internal/plugin"
	"thefinals-leaderboard-bot/internal/render"
	"thefinals-leaderboard-bot/internal/shared/utils"
)

// ClubDeps bundles the engine components the club lookup command needs.
type ClubDeps struct {
	Clubs  *club.Cache
	Render *render.Pool
	Images *imagestore.Store
}

// NewClubPlugin registers /club <tag>, rendering a member roster image.
func NewClubPlugin(deps ClubDeps, kv *kvstore.Store) *plugin.Plugin {
	b := plugin.NewBuilder("club", kv)

	b.RegisterCommand("club", "look up a club's member roster", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		args := strings.Fields(msg.Content)
		if len(args) < 2 {
			return &plugin.Response{Text: "usage: /club <tag>"}, nil
		}
		tag := utils.NormalizeClubTag(args[1])

		c, ok, err := deps.Clubs.GetClub(ctx, tag, true)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &plugin.Response{Text: fmt.Sprintf("no club found matching %q", tag)}, nil
		}

		result, err := deps.Render.Render(ctx, render.Request{
			TemplateName: "club_roster.html",
			TemplateData: c,
		})
		if err != nil {
			return &plugin.Response{Text: "failed to render club roster"}, nil
		}

		imageID, err := deps.Images.Save(result.JPEG, 0)
		if err != nil {
			return &plugin.Response{Text: "failed to save club roster image"}, nil
		}
		path, _ := deps.Images.GetPath(imageID)
		return &plugin.Response{ImagePath: path}, nil
	})

	return b.Build()
}
