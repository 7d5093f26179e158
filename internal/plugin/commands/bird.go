package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"thefinals-leaderboard-bot/internal/kvstore"
	"thefinals-leaderboard-bot/internal/plugin"
	"thefinals-leaderboard-bot/internal/shared/utils"
)

const birdLeaderboardKey = "flappy_bird:scores"

// maxBirdScore caps submitted scores (a Flappy Bird round doesn't run long
// enough to rack up more than a few thousand points); a larger submission
// is clamped down to it rather than rejected.
const maxBirdScore = 1_000_000

// NewBirdPlugin registers /bird, a small side leaderboard unrelated to THE
// FINALS rank data: players submit a score and see where they land against
// everyone else who has played, backed by the kvstore sorted-set
// primitives.
func NewBirdPlugin(kv *kvstore.Store) *plugin.Plugin {
	b := plugin.NewBuilder("bird", kv)

	b.RegisterCommand("bird", "submit or check a Flappy Bird leaderboard score", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		args := strings.Fields(msg.Content)
		if len(args) < 2 {
			return showBirdLeaderboard(ctx, kv)
		}

		score, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return &plugin.Response{Text: "usage: /bird [score]"}, nil
		}
		score = float64(utils.Clamp(int64(score), 0, maxBirdScore))

		if err := kv.ZAdd(ctx, birdLeaderboardKey, score, msg.UserID); err != nil {
			return nil, err
		}
		rank, _, err := kv.ZRank(ctx, birdLeaderboardKey, msg.UserID)
		if err != nil {
			return nil, err
		}
		return &plugin.Response{Text: fmt.Sprintf("recorded score %.0f — rank #%d", score, rank+1)}, nil
	})

	return b.Build()
}

func showBirdLeaderboard(ctx context.Context, kv *kvstore.Store) (*plugin.Response, error) {
	top, err := kv.ZRevRange(ctx, birdLeaderboardKey, 10)
	if err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return &plugin.Response{Text: "no Flappy Bird scores yet — submit one with /bird <score>"}, nil
	}

	var sb strings.Builder
	sb.WriteString("Flappy Bird top scores:\n")
	for i, m := range top {
		fmt.Fprintf(&sb, "%d. %s — %.0f\n", i+1, m.Member, m.Score)
	}
	return &plugin.Response{Text: sb.String()}, nil
}
