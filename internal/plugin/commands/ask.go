package commands

import (
	"context"
	"math/rand"
	"strings"

	"thefinals-leaderboard-bot/internal/kvstore"
	"thefinals-leaderboard-bot/internal/plugin"
)

var defaultOracleAnswers = []string{
	"是的", "不是", "可能吧", "再问一次", "我不知道",
}

// NewOraclePlugin registers /ask <question>, answering with a random pick
// from a plugin-configured (or default) answer list. The config is stored
// under the plugin's own KVS namespace so a future admin command can
// customize the answer pool without a redeploy.
func NewOraclePlugin(kv *kvstore.Store) *plugin.Plugin {
	b := plugin.NewBuilder("oracle", kv)

	b.RegisterCommand("ask", "ask the magic conch a yes/no question", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		args := strings.Fields(msg.Content)
		if len(args) < 2 {
			return &plugin.Response{Text: "usage: /ask <question>"}, nil
		}

		var cfg struct {
			Answers []string `json:"answers"`
		}
		if err := b.Data().LoadConfig(ctx, &cfg); err != nil {
			return nil, err
		}
		answers := cfg.Answers
		if len(answers) == 0 {
			answers = defaultOracleAnswers
		}

		return &plugin.Response{Text: answers[rand.Intn(len(answers))]}, nil
	})

	return b.Build()
}
