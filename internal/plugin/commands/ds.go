package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"thefinals-leaderboard-bot/internal/kvstore"
	"thefinals-leaderboard-bot/internal/plugin"
	"thefinals-leaderboard-bot/internal/season"
	"thefinals-leaderboard-bot/internal/shared/utils"
)

const dsPageSize = 40

// NewDisambiguationPlugin registers /ds <query> [page], returning fuzzy
// name matches as plain text instead of resolving to a single player — for
// callers who got a "no player found" result from /rank and want to see
// what the index actually holds. Each page takes up to dsPageSize of the
// best-scoring matches and lists them alphabetically by name. A trailing
// numeric argument pages through matches past the first dsPageSize.
func NewDisambiguationPlugin(seasons *season.Manager, kv *kvstore.Store) *plugin.Plugin {
	b := plugin.NewBuilder("disambiguate", kv)

	b.RegisterCommand("ds", "list players whose names fuzzy-match a query", false, func(ctx context.Context, msg plugin.Message) (*plugin.Response, error) {
		args := strings.Fields(msg.Content)
		if len(args) < 2 {
			return &plugin.Response{Text: "usage: /ds <query> [page]"}, nil
		}

		query, page := splitTrailingPage(args[1:])
		params := utils.NewPaginationParams(page, dsPageSize)

		all := seasons.Index().Search(query, params.Offset+params.Limit)
		if len(all) <= params.Offset {
			return &plugin.Response{Text: fmt.Sprintf("no players matched %q on page %d", query, params.Page)}, nil
		}
		pageMatches := all[params.Offset:]
		sort.SliceStable(pageMatches, func(i, j int) bool {
			return pageMatches[i].Record.Name < pageMatches[j].Record.Name
		})

		var sb strings.Builder
		fmt.Fprintf(&sb, "matches for %q (page %d):\n", query, params.Page)
		for i, m := range pageMatches {
			fmt.Fprintf(&sb, "%d. %s (score %.1f)\n", params.Offset+i+1, m.Record.Name, m.Score)
		}
		return &plugin.Response{Text: sb.String()}, nil
	})

	return b.Build()
}

// splitTrailingPage pulls a trailing page number off args, if present,
// returning the remaining query text and the requested page (1 if absent
// or not numeric).
func splitTrailingPage(args []string) (query string, page int) {
	page = 1
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[len(args)-1]); err == nil {
			page = n
			args = args[:len(args)-1]
		}
	}
	return strings.Join(args, " "), page
}
