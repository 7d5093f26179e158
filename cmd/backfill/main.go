// Command backfill bulk-loads one or more historical seasons into the
// embedded SQL store and exits. It is the one-shot counterpart to the
// server's own historical-pipeline startup path: safe to run repeatedly,
// since each season's pipeline skips the fetch once its store already has
// rows.
package main

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"thefinals-leaderboard-bot/internal/config"
	"thefinals-leaderboard-bot/internal/finalsapi"
	"thefinals-leaderboard-bot/internal/httpcache"
	"thefinals-leaderboard-bot/internal/logging"
	"thefinals-leaderboard-bot/internal/season"
	"thefinals-leaderboard-bot/internal/sqlstore"
)

func main() {
	cfg, err := config.Load(os.Getenv("LB_CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Server.Env)

	seasonIDs := cfg.Season.HistoricalSeasonIDs
	if v := os.Getenv("BACKFILL_SEASON_IDS"); v != "" {
		seasonIDs = strings.Split(v, ",")
	}
	if len(seasonIDs) == 0 {
		log.Fatal().Msg("no historical season ids configured to backfill")
	}

	hcc := httpcache.New(cfg.FinalsAPI)
	api := finalsapi.New(hcc)
	ctx := context.Background()

	for _, seasonID := range seasonIDs {
		seasonID = strings.TrimSpace(seasonID)
		if seasonID == "" {
			continue
		}
		if err := backfillSeason(ctx, api, cfg.SQLStore.Path, seasonID); err != nil {
			log.Error().Err(err).Str("season", seasonID).Msg("backfill failed")
			continue
		}
		log.Info().Str("season", seasonID).Msg("backfill complete")
	}
}

func backfillSeason(ctx context.Context, api *finalsapi.Client, dataDir, seasonID string) error {
	store, err := sqlstore.Open(dataDir, seasonID)
	if err != nil {
		return err
	}
	defer store.Close()

	pipeline := season.NewHistorical(seasonID, api, store)
	return pipeline.Start(ctx)
}
