// Command sweep runs a single image-store eviction pass against the
// configured directory and exits. It is meant to run from cron on a host
// where the server's own hourly in-process sweep isn't trusted alone — the
// server and this command can share the same directory since both only
// ever delete files older than the retention period.
package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"thefinals-leaderboard-bot/internal/config"
	"thefinals-leaderboard-bot/internal/imagestore"
	"thefinals-leaderboard-bot/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("LB_CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Server.Env)

	store, err := imagestore.Open(cfg.ImageStore.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open image store directory")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store.Close(ctx)
	}()

	removed, err := store.SweepDirectory(cfg.ImageStore.RetentionPeriod)
	if err != nil {
		log.Fatal().Err(err).Msg("sweep failed")
	}
	log.Info().Int("removed", removed).Str("dir", cfg.ImageStore.Dir).Msg("sweep complete")
}
