package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"thefinals-leaderboard-bot/internal/announce"
	"thefinals-leaderboard-bot/internal/app"
	"thefinals-leaderboard-bot/internal/club"
	"thefinals-leaderboard-bot/internal/config"
	"thefinals-leaderboard-bot/internal/finalsapi"
	"thefinals-leaderboard-bot/internal/httpcache"
	"thefinals-leaderboard-bot/internal/imagestore"
	"thefinals-leaderboard-bot/internal/kvstore"
	"thefinals-leaderboard-bot/internal/logging"
	"thefinals-leaderboard-bot/internal/plugin"
	"thefinals-leaderboard-bot/internal/plugin/commands"
	"thefinals-leaderboard-bot/internal/render"
	"thefinals-leaderboard-bot/internal/season"
)

func main() {
	cfg, err := config.Load(os.Getenv("LB_CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Setup(cfg.Log.Level, cfg.Server.Env)
	log.Info().Msg("starting leaderboard bot engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv, err := kvstore.New(cfg.KVStore)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to key-value store")
	}
	defer kv.Close()

	hcc := httpcache.New(cfg.FinalsAPI)
	api := finalsapi.New(hcc)

	seasons := season.NewManager()
	if err := seasons.Initialize(ctx, api, kv, cfg.SQLStore.Path, cfg.Season.CurrentSeasonID, cfg.Season.HistoricalSeasonIDs, cfg.Season.RefreshInterval); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize season manager")
	}
	defer seasons.Shutdown(ctx)

	clubs := club.New(api, kv, cfg.Season.RefreshInterval)
	if err := clubs.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start club cache")
	}
	defer clubs.Stop()

	renderPool, err := render.NewPool(cfg.Render.PoolSize, cfg.Render.ViewportWidth, cfg.Render.ViewportHeight)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start render pool")
	}
	defer renderPool.Close()

	images, err := imagestore.Open(cfg.ImageStore.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open image store")
	}
	defer images.Close(ctx)

	scheduler, err := announce.New(cfg.Announce, kv)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start announcement scheduler")
	}

	pd := registerPlugins(ctx, kv, seasons, clubs, renderPool, images)

	maxHandlers := int64(cfg.Concurrency.MaxConcurrentHandlers)
	a := app.New(pd, maxHandlers)
	defer a.Cleanup(ctx)

	r := setupRouter(scheduler)
	srv := &http.Server{
		Addr:         cfg.Server.DiagnosticsAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.DiagnosticsAddr).Msg("diagnostics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("diagnostics server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("diagnostics server forced to shutdown")
	}

	log.Info().Msg("shutdown complete")
}

// registerPlugins wires every concrete command plugin into a fresh
// dispatcher. Platform adapters (QQ, Kook, HeyBox) are out of scope here;
// they would call HandleMessage on the app.App built around the returned
// dispatcher.
func registerPlugins(ctx context.Context, kv *kvstore.Store, seasons *season.Manager, clubs *club.Cache, renderPool *render.Pool, images *imagestore.Store) *plugin.Dispatcher {
	pd := plugin.NewDispatcher()
	binds := commands.NewBindStore(kv)

	plugins := []*plugin.Plugin{
		commands.NewRankPlugin(commands.RankDeps{Seasons: seasons, Render: renderPool, Images: images, Binds: binds}, kv),
		commands.NewClubPlugin(commands.ClubDeps{Clubs: clubs, Render: renderPool, Images: images}, kv),
		commands.NewBindPlugin(binds, kv),
		commands.NewDisambiguationPlugin(seasons, kv),
		commands.NewH2HPlugin(seasons, binds, kv),
		commands.NewWeaponPlugin(kv),
		commands.NewOraclePlugin(kv),
		commands.NewBirdPlugin(kv),
		commands.NewStatusPlugin(seasons, kv),
	}

	for _, p := range plugins {
		if err := pd.Register(ctx, p); err != nil {
			log.Fatal().Err(err).Str("plugin", p.Name()).Msg("failed to register plugin")
		}
	}

	return pd
}

// setupRouter exposes health checks and the announcement lookup used by
// platform adapters deciding whether to post a scheduled announcement.
func setupRouter(scheduler *announce.Scheduler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(logging.HTTPMiddleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/announce/{guildID}", func(w http.ResponseWriter, r *http.Request) {
			guildID := chi.URLParam(r, "guildID")
			a, err := scheduler.GetForGuild(r.Context(), guildID)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			if a == nil {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(a.Message))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})

	return r
}
