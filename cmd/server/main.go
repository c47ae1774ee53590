package main

import (
	"context"

	"github.com/velora-app/velora/internal/app"
	"github.com/velora-app/velora/internal/cache"
	"github.com/velora-app/velora/internal/config"
	"github.com/velora-app/velora/internal/db"
	"github.com/velora-app/velora/internal/hub"
	"github.com/velora-app/velora/internal/logger"
	"github.com/velora-app/velora/internal/server"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}

	appCtx := app.New(database, redisCache, log, hub.New())

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	srv := server.New(appCtx, cfg)
	if err := srv.Run(); err != nil {
		log.Error("http server exited", "err", err)
	}
}
