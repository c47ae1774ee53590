package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/velora-app/velora/internal/cache"
	"github.com/velora-app/velora/internal/hub"
)

// AppContext holds shared dependencies (DB, Redis, Logger, realtime hub).
type AppContext struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Hub        *hub.Hub
}

// New creates a new AppContext.
func New(db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, h *hub.Hub) *AppContext {
	return &AppContext{
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Hub:        h,
	}
}
