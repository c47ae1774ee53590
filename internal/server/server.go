package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/velora-app/velora/internal/app"
	"github.com/velora-app/velora/internal/apperrors"
	"github.com/velora-app/velora/internal/config"
	"github.com/velora-app/velora/internal/repository"
	"github.com/velora-app/velora/internal/service/auth"
	"github.com/velora-app/velora/internal/service/interactions"
	"github.com/velora-app/velora/internal/service/realtime"
	"github.com/velora-app/velora/internal/service/suggest"
)

// Server wires the HTTP surface over the service layer.
type Server struct {
	appCtx   *app.AppContext
	cfg      *config.Config
	engine   *gin.Engine
	upgrader websocket.Upgrader

	authSvc         *auth.Service
	suggestSvc      *suggest.Service
	interactionsSvc *interactions.Service
	realtimeSvc     *realtime.Service

	profiles *repository.ProfileRepository
}

func New(appCtx *app.AppContext, cfg *config.Config) *Server {
	if cfg.App.ENV == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		appCtx:          appCtx,
		cfg:             cfg,
		engine:          gin.Default(),
		upgrader:        newUpgrader(cfg.WS.AllowedOrigins),
		authSvc:         auth.NewService(appCtx, cfg),
		suggestSvc:      suggest.NewService(appCtx),
		interactionsSvc: interactions.NewService(appCtx),
		realtimeSvc:     realtime.NewService(appCtx),
		profiles:        repository.NewProfileRepository(appCtx.DB),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", s.handleRegister)
		authGroup.POST("/login", s.handleLogin)
	}

	profiles := api.Group("/profiles", s.authRequired())
	{
		profiles.GET("/me", s.handleGetMyProfile)
		profiles.PUT("/me", s.handleUpdateMyProfile)
		profiles.PUT("/me/tags", s.handleReplaceTags)
		profiles.POST("/me/pictures", s.handleAddPicture)
		profiles.DELETE("/me/pictures/:id", s.handleRemovePicture)
		profiles.PUT("/me/pictures/:id/primary", s.handleSetPrimaryPicture)
		profiles.GET("/suggested", s.handleSuggestions)
		profiles.GET("/:id", s.handleGetProfile)
	}

	inter := api.Group("/interactions", s.authRequired())
	{
		inter.POST("/like/:profileID", s.handleLike)
		inter.DELETE("/like/:profileID", s.handleUnlike)
		inter.POST("/block/:profileID", s.handleBlock)
		inter.DELETE("/block/:profileID", s.handleUnblock)
		inter.POST("/visit/:profileID", s.handleVisit)
		inter.POST("/report/:profileID", s.handleReport)
		inter.GET("/likes/received", s.handleLikesReceived)
		inter.GET("/visits/received", s.handleVisitsReceived)
		inter.GET("/matches", s.handleMatches)
	}

	rt := api.Group("/realtime")
	{
		// the websocket handshake authenticates via query token
		rt.GET("/ws", s.handleWebsocket)

		authed := rt.Group("", s.authRequired())
		authed.GET("/notifications", s.handleNotifications)
		authed.GET("/notifications/count", s.handleNotificationCount)
		authed.PUT("/notifications/:id/read", s.handleMarkNotificationRead)
		authed.PUT("/notifications/read-all", s.handleMarkAllNotificationsRead)
		authed.GET("/messages/:userID", s.handleMessages)
		authed.POST("/messages/:userID", s.handleSendMessage)
		authed.GET("/conversations", s.handleConversations)
	}
}

// Run blocks serving HTTP on the configured address.
func (s *Server) Run() error {
	addr := s.cfg.HTTP.Host + ":" + s.cfg.HTTP.Port
	s.appCtx.Logger.Info("http server listening", "addr", addr)
	return s.engine.Run(addr)
}

// Engine exposes the router for handler tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// respondError translates a domain error into the HTTP response.
func respondError(c *gin.Context, err error) {
	status, msg := apperrors.HTTPStatus(err)
	c.JSON(status, gin.H{"error": msg})
}
