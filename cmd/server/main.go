package main

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/madalinioana/guess-the-drawing/config"
	"github.com/madalinioana/guess-the-drawing/game"
	"github.com/madalinioana/guess-the-drawing/logger"
	"github.com/madalinioana/guess-the-drawing/migrations"
	"github.com/madalinioana/guess-the-drawing/storage"
)

func CreateServer(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(ctx *gin.Context) { ctx.String(http.StatusOK, "healthy") })

	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")
		if origin == "" || slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Authorization",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}))

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Setup(cfg.Debug)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	var stats game.StatsSink
	if cfg.PostgresURL != "" {
		migrations.Migrate(cfg.PostgresURL)
		repo, err := storage.NewPostgresRepo(context.Background(), cfg.PostgresURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer repo.Close()
		stats = repo
	} else {
		log.Warn().Msg("POSTGRES_URL not set, account stats will not be persisted")
		stats = storage.NoopStats{}
	}

	gateway := game.NewGateway(stats)
	gatewayStarted := make(chan struct{})
	go gateway.Run(gatewayStarted)
	<-gatewayStarted

	r := CreateServer(cfg.AllowedOrigins)
	game.NewHandler(gateway, cfg.AllowedOrigins).RegisterRoutes(r)

	log.Info().Str("port", cfg.Port).Msg("server listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
