// Command server runs the development backend: accounts, databases, views
// and records behind the /api prefix the client talks to.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"second-brain/auth"
	"second-brain/internal/config"
	"second-brain/internal/db"
	"second-brain/internal/domain"
	"second-brain/internal/logger"
	"second-brain/internal/middleware"
	"second-brain/internal/schema"
	"second-brain/internal/user"
	"second-brain/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	log := logger.New(cfg.Environment, cfg.LogLevel)

	gormDB, err := db.Connect(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error connecting to db")
	}
	defer db.Close(gormDB, log)

	if err := db.Migrate(gormDB, log); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	signer := auth.NewSigner(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	if !cfg.IsProduction() {
		if err := db.Seed(context.Background(), gormDB, signer, log); err != nil {
			log.Error().Err(err).Msg("error seeding test user")
		}
	}

	redisClient := redis.InitRedis(context.Background(), cfg.RedisAddress, log)
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := redis.NewCache(redisClient, "second-brain:")

	var google *user.GoogleClient
	if cfg.GoogleClientID != "" {
		google = user.NewGoogleClient(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.FrontendAddress+"/auth/callback")
	}

	userService := user.NewService(user.NewRepository(gormDB), signer, google, log)
	schemaService := schema.NewService(schema.NewRepository(gormDB), cache, log)

	userHandler := user.NewHandler(userService, log)
	schemaHandler := schema.NewHandler(schemaService)
	authMiddleware := &middleware.Auth{Signer: signer, UserService: userService}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}
	if cfg.Environment == "development" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{cfg.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))
	router.Use(middleware.ErrorHandler(log))

	api := router.Group("/api")
	userHandler.RegisterRoutes(api.Group(cfg.AuthPrefix), authMiddleware.AuthMiddleWare())
	schemaHandler.RegisterRoutes(
		api.Group("/databases", authMiddleware.AuthMiddleWare()),
		middleware.RequireRole(domain.RoleModerator),
	)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router.Handler(),
	}

	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	log.Info().Msg("server shutdown complete")
}
