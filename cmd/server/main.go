package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/storylingo/backend/internal/blobstore"
	"github.com/storylingo/backend/internal/cache"
	"github.com/storylingo/backend/internal/db"
	"github.com/storylingo/backend/internal/handlers"
	"github.com/storylingo/backend/internal/llm"
	"github.com/storylingo/backend/internal/logger"
	"github.com/storylingo/backend/internal/middleware"
	"github.com/storylingo/backend/internal/observability"
	"github.com/storylingo/backend/internal/repos"
	"github.com/storylingo/backend/internal/server"
	"github.com/storylingo/backend/internal/services"
	"github.com/storylingo/backend/internal/trigger"
	"github.com/storylingo/backend/internal/utils"
)

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "storylingo-api",
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})
	if shutdownOtel != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOtel(shutdownCtx)
		}()
	}

	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
	port := utils.GetEnv("PORT", "8080", log)

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	var appCache cache.Cache
	if os.Getenv("REDIS_ADDR") != "" {
		appCache, err = cache.NewRedisCache(log)
		if err != nil {
			log.Error("Redis init failed", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("REDIS_ADDR not set, using in-process cache")
		appCache = cache.NewMemoryCache()
	}
	defer appCache.Close()

	store, err := blobstore.NewGCSStore(ctx, log)
	if err != nil {
		log.Error("Blob store init failed", "error", err)
		os.Exit(1)
	}
	llmClient, err := llm.NewClient(log)
	if err != nil {
		log.Error("LLM client init failed", "error", err)
		os.Exit(1)
	}
	queue := trigger.NewQueue(store, log)

	userRepo := repos.NewUserRepo(thePG, log)
	userTokenRepo := repos.NewUserTokenRepo(thePG, log)
	bookRepo := repos.NewBookRepo(thePG, log)
	vocabularyRepo := repos.NewVocabularyRepo(thePG, log)

	authService := services.NewAuthService(
		thePG, log, userRepo, userTokenRepo,
		jwtSecretKey,
		time.Duration(accessTokenTTL)*time.Second,
		time.Duration(refreshTokenTTL)*time.Second,
	)
	userService := services.NewUserService(thePG, log, userRepo, userTokenRepo, bookRepo, vocabularyRepo)
	bookService := services.NewBookService(thePG, log, bookRepo, store, queue, appCache)
	translationService := services.NewTranslationService(thePG, log, llmClient, vocabularyRepo, appCache)

	router := server.NewRouter(server.RouterConfig{
		AuthHandler:        handlers.NewAuthHandler(authService),
		AuthMiddleware:     middleware.NewAuthMiddleware(log, authService),
		UserHandler:        handlers.NewUserHandler(userService),
		BookHandler:        handlers.NewBookHandler(bookService),
		TranslationHandler: handlers.NewTranslationHandler(translationService),
	})

	log.Info("Starting API server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
