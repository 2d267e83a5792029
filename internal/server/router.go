package server

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/storylingo/backend/internal/handlers"
	"github.com/storylingo/backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler        *handlers.AuthHandler
	AuthMiddleware     *middleware.AuthMiddleware
	UserHandler        *handlers.UserHandler
	BookHandler        *handlers.BookHandler
	TranslationHandler *handlers.TranslationHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("storylingo-api"))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)
	api := router.Group("/api")
	api.POST("/register", cfg.AuthHandler.Register)
	api.POST("/login", cfg.AuthHandler.Login)

	// Protected
	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Auth
	protected.POST("/refresh", cfg.AuthHandler.Refresh)
	protected.POST("/logout", cfg.AuthHandler.Logout)
	// User
	protected.GET("/user", cfg.UserHandler.GetMe)
	protected.PUT("/user", cfg.UserHandler.UpdateMe)
	protected.DELETE("/user", cfg.UserHandler.DeleteMe)
	protected.GET("/user/stats", cfg.UserHandler.GetStats)
	// Books
	protected.POST("/books/generate", cfg.BookHandler.Generate)
	protected.GET("/books", cfg.BookHandler.List)
	protected.GET("/books/:id", cfg.BookHandler.Get)
	protected.GET("/books/:id/status", cfg.BookHandler.Status)
	protected.PUT("/books/:id/favorite", cfg.BookHandler.SetFavorite)
	protected.DELETE("/books/:id", cfg.BookHandler.Delete)
	// Translation
	protected.GET("/translate", cfg.TranslationHandler.Translate)
	protected.POST("/vocabulary", cfg.TranslationHandler.SaveWord)
	protected.GET("/vocabulary", cfg.TranslationHandler.ListWords)
	protected.DELETE("/vocabulary/:id", cfg.TranslationHandler.DeleteWord)
	protected.GET("/vocabulary/stats", cfg.TranslationHandler.VocabularyStats)

	return router
}

func allowedOrigins() []string {
	raw := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if raw == "" {
		return []string{"http://localhost:3000", "http://localhost:5173"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
