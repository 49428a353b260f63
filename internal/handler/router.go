package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eaglebank/accounts/shared/middleware"
)

type RouterConfig struct {
	Accounts *AccountHandler
	Auth     *AuthHandler
	Tokens   middleware.TokenValidator
	// Metrics is optional; nil disables /metrics.
	Metrics *middleware.Metrics
	Logger  *slog.Logger
}

// NewRouter mounts the public and authenticated routes under /api.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestIDMiddleware(), middleware.LoggingMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/register", cfg.Accounts.Register)
		api.POST("/login", cfg.Auth.Login)
	}

	users := api.Group("/users", middleware.AuthMiddleware(cfg.Tokens, cfg.Logger))
	{
		users.GET("", cfg.Accounts.ListUsers)
		users.GET("/:id", cfg.Accounts.GetUser)
		users.PUT("/:id", cfg.Accounts.UpdateUser)
		users.DELETE("/:id", cfg.Accounts.DeleteUser)
	}

	return router
}
