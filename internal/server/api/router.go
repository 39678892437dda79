package api

import (
	"notedrop/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))
	e.Use(RequestID())
	e.Use(RequestLogger())

	// Rate limiter on the submit endpoint only; the daily quota does the
	// real limiting, this just absorbs bursts.
	submitLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Health
	e.GET("/health", handler.HandleHealth)

	// API (always uncacheable)
	api := e.Group("/api", NoStore())
	api.POST("/submit", handler.HandleSubmit, submitLimiter.Middleware())
	api.GET("/receipt/:ref", handler.HandleReceipt)
	api.POST("/verify", handler.HandleVerify)
	api.GET("/counter", handler.HandleCounter)

	return e
}
