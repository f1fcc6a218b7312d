// Package router wires handlers, middleware and route groups onto the
// Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/azurestay/booking/internal/config"
	"github.com/azurestay/booking/internal/handler"
	"github.com/azurestay/booking/internal/middleware"
	"github.com/azurestay/booking/internal/model"
)

// Register mounts all routes. rdb may be nil, in which case rate
// limiting and response caching are disabled.
func Register(e *echo.Echo, cfg config.Config, rdb *redis.Client,
	auth *handler.AuthHandler, res *handler.ReservationHandler, pay *handler.PaymentHandler) {

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Validator = handler.NewValidator()

	rateLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	jwtAuth := middleware.JWTAuth(cfg.JWTSecret)

	e.GET("/health", handler.Health)

	authGroup := e.Group("/api/auth", rateLimit)
	authGroup.POST("/register", auth.Register)
	authGroup.POST("/login", auth.Login)
	authGroup.POST("/refresh", auth.Refresh)
	authGroup.POST("/logout", auth.Logout)
	authGroup.GET("/me", auth.Me, jwtAuth)

	reservations := e.Group("/api/reservations")
	// Availability is public and cacheable; everything else is
	// owner-scoped behind auth.
	reservations.GET("/availability", res.Availability, cache)

	authed := reservations.Group("", jwtAuth, rateLimit)
	authed.POST("", res.Create)
	authed.GET("/my-reservations", res.MyReservations)
	authed.GET("/stats/overview", res.Stats)
	authed.GET("/:id", res.Get)
	authed.PUT("/:id/status", res.UpdateStatus)
	authed.DELETE("/:id/cancel", res.RequestCancellation)
	authed.POST("/:id/early-checkout", res.EarlyCheckout)
	authed.PUT("/:id/modify", res.Modify)
	authed.POST("/:id/dispute", res.Dispute)
	authed.DELETE("/:id", res.Cancel)
	authed.GET("", res.ListAll, middleware.RequireRole(model.RoleAdmin))

	payments := e.Group("/api/payments")
	// The webhook authenticates by signature, not by JWT, and needs the
	// raw request body.
	payments.POST("/webhook", pay.Webhook)

	payAuthed := payments.Group("", jwtAuth, rateLimit)
	payAuthed.POST("/create", pay.Create)
	payAuthed.POST("/verify", pay.Verify)
	payAuthed.GET("/session/:sessionId", pay.GetSession)
	payAuthed.GET("/my-payments", pay.MyPayments)
}
