package router // central place where every HTTP route is registered

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/apnisec/trackify/internal/config"
	"github.com/apnisec/trackify/internal/handler"
	"github.com/apnisec/trackify/internal/middleware"
)

// Deps carries everything the routes need.
type Deps struct {
	Auth      *handler.AuthHandler
	Issues    *handler.IssueHandler
	Profile   *handler.ProfileHandler
	JWTSecret string
	Redis     *redis.Client
}

// Register wires all endpoints onto the Echo instance.
//
// Layout:
//
//	GET  /healthz                      liveness probe, unauthenticated
//	POST /v1/auth/register             create account, returns token pair
//	POST /v1/auth/login                verify credentials, returns token pair
//	POST /v1/auth/refresh              rotate refresh token
//	POST /v1/auth/logout               revoke one refresh token
//	POST /v1/auth/logout-all           revoke all refresh tokens   (JWT)
//	GET  /v1/auth/me                   current user                (JWT)
//	GET  /v1/users/profile             read profile                (JWT)
//	PUT  /v1/users/profile             update profile              (JWT)
//	GET  /v1/issues                    list, filterable            (JWT)
//	POST /v1/issues                    create                      (JWT)
//	GET  /v1/issues/:id                read one                    (JWT)
//	PUT  /v1/issues/:id                partial update              (JWT)
//	DELETE /v1/issues/:id              delete                      (JWT)
//
// Auth routes sit behind a tighter per-IP rate limit than the rest of the
// API because they are the brute-force surface.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	authLimit := middleware.NewTokenBucket(config.LoadAuthRateLimitConfig(), d.Redis)
	apiLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), d.Redis)
	jwt := middleware.JWTAuth(d.JWTSecret)

	ag := e.Group("/v1/auth", authLimit)
	ag.POST("/register", d.Auth.Register)
	ag.POST("/login", d.Auth.Login)
	ag.POST("/refresh", d.Auth.Refresh)
	ag.POST("/logout", d.Auth.Logout)
	ag.POST("/logout-all", d.Auth.LogoutAll, jwt)
	ag.GET("/me", d.Auth.Me, jwt)

	ug := e.Group("/v1/users", jwt, apiLimit)
	ug.GET("/profile", d.Profile.Get)
	ug.PUT("/profile", d.Profile.Update)

	ig := e.Group("/v1/issues", jwt, apiLimit)
	ig.GET("", d.Issues.List)
	ig.POST("", d.Issues.Create)
	ig.GET("/:id", d.Issues.Get)
	ig.PUT("/:id", d.Issues.Update)
	ig.DELETE("/:id", d.Issues.Delete)
}
