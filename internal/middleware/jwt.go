package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/apnisec/trackify/internal/utils"
)

// Context keys set by JWTAuth for downstream handlers.
const (
	CtxUserID = "user_id"
	CtxEmail  = "email"
)

// JWTAuth returns an Echo middleware that validates an access token and
// injects the token's subject and email claims into the request context.
// The token is read from the Authorization header ("Bearer <jwt>") or, when
// no header is present, from the `token` cookie.  The two transports exist
// because API clients send headers while the browser UI rides on cookies.
// Verification failures are uniform: the response never reveals whether the
// token was malformed, tampered with or expired.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "not authenticated"})
			}
			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid or expired token"})
			}
			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxEmail, claims.Email)
			return next(c)
		}
	}
}

// bearerToken extracts the access token from the Authorization header or the
// `token` cookie.  Returns "" when neither is present.
func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if ck, err := c.Cookie("token"); err == nil && ck.Value != "" {
		return ck.Value
	}
	return ""
}

// UserID returns the authenticated user's id stored by JWTAuth, or 0 when
// the request is unauthenticated.
func UserID(c echo.Context) uint64 {
	if v, ok := c.Get(CtxUserID).(uint64); ok {
		return v
	}
	return 0
}

// Email returns the authenticated user's email stored by JWTAuth.
func Email(c echo.Context) string {
	if v, ok := c.Get(CtxEmail).(string); ok {
		return v
	}
	return ""
}
