package handler

import (
	"context"  // provides context with cancellation for DB calls
	"errors"   // sentinel error matching
	"log"      // unexpected-fault logging
	"net/http" // HTTP status codes and primitives
	"strings"  // string manipulation utilities
	"time"     // timeouts for DB calls and cookie lifetimes

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/apnisec/trackify/internal/auth"
	"github.com/apnisec/trackify/internal/middleware"
	"github.com/apnisec/trackify/internal/model"
)

// Session is the slice of the auth service the handlers need.
type Session interface {
	Register(ctx context.Context, email, password, name string) (model.User, auth.TokenPair, error)
	Login(ctx context.Context, email, password string) (model.User, auth.TokenPair, error)
	Refresh(ctx context.Context, raw string) (model.User, auth.TokenPair, error)
	Logout(ctx context.Context, raw string) error
	LogoutAll(ctx context.Context, userID uint64) error
	GetUser(ctx context.Context, id uint64) (model.User, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Session        Session
	AccessTTLMin   int
	RefreshTTLDays int
}

func NewAuthHandler(s Session, accessTTLMin, refreshTTLDays int) *AuthHandler {
	return &AuthHandler{Session: s, AccessTTLMin: accessTTLMin, RefreshTTLDays: refreshTTLDays}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func toUserPart(u model.User) userPart {
	// Password hash deliberately never serialized.
	return userPart{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, CreatedAt: u.CreatedAt}
}

func toAuthResp(u model.User, pair auth.TokenPair) authResp {
	return authResp{
		User:    toUserPart(u),
		Access:  tokenPart{Token: pair.Access.Token, Expires: pair.Access.Exp},
		Refresh: tokenPart{Token: pair.Refresh.Raw, Expires: pair.Refresh.Exp},
	}
}

// Register: create user and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return fail(c, http.StatusBadRequest, "valid email required")
	}
	if len(req.Password) < 8 {
		return fail(c, http.StatusBadRequest, "password must be at least 8 characters")
	}
	if len(req.Name) > 100 {
		return fail(c, http.StatusBadRequest, "name too long")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	user, pair, err := h.Session.Register(ctx, req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			return fail(c, http.StatusConflict, "email already registered")
		}
		log.Printf("register: %v", err)
		return fail(c, http.StatusInternalServerError, "registration failed")
	}

	h.setAuthCookies(c, pair)
	return success(c, http.StatusCreated, toAuthResp(user, pair))
}

// Login: verify credentials and return a new pair.  Unknown email and wrong
// password produce byte-identical responses.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "email/password required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	user, pair, err := h.Session.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return fail(c, http.StatusUnauthorized, "invalid email or password")
		}
		log.Printf("login: %v", err)
		return fail(c, http.StatusInternalServerError, "login failed")
	}

	h.setAuthCookies(c, pair)
	return success(c, http.StatusOK, toAuthResp(user, pair))
}

// Refresh: rotate the refresh token and mint a new access token.  The token
// is read from the JSON body first, then the refresh_token cookie.  On an
// invalid token both cookies are cleared so the browser drops the dead
// session.  A rotation conflict is a server-side race, not a client error.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := h.refreshTokenFrom(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	user, pair, err := h.Session.Refresh(ctx, raw)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingToken):
			return fail(c, http.StatusUnauthorized, "refresh token not provided")
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUserNotFound):
			h.clearAuthCookies(c)
			return fail(c, http.StatusUnauthorized, "invalid or expired refresh token")
		case errors.Is(err, auth.ErrRotationFailed):
			return fail(c, http.StatusInternalServerError, "failed to refresh token")
		default:
			log.Printf("refresh: %v", err)
			return fail(c, http.StatusInternalServerError, "failed to refresh token")
		}
	}

	h.setAuthCookies(c, pair)
	return success(c, http.StatusOK, toAuthResp(user, pair))
}

// Logout: revoke the supplied refresh token and clear cookies.  Revoking is
// the only server-side effect; the access token simply ages out.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw := h.refreshTokenFrom(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Session.Logout(ctx, raw); err != nil {
		log.Printf("logout: %v", err)
		return fail(c, http.StatusInternalServerError, "logout failed")
	}
	h.clearAuthCookies(c)
	return message(c, http.StatusOK, "logged out successfully")
}

// LogoutAll revokes every refresh token of the current user (all devices).
// Requires a valid access token.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == 0 {
		return fail(c, http.StatusUnauthorized, "not authenticated")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Session.LogoutAll(ctx, uid); err != nil {
		log.Printf("logout-all: %v", err)
		return fail(c, http.StatusInternalServerError, "logout failed")
	}
	h.clearAuthCookies(c)
	return message(c, http.StatusOK, "logged out from all devices")
}

// Me returns the authenticated user's record.
func (h *AuthHandler) Me(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == 0 {
		return fail(c, http.StatusUnauthorized, "not authenticated")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	user, err := h.Session.GetUser(ctx, uid)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return fail(c, http.StatusUnauthorized, "invalid or expired token")
		}
		log.Printf("me: %v", err)
		return fail(c, http.StatusInternalServerError, "load user failed")
	}
	return success(c, http.StatusOK, echo.Map{"user": toUserPart(user)})
}

// refreshTokenFrom extracts the refresh token from the body, falling back to
// the refresh_token cookie.
func (h *AuthHandler) refreshTokenFrom(c echo.Context) string {
	var req refreshReq
	_ = c.Bind(&req)
	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		return raw
	}
	if ck, err := c.Cookie("refresh_token"); err == nil {
		return strings.TrimSpace(ck.Value)
	}
	return ""
}

// setAuthCookies mirrors the token pair into two httpOnly cookies so browser
// clients carry the session without touching localStorage.  The tokens are
// deliberately separate credentials: stealing the access cookie alone cannot
// mint new sessions.
func (h *AuthHandler) setAuthCookies(c echo.Context, pair auth.TokenPair) {
	c.SetCookie(&http.Cookie{
		Name:     "token",
		Value:    pair.Access.Token,
		Path:     "/",
		MaxAge:   h.AccessTTLMin * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	c.SetCookie(&http.Cookie{
		Name:     "refresh_token",
		Value:    pair.Refresh.Raw,
		Path:     "/",
		MaxAge:   h.RefreshTTLDays * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearAuthCookies(c echo.Context) {
	for _, name := range []string{"token", "refresh_token"} {
		c.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
