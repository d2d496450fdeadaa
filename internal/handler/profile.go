package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/apnisec/trackify/internal/middleware"
	"github.com/apnisec/trackify/internal/repository"
)

// ProfileNotifier delivers the profile-updated email, fire-and-forget.
type ProfileNotifier interface {
	ProfileUpdated(ctx context.Context, email, name string) error
}

// ProfileHandler exposes read/update access to the current user's profile.
type ProfileHandler struct {
	Users    *repository.UserRepo
	Notifier ProfileNotifier
}

func NewProfileHandler(users *repository.UserRepo, n ProfileNotifier) *ProfileHandler {
	return &ProfileHandler{Users: users, Notifier: n}
}

type updateProfileReq struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Get returns the authenticated user's profile.
func (h *ProfileHandler) Get(c echo.Context) error {
	uid := middleware.UserID(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	user, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusUnauthorized, "invalid or expired token")
		}
		log.Printf("profile get: %v", err)
		return fail(c, http.StatusInternalServerError, "load user failed")
	}
	return success(c, http.StatusOK, echo.Map{"user": toUserPart(user)})
}

// Update changes name and/or email, then notifies the user by email without
// blocking the response.  Changing the email does not invalidate existing
// sessions; the new address shows up in access tokens on the next refresh.
func (h *ProfileHandler) Update(c echo.Context) error {
	uid := middleware.UserID(c)

	var req updateProfileReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" && req.Email == "" {
		return fail(c, http.StatusBadRequest, "nothing to update")
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		return fail(c, http.StatusBadRequest, "valid email required")
	}
	if len(req.Name) > 100 {
		return fail(c, http.StatusBadRequest, "name too long")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	user, err := h.Users.UpdateProfile(ctx, uid, req.Name, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return fail(c, http.StatusConflict, "email already registered")
		}
		log.Printf("profile update: %v", err)
		return fail(c, http.StatusInternalServerError, "update profile failed")
	}

	if h.Notifier != nil {
		go func(email, name string) {
			if err := h.Notifier.ProfileUpdated(context.Background(), email, name); err != nil {
				log.Printf("profile updated notification failed for %s: %v", email, err)
			}
		}(user.Email, user.Name)
	}

	return success(c, http.StatusOK, echo.Map{"user": toUserPart(user)})
}
