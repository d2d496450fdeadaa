package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apnisec/trackify/internal/auth"
	"github.com/apnisec/trackify/internal/model"
	"github.com/apnisec/trackify/internal/utils"
)

// fakeSession scripts the auth service behind the handlers.
type fakeSession struct {
	registerErr error
	loginErr    error
	refreshErr  error
	logoutErr   error
	logoutRaw   string
}

func (f *fakeSession) pair() auth.TokenPair {
	return auth.TokenPair{
		Access:  utils.AccessToken{Token: "access-jwt", Exp: time.Now().UTC().Add(15 * time.Minute)},
		Refresh: utils.RefreshToken{Raw: "refresh-raw", Exp: time.Now().UTC().Add(7 * 24 * time.Hour)},
	}
}

func (f *fakeSession) user() model.User {
	return model.User{ID: 1, Email: "a@example.com", Name: "Alice", Role: "user", PasswordHash: "secret-hash"}
}

func (f *fakeSession) Register(ctx context.Context, email, password, name string) (model.User, auth.TokenPair, error) {
	if f.registerErr != nil {
		return model.User{}, auth.TokenPair{}, f.registerErr
	}
	return f.user(), f.pair(), nil
}

func (f *fakeSession) Login(ctx context.Context, email, password string) (model.User, auth.TokenPair, error) {
	if f.loginErr != nil {
		return model.User{}, auth.TokenPair{}, f.loginErr
	}
	return f.user(), f.pair(), nil
}

func (f *fakeSession) Refresh(ctx context.Context, raw string) (model.User, auth.TokenPair, error) {
	if f.refreshErr != nil {
		return model.User{}, auth.TokenPair{}, f.refreshErr
	}
	return f.user(), f.pair(), nil
}

func (f *fakeSession) Logout(ctx context.Context, raw string) error {
	f.logoutRaw = raw
	return f.logoutErr
}

func (f *fakeSession) LogoutAll(ctx context.Context, userID uint64) error { return nil }

func (f *fakeSession) GetUser(ctx context.Context, id uint64) (model.User, error) {
	return f.user(), nil
}

func doJSON(t *testing.T, h echo.HandlerFunc, method, target, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	return rec
}

func cookieNames(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, ck := range rec.Result().Cookies() {
		out[ck.Name] = ck
	}
	return out
}

func TestRegisterHandler(t *testing.T) {
	h := NewAuthHandler(&fakeSession{}, 15, 7)

	rec := doJSON(t, h.Register, http.MethodPost, "/v1/auth/register",
		`{"email":"a@example.com","password":"password123","name":"Alice"}`, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"success":true`)
	assert.Contains(t, body, "access-jwt")
	assert.Contains(t, body, "refresh-raw")
	// The bcrypt hash must never appear in a response.
	assert.NotContains(t, body, "secret-hash")

	cks := cookieNames(rec)
	require.Contains(t, cks, "token")
	require.Contains(t, cks, "refresh_token")
	assert.True(t, cks["token"].HttpOnly)
	assert.Equal(t, 15*60, cks["token"].MaxAge)
	assert.Equal(t, 7*24*60*60, cks["refresh_token"].MaxAge)
}

func TestRegisterHandlerValidation(t *testing.T) {
	h := NewAuthHandler(&fakeSession{}, 15, 7)

	cases := []struct {
		name string
		body string
	}{
		{"missing email", `{"password":"password123"}`},
		{"bad email", `{"email":"nope","password":"password123"}`},
		{"short password", `{"email":"a@b.c","password":"short"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h.Register, http.MethodPost, "/v1/auth/register", tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRegisterHandlerEmailTaken(t *testing.T) {
	h := NewAuthHandler(&fakeSession{registerErr: auth.ErrEmailTaken}, 15, 7)

	rec := doJSON(t, h.Register, http.MethodPost, "/v1/auth/register",
		`{"email":"a@example.com","password":"password123"}`, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginHandlerInvalidCredentials(t *testing.T) {
	h := NewAuthHandler(&fakeSession{loginErr: auth.ErrInvalidCredentials}, 15, 7)

	rec := doJSON(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"a@example.com","password":"wrong"}`, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid email or password")
}

func TestRefreshHandler(t *testing.T) {
	t.Run("token from body", func(t *testing.T) {
		h := NewAuthHandler(&fakeSession{}, 15, 7)
		rec := doJSON(t, h.Refresh, http.MethodPost, "/v1/auth/refresh",
			`{"refresh_token":"refresh-raw"}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "access-jwt")
	})

	t.Run("token from cookie", func(t *testing.T) {
		h := NewAuthHandler(&fakeSession{}, 15, 7)
		rec := doJSON(t, h.Refresh, http.MethodPost, "/v1/auth/refresh", "",
			func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "refresh_token", Value: "refresh-raw"})
			})

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		h := NewAuthHandler(&fakeSession{refreshErr: auth.ErrMissingToken}, 15, 7)
		rec := doJSON(t, h.Refresh, http.MethodPost, "/v1/auth/refresh", "", nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "refresh token not provided")
	})

	t.Run("invalid token clears cookies", func(t *testing.T) {
		h := NewAuthHandler(&fakeSession{refreshErr: auth.ErrInvalidToken}, 15, 7)
		rec := doJSON(t, h.Refresh, http.MethodPost, "/v1/auth/refresh",
			`{"refresh_token":"dead"}`, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		cks := cookieNames(rec)
		require.Contains(t, cks, "token")
		require.Contains(t, cks, "refresh_token")
		assert.Equal(t, -1, cks["token"].MaxAge)
		assert.Equal(t, -1, cks["refresh_token"].MaxAge)
	})

	t.Run("rotation race is a server error, not a client error", func(t *testing.T) {
		h := NewAuthHandler(&fakeSession{refreshErr: auth.ErrRotationFailed}, 15, 7)
		rec := doJSON(t, h.Refresh, http.MethodPost, "/v1/auth/refresh",
			`{"refresh_token":"raced"}`, nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestLogoutHandler(t *testing.T) {
	fs := &fakeSession{}
	h := NewAuthHandler(fs, 15, 7)

	rec := doJSON(t, h.Logout, http.MethodPost, "/v1/auth/logout",
		`{"refresh_token":"refresh-raw"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "refresh-raw", fs.logoutRaw)
	assert.Contains(t, rec.Body.String(), "logged out successfully")

	cks := cookieNames(rec)
	assert.Equal(t, -1, cks["token"].MaxAge)
	assert.Equal(t, -1, cks["refresh_token"].MaxAge)
}
