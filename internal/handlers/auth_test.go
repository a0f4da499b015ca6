package handlers_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbenek/sitegate/internal/auth"
	"github.com/mbenek/sitegate/internal/handlers"
	"github.com/mbenek/sitegate/internal/models"
	"github.com/mbenek/sitegate/internal/services"
)

type mockSessionService struct {
	loginFunc   func(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	refreshFunc func(ctx context.Context, refreshToken, clientIP, userAgent string) (*services.LoginResult, error)
	logoutFunc  func(ctx context.Context, attemptID string) error
}

func (m *mockSessionService) Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error) {
	if m.loginFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.loginFunc(ctx, in)
}

func (m *mockSessionService) RefreshClientApp(ctx context.Context, refreshToken, clientIP, userAgent string) (*services.LoginResult, error) {
	if m.refreshFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.refreshFunc(ctx, refreshToken, clientIP, userAgent)
}

func (m *mockSessionService) Logout(ctx context.Context, attemptID string) error {
	if m.logoutFunc == nil {
		return nil
	}
	return m.logoutFunc(ctx, attemptID)
}

type mockVerifier struct {
	verifyFunc func(ctx context.Context, tokenString string, site models.SiteCode) (*models.LoginAttempt, *models.TokenClaims, error)
}

func (m *mockVerifier) Verify(ctx context.Context, tokenString string, site models.SiteCode) (*models.LoginAttempt, *models.TokenClaims, error) {
	if m.verifyFunc == nil {
		return nil, nil, models.ErrUnauthorized
	}
	return m.verifyFunc(ctx, tokenString, site)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthHandler(sessions *mockSessionService, verifier *mockVerifier) *handlers.AuthHandler {
	return handlers.NewAuthHandler(sessions, verifier, auth.CookieConfig{}, testLogger())
}

func TestLoginHandler_Success(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	sessions := &mockSessionService{
		loginFunc: func(ctx context.Context, in services.LoginInput) (*services.LoginResult, error) {
			assert.Equal(t, models.SiteGallery, in.SiteCode)
			assert.Equal(t, "opensesame", in.Password)
			return &services.LoginResult{
				Attempt: &models.LoginAttempt{ID: "attempt-1", SiteCode: in.SiteCode},
				Session: &models.SessionTokens{AccessToken: "signed-token", ExpiresAt: expiry},
			}, nil
		},
	}
	handler := newAuthHandler(sessions, &mockVerifier{})

	r := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"siteCode":"gallery","password":"opensesame"}`))
	w := httptest.NewRecorder()
	handler.Login(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.AccessTokenCookieName(models.SiteGallery), cookies[0].Name)
	assert.Equal(t, "signed-token", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestLoginHandler_BadBody(t *testing.T) {
	handler := newAuthHandler(&mockSessionService{}, &mockVerifier{})

	for _, body := range []string{"{not json", `{"siteCode":"gallery"}`, `{"password":"x"}`} {
		r := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.Login(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}

func TestLoginHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		result     *services.LoginResult
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "invalid credentials",
			result:     &services.LoginResult{Message: "Invalid credentials. 2 attempt(s) remaining."},
			err:        models.ErrInvalidCredential,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "2 attempt(s) remaining",
		},
		{
			name:       "locked out",
			result:     &services.LoginResult{Message: "Too many failed attempts. Try again in 5 minute(s)."},
			err:        models.ErrLockedOut,
			wantStatus: http.StatusForbidden,
			wantBody:   "Try again in 5 minute(s)",
		},
		{
			name:       "blocked ip",
			result:     &services.LoginResult{Message: "Your IP address is blocked."},
			err:        models.ErrBlockedIP,
			wantStatus: http.StatusForbidden,
			wantBody:   "Your IP address is blocked.",
		},
		{
			name:       "blocked ip without service message",
			err:        models.ErrBlockedIP,
			wantStatus: http.StatusForbidden,
			wantBody:   "Your IP address is blocked.",
		},
		{
			name:       "validation",
			err:        models.ErrValidation,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "internal",
			err:        models.ErrInternalServer,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sessions := &mockSessionService{
				loginFunc: func(ctx context.Context, in services.LoginInput) (*services.LoginResult, error) {
					return tc.result, tc.err
				},
			}
			handler := newAuthHandler(sessions, &mockVerifier{})

			r := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"siteCode":"gallery","password":"x"}`))
			w := httptest.NewRecorder()
			handler.Login(w, r)

			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantBody != "" {
				assert.Contains(t, w.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestLogoutHandler(t *testing.T) {
	loggedOut := ""
	sessions := &mockSessionService{
		logoutFunc: func(ctx context.Context, attemptID string) error {
			loggedOut = attemptID
			return nil
		},
	}
	verifier := &mockVerifier{
		verifyFunc: func(ctx context.Context, tokenString string, site models.SiteCode) (*models.LoginAttempt, *models.TokenClaims, error) {
			return &models.LoginAttempt{ID: "attempt-9"}, &models.TokenClaims{LoginAttemptID: "attempt-9"}, nil
		},
	}
	handler := newAuthHandler(sessions, verifier)

	r := httptest.NewRequest(http.MethodPost, "/auth/logout?siteCode=gallery", nil)
	r.AddCookie(&http.Cookie{Name: auth.AccessTokenCookieName(models.SiteGallery), Value: "tok"})
	w := httptest.NewRecorder()
	handler.Logout(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attempt-9", loggedOut)

	cleared := false
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == auth.AccessTokenCookieName(models.SiteGallery) && cookie.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestLogoutHandler_InvalidTokenStillClearsCookie(t *testing.T) {
	handler := newAuthHandler(&mockSessionService{}, &mockVerifier{})

	r := httptest.NewRequest(http.MethodPost, "/auth/logout?siteCode=gallery", nil)
	r.AddCookie(&http.Cookie{Name: auth.AccessTokenCookieName(models.SiteGallery), Value: "expired"})
	w := httptest.NewRecorder()
	handler.Logout(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	cleared := false
	for _, cookie := range w.Result().Cookies() {
		if cookie.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestLogoutHandler_UnknownSite(t *testing.T) {
	handler := newAuthHandler(&mockSessionService{}, &mockVerifier{})

	r := httptest.NewRequest(http.MethodPost, "/auth/logout?siteCode=nope", nil)
	w := httptest.NewRecorder()
	handler.Logout(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandler(t *testing.T) {
	t.Run("no cookie", func(t *testing.T) {
		handler := newAuthHandler(&mockSessionService{}, &mockVerifier{})
		r := httptest.NewRequest(http.MethodGet, "/auth/session?siteCode=gallery", nil)
		w := httptest.NewRecorder()
		handler.Session(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("live session", func(t *testing.T) {
		verifier := &mockVerifier{
			verifyFunc: func(ctx context.Context, tokenString string, site models.SiteCode) (*models.LoginAttempt, *models.TokenClaims, error) {
				claims := &models.TokenClaims{LoginAttemptID: "attempt-1", SiteCode: site}
				claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
				return &models.LoginAttempt{ID: "attempt-1"}, claims, nil
			},
		}
		handler := newAuthHandler(&mockSessionService{}, verifier)

		r := httptest.NewRequest(http.MethodGet, "/auth/session?siteCode=gallery", nil)
		r.AddCookie(&http.Cookie{Name: auth.AccessTokenCookieName(models.SiteGallery), Value: "tok"})
		w := httptest.NewRecorder()
		handler.Session(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"siteCode":"gallery"`)
	})

	t.Run("revoked session clears cookie", func(t *testing.T) {
		handler := newAuthHandler(&mockSessionService{}, &mockVerifier{})

		r := httptest.NewRequest(http.MethodGet, "/auth/session?siteCode=gallery", nil)
		r.AddCookie(&http.Cookie{Name: auth.AccessTokenCookieName(models.SiteGallery), Value: "revoked"})
		w := httptest.NewRecorder()
		handler.Session(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		cleared := false
		for _, cookie := range w.Result().Cookies() {
			if cookie.MaxAge < 0 {
				cleared = true
			}
		}
		assert.True(t, cleared)
	})
}
