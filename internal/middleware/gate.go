package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/mbenek/sitegate/internal/auth"
	"github.com/mbenek/sitegate/internal/models"
	pkghttp "github.com/mbenek/sitegate/pkg/http"
)

// GateConfig holds the edge gate's settings.
type GateConfig struct {
	// LoginPath is where unauthenticated admin requests are redirected.
	LoginPath string
	Cookies   auth.CookieConfig
}

// AdminGate enforces a valid admin-panel session cookie on every request it
// wraps. Invalid or missing tokens redirect to the login page with the
// original path preserved, and the stale cookie is cleared. The login page
// itself must be routed outside this gate.
func AdminGate(codec *auth.Codec, config GateConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.GetAccessTokenCookie(r, models.SiteAdminPanel)
			if err != nil || token == "" {
				redirectToLogin(w, r, config)
				return
			}

			attempt, claims, err := codec.Verify(r.Context(), token, models.SiteAdminPanel)
			if err != nil {
				auth.ClearAccessTokenCookie(w, models.SiteAdminPanel, config.Cookies)
				redirectToLogin(w, r, config)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), attempt, claims)))
		})
	}
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, config GateConfig) {
	target := config.LoginPath + "?from=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}

// APIKeyGate requires the static shared client-app API key header. The
// comparison is constant-time, and the bearer check never runs when the key
// is missing or wrong.
func APIKeyGate(expectedKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.APIKeyMatches(r.Header.Get("x-api-key"), expectedKey) {
				pkghttp.WriteUnauthorized(w, "Invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientAppAuth validates the bearer access token on client-app API routes
// and injects the verified session into context. Refresh tokens are
// rejected here; they are only accepted by the refresh endpoint.
func ClientAppAuth(codec *auth.Codec) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "Invalid authorization header format")
				return
			}

			attempt, claims, err := codec.Verify(r.Context(), parts[1], models.SiteClientApp)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			if claims.TokenType == models.TokenTypeRefresh {
				pkghttp.WriteUnauthorized(w, "Refresh tokens cannot be used for API access")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), attempt, claims)))
		})
	}
}
