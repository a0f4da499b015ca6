package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mbenek/sitegate/internal/models"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

// AccessTokenCookieName returns the per-scope session cookie name.
func AccessTokenCookieName(site models.SiteCode) string {
	return fmt.Sprintf("%s_access_token", site)
}

// SetAccessTokenCookie sets a session token in an httpOnly cookie scoped to
// the given site code.
func SetAccessTokenCookie(w http.ResponseWriter, site models.SiteCode, token string, expiresAt time.Time, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     AccessTokenCookieName(site),
		Value:    token,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt) / time.Second),
		HttpOnly: true, // prevents JavaScript access
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	}
	http.SetCookie(w, cookie)
}

// ClearAccessTokenCookie clears the session cookie for a scope. Used on
// logout and whenever the gate rejects a stale token.
func ClearAccessTokenCookie(w http.ResponseWriter, site models.SiteCode, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     AccessTokenCookieName(site),
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1, // Negative MaxAge deletes the cookie
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	}
	http.SetCookie(w, cookie)
}

// GetAccessTokenCookie retrieves the session token for a scope from cookies.
func GetAccessTokenCookie(r *http.Request, site models.SiteCode) (string, error) {
	cookie, err := r.Cookie(AccessTokenCookieName(site))
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
