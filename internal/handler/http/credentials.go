package http

import (
	"net/http"
	"strings"
	"time"
)

// sessionCookieName is the cookie carrying the session token.
const sessionCookieName = "token"

// sessionCookieTTL is how long an issued session cookie stays valid on the
// client. Server-side retention is enforced separately by the sweeper.
const sessionCookieTTL = 60 * 24 * time.Hour

// loginToken extracts the bearer credential from a request. Sources are
// checked in a fixed order: the token query parameter, the Authorization
// header, then the session cookie. The first source that yields a
// non-empty value wins; later sources are not consulted.
func loginToken(r *http.Request) string {
	if v := r.URL.Query().Get(sessionCookieName); v != "" {
		return v
	}

	if auth := r.Header.Get("Authorization"); auth != "" {
		rest := strings.TrimPrefix(auth, "Bearer")
		// The scheme prefix only counts when whitespace follows it;
		// anything else (BearerXYZ, basic auth) is taken verbatim.
		if rest != auth && rest != "" && (rest[0] == ' ' || rest[0] == '\t') {
			if v := strings.TrimLeft(rest, " \t"); v != "" {
				return v
			}
		} else {
			return auth
		}
	}

	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	return ""
}

// setSessionCookie attaches a freshly issued token to the response.
func setSessionCookie(w http.ResponseWriter, token, environment string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		Secure:   environment != "development",
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookie expires the session cookie on the client.
func clearSessionCookie(w http.ResponseWriter, environment string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   environment != "development",
		SameSite: http.SameSiteStrictMode,
	})
}
