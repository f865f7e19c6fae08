package auth

import (
	"net/http"
	"strings"
	"time"
)

// Cookie names carrying the token pair.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// CookieConfig controls the attributes of token cookies.
type CookieConfig struct {
	Secure bool
}

func (c CookieConfig) tokenCookie(name, value string, expires time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if value == "" {
		cookie.MaxAge = -1
		return cookie
	}
	cookie.Expires = expires
	return cookie
}

func (c CookieConfig) setTokens(w http.ResponseWriter, tokens Tokens) {
	if tokens.Access != "" {
		http.SetCookie(w, c.tokenCookie(AccessCookie, tokens.Access, tokens.AccessExpires))
	}
	if tokens.Refresh != "" {
		http.SetCookie(w, c.tokenCookie(RefreshCookie, tokens.Refresh, tokens.RefreshExpires))
	}
}

func (c CookieConfig) clearTokens(w http.ResponseWriter) {
	http.SetCookie(w, c.tokenCookie(AccessCookie, "", time.Time{}))
	http.SetCookie(w, c.tokenCookie(RefreshCookie, "", time.Time{}))
}

// AccessTokenFromRequest returns the bearer token from the Authorization
// header, falling back to the access cookie when the header carries none.
func AccessTokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if token = strings.TrimSpace(token); ok && token != "" && strings.EqualFold(scheme, "Bearer") {
			return token
		}
	}
	if cookie, err := r.Cookie(AccessCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func refreshTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(RefreshCookie); err == nil {
		return cookie.Value
	}
	return ""
}
