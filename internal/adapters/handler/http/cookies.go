package http

import (
	"net/http"
	"time"

	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// Cookies sets the session cookies. They are host-only: no Domain attribute
// is ever sent.
type Cookies struct {
	SameSite http.SameSite
	Secure   bool
}

func (c Cookies) setPair(w http.ResponseWriter, pair *domain.TokenPair) {
	c.set(w, accessCookie, pair.AccessToken, pair.AccessExpiresAt)
	c.set(w, refreshCookie, pair.RefreshToken, pair.RefreshExpiresAt)
}

func (c Cookies) set(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
	})
}

func expireCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: accessCookie, MaxAge: -1, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: refreshCookie, MaxAge: -1, Path: "/", HttpOnly: true})
}
