package http

import (
	"errors"
	"mime"
	"net/http"

	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
	redirectURL string
	cookies     Cookies
}

func NewAuthHandler(authService ports.AuthService, redirectURL string, cookies Cookies) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		redirectURL: redirectURL,
		cookies:     cookies,
	}
}

type exchangeRequest struct {
	Credential string `json:"credential"`
}

type rotateRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type revokeRequest struct {
	Token string `json:"token"`
}

func isJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

// Exchange accepts the identity-provider credential either as JSON, answered
// with the session, or as a form post from the provider's button, answered
// with a redirect.
func (h *AuthHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var credential string
	form := !isJSON(r)
	if form {
		if err := r.ParseForm(); err != nil {
			writeError(w, r, domain.WrapError(domain.CodeBadInput, "failed to parse form", err))
			return
		}
		credential = r.FormValue("credential")
	} else {
		var req exchangeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		credential = req.Credential
	}
	if credential == "" {
		writeError(w, r, domain.NewError(domain.CodeBadInput, "missing credential"))
		return
	}

	session, err := h.authService.ExchangeCode(r.Context(), credential, clientIP(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.cookies.setPair(w, &session.Tokens)
	if form {
		http.Redirect(w, r, h.redirectURL, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Rotate exchanges a refresh credential, from the body or the cookie, for a
// new pair in the same family.
func (h *AuthHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if isJSON(r) && r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	token := req.RefreshToken
	if token == "" {
		if c, err := r.Cookie(refreshCookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		writeError(w, r, domain.ErrNoToken)
		return
	}

	pair, err := h.authService.Rotate(r.Context(), token, domain.RotationContext{
		Origin:    clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.cookies.setPair(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

// Revoke revokes the credential in the body, or every credential the
// caller presents, and clears the session cookies.
func (h *AuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if isJSON(r) && r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	var tokens []string
	if req.Token != "" {
		tokens = append(tokens, req.Token)
	} else {
		if t := accessToken(r); t != "" {
			tokens = append(tokens, t)
		}
		if c, err := r.Cookie(refreshCookie); err == nil && c.Value != "" {
			tokens = append(tokens, c.Value)
		}
	}
	if len(tokens) == 0 {
		writeError(w, r, domain.ErrNoToken)
		return
	}

	var errs []error
	for _, t := range tokens {
		if err := h.authService.Revoke(r.Context(), t); err != nil {
			errs = append(errs, err)
		}
	}
	expireCookies(w)
	if len(errs) > 0 {
		writeError(w, r, errors.Join(errs...))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
