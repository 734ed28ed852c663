package http

import (
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
)

type errorResponse struct {
	Code       domain.Code `json:"code"`
	Message    string      `json:"message"`
	Retryable  bool        `json:"retryable"`
	RetryAfter *int64      `json:"retry_after,omitempty"`
	ErrorID    string      `json:"error_id"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as the failure envelope. Errors that carry no code
// are served as INTERNAL_ERROR without their cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		derr = domain.WrapError(domain.CodeInternal, domain.ErrInternal.Message, err)
	}

	resp := errorResponse{
		Code:      derr.Code,
		Message:   derr.Message,
		Retryable: derr.Code.Retryable(),
		ErrorID:   errorID(r),
	}
	if derr.RetryAfter > 0 {
		secs := retryAfterSeconds(derr.RetryAfter)
		resp.RetryAfter = &secs
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	if derr.Code.Security() {
		expireCookies(w)
	}

	status := derr.Code.HTTPStatus()
	logger := hlog.FromRequest(r)
	ev := logger.Info()
	if status >= http.StatusInternalServerError {
		ev = logger.Error()
	} else if derr.Code.Security() {
		ev = logger.Warn()
	}
	ev.Err(err).
		Str("code", string(derr.Code)).
		Str("error_id", resp.ErrorID).
		Msg("request failed")

	writeJSON(w, status, resp)
}

func errorID(r *http.Request) string {
	if id, ok := hlog.IDFromRequest(r); ok {
		return id.String()
	}
	return uuid.NewString()
}

func retryAfterSeconds(d time.Duration) int64 {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.WrapError(domain.CodeBadInput, "invalid request body", err)
	}
	return nil
}

// clientIP is the address the request came from. middleware.RealIP has
// already applied any trusted forwarding headers.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
