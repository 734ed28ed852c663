package http

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotency-Replayed"
	maxIdempotencyKey = 255
)

// Idempotency records the first completed response per caller and key and
// replays it for repeated requests. Server failures are not recorded so the
// request can be retried. A reservation lives for pendingTTL until the
// response is recorded for ttl.
type Idempotency struct {
	store      ports.IdempotencyStore
	pendingTTL time.Duration
	ttl        time.Duration
	required   bool
}

func NewIdempotency(store ports.IdempotencyStore, pendingTTL, ttl time.Duration, required bool) *Idempotency {
	if pendingTTL <= 0 || pendingTTL > ttl {
		pendingTTL = ttl
	}
	return &Idempotency{store: store, pendingTTL: pendingTTL, ttl: ttl, required: required}
}

// Middleware must run after Authenticate; keys are scoped to the caller.
func (i *Idempotency) Middleware(next http.Handler) http.Handler {
	if i == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if key == "" {
			if i.required {
				writeError(w, r, domain.NewError(domain.CodeBadInput, "Idempotency-Key header is required"))
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKey {
			writeError(w, r, domain.NewError(domain.CodeBadInput, "Idempotency-Key is too long"))
			return
		}
		caller, ok := callerFrom(r)
		if !ok {
			writeError(w, r, domain.ErrNoToken)
			return
		}

		scope := caller.ID.String() + ":" + r.Method + ":" + r.URL.Path + ":" + key
		recorded, reserved, err := i.store.Reserve(r.Context(), scope, i.pendingTTL)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !reserved {
			if recorded == nil || recorded.Pending {
				writeError(w, r, domain.NewError(domain.CodeDuplicateEntry, "a request with this Idempotency-Key is in progress"))
				return
			}
			replay(w, recorded)
			return
		}

		// The response is already sent; bookkeeping must not be cut short by
		// the request context.
		ctx := context.WithoutCancel(r.Context())
		logger := hlog.FromRequest(r)
		release := func() {
			if err := i.store.Release(ctx, scope); err != nil {
				logger.Warn().Err(err).Msg("failed to release idempotency key")
			}
		}

		cw := &capturingWriter{ResponseWriter: w, status: http.StatusOK}
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					release()
					panic(rec)
				}
			}()
			next.ServeHTTP(cw, r)
		}()

		if cw.status >= http.StatusInternalServerError {
			release()
			return
		}
		resp := &domain.RecordedResponse{
			Status:      cw.status,
			ContentType: cw.Header().Get("Content-Type"),
			Body:        cw.body.Bytes(),
		}
		if err := i.store.Complete(ctx, scope, resp, i.ttl); err != nil {
			logger.Warn().Err(err).Msg("failed to record idempotent response")
		}
	})
}

func replay(w http.ResponseWriter, recorded *domain.RecordedResponse) {
	if recorded.ContentType != "" {
		w.Header().Set("Content-Type", recorded.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(recorded.Status)
	_, _ = w.Write(recorded.Body)
}

type capturingWriter struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (w *capturingWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
