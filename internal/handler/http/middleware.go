package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	"github.com/AaryaPoriya/QuantumCoders/internal/ingest"
	"github.com/AaryaPoriya/QuantumCoders/internal/session"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
	"github.com/AaryaPoriya/QuantumCoders/pkg/httputil"
	"github.com/AaryaPoriya/QuantumCoders/pkg/logger"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	sessionKey  contextKey = "session"
	deviceIDKey contextKey = "device_id"
)

// SessionAuth resolves the Authorization bearer token to a live session and
// stores it in the request context. Requests without a valid session are
// rejected.
func SessionAuth(auth *session.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httputil.WriteError(w, r, apperrors.Unauthenticated("missing bearer token"), nil)
				return
			}

			sess, err := auth.Validate(r.Context(), token)
			if err != nil {
				httputil.WriteError(w, r, err, nil)
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, sess)
			ctx = logger.WithSessionID(ctx, sess.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireActive rejects sessions that are not fully authenticated. Placed
// after SessionAuth on routes that mutate carts.
func RequireActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromContext(r.Context())
		if !ok || sess.State != domain.SessionActive {
			httputil.WriteError(w, r, apperrors.Unauthenticated("session is not active"), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// DeviceAuth authenticates in-cart devices by their API key, a credential
// class distinct from shopper tokens. Expects X-Device-ID and X-Device-Key
// headers.
func DeviceAuth(ingester *ingest.Ingester) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := r.Header.Get("X-Device-ID")
			apiKey := r.Header.Get("X-Device-Key")
			if deviceID == "" || apiKey == "" {
				httputil.WriteError(w, r, apperrors.DeviceUnauthorized("unknown"), nil)
				return
			}

			if err := ingester.Authorize(r.Context(), deviceID, apiKey); err != nil {
				httputil.WriteError(w, r, err, nil)
				return
			}

			ctx := context.WithValue(r.Context(), deviceIDKey, deviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContentTypeJSON enforces that requests with a body carry application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteError(w, r, apperrors.InvalidInput("Content-Type must be application/json"), nil)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// sessionFromContext extracts the authenticated session.
func sessionFromContext(ctx context.Context) (*domain.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*domain.Session)
	return sess, ok && sess != nil
}

// deviceIDFromContext extracts the authenticated device ID.
func deviceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceIDKey).(string)
	return id, ok && id != ""
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
