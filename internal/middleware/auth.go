package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/zhouzirui/drafting/backend/internal/auth"
	"github.com/zhouzirui/drafting/backend/pkg/utils"
)

type authErrKey struct{}

// Identify resolves a bearer token into a principal when one is present. It
// never rejects; RequireAuth does. WebSocket upgrades may pass the token as
// the access_token query parameter.
func Identify(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if token == "" && err == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			if err == nil {
				principal, verr := auth.ValidateJWT(token, secret)
				if verr == nil {
					ctx = auth.WithPrincipal(ctx, principal)
				} else {
					err = verr
				}
			}
			if err != nil {
				ctx = context.WithValue(ctx, authErrKey{}, err)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var errMalformedHeader = errors.New("invalid authorization header")

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if isWebSocketUpgrade(r) {
			return r.URL.Query().Get("access_token"), nil
		}
		return "", nil
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errMalformedHeader
	}
	return parts[1], nil
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

// RequireAuth rejects requests without a valid principal.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFrom(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		err, _ := r.Context().Value(authErrKey{}).(error)
		switch {
		case errors.Is(err, auth.ErrExpiredJWT):
			utils.RespondError(w, http.StatusUnauthorized, "Token has expired")
		case err != nil:
			utils.RespondError(w, http.StatusUnauthorized, "Invalid token")
		default:
			utils.RespondError(w, http.StatusUnauthorized, "Authorization token required")
		}
	})
}

// RequireAdmin rejects authenticated non-admins with 403. It must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Authorization token required")
			return
		}
		if !principal.IsAdmin() {
			utils.RespondError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
