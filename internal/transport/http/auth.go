package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/hanyusok/docplus-dev/internal/domain"
	"github.com/hanyusok/docplus-dev/pkg/httputil"
	"github.com/hanyusok/docplus-dev/pkg/logger"
)

// Authenticator is satisfied by *security.Authenticator.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// Users is satisfied by directory.Directory.
type Users interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

type userKey struct{}

// RequireUser отклоняет запросы без валидного токена (или X-User-ID в trust-режиме).
func RequireUser(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, err := auth.Authenticate(r)
			if err != nil {
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "unauthorized", "missing or invalid credentials")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, uid)))
		})
	}
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userKey{}).(string)
	return v, ok && v != ""
}

// RequireHost пропускает только врачей и администраторов. Ставится после RequireUser.
func RequireHost(users Users) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, ok := UserIDFromContext(r.Context())
			if !ok || users == nil {
				httputil.Error(r.Context(), w, http.StatusForbidden, "forbidden", "host role required")
				return
			}
			u, err := users.GetUser(r.Context(), uid)
			switch {
			case errors.Is(err, domain.ErrUserNotFound):
				httputil.Error(r.Context(), w, http.StatusForbidden, "forbidden", "host role required")
				return
			case err != nil:
				logger.FromContext(r.Context()).Error("user lookup failed", "user", uid, "err", err)
				httputil.Error(r.Context(), w, http.StatusServiceUnavailable, "unavailable", "user directory unavailable")
				return
			case !u.Role.CanHost():
				httputil.Error(r.Context(), w, http.StatusForbidden, "forbidden", "host role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
