// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/furuhon/internal/model"
	"github.com/hitoshi/furuhon/internal/repository"
)

type sessionUserKey struct{}

// ErrNoUserInContext はコンテキストにログイン中ユーザーがないことを表す。
var ErrNoUserInContext = errors.New("user ID not found in context")

// NewSessionMiddleware はローカルセッションのユーザーIDをリクエストに載せる。
// 未ログインのリクエストもそのまま通す。
func NewSessionMiddleware(session repository.SessionProvider) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := session.CurrentUserID()
			if ok {
				r = r.WithContext(ContextWithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession は未ログインなら401 NO_SESSIONで打ち切る。NewSessionMiddleware より後ろに置く。
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := UserIDFromContext(r.Context()); errors.Is(err, ErrNoUserInContext) {
			WriteErrorResponse(w, http.StatusUnauthorized, model.ErrNoSession)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserIDFromContext はリクエストに載ったユーザーIDを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	if userID, _ := ctx.Value(sessionUserKey{}).(string); userID != "" {
		return userID, nil
	}
	return "", ErrNoUserInContext
}

// ContextWithUserID は ctx にユーザーIDを載せる。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, sessionUserKey{}, userID)
}
