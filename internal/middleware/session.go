// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/shelterlink/internal/model"
	"github.com/hitoshi/shelterlink/internal/session"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey = contextKey("user_id")
	entryContextKey  = contextKey("session_entry")
)

// SessionResolver はセッションIDからセッションのEntryを引くインターフェース。
// session.Manager が実装する。
type SessionResolver interface {
	Get(ctx context.Context, sessionID string) (*session.Entry, error)
}

// NewSessionMiddleware はHTTP Only CookieからセッションIDを読み取り、
// 対応するEntryとユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// 未認証または期限切れのリクエストには401を返す。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			entry, err := resolver.Get(r.Context(), cookie.Value)
			if err != nil {
				if errors.Is(err, session.ErrSessionNotFound) {
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
					return
				}
				slog.Error("セッションの取得に失敗しました",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			ctx := ContextWithEntry(r.Context(), entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EntryFromContext はリクエストコンテキストからセッションのEntryを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func EntryFromContext(ctx context.Context) (*session.Entry, error) {
	entry, ok := ctx.Value(entryContextKey).(*session.Entry)
	if !ok || entry == nil {
		return nil, fmt.Errorf("session entry not found in context")
	}
	return entry, nil
}

// ContextWithEntry はコンテキストにEntryとそのユーザーIDを注入する。
func ContextWithEntry(ctx context.Context, entry *session.Entry) context.Context {
	ctx = context.WithValue(ctx, entryContextKey, entry)
	return ContextWithUserID(ctx, entry.Session.UserID)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// アクセスログのミドルウェアを通過している場合はログにも反映する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.userID = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}
