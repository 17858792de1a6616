// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/customerd/internal/model"
)

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッション情報を格納するためのキー。
var sessionContextKey = contextKey("session")

// tokenContextKey はリクエストコンテキストにベアラートークンを格納するためのキー。
var tokenContextKey = contextKey("bearer_token")

// SessionResolver はベアラートークンをセッション情報に解決するインターフェース。
// auth.Serviceの部分集合として定義する。
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*model.SessionData, error)
}

// NewSessionMiddleware はAuthorizationヘッダーのベアラートークンを検証する
// ミドルウェアを返す。トークンの署名検証とストア照会の両方を通過した場合のみ、
// セッション情報とトークンをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
// ストア障害などの認証エラー以外の失敗は500として扱う。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
					return
				}
				slog.Error("failed to resolve session", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, session)
			ctx = context.WithValue(ctx, tokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScopes は要求スコープをすべて満たすセッションのみを通すガードを返す。
// TotalAccessを持つセッションは常に通過する。
// セッションミドルウェアの後に配置する。
func RequireScopes(required ...model.Scope) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := SessionFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !session.Scopes.Satisfies(required...) {
				WriteErrorResponse(w, http.StatusForbidden, model.NewInsufficientScopesError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
// 形式不正の場合は空文字を返す。
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
}

// SessionFromContext はリクエストコンテキストからセッション情報を取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionFromContext(ctx context.Context) (*model.SessionData, error) {
	session, ok := ctx.Value(sessionContextKey).(*model.SessionData)
	if !ok || session == nil {
		return nil, fmt.Errorf("session not found in context")
	}
	return session, nil
}

// BearerTokenFromContext はリクエストコンテキストからベアラートークンを取得する。
func BearerTokenFromContext(ctx context.Context) (string, error) {
	token, ok := ctx.Value(tokenContextKey).(string)
	if !ok || token == "" {
		return "", fmt.Errorf("bearer token not found in context")
	}
	return token, nil
}

// ContextWithSession はコンテキストにセッション情報とトークンを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.SessionData, token string) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, session)
	return context.WithValue(ctx, tokenContextKey, token)
}
