package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/customerd/internal/middleware"
	"github.com/hitoshi/customerd/internal/model"
)

const oauthStateCookie = "oauth_state"

// IdentityServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type IdentityServiceInterface interface {
	// LoginLegacy はメールアドレスとパスワードでログインし、セッショントークンを発行する。
	LoginLegacy(ctx context.Context, email, password string) (string, error)
	// Renew はセッションのストア側TTLを延長し、新しい有効期限を返す。
	Renew(ctx context.Context, token string) (time.Time, error)
	// Logout はセッションを破棄する。
	Logout(ctx context.Context, token string) error
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// HandleGoogleCallback はOAuthコールバックを処理し、セッショントークンを発行する。
	HandleGoogleCallback(ctx context.Context, code string) (string, error)
}

// LoginRecorder はログイン成功メトリクスの記録インターフェース。
type LoginRecorder interface {
	RecordLogin(provider string)
}

// IdentityHandler はセッション管理と認証フローのHTTPハンドラー。
type IdentityHandler struct {
	service IdentityServiceInterface
	metrics LoginRecorder
}

// NewIdentityHandler はIdentityHandlerを生成する。metricsはnilでもよい。
func NewIdentityHandler(service IdentityServiceInterface, metrics LoginRecorder) *IdentityHandler {
	return &IdentityHandler{
		service: service,
		metrics: metrics,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginLegacy はメールアドレスとパスワードでのログインを処理する。
// POST /api/identity/session/legacy
func (h *IdentityHandler) LoginLegacy(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	token, err := h.service.LoginLegacy(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordLogin(string(model.ProviderLegacy))
	}

	writeJSONResponse(w, http.StatusOK, "ログインしました。", map[string]string{
		"token": token,
	})
}

// GetSession は現在のセッション情報を返す。
// GET /api/identity/session
func (h *IdentityHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSONResponse(w, http.StatusOK, "", map[string]string{
		"customer_id": session.CustomerID,
		"scopes":      session.Scopes.String(),
	})
}

// Renew はセッションのストア側有効期限を延長する。
// PATCH /api/identity/session
func (h *IdentityHandler) Renew(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.BearerTokenFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	expiresAt, err := h.service.Renew(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, "セッションを延長しました。", map[string]string{
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout はセッションを破棄する。
// DELETE /api/identity/session
func (h *IdentityHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.BearerTokenFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /api/identity/session/google/login
func (h *IdentityHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理し、セッショントークンを返す。
// GET /api/identity/session/google?code=xxx&state=yyy
// errorクエリパラメータが付与されている場合（ユーザーによる拒否など）は401を返す。
func (h *IdentityHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		slog.Warn("oauth callback returned error",
			slog.String("oauth_error", errParam),
		)
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	// stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_STATE",
			Message:  "OAuth stateパラメータの検証に失敗しました。",
			Category: "auth",
			Action:   "最初からログインをやり直してください。",
		})
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "認可コードが含まれていません。",
			Category: "auth",
			Action:   "最初からログインをやり直してください。",
		})
		return
	}

	token, err := h.service.HandleGoogleCallback(r.Context(), code)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordLogin(string(model.ProviderGoogle))
	}

	writeJSONResponse(w, http.StatusOK, "ログインしました。", map[string]string{
		"token": token,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
