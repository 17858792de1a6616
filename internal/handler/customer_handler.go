// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/customerd/internal/customer"
	"github.com/hitoshi/customerd/internal/middleware"
	"github.com/hitoshi/customerd/internal/model"
)

// CustomerServiceInterface は顧客ハンドラーが必要とするサービスインターフェース。
type CustomerServiceInterface interface {
	// Signup は新規顧客を登録する。boolは検証メール送信の成否。
	Signup(ctx context.Context, input customer.SignupInput) (*model.Customer, bool, error)
	// Fetch は顧客をIDで取得し、スコープに応じたビューを返す。
	Fetch(ctx context.Context, id string, scopes model.ScopeSet) (*model.PrivateCustomer, error)
	// UpdateName は顧客の名前を更新する。
	UpdateName(ctx context.Context, customerID, name string) error
	// UpdatePassword は現在のパスワードを検証した上で新しいパスワードを設定する。
	UpdatePassword(ctx context.Context, customerID, current, newPassword, confirm string) error
	// UpdatePreferences は顧客のUI設定を更新する。
	UpdatePreferences(ctx context.Context, customerID string, prefs model.Preferences) error
	// AddEmail は未検証のサブメールアドレスを追加する。
	AddEmail(ctx context.Context, customerID, address string) error
	// VerifyEmail は検証トークンを消費してメールアドレスを検証済みにする。
	VerifyEmail(ctx context.Context, token string) error
}

// SignupRecorder は登録・メール送信メトリクスの記録インターフェース。
type SignupRecorder interface {
	RecordSignup()
	RecordEmailSent(kind string)
}

// CustomerHandler は顧客管理のHTTPハンドラー。
type CustomerHandler struct {
	service CustomerServiceInterface
	metrics SignupRecorder
}

// NewCustomerHandler はCustomerHandlerを生成する。metricsはnilでもよい。
func NewCustomerHandler(service CustomerServiceInterface, metrics SignupRecorder) *CustomerHandler {
	return &CustomerHandler{
		service: service,
		metrics: metrics,
	}
}

// signupRequest は新規登録リクエストのボディ。
type signupRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Class                string `json:"class"`
	AcceptedTerms        bool   `json:"accepted_terms"`
}

// updateNameRequest は名前更新リクエストのボディ。
type updateNameRequest struct {
	Name string `json:"name"`
}

// updatePasswordRequest はパスワード更新リクエストのボディ。
type updatePasswordRequest struct {
	CurrentPassword         string `json:"current_password"`
	NewPassword             string `json:"new_password"`
	NewPasswordConfirmation string `json:"new_password_confirmation"`
}

// addEmailRequest はメールアドレス追加リクエストのボディ。
type addEmailRequest struct {
	Address string `json:"address"`
}

// Signup は新規顧客登録を処理する。
// POST /api/customers
func (h *CustomerHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	created, notified, err := h.service.Signup(r.Context(), customer.SignupInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirmation,
		Class:           req.Class,
		AcceptedTerms:   req.AcceptedTerms,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordSignup()
		if notified {
			h.metrics.RecordEmailSent("verification")
		}
	}

	message := "登録が完了しました。検証メールをご確認ください。"
	if !notified {
		message = "登録が完了しました。検証メールは後ほど再送してください。"
	}
	writeJSONResponse(w, http.StatusCreated, message, map[string]string{
		"id": created.ID,
	})
}

// Fetch は顧客情報をスコープに応じて返す。
// GET /api/customers?id=xxx
func (h *CustomerHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "idクエリパラメータが必要です。",
			Category: "validation",
			Action:   "顧客IDを指定してください。",
		})
		return
	}

	view, err := h.service.Fetch(r.Context(), id, session.Scopes)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, "", view)
}

// UpdateName は自身の名前を更新する。
// PATCH /api/me/name
func (h *CustomerHandler) UpdateName(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updateNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.UpdateName(r.Context(), session.CustomerID, req.Name); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, "名前を更新しました。", nil)
}

// UpdatePassword は自身のパスワードを更新する。
// PATCH /api/me/password
func (h *CustomerHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.UpdatePassword(r.Context(), session.CustomerID, req.CurrentPassword, req.NewPassword, req.NewPasswordConfirmation); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, "パスワードを更新しました。", nil)
}

// UpdatePreferences は自身のUI設定を更新する。
// PATCH /api/me/preferences
func (h *CustomerHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var prefs model.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.UpdatePreferences(r.Context(), session.CustomerID, prefs); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, "設定を更新しました。", nil)
}

// AddEmail は自身に未検証のサブメールアドレスを追加する。
// PATCH /api/me/email
func (h *CustomerHandler) AddEmail(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req addEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.AddEmail(r.Context(), session.CustomerID, req.Address); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, "メールアドレスを追加しました。検証メールをご確認ください。", nil)
}

// VerifyEmail は検証トークンを消費してメールアドレスを検証する。
// GET /api/email/verify?token=xxx
func (h *CustomerHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	if err := h.service.VerifyEmail(r.Context(), token); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, "メールアドレスを検証しました。", nil)
}

// --- ヘルパー関数 ---

// jsonResponse は成功レスポンスの統一フォーマット。
type jsonResponse struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// writeJSONResponse は統一フォーマットで成功レスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(jsonResponse{
		Message: message,
		Data:    data,
	})
}

// writeInvalidRequestBody はボディ解析失敗の統一レスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeTermsNotAccepted, model.ErrCodeInvalidName, model.ErrCodeInvalidEmail,
		model.ErrCodeInvalidPassword, model.ErrCodePasswordMismatch,
		model.ErrCodeEmailEqualsPassword, model.ErrCodeUnknownClass:
		return http.StatusBadRequest
	case model.ErrCodeEmailTaken, model.ErrCodeMaxEmailsReached:
		return http.StatusConflict
	case model.ErrCodeCustomerNotFound:
		return http.StatusNotFound
	case model.ErrCodeUnauthorized, model.ErrCodeIncorrectPassword:
		return http.StatusUnauthorized
	case model.ErrCodeInsufficientScopes:
		return http.StatusForbidden
	case model.ErrCodeProviderMismatch, model.ErrCodeInvalidVerifyToken,
		model.ErrCodeInvalidSignature, model.ErrCodeMissingCustomerID,
		model.ErrCodeUnknownVariant:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
