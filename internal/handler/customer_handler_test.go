package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/customerd/internal/customer"
	"github.com/hitoshi/customerd/internal/middleware"
	"github.com/hitoshi/customerd/internal/model"
)

// --- モック定義 ---

// mockCustomerService はCustomerServiceInterfaceのモック実装。
type mockCustomerService struct {
	signupFn            func(ctx context.Context, input customer.SignupInput) (*model.Customer, bool, error)
	fetchFn             func(ctx context.Context, id string, scopes model.ScopeSet) (*model.PrivateCustomer, error)
	updateNameFn        func(ctx context.Context, customerID, name string) error
	updatePasswordFn    func(ctx context.Context, customerID, current, newPassword, confirm string) error
	updatePreferencesFn func(ctx context.Context, customerID string, prefs model.Preferences) error
	addEmailFn          func(ctx context.Context, customerID, address string) error
	verifyEmailFn       func(ctx context.Context, token string) error
}

func (m *mockCustomerService) Signup(ctx context.Context, input customer.SignupInput) (*model.Customer, bool, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, input)
	}
	return &model.Customer{ID: "cust-001"}, true, nil
}

func (m *mockCustomerService) Fetch(ctx context.Context, id string, scopes model.ScopeSet) (*model.PrivateCustomer, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, id, scopes)
	}
	return &model.PrivateCustomer{ID: &id}, nil
}

func (m *mockCustomerService) UpdateName(ctx context.Context, customerID, name string) error {
	if m.updateNameFn != nil {
		return m.updateNameFn(ctx, customerID, name)
	}
	return nil
}

func (m *mockCustomerService) UpdatePassword(ctx context.Context, customerID, current, newPassword, confirm string) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, customerID, current, newPassword, confirm)
	}
	return nil
}

func (m *mockCustomerService) UpdatePreferences(ctx context.Context, customerID string, prefs model.Preferences) error {
	if m.updatePreferencesFn != nil {
		return m.updatePreferencesFn(ctx, customerID, prefs)
	}
	return nil
}

func (m *mockCustomerService) AddEmail(ctx context.Context, customerID, address string) error {
	if m.addEmailFn != nil {
		return m.addEmailFn(ctx, customerID, address)
	}
	return nil
}

func (m *mockCustomerService) VerifyEmail(ctx context.Context, token string) error {
	if m.verifyEmailFn != nil {
		return m.verifyEmailFn(ctx, token)
	}
	return nil
}

var _ CustomerServiceInterface = (*mockCustomerService)(nil)

// mockSignupRecorder はSignupRecorderのモック実装。
type mockSignupRecorder struct {
	signups    int
	emailKinds []string
}

func (m *mockSignupRecorder) RecordSignup() {
	m.signups++
}

func (m *mockSignupRecorder) RecordEmailSent(kind string) {
	m.emailKinds = append(m.emailKinds, kind)
}

// --- テストヘルパー ---

// withSession はリクエストにセッション情報を注入する。
func withSession(req *http.Request, customerID string, scopes ...model.Scope) *http.Request {
	session := &model.SessionData{
		CustomerID: customerID,
		Scopes:     model.NewScopeSet(scopes...),
	}
	ctx := middleware.ContextWithSession(req.Context(), session, "test-token")
	return req.WithContext(ctx)
}

// decodeErrorBody はエラーレスポンスのボディを読み取る。
func decodeErrorBody(t *testing.T, resp *http.Response) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- POST /api/customers テスト ---

func TestCustomerHandler_Signup_Success(t *testing.T) {
	svc := &mockCustomerService{
		signupFn: func(ctx context.Context, input customer.SignupInput) (*model.Customer, bool, error) {
			if input.Email != "taro@example.com" {
				t.Errorf("input.Email = %q, want %q", input.Email, "taro@example.com")
			}
			if !input.AcceptedTerms {
				t.Error("expected AcceptedTerms to be true")
			}
			return &model.Customer{ID: "cust-new"}, true, nil
		},
	}
	recorder := &mockSignupRecorder{}
	h := NewCustomerHandler(svc, recorder)

	body := `{"name":"太郎","email":"taro@example.com","password":"pass1234","password_confirmation":"pass1234","class":"personal","accepted_terms":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/customers", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Signup(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var respBody jsonResponse
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	data, ok := respBody.Data.(map[string]any)
	if !ok {
		t.Fatalf("data is not an object: %T", respBody.Data)
	}
	if data["id"] != "cust-new" {
		t.Errorf("data.id = %v, want %q", data["id"], "cust-new")
	}

	if recorder.signups != 1 {
		t.Errorf("signups = %d, want 1", recorder.signups)
	}
	if len(recorder.emailKinds) != 1 || recorder.emailKinds[0] != "verification" {
		t.Errorf("emailKinds = %v, want [verification]", recorder.emailKinds)
	}
}

func TestCustomerHandler_Signup_NotificationFailed_StillCreated(t *testing.T) {
	svc := &mockCustomerService{
		signupFn: func(ctx context.Context, input customer.SignupInput) (*model.Customer, bool, error) {
			return &model.Customer{ID: "cust-new"}, false, nil
		},
	}
	h := NewCustomerHandler(svc, nil)

	body := `{"name":"太郎","email":"taro@example.com","password":"pass1234","password_confirmation":"pass1234","class":"personal","accepted_terms":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/customers", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Signup(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var respBody jsonResponse
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.Contains(respBody.Message, "再送") {
		t.Errorf("message = %q, want resend guidance", respBody.Message)
	}
}

func TestCustomerHandler_Signup_InvalidBody(t *testing.T) {
	h := NewCustomerHandler(&mockCustomerService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/customers", strings.NewReader("{invalid"))
	w := httptest.NewRecorder()

	h.Signup(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestCustomerHandler_Signup_EmailTaken(t *testing.T) {
	svc := &mockCustomerService{
		signupFn: func(ctx context.Context, input customer.SignupInput) (*model.Customer, bool, error) {
			return nil, false, model.NewEmailTakenError()
		},
	}
	recorder := &mockSignupRecorder{}
	h := NewCustomerHandler(svc, recorder)

	body := `{"name":"太郎","email":"taken@example.com","password":"pass1234","password_confirmation":"pass1234","class":"personal","accepted_terms":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/customers", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Signup(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
	if body := decodeErrorBody(t, resp); body.Code != model.ErrCodeEmailTaken {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeEmailTaken)
	}
	if recorder.signups != 0 {
		t.Errorf("signups = %d, want 0", recorder.signups)
	}
}

// --- GET /api/customers テスト ---

func TestCustomerHandler_Fetch_Success(t *testing.T) {
	svc := &mockCustomerService{
		fetchFn: func(ctx context.Context, id string, scopes model.ScopeSet) (*model.PrivateCustomer, error) {
			if id != "cust-002" {
				t.Errorf("id = %q, want %q", id, "cust-002")
			}
			if !scopes.Has(model.ScopeViewPublicID) {
				t.Error("expected scopes to contain view_public_id")
			}
			return &model.PrivateCustomer{ID: &id}, nil
		},
	}
	h := NewCustomerHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/customers?id=cust-002", nil)
	req = withSession(req, "cust-001", model.ScopeViewPublicID)
	w := httptest.NewRecorder()

	h.Fetch(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestCustomerHandler_Fetch_NoSession_ReturnsUnauthorized(t *testing.T) {
	h := NewCustomerHandler(&mockCustomerService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/customers?id=cust-002", nil)
	w := httptest.NewRecorder()

	h.Fetch(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestCustomerHandler_Fetch_MissingID(t *testing.T) {
	h := NewCustomerHandler(&mockCustomerService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
	req = withSession(req, "cust-001", model.ScopeViewPublicID)
	w := httptest.NewRecorder()

	h.Fetch(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestCustomerHandler_Fetch_NotFound(t *testing.T) {
	svc := &mockCustomerService{
		fetchFn: func(ctx context.Context, id string, scopes model.ScopeSet) (*model.PrivateCustomer, error) {
			return nil, model.NewCustomerNotFoundError()
		},
	}
	h := NewCustomerHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/customers?id=unknown", nil)
	req = withSession(req, "cust-001", model.ScopeTotalAccess)
	w := httptest.NewRecorder()

	h.Fetch(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

// --- PATCH /api/me/name テスト ---

func TestCustomerHandler_UpdateName_Success(t *testing.T) {
	svc := &mockCustomerService{
		updateNameFn: func(ctx context.Context, customerID, name string) error {
			if customerID != "cust-001" {
				t.Errorf("customerID = %q, want %q", customerID, "cust-001")
			}
			if name != "花子" {
				t.Errorf("name = %q, want %q", name, "花子")
			}
			return nil
		},
	}
	h := NewCustomerHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/me/name", strings.NewReader(`{"name":"花子"}`))
	req = withSession(req, "cust-001", model.ScopeUpdateName)
	w := httptest.NewRecorder()

	h.UpdateName(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestCustomerHandler_UpdateName_InvalidName(t *testing.T) {
	svc := &mockCustomerService{
		updateNameFn: func(ctx context.Context, customerID, name string) error {
			return model.NewInvalidNameError()
		},
	}
	h := NewCustomerHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/me/name", strings.NewReader(`{"name":"x"}`))
	req = withSession(req, "cust-001", model.ScopeUpdateName)
	w := httptest.NewRecorder()

	h.UpdateName(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

// --- PATCH /api/me/password テスト ---

func TestCustomerHandler_UpdatePassword_Success(t *testing.T) {
	svc := &mockCustomerService{
		updatePasswordFn: func(ctx context.Context, customerID, current, newPassword, confirm string) error {
			if current != "oldpass12" || newPassword != "newpass34" || confirm != "newpass34" {
				t.Errorf("unexpected arguments: %q %q %q", current, newPassword, confirm)
			}
			return nil
		},
	}
	h := NewCustomerHandler(svc, nil)

	body := `{"current_password":"oldpass12","new_password":"newpass34","new_password_confirmation":"newpass34"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/me/password", strings.NewReader(body))
	req = withSession(req, "cust-001", model.ScopeTotalAccess)
	w := httptest.NewRecorder()

	h.UpdatePassword(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestCustomerHandler_UpdatePassword_IncorrectCurrent(t *testing.T) {
	svc := &mockCustomerService{
		updatePasswordFn: func(ctx context.Context, customerID, current, newPassword, confirm string) error {
			return model.NewIncorrectPasswordError()
		},
	}
	h := NewCustomerHandler(svc, nil)

	body := `{"current_password":"wrong1234","new_password":"newpass34","new_password_confirmation":"newpass34"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/me/password", strings.NewReader(body))
	req = withSession(req, "cust-001", model.ScopeTotalAccess)
	w := httptest.NewRecorder()

	h.UpdatePassword(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

// --- PATCH /api/me/email テスト ---

func TestCustomerHandler_AddEmail_Success(t *testing.T) {
	svc := &mockCustomerService{
		addEmailFn: func(ctx context.Context, customerID, address string) error {
			if address != "sub@example.com" {
				t.Errorf("address = %q, want %q", address, "sub@example.com")
			}
			return nil
		},
	}
	h := NewCustomerHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/me/email", strings.NewReader(`{"address":"sub@example.com"}`))
	req = withSession(req, "cust-001", model.ScopeUpdateEmailAddresses)
	w := httptest.NewRecorder()

	h.AddEmail(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestCustomerHandler_AddEmail_MaxReached(t *testing.T) {
	svc := &mockCustomerService{
		addEmailFn: func(ctx context.Context, customerID, address string) error {
			return model.NewMaxEmailsReachedError()
		},
	}
	h := NewCustomerHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/me/email", strings.NewReader(`{"address":"sub@example.com"}`))
	req = withSession(req, "cust-001", model.ScopeUpdateEmailAddresses)
	w := httptest.NewRecorder()

	h.AddEmail(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

// --- PATCH /api/me/preferences テスト ---

func TestCustomerHandler_UpdatePreferences_Success(t *testing.T) {
	var got model.Preferences
	svc := &mockCustomerService{
		updatePreferencesFn: func(ctx context.Context, customerID string, prefs model.Preferences) error {
			got = prefs
			return nil
		},
	}
	h := NewCustomerHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/me/preferences", strings.NewReader(`{"dark_mode":true}`))
	req = withSession(req, "cust-001", model.ScopeUpdatePreferences)
	w := httptest.NewRecorder()

	h.UpdatePreferences(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !got.DarkMode {
		t.Error("expected DarkMode to be true")
	}
}

// --- GET /api/email/verify テスト ---

func TestCustomerHandler_VerifyEmail_Success(t *testing.T) {
	svc := &mockCustomerService{
		verifyEmailFn: func(ctx context.Context, token string) error {
			if token != "token-abc" {
				t.Errorf("token = %q, want %q", token, "token-abc")
			}
			return nil
		},
	}
	h := NewCustomerHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/email/verify?token=token-abc", nil)
	w := httptest.NewRecorder()

	h.VerifyEmail(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestCustomerHandler_VerifyEmail_InvalidToken(t *testing.T) {
	svc := &mockCustomerService{
		verifyEmailFn: func(ctx context.Context, token string) error {
			return model.NewInvalidVerifyTokenError()
		},
	}
	h := NewCustomerHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/email/verify?token=expired", nil)
	w := httptest.NewRecorder()

	h.VerifyEmail(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

// --- handleServiceError テスト ---

func TestHandleServiceError_UnknownError_ReturnsInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()

	handleServiceError(w, errors.New("connection refused"))

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	if body := decodeErrorBody(t, resp); body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "INTERNAL_ERROR")
	}
}
