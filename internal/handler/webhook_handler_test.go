package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/customerd/internal/billing"
	"github.com/hitoshi/customerd/internal/model"
)

// --- モック定義 ---

// mockReconciler はReconcilerInterfaceのモック実装。
type mockReconciler struct {
	applyFn func(ctx context.Context, event *billing.SubscriptionEvent) error
	applied []*billing.SubscriptionEvent
}

func (m *mockReconciler) Apply(ctx context.Context, event *billing.SubscriptionEvent) error {
	m.applied = append(m.applied, event)
	if m.applyFn != nil {
		return m.applyFn(ctx, event)
	}
	return nil
}

var _ ReconcilerInterface = (*mockReconciler)(nil)

// mockWebhookRecorder はWebhookRecorderのモック実装。
type mockWebhookRecorder struct {
	events  []string
	results []string
}

func (m *mockWebhookRecorder) RecordWebhookEvent(eventName string, result string) {
	m.events = append(m.events, eventName)
	m.results = append(m.results, result)
}

// --- テストヘルパー ---

var testSignatureKey = []byte("webhook-secret")

// signBody はテスト用にボディのHMAC-SHA256署名をhexで計算する。
func signBody(body string) string {
	mac := hmac.New(sha256.New, testSignatureKey)
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func signedRequest(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(signatureHeader, signBody(body))
	return req
}

const subscriptionCreatedBody = `{
	"meta": {
		"event_name": "subscription_created",
		"custom_data": {"customer_id": "cust-001"}
	},
	"data": {
		"type": "subscriptions",
		"id": "sub-1",
		"attributes": {
			"store_id": 1,
			"product_id": 10,
			"variant_id": 100,
			"user_email": "taro@example.com",
			"status": "active",
			"renews_at": "2026-02-01T00:00:00Z"
		}
	}
}`

// --- POST /api/webhooks/lemonsqueezy/events/orders テスト ---

func TestWebhookHandler_HandleOrders_Success(t *testing.T) {
	h := NewWebhookHandler(&mockReconciler{}, testSignatureKey, nil)

	body := `{"meta":{"event_name":"order_created"},"data":{"type":"orders","id":"order-1","attributes":{"store_id":1,"status":"paid"}}}`
	req := signedRequest("/api/webhooks/lemonsqueezy/events/orders", body)
	w := httptest.NewRecorder()

	h.HandleOrders(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestWebhookHandler_HandleOrders_InvalidSignature(t *testing.T) {
	reconciler := &mockReconciler{}
	recorder := &mockWebhookRecorder{}
	h := NewWebhookHandler(reconciler, testSignatureKey, recorder)

	body := `{"meta":{"event_name":"order_created"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/lemonsqueezy/events/orders", strings.NewReader(body))
	req.Header.Set(signatureHeader, strings.Repeat("0", 64))
	w := httptest.NewRecorder()

	h.HandleOrders(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if body := decodeErrorBody(t, resp); body.Code != model.ErrCodeInvalidSignature {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidSignature)
	}
	if len(recorder.results) != 1 || recorder.results[0] != "rejected" {
		t.Errorf("results = %v, want [rejected]", recorder.results)
	}
}

func TestWebhookHandler_HandleOrders_MissingSignature(t *testing.T) {
	h := NewWebhookHandler(&mockReconciler{}, testSignatureKey, nil)

	body := `{"meta":{"event_name":"order_created"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/lemonsqueezy/events/orders", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleOrders(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

// --- POST /api/webhooks/lemonsqueezy/events/subscriptions テスト ---

func TestWebhookHandler_HandleSubscriptions_Success(t *testing.T) {
	reconciler := &mockReconciler{}
	recorder := &mockWebhookRecorder{}
	h := NewWebhookHandler(reconciler, testSignatureKey, recorder)

	req := signedRequest("/api/webhooks/lemonsqueezy/events/subscriptions", subscriptionCreatedBody)
	w := httptest.NewRecorder()

	h.HandleSubscriptions(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if len(reconciler.applied) != 1 {
		t.Fatalf("applied = %d events, want 1", len(reconciler.applied))
	}
	event := reconciler.applied[0]
	if event.Meta.EventName != billing.EventSubscriptionCreated {
		t.Errorf("event_name = %q, want %q", event.Meta.EventName, billing.EventSubscriptionCreated)
	}
	if event.Meta.CustomData == nil || event.Meta.CustomData.CustomerID != "cust-001" {
		t.Errorf("custom_data = %+v, want customer_id cust-001", event.Meta.CustomData)
	}
	if event.Data.Attributes.VariantID != 100 {
		t.Errorf("variant_id = %d, want 100", event.Data.Attributes.VariantID)
	}

	if len(recorder.results) != 1 || recorder.results[0] != "applied" {
		t.Errorf("results = %v, want [applied]", recorder.results)
	}
}

func TestWebhookHandler_HandleSubscriptions_UnknownEvent_RecordedAsIgnored(t *testing.T) {
	reconciler := &mockReconciler{}
	recorder := &mockWebhookRecorder{}
	h := NewWebhookHandler(reconciler, testSignatureKey, recorder)

	body := `{"meta":{"event_name":"subscription_plan_changed"},"data":{"type":"subscriptions","id":"sub-1","attributes":{}}}`
	req := signedRequest("/api/webhooks/lemonsqueezy/events/subscriptions", body)
	w := httptest.NewRecorder()

	h.HandleSubscriptions(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if len(recorder.results) != 1 || recorder.results[0] != "ignored" {
		t.Errorf("results = %v, want [ignored]", recorder.results)
	}
}

func TestWebhookHandler_HandleSubscriptions_CustomDataWithoutCustomerID(t *testing.T) {
	reconciler := &mockReconciler{}
	recorder := &mockWebhookRecorder{}
	h := NewWebhookHandler(reconciler, testSignatureKey, recorder)

	body := `{"meta":{"event_name":"subscription_created","custom_data":{"customer_id":""}},"data":{"type":"subscriptions","id":"sub-1","attributes":{}}}`
	req := signedRequest("/api/webhooks/lemonsqueezy/events/subscriptions", body)
	w := httptest.NewRecorder()

	h.HandleSubscriptions(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if body := decodeErrorBody(t, resp); body.Code != model.ErrCodeMissingCustomerID {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeMissingCustomerID)
	}
	if len(reconciler.applied) != 0 {
		t.Errorf("applied = %d events, want 0", len(reconciler.applied))
	}
	if len(recorder.results) != 1 || recorder.results[0] != "rejected" {
		t.Errorf("results = %v, want [rejected]", recorder.results)
	}
}

func TestWebhookHandler_HandleSubscriptions_CustomerIDTooLong(t *testing.T) {
	reconciler := &mockReconciler{}
	h := NewWebhookHandler(reconciler, testSignatureKey, nil)

	longID := strings.Repeat("a", 101)
	body := `{"meta":{"event_name":"subscription_created","custom_data":{"customer_id":"` + longID + `"}},"data":{"type":"subscriptions","id":"sub-1","attributes":{}}}`
	req := signedRequest("/api/webhooks/lemonsqueezy/events/subscriptions", body)
	w := httptest.NewRecorder()

	h.HandleSubscriptions(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if len(reconciler.applied) != 0 {
		t.Errorf("applied = %d events, want 0", len(reconciler.applied))
	}
}

// custom_data自体が存在しない場合は検証を通し、照合側でメールアドレス解決に委ねる
func TestWebhookHandler_HandleSubscriptions_NoCustomData_PassesThrough(t *testing.T) {
	reconciler := &mockReconciler{}
	h := NewWebhookHandler(reconciler, testSignatureKey, nil)

	body := `{"meta":{"event_name":"subscription_created"},"data":{"type":"subscriptions","id":"sub-1","attributes":{"user_email":"taro@example.com"}}}`
	req := signedRequest("/api/webhooks/lemonsqueezy/events/subscriptions", body)
	w := httptest.NewRecorder()

	h.HandleSubscriptions(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if len(reconciler.applied) != 1 {
		t.Errorf("applied = %d events, want 1", len(reconciler.applied))
	}
}

func TestWebhookHandler_HandleSubscriptions_UnknownVariant(t *testing.T) {
	reconciler := &mockReconciler{
		applyFn: func(ctx context.Context, event *billing.SubscriptionEvent) error {
			return model.NewUnknownVariantError(event.Data.Attributes.VariantID)
		},
	}
	recorder := &mockWebhookRecorder{}
	h := NewWebhookHandler(reconciler, testSignatureKey, recorder)

	req := signedRequest("/api/webhooks/lemonsqueezy/events/subscriptions", subscriptionCreatedBody)
	w := httptest.NewRecorder()

	h.HandleSubscriptions(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if len(recorder.results) != 1 || recorder.results[0] != "rejected" {
		t.Errorf("results = %v, want [rejected]", recorder.results)
	}
}

func TestWebhookHandler_HandleSubscriptions_InvalidSignature_DoesNotApply(t *testing.T) {
	reconciler := &mockReconciler{}
	h := NewWebhookHandler(reconciler, testSignatureKey, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/lemonsqueezy/events/subscriptions", strings.NewReader(subscriptionCreatedBody))
	req.Header.Set(signatureHeader, signBody("tampered body"))
	w := httptest.NewRecorder()

	h.HandleSubscriptions(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if len(reconciler.applied) != 0 {
		t.Errorf("applied = %d events, want 0", len(reconciler.applied))
	}
}
