package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/customerd/internal/billing"
	"github.com/hitoshi/customerd/internal/middleware"
	"github.com/hitoshi/customerd/internal/model"
)

const signatureHeader = "X-Signature"

// customerIDMaxLength はcustom_data.customer_idの許容上限。
const customerIDMaxLength = 100

// ReconcilerInterface はWebhookハンドラーが必要とするサービスインターフェース。
type ReconcilerInterface interface {
	// Apply はサブスクリプションイベントを1件処理する。未知のイベントはエラーなしの受領。
	Apply(ctx context.Context, event *billing.SubscriptionEvent) error
}

// WebhookRecorder はWebhook処理メトリクスの記録インターフェース。
type WebhookRecorder interface {
	RecordWebhookEvent(eventName string, result string)
}

// WebhookHandler は課金プロバイダーWebhookのHTTPハンドラー。
// 署名検証は受信したボディの生バイト列に対して行い、再シリアライズしない。
type WebhookHandler struct {
	reconciler   ReconcilerInterface
	signatureKey []byte
	metrics      WebhookRecorder
}

// NewWebhookHandler はWebhookHandlerを生成する。metricsはnilでもよい。
func NewWebhookHandler(reconciler ReconcilerInterface, signatureKey []byte, metrics WebhookRecorder) *WebhookHandler {
	return &WebhookHandler{
		reconciler:   reconciler,
		signatureKey: signatureKey,
		metrics:      metrics,
	}
}

// HandleOrders は注文Webhookを処理する。
// 署名検証後は受領のみを行い、状態は変更しない。
// POST /api/webhooks/lemonsqueezy/events/orders
func (h *WebhookHandler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	rawBody, ok := h.readAndVerify(w, r)
	if !ok {
		return
	}

	var event billing.OrderEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	slog.Info("order webhook received",
		slog.String("event_name", event.Meta.EventName),
	)
	writeJSONResponse(w, http.StatusOK, "captured", nil)
}

// HandleSubscriptions はサブスクリプションWebhookを処理する。
// POST /api/webhooks/lemonsqueezy/events/subscriptions
func (h *WebhookHandler) HandleSubscriptions(w http.ResponseWriter, r *http.Request) {
	rawBody, ok := h.readAndVerify(w, r)
	if !ok {
		return
	}

	var event billing.SubscriptionEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	// custom_dataが付与されている場合、customer_idは1〜100文字でなければならない
	if event.Meta.CustomData != nil {
		idLen := len(event.Meta.CustomData.CustomerID)
		if idLen < 1 || idLen > customerIDMaxLength {
			h.record(event.Meta.EventName, "rejected")
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingCustomerIDError())
			return
		}
	}

	if err := h.reconciler.Apply(r.Context(), &event); err != nil {
		h.record(event.Meta.EventName, "rejected")
		handleServiceError(w, err)
		return
	}

	if billing.KnownEvent(event.Meta.EventName) {
		h.record(event.Meta.EventName, "applied")
	} else {
		h.record(event.Meta.EventName, "ignored")
	}
	writeJSONResponse(w, http.StatusOK, "processed", nil)
}

// readAndVerify は生のリクエストボディを読み取り、HMAC署名を検証する。
// 検証に失敗した場合はエラーレスポンスを書き込み、falseを返す。
func (h *WebhookHandler) readAndVerify(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeInvalidRequestBody(w)
		return nil, false
	}

	signature := r.Header.Get(signatureHeader)
	if err := billing.VerifySignature(rawBody, signature, h.signatureKey); err != nil {
		slog.Warn("webhook signature verification failed",
			slog.String("path", r.URL.Path),
		)
		h.record("unverified", "rejected")
		handleServiceError(w, err)
		return nil, false
	}

	return rawBody, true
}

// record はメトリクス記録を行う。未設定時は何もしない。
func (h *WebhookHandler) record(eventName, result string) {
	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(eventName, result)
	}
}
