package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/customerd/internal/model"
	"github.com/hitoshi/customerd/internal/repository"
)

// 課金プロバイダーが送出するサブスクリプションイベント名
const (
	EventSubscriptionCreated          = "subscription_created"
	EventSubscriptionUpdated          = "subscription_updated"
	EventSubscriptionCancelled        = "subscription_cancelled"
	EventSubscriptionResumed          = "subscription_resumed"
	EventSubscriptionExpired          = "subscription_expired"
	EventSubscriptionPaused           = "subscription_paused"
	EventSubscriptionUnpaused         = "subscription_unpaused"
	EventSubscriptionPaymentSuccess   = "subscription_payment_success"
	EventSubscriptionPaymentFailed    = "subscription_payment_failed"
	EventSubscriptionPaymentRecovered = "subscription_payment_recovered"
)

// KnownEvent は処理対象のサブスクリプションイベント名かどうかを返す。
func KnownEvent(name string) bool {
	switch name {
	case EventSubscriptionCreated, EventSubscriptionUpdated,
		EventSubscriptionCancelled, EventSubscriptionResumed, EventSubscriptionExpired,
		EventSubscriptionPaused, EventSubscriptionUnpaused,
		EventSubscriptionPaymentSuccess, EventSubscriptionPaymentFailed, EventSubscriptionPaymentRecovered:
		return true
	default:
		return false
	}
}

// ProductConfig は課金商品のIDマッピング設定。
type ProductConfig struct {
	ProProductID        int64
	ProMonthlyVariantID int64
	ProAnnualVariantID  int64
}

// Reconciler はサブスクリプションイベントを顧客レコードへ反映する。
// すべてのイベント処理は履歴1件の追記を伴う単一の部分更新で終わる。
// 履歴追記はjsonb連結なので、同一顧客への同時イベントはどちらも記録される。
type Reconciler struct {
	customerRepo repository.CustomerRepository
	products     ProductConfig
}

// NewReconciler はReconcilerを生成する。
func NewReconciler(customerRepo repository.CustomerRepository, products ProductConfig) *Reconciler {
	return &Reconciler{customerRepo: customerRepo, products: products}
}

// Apply はサブスクリプションイベントを1件処理する。
// 未知のイベント名は送信側のリトライを誘発しないよう黙って受領する（エラーなし）。
func (r *Reconciler) Apply(ctx context.Context, event *SubscriptionEvent) error {
	switch event.Meta.EventName {
	case EventSubscriptionCreated:
		return r.applyCreated(ctx, event)
	case EventSubscriptionUpdated:
		return r.applyUpdated(ctx, event)
	case EventSubscriptionCancelled, EventSubscriptionResumed, EventSubscriptionExpired,
		EventSubscriptionPaused, EventSubscriptionUnpaused:
		return r.applyStatusChange(ctx, event)
	case EventSubscriptionPaymentSuccess, EventSubscriptionPaymentFailed, EventSubscriptionPaymentRecovered:
		return r.applyPayment(ctx, event)
	default:
		slog.Info("ignoring unknown webhook event",
			slog.String("event_name", event.Meta.EventName),
		)
		return nil
	}
}

// resolveCustomer はcustom_dataのcustomer_idまたは課金側メールアドレスで顧客を特定する。
func (r *Reconciler) resolveCustomer(ctx context.Context, event *SubscriptionEvent) (*model.Customer, error) {
	customerID := ""
	if event.Meta.CustomData != nil {
		customerID = event.Meta.CustomData.CustomerID
	}

	customer, err := r.customerRepo.FindByIDOrEmail(ctx, customerID, event.Data.Attributes.UserEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve customer for webhook: %w", err)
	}
	if customer == nil {
		return nil, model.NewCustomerNotFoundError()
	}
	return customer, nil
}

// historyLog はイベント1件に対応する履歴エントリを作る。
// 日付はイベント属性のupdated_atを使う（受信時刻ではない）。
func historyLog(event *SubscriptionEvent) model.SubscriptionHistoryLog {
	return model.SubscriptionHistoryLog{
		Event: event.Meta.EventName,
		Date:  event.Data.Attributes.UpdatedAt,
	}
}

// applyCreated はsubscription_createdを処理する。
// サブスクリプションIDは毎回新規発行し、created_atは顧客作成日時を引き継ぐ。
func (r *Reconciler) applyCreated(ctx context.Context, event *SubscriptionEvent) error {
	customer, err := r.resolveCustomer(ctx, event)
	if err != nil {
		return err
	}

	attrs := event.Data.Attributes

	var frequency model.SubscriptionFrequency
	switch attrs.VariantID {
	case r.products.ProMonthlyVariantID:
		frequency = model.FrequencyMonthly
	case r.products.ProAnnualVariantID:
		frequency = model.FrequencyAnnually
	default:
		// 未知のバリアントは書き込みを一切行わずに拒否する
		return model.NewUnknownVariantError(attrs.VariantID)
	}

	slug := model.SlugFree
	if attrs.ProductID == r.products.ProProductID {
		slug = model.SlugPro
	}

	endsAt := ""
	if attrs.EndsAt != nil {
		endsAt = *attrs.EndsAt
	}

	sub := model.Subscription{
		ID:        uuid.New().String(),
		ProductID: attrs.ProductID,
		VariantID: attrs.VariantID,
		Slug:      slug,
		Frequency: frequency,
		Status:    attrs.Status,
		CreatedAt: customer.CreatedAt,
		UpdatedAt: attrs.UpdatedAt,
		StartsAt:  attrs.CreatedAt,
		EndsAt:    endsAt,
		RenewsAt:  attrs.RenewsAt,
	}

	if err := r.customerRepo.ReplaceSubscription(ctx, customer.ID, sub, historyLog(event)); err != nil {
		return fmt.Errorf("failed to replace subscription: %w", err)
	}

	slog.Info("subscription created",
		slog.String("customer_id", customer.ID),
		slog.String("slug", string(slug)),
		slog.String("frequency", string(frequency)),
	)
	return nil
}

// applyUpdated はsubscription_updatedを処理する。
// slug/frequency/product_idは作成時にのみ決まり、ここでは触れない。
func (r *Reconciler) applyUpdated(ctx context.Context, event *SubscriptionEvent) error {
	customer, err := r.resolveCustomer(ctx, event)
	if err != nil {
		return err
	}

	attrs := event.Data.Attributes
	if err := r.customerRepo.UpdateSubscriptionBilling(ctx, customer.ID, attrs.VariantID, attrs.Status, attrs.UpdatedAt, historyLog(event)); err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

// applyStatusChange はステータスのみ遷移する5イベントを処理する。
func (r *Reconciler) applyStatusChange(ctx context.Context, event *SubscriptionEvent) error {
	customer, err := r.resolveCustomer(ctx, event)
	if err != nil {
		return err
	}

	attrs := event.Data.Attributes
	if err := r.customerRepo.UpdateSubscriptionStatus(ctx, customer.ID, attrs.Status, attrs.UpdatedAt, historyLog(event)); err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	return nil
}

// applyPayment は支払い系3イベントを処理する。履歴追記のみでステータスは変えない。
func (r *Reconciler) applyPayment(ctx context.Context, event *SubscriptionEvent) error {
	customer, err := r.resolveCustomer(ctx, event)
	if err != nil {
		return err
	}

	if err := r.customerRepo.TouchSubscription(ctx, customer.ID, event.Data.Attributes.UpdatedAt, historyLog(event)); err != nil {
		return fmt.Errorf("failed to record payment event: %w", err)
	}
	return nil
}
