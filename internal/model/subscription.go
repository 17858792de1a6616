package model

// SubscriptionHistoryLog はサブスクリプションに対する課金イベントの記録1件を表す。
// history_logsは追記専用で、1回のイベント処理ごとにちょうど1件追加される。
type SubscriptionHistoryLog struct {
	Event string `json:"event"`
	Date  string `json:"date"`
}

// Subscription は顧客に1対1で埋め込まれるサブスクリプション状態を表す。
// レコード自体は削除されず、解約後もfreeプラン相当の状態として残る。
// created_atはアカウント作成日時を保持し、課金イベントでは変化しない。
type Subscription struct {
	ID        string                `json:"id"`
	ProductID int64                 `json:"product_id"`
	VariantID int64                 `json:"variant_id"`
	Slug      SubscriptionSlug      `json:"slug"`
	Frequency SubscriptionFrequency `json:"frequency"`
	Status    string                `json:"status"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	StartsAt  string `json:"starts_at"`
	EndsAt    string `json:"ends_at"`
	RenewsAt  string `json:"renews_at"`

	HistoryLogs []SubscriptionHistoryLog `json:"history_logs"`
}

// NewFreeSubscription はアカウント作成時の無課金サブスクリプションを生成する。
func NewFreeSubscription(id, createdAt string) Subscription {
	return Subscription{
		ID:          id,
		ProductID:   0,
		VariantID:   0,
		Slug:        SlugFree,
		Frequency:   FrequencyUndefined,
		Status:      "",
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
		StartsAt:    "",
		EndsAt:      "",
		RenewsAt:    "",
		HistoryLogs: []SubscriptionHistoryLog{},
	}
}
