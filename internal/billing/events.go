// Package billing はLemon Squeezy Webhookの検証とサブスクリプション照合を提供する。
package billing

// CustomData はチェックアウト時に埋め込まれる任意データ。
// customer_idで課金イベントと顧客レコードを紐付ける。
type CustomData struct {
	CustomerID string `json:"customer_id"`
}

// Meta はWebhookイベントの共通メタデータ。
type Meta struct {
	EventName  string      `json:"event_name"`
	WebhookID  string      `json:"webhook_id,omitempty"`
	CustomData *CustomData `json:"custom_data,omitempty"`
	TestMode   bool        `json:"test_mode,omitempty"`
}

// SubscriptionAttributes はサブスクリプションイベントの属性。
// 日時はプロバイダーのISO-8601文字列をそのまま保持する。
type SubscriptionAttributes struct {
	StoreID   int64   `json:"store_id"`
	ProductID int64   `json:"product_id"`
	VariantID int64   `json:"variant_id"`
	UserName  string  `json:"user_name"`
	UserEmail string  `json:"user_email"`
	Status    string  `json:"status"`
	Cancelled bool    `json:"cancelled"`
	RenewsAt  string  `json:"renews_at"`
	EndsAt    *string `json:"ends_at"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// SubscriptionData はサブスクリプションイベントのdataブロック。
type SubscriptionData struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id"`
	Attributes SubscriptionAttributes `json:"attributes"`
}

// SubscriptionEvent はサブスクリプション系Webhookイベント全体。
type SubscriptionEvent struct {
	Meta Meta             `json:"meta"`
	Data SubscriptionData `json:"data"`
}

// OrderAttributes は注文イベントの属性（最小限）。
// 注文イベントは受領のみで処理は行わない。
type OrderAttributes struct {
	StoreID     int64  `json:"store_id"`
	CustomerID  int64  `json:"customer_id"`
	Identifier  string `json:"identifier"`
	OrderNumber int64  `json:"order_number"`
	UserEmail   string `json:"user_email"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// OrderData は注文イベントのdataブロック。
type OrderData struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Attributes OrderAttributes `json:"attributes"`
}

// OrderEvent は注文系Webhookイベント全体。
type OrderEvent struct {
	Meta Meta      `json:"meta"`
	Data OrderData `json:"data"`
}
