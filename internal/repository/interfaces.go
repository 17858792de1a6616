// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/customerd/internal/model"
)

// CustomerRepository は顧客データの永続化インターフェース。
// 更新系メソッドはすべて単一ステートメントの部分更新で、各メソッドが
// 所有するカラムだけに触れる。サブスクリプション履歴の追記はjsonb連結で
// 行われ、同時実行された2つの更新がどちらも失われずに記録される。
type CustomerRepository interface {
	// FindByIDOrEmail はIDまたはメールアドレスで顧客を検索する。
	// どちらか一方が空でもよい。両方空の場合はクエリせずにnilを返す。
	// 見つからない場合はnilを返す。
	FindByIDOrEmail(ctx context.Context, id, email string) (*model.Customer, error)

	// Create は顧客を作成する。
	Create(ctx context.Context, customer *model.Customer) error

	// UpdateName は名前を更新する。
	UpdateName(ctx context.Context, id, name, updatedAt string) error

	// UpdatePassword はパスワードハッシュを更新する。
	UpdatePassword(ctx context.Context, id, passwordHash, updatedAt string) error

	// UpdateEmails はメールアドレス配列を丸ごと置き換える。
	UpdateEmails(ctx context.Context, id string, emails []model.Email, updatedAt string) error

	// UpdatePreferences はUI設定を更新する。
	UpdatePreferences(ctx context.Context, id string, prefs model.Preferences, updatedAt string) error

	// MarkEmailVerified は指定アドレスのverifiedフラグをjsonb配列内で直接立てる。
	MarkEmailVerified(ctx context.Context, id, address, updatedAt string) error

	// ReplaceSubscription はサブスクリプション全体を置き換え、履歴を1件追記する。
	// sub_created_atは顧客作成時の値を保持し、上書きしない。
	ReplaceSubscription(ctx context.Context, id string, sub model.Subscription, log model.SubscriptionHistoryLog) error

	// UpdateSubscriptionBilling はバリアントIDとステータスを更新し、履歴を1件追記する。
	UpdateSubscriptionBilling(ctx context.Context, id string, variantID int64, status, updatedAt string, log model.SubscriptionHistoryLog) error

	// UpdateSubscriptionStatus はステータスのみ更新し、履歴を1件追記する。
	UpdateSubscriptionStatus(ctx context.Context, id, status, updatedAt string, log model.SubscriptionHistoryLog) error

	// TouchSubscription は更新日時だけ進め、履歴を1件追記する（支払い系イベント用）。
	TouchSubscription(ctx context.Context, id, updatedAt string, log model.SubscriptionHistoryLog) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Put はセッションをTTL付きで保存する。
	Put(ctx context.Context, token, customerID, scopes string, ttl time.Duration) error

	// Get は指定トークンのセッションを取得する。期限切れ・未登録の場合はnilを返す。
	Get(ctx context.Context, token string) (*model.Session, error)

	// Renew はセッションの有効期限を現在時刻からttl後に延長する。
	// セッションが存在しない・期限切れの場合はエラーを返す。
	Renew(ctx context.Context, token string, ttl time.Duration) error

	// Delete は指定トークンのセッションを削除する。
	Delete(ctx context.Context, token string) error

	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// VerificationTokenRepository はメール検証トークンの永続化インターフェース。
type VerificationTokenRepository interface {
	// Put は検証トークンをTTL付きで保存する。
	Put(ctx context.Context, token, customerID, address string, ttl time.Duration) error

	// Get は指定トークンを取得する。期限切れ・未登録の場合はnilを返す。
	Get(ctx context.Context, token string) (*model.VerificationToken, error)

	// Delete は指定トークンを削除する。
	Delete(ctx context.Context, token string) error

	// DeleteExpired は期限切れトークンを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
