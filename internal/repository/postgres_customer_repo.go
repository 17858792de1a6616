package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/customerd/internal/model"
)

// PostgresCustomerRepo はPostgreSQLを使用した顧客リポジトリ。
// emails/preferences/sub_historyはjsonbカラムとして保持する。
type PostgresCustomerRepo struct {
	db *sql.DB
}

// NewPostgresCustomerRepo はPostgresCustomerRepoを生成する。
func NewPostgresCustomerRepo(db *sql.DB) *PostgresCustomerRepo {
	return &PostgresCustomerRepo{db: db}
}

const customerColumns = `id, name, class, auth_provider, password_hash, backup_code_hashes,
	 emails, preferences, created_at, updated_at, deleted,
	 sub_id, sub_product_id, sub_variant_id, sub_slug, sub_frequency, sub_status,
	 sub_created_at, sub_updated_at, sub_starts_at, sub_ends_at, sub_renews_at, sub_history`

// FindByIDOrEmail はIDまたはメールアドレスで顧客を検索する。見つからない場合はnilを返す。
func (r *PostgresCustomerRepo) FindByIDOrEmail(ctx context.Context, id, email string) (*model.Customer, error) {
	if id == "" && email == "" {
		return nil, nil
	}

	// emails配列の要素に対する部分一致containmentを使う（GINインデックス対象）
	row := r.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+`
		 FROM customers
		 WHERE ($1 <> '' AND id = $1)
		    OR ($2 <> '' AND emails @> jsonb_build_array(jsonb_build_object('address', $2::text)))`,
		id, email,
	)

	return scanCustomer(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*model.Customer, error) {
	c := &model.Customer{}
	var (
		class, provider, slug, frequency        string
		backupCodes, emails, prefs, historyJSON []byte
	)

	err := row.Scan(
		&c.ID, &c.Name, &class, &provider, &c.PasswordHash, &backupCodes,
		&emails, &prefs, &c.CreatedAt, &c.UpdatedAt, &c.Deleted,
		&c.Subscription.ID, &c.Subscription.ProductID, &c.Subscription.VariantID,
		&slug, &frequency, &c.Subscription.Status,
		&c.Subscription.CreatedAt, &c.Subscription.UpdatedAt,
		&c.Subscription.StartsAt, &c.Subscription.EndsAt, &c.Subscription.RenewsAt,
		&historyJSON,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}

	// DB内の値が不正な列挙値であれば取得時点で失敗させる
	if c.Class, err = model.ParseCustomerClass(class); err != nil {
		return nil, fmt.Errorf("failed to read customer class: %w", err)
	}
	if c.AuthProvider, err = model.ParseAuthProvider(provider); err != nil {
		return nil, fmt.Errorf("failed to read auth provider: %w", err)
	}
	c.Subscription.Slug = model.SubscriptionSlug(slug)
	if c.Subscription.Frequency, err = model.ParseSubscriptionFrequency(frequency); err != nil {
		return nil, fmt.Errorf("failed to read subscription frequency: %w", err)
	}

	if err := json.Unmarshal(backupCodes, &c.BackupCodeHashes); err != nil {
		return nil, fmt.Errorf("failed to decode backup codes: %w", err)
	}
	if err := json.Unmarshal(emails, &c.Emails); err != nil {
		return nil, fmt.Errorf("failed to decode emails: %w", err)
	}
	if err := json.Unmarshal(prefs, &c.Preferences); err != nil {
		return nil, fmt.Errorf("failed to decode preferences: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &c.Subscription.HistoryLogs); err != nil {
		return nil, fmt.Errorf("failed to decode subscription history: %w", err)
	}

	return c, nil
}

// Create は顧客を作成する。
func (r *PostgresCustomerRepo) Create(ctx context.Context, customer *model.Customer) error {
	backupCodes, err := json.Marshal(customer.BackupCodeHashes)
	if err != nil {
		return fmt.Errorf("failed to encode backup codes: %w", err)
	}
	emails, err := json.Marshal(customer.Emails)
	if err != nil {
		return fmt.Errorf("failed to encode emails: %w", err)
	}
	prefs, err := json.Marshal(customer.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	history, err := json.Marshal(customer.Subscription.HistoryLogs)
	if err != nil {
		return fmt.Errorf("failed to encode subscription history: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO customers (
			id, name, class, auth_provider, password_hash, backup_code_hashes,
			emails, preferences, created_at, updated_at, deleted,
			sub_id, sub_product_id, sub_variant_id, sub_slug, sub_frequency, sub_status,
			sub_created_at, sub_updated_at, sub_starts_at, sub_ends_at, sub_renews_at, sub_history
		 ) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23
		 )`,
		customer.ID, customer.Name, string(customer.Class), string(customer.AuthProvider),
		customer.PasswordHash, backupCodes,
		emails, prefs, customer.CreatedAt, customer.UpdatedAt, customer.Deleted,
		customer.Subscription.ID, customer.Subscription.ProductID, customer.Subscription.VariantID,
		string(customer.Subscription.Slug), string(customer.Subscription.Frequency), customer.Subscription.Status,
		customer.Subscription.CreatedAt, customer.Subscription.UpdatedAt,
		customer.Subscription.StartsAt, customer.Subscription.EndsAt, customer.Subscription.RenewsAt,
		history,
	)
	if err != nil {
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}

// UpdateName は名前を更新する。
func (r *PostgresCustomerRepo) UpdateName(ctx context.Context, id, name, updatedAt string) error {
	return r.exec(ctx,
		`UPDATE customers SET name = $2, updated_at = $3 WHERE id = $1`,
		id, name, updatedAt,
	)
}

// UpdatePassword はパスワードハッシュを更新する。
func (r *PostgresCustomerRepo) UpdatePassword(ctx context.Context, id, passwordHash, updatedAt string) error {
	return r.exec(ctx,
		`UPDATE customers SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, updatedAt,
	)
}

// UpdateEmails はメールアドレス配列を丸ごと置き換える。
func (r *PostgresCustomerRepo) UpdateEmails(ctx context.Context, id string, emails []model.Email, updatedAt string) error {
	data, err := json.Marshal(emails)
	if err != nil {
		return fmt.Errorf("failed to encode emails: %w", err)
	}
	return r.exec(ctx,
		`UPDATE customers SET emails = $2::jsonb, updated_at = $3 WHERE id = $1`,
		id, data, updatedAt,
	)
}

// UpdatePreferences はUI設定を更新する。
func (r *PostgresCustomerRepo) UpdatePreferences(ctx context.Context, id string, prefs model.Preferences, updatedAt string) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	return r.exec(ctx,
		`UPDATE customers SET preferences = $2::jsonb, updated_at = $3 WHERE id = $1`,
		id, data, updatedAt,
	)
}

// MarkEmailVerified は指定アドレスのverifiedフラグをjsonb配列内で直接立てる。
func (r *PostgresCustomerRepo) MarkEmailVerified(ctx context.Context, id, address, updatedAt string) error {
	return r.exec(ctx,
		`UPDATE customers
		 SET emails = (
			SELECT COALESCE(jsonb_agg(
				CASE WHEN e->>'address' = $2
				     THEN jsonb_set(e, '{verified}', 'true'::jsonb)
				     ELSE e
				END), '[]'::jsonb)
			FROM jsonb_array_elements(emails) AS e
		 ), updated_at = $3
		 WHERE id = $1`,
		id, address, updatedAt,
	)
}

// ReplaceSubscription はサブスクリプション全体を置き換え、履歴を1件追記する。
// sub_created_atは上書きしない。
func (r *PostgresCustomerRepo) ReplaceSubscription(ctx context.Context, id string, sub model.Subscription, log model.SubscriptionHistoryLog) error {
	entry, err := historyEntry(log)
	if err != nil {
		return err
	}
	return r.exec(ctx,
		`UPDATE customers
		 SET sub_id = $2, sub_product_id = $3, sub_variant_id = $4,
		     sub_slug = $5, sub_frequency = $6, sub_status = $7,
		     sub_updated_at = $8, sub_starts_at = $9, sub_ends_at = $10, sub_renews_at = $11,
		     sub_history = sub_history || $12::jsonb
		 WHERE id = $1`,
		id, sub.ID, sub.ProductID, sub.VariantID,
		string(sub.Slug), string(sub.Frequency), sub.Status,
		sub.UpdatedAt, sub.StartsAt, sub.EndsAt, sub.RenewsAt,
		entry,
	)
}

// UpdateSubscriptionBilling はバリアントIDとステータスを更新し、履歴を1件追記する。
func (r *PostgresCustomerRepo) UpdateSubscriptionBilling(ctx context.Context, id string, variantID int64, status, updatedAt string, log model.SubscriptionHistoryLog) error {
	entry, err := historyEntry(log)
	if err != nil {
		return err
	}
	return r.exec(ctx,
		`UPDATE customers
		 SET sub_variant_id = $2, sub_status = $3, sub_updated_at = $4,
		     sub_history = sub_history || $5::jsonb
		 WHERE id = $1`,
		id, variantID, status, updatedAt, entry,
	)
}

// UpdateSubscriptionStatus はステータスのみ更新し、履歴を1件追記する。
func (r *PostgresCustomerRepo) UpdateSubscriptionStatus(ctx context.Context, id, status, updatedAt string, log model.SubscriptionHistoryLog) error {
	entry, err := historyEntry(log)
	if err != nil {
		return err
	}
	return r.exec(ctx,
		`UPDATE customers
		 SET sub_status = $2, sub_updated_at = $3,
		     sub_history = sub_history || $4::jsonb
		 WHERE id = $1`,
		id, status, updatedAt, entry,
	)
}

// TouchSubscription は更新日時だけ進め、履歴を1件追記する。
func (r *PostgresCustomerRepo) TouchSubscription(ctx context.Context, id, updatedAt string, log model.SubscriptionHistoryLog) error {
	entry, err := historyEntry(log)
	if err != nil {
		return err
	}
	return r.exec(ctx,
		`UPDATE customers
		 SET sub_updated_at = $2,
		     sub_history = sub_history || $3::jsonb
		 WHERE id = $1`,
		id, updatedAt, entry,
	)
}

// historyEntry は履歴1件をjsonb連結用の単一要素配列にエンコードする。
func historyEntry(log model.SubscriptionHistoryLog) ([]byte, error) {
	data, err := json.Marshal([]model.SubscriptionHistoryLog{log})
	if err != nil {
		return nil, fmt.Errorf("failed to encode history entry: %w", err)
	}
	return data, nil
}

func (r *PostgresCustomerRepo) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("customer not found: %s", args[0])
	}
	return nil
}

// compile-time interface check
var _ CustomerRepository = (*PostgresCustomerRepo)(nil)
