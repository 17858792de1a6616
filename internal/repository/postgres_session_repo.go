package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/customerd/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// 期限切れ行は読み出し時にフィルタし、物理削除はcleanupワーカーに任せる。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Put はセッションをTTL付きで保存する。
func (r *PostgresSessionRepo) Put(ctx context.Context, token, customerID, scopes string, ttl time.Duration) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, customer_id, scopes, expires_at)
		 VALUES ($1, $2, $3, now() + $4 * interval '1 second')`,
		token, customerID, scopes, int64(ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get は指定トークンのセッションを取得する。期限切れ・未登録の場合はnilを返す。
func (r *PostgresSessionRepo) Get(ctx context.Context, token string) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT token, customer_id, scopes, expires_at, created_at
		 FROM sessions
		 WHERE token = $1 AND expires_at > now()`,
		token,
	).Scan(&session.Token, &session.CustomerID, &session.Scopes, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return session, nil
}

// Renew はセッションの有効期限を現在時刻からttl後に延長する。
// 有効なセッションが存在しない場合はエラーを返す。
func (r *PostgresSessionRepo) Renew(ctx context.Context, token string, ttl time.Duration) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET expires_at = now() + $2 * interval '1 second'
		 WHERE token = $1 AND expires_at > now()`,
		token, int64(ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to renew session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("session not found or expired")
	}
	return nil
}

// Delete は指定トークンのセッションを削除する。
func (r *PostgresSessionRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token = $1`,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
