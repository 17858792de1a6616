package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/customerd/internal/model"
)

// PostgresVerificationTokenRepo はPostgreSQLを使用したメール検証トークンリポジトリ。
type PostgresVerificationTokenRepo struct {
	db *sql.DB
}

// NewPostgresVerificationTokenRepo はPostgresVerificationTokenRepoを生成する。
func NewPostgresVerificationTokenRepo(db *sql.DB) *PostgresVerificationTokenRepo {
	return &PostgresVerificationTokenRepo{db: db}
}

// Put は検証トークンをTTL付きで保存する。
func (r *PostgresVerificationTokenRepo) Put(ctx context.Context, token, customerID, address string, ttl time.Duration) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_tokens (token, customer_id, address, expires_at)
		 VALUES ($1, $2, $3, now() + $4 * interval '1 second')`,
		token, customerID, address, int64(ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to create verification token: %w", err)
	}
	return nil
}

// Get は指定トークンを取得する。期限切れ・未登録の場合はnilを返す。
func (r *PostgresVerificationTokenRepo) Get(ctx context.Context, token string) (*model.VerificationToken, error) {
	vt := &model.VerificationToken{}
	err := r.db.QueryRowContext(ctx,
		`SELECT token, customer_id, address, expires_at, created_at
		 FROM verification_tokens
		 WHERE token = $1 AND expires_at > now()`,
		token,
	).Scan(&vt.Token, &vt.CustomerID, &vt.Address, &vt.ExpiresAt, &vt.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find verification token: %w", err)
	}

	return vt, nil
}

// Delete は指定トークンを削除する。
func (r *PostgresVerificationTokenRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE token = $1`,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to delete verification token: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れトークンを削除し、削除件数を返す。
func (r *PostgresVerificationTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired verification tokens: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ VerificationTokenRepository = (*PostgresVerificationTokenRepo)(nil)
