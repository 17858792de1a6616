package model

import "time"

// VerificationToken はメールアドレス検証用のワンタイムトークンを表す。
// 使用時に削除されるため再利用できない。
type VerificationToken struct {
	Token      string
	CustomerID string
	Address    string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
