package model

import "time"

// Session はトークン文字列をキーとするサーバー側セッションを表す。
// トークン自体の有効期限（expクレーム）とは独立にストア側でもTTLを持ち、
// セッションが有効なのは両方の検証を通過した場合のみ。
type Session struct {
	Token      string
	CustomerID string
	Scopes     string // 正規化直列化されたスコープ集合
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// SessionData は認証済みリクエストに紐づくセッション情報。
// ミドルウェアがリクエストコンテキストに注入する。
type SessionData struct {
	CustomerID string
	Scopes     ScopeSet
}
