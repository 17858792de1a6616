package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/customerd/internal/model"
)

var (
	// ErrTokenExpired はトークンの有効期限切れを表す。
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid は署名不正・形式不正などの検証失敗を表す。
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenClaims は検証済みトークンから取り出した情報。
type TokenClaims struct {
	Subject string
	Scopes  model.ScopeSet
}

// Codec はHMAC-SHA512署名のJWTを発行・検証する。
// スコープはaudクレームに正規化直列化（ソート済みカンマ結合）で格納する。
type Codec struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

// NewCodec はCodecを生成する。
func NewCodec(signingKey []byte, issuer string, ttl time.Duration) *Codec {
	return &Codec{signingKey: signingKey, issuer: issuer, ttl: ttl}
}

// TTL はトークンの有効期間を返す。セッションストアのTTLと揃えるために使う。
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue は指定サブジェクトとスコープのトークンを発行する。
func (c *Codec) Issue(subject string, scopes model.ScopeSet) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(c.ttl)

	claims := jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{scopes.String()},
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return token, expiresAt, nil
}

// Verify はトークンを検証し、サブジェクトとスコープを取り出す。
// 期限切れはErrTokenExpired、それ以外の検証失敗はErrTokenInvalidにマップする。
// audクレームに未知のスコープが含まれる場合も検証失敗として扱う。
func (c *Codec) Verify(tokenString string) (*TokenClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return c.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithIssuer(c.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if len(claims.Audience) != 1 {
		return nil, fmt.Errorf("%w: malformed audience", ErrTokenInvalid)
	}

	scopes, err := model.ParseScopeSet(claims.Audience[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	return &TokenClaims{Subject: claims.Subject, Scopes: scopes}, nil
}
