// Package auth はトークン発行・検証、セッション管理、OAuth認証フローを提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/customerd/internal/model"
	"github.com/hitoshi/customerd/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string // "google" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdPに対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// Service は認証に関するビジネスロジックを提供する。
// ログインで発行されるセッションはTotalAccessスコープを持ち、
// トークン（expクレーム）とストア行の両方が有効な場合のみ認証が通る。
type Service struct {
	codec        *Codec
	oauth        OAuthProvider
	customerRepo repository.CustomerRepository
	sessionRepo  repository.SessionRepository
}

// NewService はServiceを生成する。oauthはnilでもよい（Googleログイン無効）。
func NewService(
	codec *Codec,
	oauth OAuthProvider,
	customerRepo repository.CustomerRepository,
	sessionRepo repository.SessionRepository,
) *Service {
	return &Service{
		codec:        codec,
		oauth:        oauth,
		customerRepo: customerRepo,
		sessionRepo:  sessionRepo,
	}
}

// LoginLegacy はメールアドレスとパスワードでログインし、セッショントークンを発行する。
func (s *Service) LoginLegacy(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	customer, err := s.customerRepo.FindByIDOrEmail(ctx, "", email)
	if err != nil {
		return "", fmt.Errorf("failed to find customer: %w", err)
	}
	if customer == nil || customer.Deleted {
		return "", model.NewUnauthorizedError()
	}
	if customer.AuthProvider != model.ProviderLegacy {
		return "", model.NewProviderMismatchError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(customer.PasswordHash), []byte(password)); err != nil {
		return "", model.NewIncorrectPasswordError()
	}

	token, err := s.issueSession(ctx, customer.ID)
	if err != nil {
		return "", err
	}

	slog.Info("customer logged in",
		slog.String("customer_id", customer.ID),
		slog.String("provider", string(model.ProviderLegacy)),
	)
	return token, nil
}

// Resolve はベアラートークンを検証し、対応するセッション情報を返す。
// トークン検証・ストア照会・サブジェクト一致のいずれかに失敗した場合は認証エラー。
func (s *Service) Resolve(ctx context.Context, token string) (*model.SessionData, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessionRepo.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}
	if session.CustomerID != claims.Subject {
		// トークンとストア行のサブジェクト不一致は改ざんの兆候
		return nil, model.NewUnauthorizedError()
	}

	scopes, err := model.ParseScopeSet(session.Scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session scopes: %w", err)
	}

	return &model.SessionData{CustomerID: session.CustomerID, Scopes: scopes}, nil
}

// Renew はセッションのストア側TTLを延長する。トークン自体のexpは変化しない。
// 新しいストア側有効期限を返す。
func (s *Service) Renew(ctx context.Context, token string) (time.Time, error) {
	if _, err := s.Resolve(ctx, token); err != nil {
		return time.Time{}, err
	}

	if err := s.sessionRepo.Renew(ctx, token, s.codec.TTL()); err != nil {
		return time.Time{}, fmt.Errorf("failed to renew session: %w", err)
	}

	return time.Now().Add(s.codec.TTL()), nil
}

// Logout はセッションを破棄する。トークン検証は行わない（破棄は常に安全）。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return model.NewUnauthorizedError()
	}
	if err := s.sessionRepo.Delete(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("customer logged out")
	return nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleGoogleCallback はGoogle OAuthコールバックを処理し、セッショントークンを発行する。
// 未登録のメールアドレスの場合はGOOGLEプロバイダーの顧客を自動作成する。
// 同じメールアドレスがlegacyプロバイダーで登録済みの場合はエラーを返す。
func (s *Service) HandleGoogleCallback(ctx context.Context, code string) (string, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	email := strings.ToLower(userInfo.Email)
	customer, err := s.customerRepo.FindByIDOrEmail(ctx, "", email)
	if err != nil {
		return "", fmt.Errorf("failed to find customer: %w", err)
	}

	if customer == nil {
		customer, err = s.createGoogleCustomer(ctx, userInfo.Name, email)
		if err != nil {
			return "", err
		}
		slog.Info("new customer created via oauth",
			slog.String("customer_id", customer.ID),
			slog.String("provider", string(model.ProviderGoogle)),
		)
	} else if customer.AuthProvider != model.ProviderGoogle {
		return "", model.NewProviderMismatchError()
	}

	token, err := s.issueSession(ctx, customer.ID)
	if err != nil {
		return "", err
	}

	slog.Info("customer logged in",
		slog.String("customer_id", customer.ID),
		slog.String("provider", string(model.ProviderGoogle)),
	)
	return token, nil
}

// createGoogleCustomer はOAuth経由の新規顧客を作成する。
// パスワードハッシュは空、メインメールは検証済みとして登録する。
func (s *Service) createGoogleCustomer(ctx context.Context, name, email string) (*model.Customer, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	customer := &model.Customer{
		ID:    uuid.New().String(),
		Name:  name,
		Class: model.ClassPersonal,
		Emails: []model.Email{
			{Address: email, Verified: true, Main: true},
		},
		AuthProvider:     model.ProviderGoogle,
		PasswordHash:     "",
		BackupCodeHashes: []string{},
		Preferences:      model.DefaultPreferences(),
		Subscription:     model.NewFreeSubscription(uuid.New().String(), now),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.customerRepo.Create(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return customer, nil
}

// issueSession はTotalAccessトークンを発行し、同一TTLでストアに保存する。
func (s *Service) issueSession(ctx context.Context, customerID string) (string, error) {
	scopes := model.NewScopeSet(model.ScopeTotalAccess)

	token, _, err := s.codec.Issue(customerID, scopes)
	if err != nil {
		return "", err
	}

	if err := s.sessionRepo.Put(ctx, token, customerID, scopes.String(), s.codec.TTL()); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	return token, nil
}
